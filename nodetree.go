package stage3d

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/solarlune/stage3d/physics"
)

// maxExternalFileDepth bounds how deeply node tree files may reference each other, which also stops reference cycles.
const maxExternalFileDepth = 8

// ErrUnknownNodeType is returned when a node tree file names a node type that wasn't registered.
var ErrUnknownNodeType = errors.New("unknown node type")

var nodeTypes = struct {
	sync.RWMutex
	create map[string]func(name string) INode
}{create: map[string]func(name string) INode{}}

// RegisterNodeType makes a node type loadable from node tree files. The type is stored under its Go type name, so
// two registered types must not share a name.
func RegisterNodeType[T INode](create func(name string) T) {
	typeName := typeNameOf(reflect.TypeFor[T]())
	nodeTypes.Lock()
	nodeTypes.create[typeName] = func(name string) INode { return create(name) }
	nodeTypes.Unlock()
}

func init() {
	RegisterNodeType(NewNode)
	RegisterNodeType(NewSpatialNode)
	RegisterNodeType(func(name string) *CameraNode { return NewCameraNode(name, 640, 360) })
	RegisterNodeType(func(name string) *MeshNode { return NewMeshNode(name, nil) })
	RegisterNodeType(func(name string) *SoundNode { return NewSoundNode(name, "") })
	RegisterNodeType(func(name string) *CollisionNode { return NewCollisionNode(name, nil) })
	RegisterNodeType(func(name string) *TriggerVolumeNode { return NewTriggerVolumeNode(name, nil) })
	RegisterNodeType(func(name string) *SimulatedBodyNode { return NewSimulatedBodyNode(name, nil) })
	RegisterNodeType(func(name string) *MovingBodyNode { return NewMovingBodyNode(name, nil) })
	RegisterNodeType(func(name string) *CharacterBodyNode { return NewCharacterBodyNode(name, nil) })
	RegisterNodeType(func(name string) *CollisionShapeNode { return NewCollisionShapeNode(name, nil) })
	RegisterNodeType(NewCompoundCollisionNode)
	RegisterNodeType(func(name string) *ScriptNode { return NewScriptNode(name, "") })
	RegisterNodeType(func(name string) *TweenNode { return NewTweenNode(name, Vector{}, 1) })
	RegisterNodeType(func(name string) *AmbientLightNode { return NewAmbientLightNode(name, NewColor(1, 1, 1, 1), 1) })
	RegisterNodeType(func(name string) *DirectionalLightNode { return NewDirectionalLightNode(name, NewColor(1, 1, 1, 1), 1) })
	RegisterNodeType(func(name string) *PointLightNode { return NewPointLightNode(name, NewColor(1, 1, 1, 1), 1) })
}

func typeNameOf(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func nodeTypeName(node INode) string {
	return typeNameOf(reflect.TypeOf(node))
}

// nodeTreeFile is the layout of a node tree file: a flat list of nodes, parents referring to them by file-local ID.
type nodeTreeFile struct {
	Nodes []nodeEntry `toml:"node"`
}

type nodeEntry struct {
	ID           int            `toml:"id"`
	Type         string         `toml:"type"`
	Name         string         `toml:"name"`
	ParentID     *int           `toml:"parent_id,omitempty"`
	ChildIndex   *int           `toml:"child_index,omitempty"`
	ExternalFile string         `toml:"external_file,omitempty"`
	Fields       map[string]any `toml:"fields,omitempty"`
	Properties   map[string]any `toml:"properties,omitempty"`
}

// fieldSerializer is implemented by node types with state of their own to save.
type fieldSerializer interface {
	encodeFields(fields map[string]any)
	decodeFields(fields *fieldReader)
}

// SaveNodeTree writes root and its descendants to a TOML node tree file. Nodes that aren't serialized are skipped
// along with their subtrees; nodes loaded from another node tree file are written as references to it.
func SaveNodeTree(root INode, path string) error {
	if !root.IsSerialized() {
		return fmt.Errorf("saving node tree %q: root node %q isn't serialized", path, root.Name())
	}

	var file nodeTreeFile
	var write func(node INode, parentID *int, childIndex *int)
	write = func(node INode, parentID *int, childIndex *int) {
		entry := nodeEntry{
			ID:           len(file.Nodes),
			Type:         nodeTypeName(node),
			Name:         node.Name(),
			ParentID:     parentID,
			ChildIndex:   childIndex,
			ExternalFile: node.base().ExternalFile(),
			Properties:   node.Properties().encode(),
		}
		if serializer, ok := node.(fieldSerializer); ok {
			entry.Fields = map[string]any{}
			serializer.encodeFields(entry.Fields)
		}
		file.Nodes = append(file.Nodes, entry)

		if entry.ExternalFile != "" {
			return
		}
		id := entry.ID
		index := 0
		for _, child := range node.Children() {
			if !child.IsSerialized() {
				continue
			}
			write(child, &id, &index)
			index++
		}
	}
	write(root, nil, nil)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving node tree: %w", err)
	}
	if err := toml.NewEncoder(out).Encode(file); err != nil {
		out.Close()
		return fmt.Errorf("saving node tree %q: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("saving node tree %q: %w", path, err)
	}

	Logger().Debug("node tree saved", zap.String("path", path), zap.Int("nodes", len(file.Nodes)))
	return nil
}

// LoadNodeTree reads a node tree file and returns its root, detached and unspawned. Files ending in .gltf or .glb
// are imported with LoadGLTFNodeTree.
func LoadNodeTree(path string) (INode, error) {
	switch filepath.Ext(path) {
	case ".gltf", ".glb":
		return LoadGLTFNodeTree(path)
	}
	return loadNodeTree(path, 0)
}

func loadNodeTree(path string, depth int) (INode, error) {
	if depth > maxExternalFileDepth {
		return nil, fmt.Errorf("loading node tree %q: external node tree files nest more than %d deep", path, maxExternalFileDepth)
	}

	var file nodeTreeFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("loading node tree %q: %w", path, err)
	}

	root, err := buildNodeTree(file, filepath.Dir(path), depth)
	if err != nil {
		return nil, fmt.Errorf("loading node tree %q: %w", path, err)
	}

	Logger().Debug("node tree loaded", zap.String("path", path), zap.Int("nodes", len(file.Nodes)))
	return root, nil
}

func buildNodeTree(file nodeTreeFile, dir string, depth int) (INode, error) {
	if len(file.Nodes) == 0 {
		return nil, errors.New("file has no nodes")
	}

	entries := make(map[int]*nodeEntry, len(file.Nodes))
	var rootEntry *nodeEntry
	for i := range file.Nodes {
		entry := &file.Nodes[i]
		if _, dup := entries[entry.ID]; dup {
			return nil, fmt.Errorf("node id %d is used twice", entry.ID)
		}
		entries[entry.ID] = entry
		if entry.ParentID == nil {
			if rootEntry != nil {
				return nil, fmt.Errorf("nodes %d and %d both have no parent", rootEntry.ID, entry.ID)
			}
			rootEntry = entry
		}
	}
	if rootEntry == nil {
		return nil, errors.New("no root node (a node without parent_id)")
	}

	children := map[int][]*nodeEntry{}
	for i := range file.Nodes {
		entry := &file.Nodes[i]
		if entry.ParentID == nil {
			continue
		}
		if _, ok := entries[*entry.ParentID]; !ok {
			return nil, fmt.Errorf("node %d (%q) has unknown parent %d", entry.ID, entry.Name, *entry.ParentID)
		}
		children[*entry.ParentID] = append(children[*entry.ParentID], entry)
	}
	for _, siblings := range children {
		sort.SliceStable(siblings, func(i, j int) bool { return childIndex(siblings[i]) < childIndex(siblings[j]) })
	}

	reached := 0
	var build func(entry *nodeEntry) (INode, error)
	build = func(entry *nodeEntry) (INode, error) {
		reached++
		node, err := createNode(entry, dir, depth)
		if err != nil {
			return nil, err
		}
		for _, childEntry := range children[entry.ID] {
			child, err := build(childEntry)
			if err != nil {
				node.UnsafeDetachFromParentAndDespawn()
				return nil, err
			}
			node.AddChildNode(child, RuleKeepRelative, RuleKeepRelative, RuleKeepRelative)
		}
		return node, nil
	}
	root, err := build(rootEntry)
	if err != nil {
		return nil, err
	}
	if reached != len(file.Nodes) {
		root.UnsafeDetachFromParentAndDespawn()
		return nil, fmt.Errorf("%d nodes aren't connected to the root", len(file.Nodes)-reached)
	}
	return root, nil
}

func childIndex(entry *nodeEntry) int {
	if entry.ChildIndex == nil {
		return int(^uint(0) >> 1)
	}
	return *entry.ChildIndex
}

// createNode creates the node of one entry. An entry referencing an external file loads that file's tree, and
// only the root of that tree takes the entry's name, fields and properties.
func createNode(entry *nodeEntry, dir string, depth int) (INode, error) {
	var node INode
	if entry.ExternalFile != "" {
		external, err := loadNodeTree(filepath.Join(dir, entry.ExternalFile), depth+1)
		if err != nil {
			return nil, fmt.Errorf("node %d (%q): %w", entry.ID, entry.Name, err)
		}
		if entry.Type != "" && nodeTypeName(external) != entry.Type {
			external.UnsafeDetachFromParentAndDespawn()
			return nil, fmt.Errorf("node %d (%q): external file root is a %s, not a %s", entry.ID, entry.Name, nodeTypeName(external), entry.Type)
		}
		external.SetName(entry.Name)
		external.base().SetExternalFile(entry.ExternalFile)
		node = external
	} else {
		nodeTypes.RLock()
		create, ok := nodeTypes.create[entry.Type]
		nodeTypes.RUnlock()
		if !ok {
			return nil, fmt.Errorf("node %d (%q): %w %q", entry.ID, entry.Name, ErrUnknownNodeType, entry.Type)
		}
		node = create(entry.Name)
	}

	if serializer, ok := node.(fieldSerializer); ok && entry.Fields != nil {
		reader := &fieldReader{fields: entry.Fields}
		serializer.decodeFields(reader)
		if reader.err != nil {
			node.UnsafeDetachFromParentAndDespawn()
			return nil, fmt.Errorf("node %d (%q): %w", entry.ID, entry.Name, reader.err)
		}
	}
	if err := node.Properties().decode(entry.Properties); err != nil {
		node.UnsafeDetachFromParentAndDespawn()
		return nil, fmt.Errorf("node %d (%q): %w", entry.ID, entry.Name, err)
	}
	return node, nil
}

// fieldReader reads typed fields out of a decoded TOML table, keeping the first error. Missing fields leave their
// destination untouched.
type fieldReader struct {
	fields map[string]any
	err    error
}

func (r *fieldReader) fail(name string, value any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("field %q: %v is not a %s", name, value, want)
	}
}

func (r *fieldReader) float(name string, dst *float64) {
	value, ok := r.fields[name]
	if !ok {
		return
	}
	if f, ok := toFloat(value); ok {
		*dst = f
		return
	}
	r.fail(name, value, "number")
}

func (r *fieldReader) int(name string, dst *int) {
	value, ok := r.fields[name]
	if !ok {
		return
	}
	if i, ok := value.(int64); ok {
		*dst = int(i)
		return
	}
	r.fail(name, value, "integer")
}

func (r *fieldReader) bool(name string, dst *bool) {
	value, ok := r.fields[name]
	if !ok {
		return
	}
	if b, ok := value.(bool); ok {
		*dst = b
		return
	}
	r.fail(name, value, "boolean")
}

func (r *fieldReader) string(name string, dst *string) {
	value, ok := r.fields[name]
	if !ok {
		return
	}
	if s, ok := value.(string); ok {
		*dst = s
		return
	}
	r.fail(name, value, "string")
}

func (r *fieldReader) floats(name string, count int) ([]float64, bool) {
	value, ok := r.fields[name]
	if !ok {
		return nil, false
	}
	list, ok := value.([]any)
	if !ok || len(list) != count {
		r.fail(name, value, fmt.Sprintf("list of %d numbers", count))
		return nil, false
	}
	out := make([]float64, count)
	for i, item := range list {
		if out[i], ok = toFloat(item); !ok {
			r.fail(name, value, fmt.Sprintf("list of %d numbers", count))
			return nil, false
		}
	}
	return out, true
}

func (r *fieldReader) vector(name string, dst *Vector) {
	if v, ok := r.floats(name, 3); ok {
		*dst = Vector{X: v[0], Y: v[1], Z: v[2]}
	}
}

func (r *fieldReader) quaternion(name string, dst *Quaternion) {
	if q, ok := r.floats(name, 4); ok {
		*dst = Quaternion{X: q[0], Y: q[1], Z: q[2], W: q[3]}
	}
}

func (r *fieldReader) color(name string, dst *Color) {
	var hex string
	r.string(name, &hex)
	if hex == "" {
		return
	}
	color, err := ParseHexColor(hex)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("field %q: %w", name, err)
		return
	}
	*dst = color
}

func (r *fieldReader) table(name string) (*fieldReader, bool) {
	value, ok := r.fields[name]
	if !ok {
		return nil, false
	}
	table, ok := value.(map[string]any)
	if !ok {
		r.fail(name, value, "table")
		return nil, false
	}
	return &fieldReader{fields: table}, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func encodeVector(v Vector) []float64 { return []float64{v.X, v.Y, v.Z} }

func encodeQuaternion(q Quaternion) []float64 { return []float64{q.X, q.Y, q.Z, q.W} }

func (node *Node) encodeFields(fields map[string]any) {
	fields["called_every_frame"] = node.IsCalledEveryFrame()
	fields["receiving_input"] = node.IsReceivingInput()
	fields["tick_group"] = node.TickGroup().String()
}

func (node *Node) decodeFields(fields *fieldReader) {
	calledEveryFrame, receivingInput := node.IsCalledEveryFrame(), node.IsReceivingInput()
	group := node.TickGroup().String()
	fields.bool("called_every_frame", &calledEveryFrame)
	fields.bool("receiving_input", &receivingInput)
	fields.string("tick_group", &group)
	switch group {
	case TickGroupFirst.String():
		node.SetTickGroup(TickGroupFirst)
	case TickGroupSecond.String():
		node.SetTickGroup(TickGroupSecond)
	default:
		fields.fail("tick_group", group, "tick group")
	}
	node.SetIsCalledEveryFrame(calledEveryFrame)
	node.SetIsReceivingInput(receivingInput)
}

func (sn *SpatialNode) encodeFields(fields map[string]any) {
	sn.Node.encodeFields(fields)
	transform := sn.RelativeTransform()
	fields["location"] = encodeVector(transform.Location)
	fields["rotation"] = encodeQuaternion(transform.Rotation)
	fields["scale"] = encodeVector(transform.Scale)
}

func (sn *SpatialNode) decodeFields(fields *fieldReader) {
	sn.Node.decodeFields(fields)
	transform := sn.RelativeTransform()
	fields.vector("location", &transform.Location)
	fields.quaternion("rotation", &transform.Rotation)
	fields.vector("scale", &transform.Scale)
	sn.SetRelativeTransform(transform)
}

func (camera *CameraNode) encodeFields(fields map[string]any) {
	camera.SpatialNode.encodeFields(fields)
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	fields["activate_on_spawn"] = camera.ActivateOnSpawn
	fields["perspective"] = camera.perspective
	fields["field_of_view"] = camera.fieldOfView
	fields["ortho_scale"] = camera.orthoScale
	fields["near"] = camera.near
	fields["far"] = camera.far
	fields["width"] = camera.width
	fields["height"] = camera.height
}

func (camera *CameraNode) decodeFields(fields *fieldReader) {
	camera.SpatialNode.decodeFields(fields)
	fields.bool("activate_on_spawn", &camera.ActivateOnSpawn)
	camera.set(func() {
		fields.bool("perspective", &camera.perspective)
		fields.float("field_of_view", &camera.fieldOfView)
		fields.float("ortho_scale", &camera.orthoScale)
		fields.float("near", &camera.near)
		fields.float("far", &camera.far)
		fields.int("width", &camera.width)
		fields.int("height", &camera.height)
	})
}

func (node *MeshNode) encodeFields(fields map[string]any) {
	node.SpatialNode.encodeFields(fields)
	if mesh := node.Mesh(); mesh != nil {
		fields["mesh"] = mesh.Name
	}
	fields["color"] = node.Color().Hex()
	fields["visible"] = node.IsVisible()
}

func (node *MeshNode) decodeFields(fields *fieldReader) {
	node.SpatialNode.decodeFields(fields)
	var meshName string
	color, visible := node.Color(), node.IsVisible()
	fields.string("mesh", &meshName)
	fields.color("color", &color)
	fields.bool("visible", &visible)
	if meshName != "" {
		mesh, ok := LibraryMesh(meshName)
		if !ok && fields.err == nil {
			fields.err = fmt.Errorf("field \"mesh\": no mesh named %q in the mesh library", meshName)
		}
		node.SetMesh(mesh)
	}
	node.SetColor(color)
	node.SetVisible(visible)
}

func (node *SoundNode) encodeFields(fields map[string]any) {
	node.SpatialNode.encodeFields(fields)
	fields["sound"] = node.Sound
	fields["channel"] = node.Channel
	fields["volume"] = node.Volume
	fields["loop"] = node.Loop
	fields["auto_play"] = node.AutoPlay
	fields["max_distance"] = node.MaxDistance
}

func (node *SoundNode) decodeFields(fields *fieldReader) {
	node.SpatialNode.decodeFields(fields)
	fields.string("sound", &node.Sound)
	fields.string("channel", &node.Channel)
	fields.float("volume", &node.Volume)
	fields.bool("loop", &node.Loop)
	fields.bool("auto_play", &node.AutoPlay)
	fields.float("max_distance", &node.MaxDistance)
}

func (base *physicsNodeBase) encodeFields(fields map[string]any) {
	base.SpatialNode.encodeFields(fields)
	if shape := base.CollisionShape(); shape != nil {
		if encoded := encodeShape(shape.Shape()); encoded != nil {
			fields["shape"] = encoded
		}
	}
}

func (base *physicsNodeBase) decodeFields(fields *fieldReader) {
	base.SpatialNode.decodeFields(fields)
	if table, ok := fields.table("shape"); ok {
		if shape := decodeShape(table); table.err != nil {
			fields.err = fmt.Errorf("field \"shape\": %w", table.err)
		} else {
			base.SetCollisionShape(NewCollisionShape(shape))
		}
	}
}

func (node *SimulatedBodyNode) encodeFields(fields map[string]any) {
	node.physicsNodeBase.encodeFields(fields)
	fields["mass"] = node.Mass
	fields["gravity_factor"] = node.GravityFactor
}

func (node *SimulatedBodyNode) decodeFields(fields *fieldReader) {
	node.physicsNodeBase.decodeFields(fields)
	fields.float("mass", &node.Mass)
	fields.float("gravity_factor", &node.GravityFactor)
}

func (node *CharacterBodyNode) encodeFields(fields map[string]any) {
	node.physicsNodeBase.encodeFields(fields)
	fields["gravity_factor"] = node.GravityFactor
}

func (node *CharacterBodyNode) decodeFields(fields *fieldReader) {
	node.physicsNodeBase.decodeFields(fields)
	fields.float("gravity_factor", &node.GravityFactor)
}

func (node *CollisionShapeNode) encodeFields(fields map[string]any) {
	node.SpatialNode.encodeFields(fields)
	if node.Shape != nil {
		if encoded := encodeShape(node.Shape.Shape()); encoded != nil {
			fields["shape"] = encoded
		}
	}
}

func (node *CollisionShapeNode) decodeFields(fields *fieldReader) {
	node.SpatialNode.decodeFields(fields)
	if table, ok := fields.table("shape"); ok {
		if shape := decodeShape(table); table.err != nil {
			fields.err = fmt.Errorf("field \"shape\": %w", table.err)
		} else {
			node.Shape = NewCollisionShape(shape)
		}
	}
}

// encodeShape returns the table of a primitive shape; compound shapes are built from child nodes and aren't saved.
func encodeShape(shape physics.Shape) map[string]any {
	switch s := shape.(type) {
	case physics.Sphere:
		return map[string]any{"kind": "sphere", "radius": s.Radius}
	case physics.Box:
		return map[string]any{"kind": "box", "half_extents": []float64{s.HalfExtents.X, s.HalfExtents.Y, s.HalfExtents.Z}}
	case physics.Capsule:
		return map[string]any{"kind": "capsule", "radius": s.Radius, "half_height": s.HalfHeight}
	}
	return nil
}

func decodeShape(table *fieldReader) physics.Shape {
	var kind string
	table.string("kind", &kind)
	switch kind {
	case "sphere":
		var s physics.Sphere
		table.float("radius", &s.Radius)
		return s
	case "box":
		var halfExtents Vector
		table.vector("half_extents", &halfExtents)
		return physics.Box{HalfExtents: toPhysicsVec(halfExtents)}
	case "capsule":
		var s physics.Capsule
		table.float("radius", &s.Radius)
		table.float("half_height", &s.HalfHeight)
		return s
	}
	table.fail("kind", kind, "shape kind (sphere, box or capsule)")
	return nil
}
