package stage3d

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/solarlune/stage3d/physics"
)

// PhysicsNode is implemented by the nodes that own a physics body while they're spawned: CollisionNode,
// TriggerVolumeNode, SimulatedBodyNode, MovingBodyNode, CharacterBodyNode and CompoundCollisionNode.
//
// Types embedding one of them and overriding OnSpawning, OnChildNodesSpawned or OnDespawning must call the
// embedded method, or the body won't follow the node's lifecycle.
type PhysicsNode interface {
	Spatial
	CollisionShape() *CollisionShape

	physicsBody() *physicsBody
	spatial() *SpatialNode
	// builtin returns the physics node type of this package the node is (or embeds).
	builtin() PhysicsNode
}

// physicsBody holds the handles of a node's body. Characters have both.
type physicsBody struct {
	mu        sync.Mutex
	bodyID    physics.BodyID
	character *physics.Character
}

func (body *physicsBody) handles() (physics.BodyID, *physics.Character) {
	body.mu.Lock()
	defer body.mu.Unlock()
	return body.bodyID, body.character
}

func (body *physicsBody) hasBody() bool {
	id, _ := body.handles()
	return id != 0
}

func (body *physicsBody) setBody(id physics.BodyID, character *physics.Character) {
	body.mu.Lock()
	body.bodyID, body.character = id, character
	body.mu.Unlock()
}

func (body *physicsBody) clearBody() { body.setBody(0, nil) }

// physicsNodeBase is what every physics node kind shares: a shape, a body while spawned, and the wiring between
// the two and the node's lifecycle.
type physicsNodeBase struct {
	*SpatialNode

	shapeMu           sync.Mutex
	shape             *CollisionShape
	stopWatchingShape func()

	body physicsBody
}

func (base *physicsNodeBase) initPhysics(name string, self INode, shape *CollisionShape) {
	base.SpatialNode = &SpatialNode{Node: &Node{}}
	base.SpatialNode.initSpatial(name, self)
	base.shape = shape
	base.worldTransformChanged = base.onWorldTransformChanged
}

func (base *physicsNodeBase) physicsBody() *physicsBody { return &base.body }

// CollisionShape returns the node's shape.
func (base *physicsNodeBase) CollisionShape() *CollisionShape {
	base.shapeMu.Lock()
	defer base.shapeMu.Unlock()
	return base.shape
}

// SetCollisionShape replaces the node's shape. A spawned node gets its body recreated.
func (base *physicsNodeBase) SetCollisionShape(shape *CollisionShape) {
	base.shapeMu.Lock()
	base.shape = shape
	base.shapeMu.Unlock()

	if !base.IsSpawned() {
		return
	}
	base.unwatchShape()
	base.watchShape()
	base.onShapeChanged()
}

func (base *physicsNodeBase) physicsManager() *PhysicsManager {
	world := base.World()
	if world == nil {
		return nil
	}
	return world.PhysicsManager()
}

func (base *physicsNodeBase) OnSpawning() {
	base.createBody()
	base.Node.OnSpawning()
}

func (base *physicsNodeBase) OnDespawning() {
	base.Node.OnDespawning()
	base.destroyBody()
}

func (base *physicsNodeBase) createBody() {
	base.physicsManager().CreateBodyForNode(base.outer())
	base.watchShape()
}

func (base *physicsNodeBase) destroyBody() {
	base.unwatchShape()
	if base.body.hasBody() {
		base.physicsManager().DestroyBodyForNode(base.outer())
	}
}

func (base *physicsNodeBase) watchShape() {
	shape := base.CollisionShape()
	if shape == nil {
		return
	}
	stop := shape.OnChanged(base.onShapeChanged)

	base.shapeMu.Lock()
	base.stopWatchingShape = stop
	base.shapeMu.Unlock()
}

func (base *physicsNodeBase) unwatchShape() {
	base.shapeMu.Lock()
	stop := base.stopWatchingShape
	base.stopWatchingShape = nil
	base.shapeMu.Unlock()

	if stop != nil {
		stop()
	}
}

func (base *physicsNodeBase) onShapeChanged() {
	if !base.IsSpawned() {
		return
	}
	base.physicsManager().recreateBodyForNode(base.outer().(PhysicsNode))
}

func (base *physicsNodeBase) onWorldTransformChanged() {
	if !base.IsSpawned() || !base.body.hasBody() {
		return
	}
	base.physicsManager().SetBodyLocationRotation(base.outer().(PhysicsNode))
}

// CollisionNode is static geometry: it blocks other bodies and never moves on its own.
type CollisionNode struct {
	physicsNodeBase
}

// NewCollisionNode creates a CollisionNode with the given shape.
func NewCollisionNode(name string, shape *CollisionShape) *CollisionNode {
	node := &CollisionNode{}
	node.initPhysics(name, node, shape)
	return node
}

func (node *CollisionNode) builtin() PhysicsNode { return node }

// OverlapCallbacks are called when a node starts or stops overlapping a TriggerVolumeNode.
type OverlapCallbacks struct {
	OnBeginOverlap func(volume *TriggerVolumeNode, other INode)
	OnEndOverlap   func(volume *TriggerVolumeNode, other INode)
}

// TriggerVolumeNode is a sensor: it doesn't block anything, but reports the physics nodes entering and leaving it.
type TriggerVolumeNode struct {
	physicsNodeBase

	Overlaps OverlapCallbacks

	overlappingMu sync.Mutex
	overlapping   map[uint64]int
}

// NewTriggerVolumeNode creates a TriggerVolumeNode with the given shape.
func NewTriggerVolumeNode(name string, shape *CollisionShape) *TriggerVolumeNode {
	node := &TriggerVolumeNode{overlapping: map[uint64]int{}}
	node.initPhysics(name, node, shape)
	return node
}

func (node *TriggerVolumeNode) builtin() PhysicsNode { return node }

func (node *TriggerVolumeNode) OnBeginOverlap(other INode) {
	if id, ok := other.ID(); ok {
		node.overlappingMu.Lock()
		node.overlapping[id]++
		node.overlappingMu.Unlock()
	}
	if node.Overlaps.OnBeginOverlap != nil {
		node.Overlaps.OnBeginOverlap(node, other)
	}
}

func (node *TriggerVolumeNode) OnEndOverlap(other INode) {
	if id, ok := other.ID(); ok {
		node.forgetOverlap(id)
	}
	if node.Overlaps.OnEndOverlap != nil {
		node.Overlaps.OnEndOverlap(node, other)
	}
}

// forgetOverlap ends one overlap with the node of the given ID. Nodes that despawned while inside the volume
// leave through here without an OnEndOverlap, since there's no node left to pass.
func (node *TriggerVolumeNode) forgetOverlap(id uint64) {
	node.overlappingMu.Lock()
	if node.overlapping[id]--; node.overlapping[id] <= 0 {
		delete(node.overlapping, id)
	}
	node.overlappingMu.Unlock()
}

func (node *TriggerVolumeNode) OnDespawning() {
	node.physicsNodeBase.OnDespawning()

	node.overlappingMu.Lock()
	clear(node.overlapping)
	node.overlappingMu.Unlock()
}

// Overlapping returns references to the nodes currently inside the volume, in spawn order.
func (node *TriggerVolumeNode) Overlapping() []NodeRef {
	node.overlappingMu.Lock()
	ids := make([]uint64, 0, len(node.overlapping))
	for id := range node.overlapping {
		ids = append(ids, id)
	}
	node.overlappingMu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	refs := make([]NodeRef, len(ids))
	for i, id := range ids {
		refs[i] = NodeRef{id: id}
	}
	return refs
}

// ContactCallbacks are called when a SimulatedBodyNode starts or stops touching another body.
type ContactCallbacks struct {
	OnContactAdded   func(body *SimulatedBodyNode, other INode)
	OnContactRemoved func(body *SimulatedBodyNode, other INode)
}

// SimulatedBodyNode is a dynamic body: gravity and impulses move it, and the node follows the simulation.
type SimulatedBodyNode struct {
	physicsNodeBase

	// Mass and GravityFactor are read when the body is created.
	Mass          float64
	GravityFactor float64

	Contacts ContactCallbacks
}

// NewSimulatedBodyNode creates a SimulatedBodyNode with the given shape, a mass of 1 and full gravity.
func NewSimulatedBodyNode(name string, shape *CollisionShape) *SimulatedBodyNode {
	node := &SimulatedBodyNode{Mass: 1, GravityFactor: 1}
	node.initPhysics(name, node, shape)
	return node
}

func (node *SimulatedBodyNode) builtin() PhysicsNode { return node }

func (node *SimulatedBodyNode) OnContactAdded(other INode) {
	if node.Contacts.OnContactAdded != nil {
		node.Contacts.OnContactAdded(node, other)
	}
}

func (node *SimulatedBodyNode) OnContactRemoved(other INode) {
	if node.Contacts.OnContactRemoved != nil {
		node.Contacts.OnContactRemoved(node, other)
	}
}

// SetLinearVelocity sets the velocity of the body; the node must be spawned.
func (node *SimulatedBodyNode) SetLinearVelocity(velocity Vector) {
	if pm := node.physicsManager(); pm != nil {
		pm.SetLinearVelocity(node, velocity)
	}
}

// LinearVelocity returns the velocity of the body.
func (node *SimulatedBodyNode) LinearVelocity() Vector {
	if pm := node.physicsManager(); pm != nil {
		return pm.LinearVelocity(node)
	}
	return Vector{}
}

// AddImpulse pushes the body; the node must be spawned.
func (node *SimulatedBodyNode) AddImpulse(impulse Vector) {
	if pm := node.physicsManager(); pm != nil {
		pm.AddImpulse(node, impulse)
	}
}

// MovingBodyNode is a kinematic body: it moves with the velocity it's given (or where it's placed) and pushes
// dynamic bodies, but nothing pushes it.
type MovingBodyNode struct {
	physicsNodeBase
}

// NewMovingBodyNode creates a MovingBodyNode with the given shape.
func NewMovingBodyNode(name string, shape *CollisionShape) *MovingBodyNode {
	node := &MovingBodyNode{}
	node.initPhysics(name, node, shape)
	return node
}

func (node *MovingBodyNode) builtin() PhysicsNode { return node }

// SetLinearVelocity sets the velocity of the body; the node must be spawned.
func (node *MovingBodyNode) SetLinearVelocity(velocity Vector) {
	if pm := node.physicsManager(); pm != nil {
		pm.SetLinearVelocity(node, velocity)
	}
}

// LinearVelocity returns the velocity of the body.
func (node *MovingBodyNode) LinearVelocity() Vector {
	if pm := node.physicsManager(); pm != nil {
		return pm.LinearVelocity(node)
	}
	return Vector{}
}

// CharacterBodyNode is a virtual character: it moves with its velocity, falls unless it stands on something solid,
// and overlaps trigger volumes.
type CharacterBodyNode struct {
	physicsNodeBase

	// GravityFactor is read when the character is created.
	GravityFactor float64
}

// NewCharacterBodyNode creates a CharacterBodyNode with the given shape and full gravity.
func NewCharacterBodyNode(name string, shape *CollisionShape) *CharacterBodyNode {
	node := &CharacterBodyNode{GravityFactor: 1}
	node.initPhysics(name, node, shape)
	return node
}

func (node *CharacterBodyNode) builtin() PhysicsNode { return node }

// SetLinearVelocity sets the velocity of the character; the node must be spawned.
func (node *CharacterBodyNode) SetLinearVelocity(velocity Vector) {
	if pm := node.physicsManager(); pm != nil {
		pm.SetLinearVelocity(node, velocity)
	}
}

// LinearVelocity returns the velocity of the character.
func (node *CharacterBodyNode) LinearVelocity() Vector {
	if pm := node.physicsManager(); pm != nil {
		return pm.LinearVelocity(node)
	}
	return Vector{}
}

// IsSupported reports whether the character stands on something.
func (node *CharacterBodyNode) IsSupported() bool {
	if pm := node.physicsManager(); pm != nil {
		return pm.IsSupported(node)
	}
	return false
}

// compoundPartOwner is implemented by nodes that build their body out of their CollisionShapeNode children.
type compoundPartOwner interface {
	INode
	partsChanged()
}

// CollisionShapeNode places a shape inside a CompoundCollisionNode. It has no body of its own; attaching,
// detaching or moving it rebuilds the compound's body.
type CollisionShapeNode struct {
	*SpatialNode

	Shape *CollisionShape

	owner compoundPartOwner
}

// NewCollisionShapeNode creates a CollisionShapeNode with the given shape.
func NewCollisionShapeNode(name string, shape *CollisionShape) *CollisionShapeNode {
	node := &CollisionShapeNode{SpatialNode: &SpatialNode{Node: &Node{}}, Shape: shape}
	node.initSpatial(name, node)
	node.worldTransformChanged = node.onMoved
	return node
}

func (node *CollisionShapeNode) OnAfterAttachedToNewParent(isDirectTarget bool) {
	node.SpatialNode.OnAfterAttachedToNewParent(isDirectTarget)
	if !isDirectTarget {
		return
	}
	if owner, ok := node.Parent().(compoundPartOwner); ok {
		owner.partsChanged()
	}
}

func (node *CollisionShapeNode) OnAfterDetachedFromParent(isDirectTarget bool) {
	node.SpatialNode.OnAfterDetachedFromParent(isDirectTarget)
	if owner := node.owner; isDirectTarget && owner != nil {
		node.owner = nil
		owner.partsChanged()
	}
}

func (node *CollisionShapeNode) onMoved() {
	if owner, ok := node.Parent().(compoundPartOwner); ok {
		owner.partsChanged()
	}
}

// compoundPart is what a compound's body was last built from for one part.
type compoundPart struct {
	shape     *CollisionShape
	transform Transform
	stop      func()
}

// CompoundCollisionNode is static geometry made of the shapes of its CollisionShapeNode children, simulated as
// one body. The body is built once the children are spawned, and rebuilt when parts are attached, detached or
// moved, or when a part's shape changes.
type CompoundCollisionNode struct {
	physicsNodeBase

	assembled bool
	built     map[*CollisionShapeNode]compoundPart
}

// NewCompoundCollisionNode creates an empty CompoundCollisionNode; add CollisionShapeNode children to it.
func NewCompoundCollisionNode(name string) *CompoundCollisionNode {
	node := &CompoundCollisionNode{built: map[*CollisionShapeNode]compoundPart{}}
	node.initPhysics(name, node, nil)
	return node
}

func (node *CompoundCollisionNode) builtin() PhysicsNode { return node }

// OnSpawning doesn't create the body: the parts aren't spawned yet.
func (node *CompoundCollisionNode) OnSpawning() {
	node.Node.OnSpawning()
}

func (node *CompoundCollisionNode) OnChildNodesSpawned() {
	node.assembled = true
	node.trackParts()
	node.rebuildShape()
	if node.CollisionShape() != nil {
		node.physicsManager().CreateBodyForNode(node)
	} else {
		Logger().Warn("compound collision node has no shapes, it gets no body", zap.String("node", node.Name()))
	}

	node.Node.OnChildNodesSpawned()
}

func (node *CompoundCollisionNode) OnDespawning() {
	node.assembled = false

	node.shapeMu.Lock()
	var stops []func()
	for part, state := range node.built {
		if state.stop != nil {
			stops = append(stops, state.stop)
		}
		part.owner = nil
	}
	clear(node.built)
	node.shapeMu.Unlock()

	for _, stop := range stops {
		stop()
	}

	node.physicsNodeBase.OnDespawning()
}

// partsChanged rebuilds the body if the parts differ from what it was built from.
func (node *CompoundCollisionNode) partsChanged() {
	if !node.assembled {
		return
	}
	if node.trackParts() {
		node.onPartChanged()
	}
}

// trackParts watches the shapes of the current parts and forgets the parts that left. It reports whether the
// parts, their shapes or their placement changed since the last call.
func (node *CompoundCollisionNode) trackParts() bool {
	current := node.parts()
	owner, _ := node.outer().(compoundPartOwner)

	var stops []func()
	changed := false

	node.shapeMu.Lock()
	present := make(map[*CollisionShapeNode]bool, len(current))
	for _, part := range current {
		present[part] = true
		part.owner = owner

		state, known := node.built[part]
		transform := part.RelativeTransform()
		if known && state.shape == part.Shape && state.transform == transform {
			continue
		}
		changed = true

		if !known || state.shape != part.Shape {
			if state.stop != nil {
				stops = append(stops, state.stop)
			}
			state.stop = nil
			if part.Shape != nil {
				state.stop = part.Shape.OnChanged(node.onPartChanged)
			}
		}
		state.shape, state.transform = part.Shape, transform
		node.built[part] = state
	}
	for part, state := range node.built {
		if present[part] {
			continue
		}
		changed = true
		if state.stop != nil {
			stops = append(stops, state.stop)
		}
		if part.owner == owner {
			part.owner = nil
		}
		delete(node.built, part)
	}
	node.shapeMu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return changed
}

func (node *CompoundCollisionNode) onPartChanged() {
	if !node.IsSpawned() || !node.assembled {
		return
	}
	node.rebuildShape()
	if node.CollisionShape() == nil {
		if node.body.hasBody() {
			node.physicsManager().DestroyBodyForNode(node)
		}
		return
	}
	node.physicsManager().recreateBodyForNode(node)
}

func (node *CompoundCollisionNode) parts() []*CollisionShapeNode {
	var parts []*CollisionShapeNode
	for _, child := range node.Children() {
		if part, ok := child.(*CollisionShapeNode); ok {
			parts = append(parts, part)
		}
	}
	return parts
}

func (node *CompoundCollisionNode) rebuildShape() {
	compound := physics.Compound{}
	for _, part := range node.parts() {
		if part.Shape == nil || part.Shape.Shape() == nil {
			continue
		}
		relative := part.RelativeTransform()
		compound.Parts = append(compound.Parts, physics.CompoundPart{
			Shape:    part.Shape.Shape(),
			Position: toPhysicsVec(relative.Location),
			Rotation: toPhysicsQuat(relative.Rotation),
		})
	}

	var shape *CollisionShape
	if len(compound.Parts) > 0 {
		shape = NewCollisionShape(compound)
	}

	node.shapeMu.Lock()
	node.shape = shape
	node.shapeMu.Unlock()
}
