package stage3d

import (
	"sync"

	"go.uber.org/zap"
)

// AttachmentRule decides what happens to one component (location, rotation or scale) of a spatial node's
// transform when it's attached to a new parent.
type AttachmentRule int

const (
	// RuleResetRelative resets the relative component (zero location, identity rotation, unit scale).
	RuleResetRelative AttachmentRule = iota
	// RuleKeepRelative keeps the relative component, so the node moves along with its new parent.
	RuleKeepRelative
	// RuleKeepWorld changes the relative component so the world component stays where it was.
	RuleKeepWorld
)

func (rule AttachmentRule) String() string {
	switch rule {
	case RuleResetRelative:
		return "reset relative"
	case RuleKeepRelative:
		return "keep relative"
	}
	return "keep world"
}

// fallingBelowWorldThreshold is the world Y below which a spatial node is reported (once) as falling out of the world.
const fallingBelowWorldThreshold = -1000.0

// Transform is a location, rotation and scale.
type Transform struct {
	Location Vector     `toml:"location"`
	Rotation Quaternion `toml:"rotation"`
	Scale    Vector     `toml:"scale"`
}

// NewTransform returns the identity Transform.
func NewTransform() Transform {
	return Transform{Rotation: NewQuaternionIdentity(), Scale: NewVectorOne()}
}

// Matrix composes the Transform into a Matrix4.
func (transform Transform) Matrix() Matrix4 {
	return NewMatrix4FromTransform(transform.Location, transform.Rotation, transform.Scale)
}

// Spatial is implemented by nodes that have a location, rotation and scale in the world.
type Spatial interface {
	INode

	RelativeLocation() Vector
	SetRelativeLocation(location Vector)
	RelativeRotation() Quaternion
	SetRelativeRotation(rotation Quaternion)
	RelativeScale() Vector
	SetRelativeScale(scale Vector)
	RelativeTransform() Transform
	SetRelativeTransform(transform Transform)

	WorldLocation() Vector
	SetWorldLocation(location Vector)
	WorldRotation() Quaternion
	SetWorldRotation(rotation Quaternion)
	WorldScale() Vector
	WorldMatrix() Matrix4

	ForwardDirection() Vector
	RightDirection() Vector
	UpDirection() Vector
}

type spatialInternal interface {
	Spatial
	spatial() *SpatialNode
	worldTransform() Transform
	applyAttachmentRules(worldBefore Transform, location, rotation, scale AttachmentRule)
	onHierarchyChanged()
}

// SpatialNode is a Node with a transform relative to its closest spatial ancestor (non-spatial nodes in between
// are skipped), or to the world origin if it has none.
type SpatialNode struct {
	*Node

	mu          sync.RWMutex
	relative    Transform
	worldMatrix Matrix4
	worldDirty  bool

	warnedFallingBelowWorld bool

	// worldTransformChanged, if set, is called after the world transform was changed through the setters of the
	// node or of a spatial ancestor. Physics writing simulation results back doesn't call it.
	worldTransformChanged func()
}

// NewSpatialNode creates a new, detached SpatialNode at the origin.
func NewSpatialNode(name string) *SpatialNode {
	sn := &SpatialNode{Node: &Node{}}
	sn.initSpatial(name, sn)
	return sn
}

func (sn *SpatialNode) initSpatial(name string, self INode) {
	sn.Node.init(name, self)
	sn.relative = NewTransform()
	sn.worldDirty = true
}

func (sn *SpatialNode) spatial() *SpatialNode { return sn }

// RelativeTransform returns the transform relative to the closest spatial ancestor.
func (sn *SpatialNode) RelativeTransform() Transform {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	return sn.relative
}

// SetRelativeTransform sets the transform relative to the closest spatial ancestor.
func (sn *SpatialNode) SetRelativeTransform(transform Transform) {
	sn.mu.Lock()
	sn.relative = transform
	sn.mu.Unlock()
	sn.transformChanged(true)
}

func (sn *SpatialNode) RelativeLocation() Vector { return sn.RelativeTransform().Location }

func (sn *SpatialNode) SetRelativeLocation(location Vector) {
	sn.mu.Lock()
	sn.relative.Location = location
	sn.mu.Unlock()
	sn.transformChanged(true)
}

func (sn *SpatialNode) RelativeRotation() Quaternion { return sn.RelativeTransform().Rotation }

func (sn *SpatialNode) SetRelativeRotation(rotation Quaternion) {
	sn.mu.Lock()
	sn.relative.Rotation = rotation.Normalized()
	sn.mu.Unlock()
	sn.transformChanged(true)
}

func (sn *SpatialNode) RelativeScale() Vector { return sn.RelativeTransform().Scale }

func (sn *SpatialNode) SetRelativeScale(scale Vector) {
	sn.mu.Lock()
	sn.relative.Scale = scale
	sn.mu.Unlock()
	sn.transformChanged(true)
}

// Move moves the node by offset, relative to its parent.
func (sn *SpatialNode) Move(offset Vector) {
	sn.mu.Lock()
	sn.relative.Location = sn.relative.Location.Add(offset)
	sn.mu.Unlock()
	sn.transformChanged(true)
}

// Rotate rotates the node by angle radians around axis (in parent space).
func (sn *SpatialNode) Rotate(axis Vector, angle float64) {
	sn.mu.Lock()
	sn.relative.Rotation = NewQuaternionFromAxisAngle(axis, angle).Mult(sn.relative.Rotation).Normalized()
	sn.mu.Unlock()
	sn.transformChanged(true)
}

// WorldMatrix returns the node's world matrix, rebuilding it if the node or one of its spatial ancestors moved.
func (sn *SpatialNode) WorldMatrix() Matrix4 {
	sn.mu.RLock()
	if !sn.worldDirty {
		defer sn.mu.RUnlock()
		return sn.worldMatrix
	}
	local := sn.relative.Matrix()
	sn.mu.RUnlock()

	world := local.Mult(sn.parentWorldMatrix())

	sn.mu.Lock()
	sn.worldMatrix = world
	sn.worldDirty = false
	sn.mu.Unlock()

	return world
}

func (sn *SpatialNode) worldTransform() Transform {
	location, scale, rotation := sn.WorldMatrix().Decompose()
	return Transform{Location: location, Rotation: rotation, Scale: scale}
}

// WorldLocation returns the location of the node in the world.
func (sn *SpatialNode) WorldLocation() Vector {
	return sn.WorldMatrix().Row(3)
}

// SetWorldLocation moves the node so that its world location becomes location.
func (sn *SpatialNode) SetWorldLocation(location Vector) {
	sn.setWorldLocation(location)
	sn.transformChanged(true)
}

func (sn *SpatialNode) setWorldLocation(location Vector) {
	relative := sn.parentWorldMatrix().Inverted().MultVec(location)
	sn.mu.Lock()
	sn.relative.Location = relative
	sn.mu.Unlock()
}

// WorldRotation returns the rotation of the node in the world.
func (sn *SpatialNode) WorldRotation() Quaternion {
	return sn.worldTransform().Rotation
}

// SetWorldRotation rotates the node so that its world rotation becomes rotation.
func (sn *SpatialNode) SetWorldRotation(rotation Quaternion) {
	sn.setWorldRotation(rotation)
	sn.transformChanged(true)
}

func (sn *SpatialNode) setWorldRotation(rotation Quaternion) {
	_, _, parentRotation := sn.parentWorldMatrix().Decompose()
	sn.mu.Lock()
	sn.relative.Rotation = parentRotation.Inverted().Mult(rotation).Normalized()
	sn.mu.Unlock()
}

// setWorldLocationRotation writes simulation results back without notifying whoever produced them.
func (sn *SpatialNode) setWorldLocationRotation(location Vector, rotation Quaternion) {
	sn.setWorldLocation(location)
	sn.setWorldRotation(rotation)
	sn.transformChanged(false)
}

// WorldScale returns the scale of the node in the world.
func (sn *SpatialNode) WorldScale() Vector {
	return sn.worldTransform().Scale
}

// ForwardDirection returns the world direction the node faces (its -Z axis).
func (sn *SpatialNode) ForwardDirection() Vector {
	return sn.WorldMatrix().Forward().Invert()
}

// RightDirection returns the world direction of the node's +X axis.
func (sn *SpatialNode) RightDirection() Vector {
	return sn.WorldMatrix().Right()
}

// UpDirection returns the world direction of the node's +Y axis.
func (sn *SpatialNode) UpDirection() Vector {
	return sn.WorldMatrix().Up()
}

// LookAt rotates the node so that its forward direction points at target (in world space).
func (sn *SpatialNode) LookAt(target Vector) {
	from := sn.WorldLocation()
	lookAt := NewLookAtMatrix(target, from, WorldUp)
	sn.SetWorldRotation(lookAt.ToQuaternion())
}

func (sn *SpatialNode) spatialParent() *SpatialNode {
	for parent := sn.Node.parentNode(); parent != nil; parent = parent.parentNode() {
		if spatial, ok := parent.outer().(spatialInternal); ok {
			return spatial.spatial()
		}
	}
	return nil
}

func (sn *SpatialNode) parentWorldMatrix() Matrix4 {
	if parent := sn.spatialParent(); parent != nil {
		return parent.WorldMatrix()
	}
	return NewMatrix4()
}

func (sn *SpatialNode) applyAttachmentRules(worldBefore Transform, location, rotation, scale AttachmentRule) {
	keepWorld := worldBefore.Matrix().Mult(sn.parentWorldMatrix().Inverted())
	keptLocation, keptScale, keptRotation := keepWorld.Decompose()

	sn.mu.Lock()
	switch location {
	case RuleResetRelative:
		sn.relative.Location = Vector{}
	case RuleKeepWorld:
		sn.relative.Location = keptLocation
	}
	switch rotation {
	case RuleResetRelative:
		sn.relative.Rotation = NewQuaternionIdentity()
	case RuleKeepWorld:
		sn.relative.Rotation = keptRotation
	}
	switch scale {
	case RuleResetRelative:
		sn.relative.Scale = NewVectorOne()
	case RuleKeepWorld:
		sn.relative.Scale = keptScale
	}
	sn.mu.Unlock()

	sn.transformChanged(false)
}

func (sn *SpatialNode) onHierarchyChanged() {
	sn.markWorldDirty()
}

// transformChanged invalidates the cached world matrices of the node and its descendants.
func (sn *SpatialNode) transformChanged(notify bool) {
	sn.markWorldDirty()
	moved := sn.markDescendantsDirty(sn.Node, nil)

	sn.checkFallingBelowWorld()

	if !notify {
		return
	}
	if sn.worldTransformChanged != nil {
		sn.worldTransformChanged()
	}
	for _, changed := range moved {
		changed()
	}
}

func (sn *SpatialNode) markWorldDirty() {
	sn.mu.Lock()
	sn.worldDirty = true
	sn.mu.Unlock()
}

// markDescendantsDirty marks the spatial descendants of node dirty and returns their worldTransformChanged
// callbacks appended to moved.
func (sn *SpatialNode) markDescendantsDirty(node *Node, moved []func()) []func() {
	for _, child := range node.childNodes() {
		if spatial, ok := child.outer().(spatialInternal); ok {
			descendant := spatial.spatial()
			descendant.markWorldDirty()
			if descendant.worldTransformChanged != nil {
				moved = append(moved, descendant.worldTransformChanged)
			}
		}
		moved = sn.markDescendantsDirty(child, moved)
	}
	return moved
}

func (sn *SpatialNode) checkFallingBelowWorld() {
	sn.mu.RLock()
	warned := sn.warnedFallingBelowWorld
	sn.mu.RUnlock()
	if warned || !sn.IsSpawned() {
		return
	}

	location := sn.WorldLocation()
	if location.Y >= fallingBelowWorldThreshold {
		return
	}

	sn.mu.Lock()
	sn.warnedFallingBelowWorld = true
	sn.mu.Unlock()

	Logger().Warn("spatial node is falling below the world",
		zap.String("node", sn.Name()), zap.Stringer("location", location))
}
