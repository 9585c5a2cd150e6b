package stage3d

import (
	"sync"

	"github.com/solarlune/stage3d/physics"
)

// CollisionShape is the shape of a physics node. It can be shared between nodes; when it's changed, every spawned
// node using it gets its physics body recreated.
type CollisionShape struct {
	mu           sync.Mutex
	shape        physics.Shape
	onChanged    []shapeListener
	nextListener int
}

type shapeListener struct {
	key      int
	callback func()
}

// NewCollisionShape wraps a physics shape.
func NewCollisionShape(shape physics.Shape) *CollisionShape {
	return &CollisionShape{shape: shape}
}

// NewSphereShape returns a sphere CollisionShape.
func NewSphereShape(radius float64) *CollisionShape {
	return NewCollisionShape(physics.Sphere{Radius: radius})
}

// NewBoxShape returns a box CollisionShape; size is the full size of the box along each axis.
func NewBoxShape(size Vector) *CollisionShape {
	return NewCollisionShape(physics.Box{HalfExtents: toPhysicsVec(size.Scale(0.5))})
}

// NewCapsuleShape returns an upright capsule CollisionShape of the given total height.
func NewCapsuleShape(radius, height float64) *CollisionShape {
	halfHeight := height/2 - radius
	if halfHeight < 0 {
		halfHeight = 0
	}
	return NewCollisionShape(physics.Capsule{Radius: radius, HalfHeight: halfHeight})
}

// Shape returns the current physics shape.
func (cs *CollisionShape) Shape() physics.Shape {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.shape
}

// SetShape replaces the physics shape and notifies the nodes using it.
func (cs *CollisionShape) SetShape(shape physics.Shape) {
	cs.mu.Lock()
	cs.shape = shape
	listeners := append([]shapeListener(nil), cs.onChanged...)
	cs.mu.Unlock()

	for _, listener := range listeners {
		listener.callback()
	}
}

// OnChanged registers a function called after every SetShape, in registration order. Calling the returned
// function unregisters it.
func (cs *CollisionShape) OnChanged(callback func()) (unregister func()) {
	cs.mu.Lock()
	key := cs.nextListener
	cs.nextListener++
	cs.onChanged = append(cs.onChanged, shapeListener{key: key, callback: callback})
	cs.mu.Unlock()

	return func() {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		for i, listener := range cs.onChanged {
			if listener.key == key {
				cs.onChanged = append(cs.onChanged[:i], cs.onChanged[i+1:]...)
				return
			}
		}
	}
}

func (cs *CollisionShape) listenerCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.onChanged)
}
