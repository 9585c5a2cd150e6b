package stage3d

import "github.com/solarlune/stage3d/input"

// NodeCallbacks represents a set of callbacks the base Node calls from its default hook implementations.
// Types that embed Node and override a hook method replace the default implementation (and so the matching
// callback) unless they call the embedded Node's method themselves.
type NodeCallbacks struct {
	OnSpawning          func(node INode)                       // Called after the node is marked spawned and registered, before its children spawn.
	OnChildNodesSpawned func(node INode)                       // Called once every descendant is spawned.
	OnDespawning        func(node INode)                       // Called after every child despawned, before the node itself is marked despawned.
	OnBeforeNewFrame    func(node INode, deltaTime float64)    // Called every frame while the node is spawned and called every frame.
	OnReparent          func(node, oldParent, newParent INode) // A callback to be called whenever a Node is reparented.
}

// Hooks that nodes may implement in addition to the lifecycle hooks every INode carries. They are looked up on
// the outermost node value, so implementing one on a type embedding Node is enough.

// MouseMoveHandler receives relative mouse movement while the node receives input.
type MouseMoveHandler interface {
	OnMouseMove(xOffset, yOffset float64)
}

// MouseScrollHandler receives mouse wheel movement while the node receives input.
type MouseScrollHandler interface {
	OnMouseScrollMove(offset float64)
}

// PhysicsUpdateHandler is called before every physics sub-step while the node is spawned and called every frame.
type PhysicsUpdateHandler interface {
	OnBeforePhysicsUpdate(deltaTime float64)
}

// OverlapHandler is implemented by nodes that want to know when something enters or leaves a TriggerVolumeNode.
type OverlapHandler interface {
	OnBeginOverlap(other INode)
	OnEndOverlap(other INode)
}

// ContactHandler is implemented by simulated bodies that want to know about contacts with other bodies.
type ContactHandler interface {
	OnContactAdded(other INode)
	OnContactRemoved(other INode)
}

// ActionEventCallback is bound to an action event on a node.
type ActionEventCallback func(modifiers input.KeyboardModifiers, isPressed bool)

// AxisEventCallback is bound to an axis event on a node. Value is in the range [-1, 1].
type AxisEventCallback func(modifiers input.KeyboardModifiers, value float64)
