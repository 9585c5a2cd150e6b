package stage3d

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TickGroup selects in which pass of a frame a node's OnBeforeNewFrame is called. Every node of the first group
// is ticked (and the deferred tasks drained) before any node of the second.
type TickGroup int32

const (
	TickGroupFirst TickGroup = iota
	TickGroupSecond
)

func (group TickGroup) String() string {
	if group == TickGroupSecond {
		return "second"
	}
	return "first"
}

// INode represents an object that exists in a World's node tree. Custom node types embed *Node (or a type that
// embeds it, like *SpatialNode) and override the lifecycle hooks they care about.
type INode interface {
	Name() string
	SetName(name string)
	ID() (uint64, bool)
	Ref() NodeRef

	Parent() INode
	Children() []INode
	World() *World
	Root() INode
	Index() int
	Get(path string) INode
	Path() string
	HierarchyAsString() string
	SearchTree() NodeFilter

	AddChildNode(child INode, location, rotation, scale AttachmentRule)
	AddChild(child INode)
	UnsafeDetachFromParentAndDespawn()

	IsSpawned() bool
	IsCalledEveryFrame() bool
	SetIsCalledEveryFrame(called bool)
	IsReceivingInput() bool
	SetIsReceivingInput(receiving bool)
	TickGroup() TickGroup
	SetTickGroup(group TickGroup)
	IsSerialized() bool
	SetSerialize(serialize bool)
	Properties() *Properties

	// OnSpawning is called after the node is spawned and registered in its World, before its children spawn.
	OnSpawning()
	// OnChildNodesSpawned is called once the node and all of its descendants are spawned.
	OnChildNodesSpawned()
	// OnDespawning is called after all children are despawned, while the node is still registered.
	OnDespawning()
	// OnBeforeNewFrame is called every frame while the node is spawned and called every frame.
	OnBeforeNewFrame(deltaTime float64)
	// OnAfterAttachedToNewParent is called on the attached node (isDirectTarget true) and then on every
	// descendant (false) after a reparenting.
	OnAfterAttachedToNewParent(isDirectTarget bool)
	// OnAfterDetachedFromParent is called like OnAfterAttachedToNewParent, for the detaching half.
	OnAfterDetachedFromParent(isDirectTarget bool)

	base() *Node
}

// Node is the basic element of a node tree. It owns its children, knows its parent, and has a numeric ID while
// spawned.
type Node struct {
	Callbacks NodeCallbacks

	self INode // outermost value this Node is embedded in

	name         string
	externalFile string // node tree file this node's subtree was loaded from, if any
	nameMu       sync.RWMutex

	// hierarchyMu guards parent, children and world. It's never held while calling out.
	hierarchyMu sync.RWMutex
	parent      *Node
	children    []*Node
	world       *World

	id                 atomic.Uint64 // 0 while unspawned
	isSpawned          atomic.Bool
	isDestroyed        atomic.Bool
	isCalledEveryFrame atomic.Bool
	isReceivingInput   atomic.Bool
	tickGroup          atomic.Int32
	serialize          atomic.Bool

	props *Properties

	bindingsMu   sync.Mutex
	actionEvents map[uint]ActionEventCallback
	axisEvents   map[uint]AxisEventCallback
}

// NewNode creates a new, detached Node.
func NewNode(name string) *Node {
	node := &Node{}
	node.init(name, node)
	return node
}

// init prepares an embedded Node. Every constructor of a type embedding Node calls it with the outer value.
func (node *Node) init(name string, self INode) {
	node.name = name
	node.self = self
	node.props = NewProperties()
	node.serialize.Store(true)
	node.actionEvents = map[uint]ActionEventCallback{}
	node.axisEvents = map[uint]AxisEventCallback{}
	counters.alive.Add(1)
}

func (node *Node) base() *Node { return node }

// outer returns the outermost value this Node is embedded in.
func (node *Node) outer() INode {
	if node.self == nil {
		return node
	}
	return node.self
}

// Name returns the object's name.
func (node *Node) Name() string {
	node.nameMu.RLock()
	defer node.nameMu.RUnlock()
	return node.name
}

// SetName sets the object's name.
func (node *Node) SetName(name string) {
	node.nameMu.Lock()
	node.name = name
	node.nameMu.Unlock()
}

// ExternalFile returns the node tree file the node's subtree comes from, or "". Saving a tree writes such a node
// as a reference to the file instead of writing its subtree.
func (node *Node) ExternalFile() string {
	node.nameMu.RLock()
	defer node.nameMu.RUnlock()
	return node.externalFile
}

// SetExternalFile marks the node's subtree as coming from a node tree file; "" clears the mark.
func (node *Node) SetExternalFile(path string) {
	node.nameMu.Lock()
	node.externalFile = path
	node.nameMu.Unlock()
}

// ID returns the node's spawn-assigned ID; ok is false while the node isn't spawned.
func (node *Node) ID() (id uint64, ok bool) {
	id = node.id.Load()
	return id, id != 0
}

// Ref returns a weak reference to the node. The reference is empty if the node isn't spawned.
func (node *Node) Ref() NodeRef {
	id, _ := node.ID()
	return NodeRef{id: id}
}

// IsSpawned returns whether the node is currently spawned in a World.
func (node *Node) IsSpawned() bool { return node.isSpawned.Load() }

// IsDestroyed returns whether the node was destroyed; a destroyed node must not be used anymore.
func (node *Node) IsDestroyed() bool { return node.isDestroyed.Load() }

// IsCalledEveryFrame returns whether OnBeforeNewFrame is called on the node while it's spawned.
func (node *Node) IsCalledEveryFrame() bool { return node.isCalledEveryFrame.Load() }

// SetIsCalledEveryFrame sets whether OnBeforeNewFrame is called on the node. While the node is spawned, the
// World's tickable set is updated accordingly (deferred if the World is ticking).
func (node *Node) SetIsCalledEveryFrame(called bool) {
	if node.isCalledEveryFrame.Swap(called) == called {
		return
	}
	if world := node.World(); world != nil && node.IsSpawned() {
		world.onSpawnedNodeChangedIsCalledEveryFrame(node.outer())
	}
}

// IsReceivingInput returns whether the node gets input events while it's spawned.
func (node *Node) IsReceivingInput() bool { return node.isReceivingInput.Load() }

// SetIsReceivingInput sets whether the node gets input events (its bound action and axis events, mouse
// movement and scrolling).
func (node *Node) SetIsReceivingInput(receiving bool) {
	if node.isReceivingInput.Swap(receiving) == receiving {
		return
	}
	if world := node.World(); world != nil && node.IsSpawned() {
		world.onSpawnedNodeChangedIsReceivingInput(node.outer())
	}
}

// TickGroup returns the tick group of the node.
func (node *Node) TickGroup() TickGroup { return TickGroup(node.tickGroup.Load()) }

// SetTickGroup sets the tick group of the node. The tick group can't be changed while the node is spawned.
func (node *Node) SetTickGroup(group TickGroup) {
	if node.IsSpawned() {
		fatal("node %q can't change its tick group while spawned", node.Name())
	}
	node.tickGroup.Store(int32(group))
}

// IsSerialized returns whether the node (and its subtree) is written when its tree is saved.
func (node *Node) IsSerialized() bool { return node.serialize.Load() }

// SetSerialize sets whether the node (and its subtree) is written when its tree is saved.
func (node *Node) SetSerialize(serialize bool) { node.serialize.Store(serialize) }

// Properties returns the node's property bag.
func (node *Node) Properties() *Properties { return node.props }

// BindActionEvent binds a callback to an action event; it's called while the node is spawned and receiving input.
func (node *Node) BindActionEvent(actionID uint, callback ActionEventCallback) {
	node.bindingsMu.Lock()
	node.actionEvents[actionID] = callback
	node.bindingsMu.Unlock()
}

// UnbindActionEvent removes the callback bound to an action event.
func (node *Node) UnbindActionEvent(actionID uint) {
	node.bindingsMu.Lock()
	delete(node.actionEvents, actionID)
	node.bindingsMu.Unlock()
}

// BindAxisEvent binds a callback to an axis event; it's called while the node is spawned and receiving input.
func (node *Node) BindAxisEvent(axisID uint, callback AxisEventCallback) {
	node.bindingsMu.Lock()
	node.axisEvents[axisID] = callback
	node.bindingsMu.Unlock()
}

// UnbindAxisEvent removes the callback bound to an axis event.
func (node *Node) UnbindAxisEvent(axisID uint) {
	node.bindingsMu.Lock()
	delete(node.axisEvents, axisID)
	node.bindingsMu.Unlock()
}

// ActionEventBindings returns a copy of the node's action event bindings.
func (node *Node) ActionEventBindings() map[uint]ActionEventCallback {
	node.bindingsMu.Lock()
	defer node.bindingsMu.Unlock()
	out := make(map[uint]ActionEventCallback, len(node.actionEvents))
	for id, callback := range node.actionEvents {
		out[id] = callback
	}
	return out
}

// AxisEventBindings returns a copy of the node's axis event bindings.
func (node *Node) AxisEventBindings() map[uint]AxisEventCallback {
	node.bindingsMu.Lock()
	defer node.bindingsMu.Unlock()
	out := make(map[uint]AxisEventCallback, len(node.axisEvents))
	for id, callback := range node.axisEvents {
		out[id] = callback
	}
	return out
}

func (node *Node) actionEventBinding(actionID uint) ActionEventCallback {
	node.bindingsMu.Lock()
	defer node.bindingsMu.Unlock()
	return node.actionEvents[actionID]
}

func (node *Node) axisEventBinding(axisID uint) AxisEventCallback {
	node.bindingsMu.Lock()
	defer node.bindingsMu.Unlock()
	return node.axisEvents[axisID]
}

// Default hook implementations. They forward to the matching NodeCallbacks field, if set.

func (node *Node) OnSpawning() {
	if node.Callbacks.OnSpawning != nil {
		node.Callbacks.OnSpawning(node.outer())
	}
}

func (node *Node) OnChildNodesSpawned() {
	if node.Callbacks.OnChildNodesSpawned != nil {
		node.Callbacks.OnChildNodesSpawned(node.outer())
	}
}

func (node *Node) OnDespawning() {
	if node.Callbacks.OnDespawning != nil {
		node.Callbacks.OnDespawning(node.outer())
	}
}

func (node *Node) OnBeforeNewFrame(deltaTime float64) {
	if node.Callbacks.OnBeforeNewFrame != nil {
		node.Callbacks.OnBeforeNewFrame(node.outer(), deltaTime)
	}
}

func (node *Node) OnAfterAttachedToNewParent(isDirectTarget bool) {}

func (node *Node) OnAfterDetachedFromParent(isDirectTarget bool) {}

// Parent returns the node's parent, or nil if it has none.
func (node *Node) Parent() INode {
	if parent := node.parentNode(); parent != nil {
		return parent.outer()
	}
	return nil
}

func (node *Node) parentNode() *Node {
	node.hierarchyMu.RLock()
	defer node.hierarchyMu.RUnlock()
	return node.parent
}

// World returns the World the node is spawned in, or nil if it isn't spawned.
func (node *Node) World() *World {
	node.hierarchyMu.RLock()
	defer node.hierarchyMu.RUnlock()
	return node.world
}

// Children returns a copy of the node's children, in order.
func (node *Node) Children() []INode {
	children := node.childNodes()
	out := make([]INode, len(children))
	for i, child := range children {
		out[i] = child.outer()
	}
	return out
}

func (node *Node) childNodes() []*Node {
	node.hierarchyMu.RLock()
	defer node.hierarchyMu.RUnlock()
	return append(make([]*Node, 0, len(node.children)), node.children...)
}

// AddChild attaches the child keeping its world transform; see AddChildNode.
func (node *Node) AddChild(child INode) {
	node.AddChildNode(child, RuleKeepWorld, RuleKeepWorld, RuleKeepWorld)
}

// AddChildNode attaches child (and its subtree) to this node, detaching it from its current parent first.
// The attachment rules decide what happens to the child's transform if it's spatial.
// If this node is spawned the child ends up spawned; if not, it ends up despawned. Re-parenting a spawned node
// inside its World keeps it (and its ID) spawned.
func (node *Node) AddChildNode(child INode, location, rotation, scale AttachmentRule) {
	if child == nil {
		return
	}
	c := child.base()
	node.checkNotDestroyed()
	c.checkNotDestroyed()

	if c == node {
		fatal("node %q can't be attached to itself", node.Name())
	}
	for ancestor := node.parentNode(); ancestor != nil; ancestor = ancestor.parentNode() {
		if ancestor == c {
			fatal("node %q is an ancestor of %q and can't become its child", c.Name(), node.Name())
		}
	}

	oldParent := c.parentNode()
	if oldParent == nil && c.IsSpawned() {
		fatal("node %q is the root of a world and can't be attached to %q", c.Name(), node.Name())
	}

	if _, bare := child.(*Node); !bare || c.self == nil {
		c.self = child
	}

	if oldParent == node {
		return
	}

	var (
		spatial    spatialInternal
		worldSpace Transform
	)
	if s, ok := child.(spatialInternal); ok {
		spatial = s
		worldSpace = s.worldTransform()
	}

	var oldParentOuter INode
	if oldParent != nil {
		oldParentOuter = oldParent.outer()
		oldParent.removeChild(c)
		c.notifyDetached(true)
	}

	node.hierarchyMu.Lock()
	node.children = append(node.children, c)
	node.hierarchyMu.Unlock()
	c.hierarchyMu.Lock()
	c.parent = node
	c.hierarchyMu.Unlock()

	if spatial != nil {
		spatial.applyAttachmentRules(worldSpace, location, rotation, scale)
	}

	c.notifyAttached(true)

	if c.Callbacks.OnReparent != nil {
		c.Callbacks.OnReparent(child, oldParentOuter, node.outer())
	}

	switch parentSpawned, childSpawned := node.IsSpawned(), c.IsSpawned(); {
	case parentSpawned && !childSpawned:
		c.spawn()
	case !parentSpawned && childSpawned:
		c.despawn()
	case parentSpawned && childSpawned && c.World() != node.World():
		c.despawn()
		c.spawn()
	}
}

// removeChild removes child from this node's children and clears its parent.
func (node *Node) removeChild(child *Node) {
	node.hierarchyMu.Lock()
	for i, c := range node.children {
		if c == child {
			node.children[i] = nil
			node.children = append(node.children[:i], node.children[i+1:]...)
			break
		}
	}
	node.hierarchyMu.Unlock()

	child.hierarchyMu.Lock()
	child.parent = nil
	child.hierarchyMu.Unlock()
}

func (node *Node) notifyAttached(isDirectTarget bool) {
	if spatial, ok := node.outer().(spatialInternal); ok {
		spatial.onHierarchyChanged()
	}
	node.outer().OnAfterAttachedToNewParent(isDirectTarget)
	for _, child := range node.childNodes() {
		child.notifyAttached(false)
	}
}

func (node *Node) notifyDetached(isDirectTarget bool) {
	if spatial, ok := node.outer().(spatialInternal); ok {
		spatial.onHierarchyChanged()
	}
	node.outer().OnAfterDetachedFromParent(isDirectTarget)
	for _, child := range node.childNodes() {
		child.notifyDetached(false)
	}
}

// UnsafeDetachFromParentAndDespawn detaches the node from its parent, despawns it if it's spawned and destroys
// it with its whole subtree. The node (and any reference to a node of its subtree) must not be used afterwards.
// Detaching the root of a World is fatal; destroy the World instead.
func (node *Node) UnsafeDetachFromParentAndDespawn() {
	node.checkNotDestroyed()

	parent := node.parentNode()
	if parent == nil && node.IsSpawned() {
		fatal("node %q is the root of a world and can't be detached, destroy the world instead", node.Name())
	}

	if parent != nil {
		parent.removeChild(node)
		node.notifyDetached(true)
	}

	if node.IsSpawned() {
		node.despawn()
	}

	node.destroy()
}

// spawn spawns the node and then its children. The World is taken from the parent (or was set beforehand for a
// World's root).
func (node *Node) spawn() {
	node.checkNotDestroyed()

	if node.IsSpawned() {
		Logger().Warn("node is already spawned", zap.String("node", node.Name()))
		return
	}

	world := node.resolveWorld()
	if world == nil {
		fatal("node %q can't spawn: none of its parents is spawned in a world", node.Name())
	}

	node.hierarchyMu.Lock()
	node.world = world
	node.hierarchyMu.Unlock()

	node.id.Store(nextNodeID())
	node.isSpawned.Store(true)

	world.onNodeSpawned(node.outer())

	node.outer().OnSpawning()

	for _, child := range node.childNodes() {
		if child.IsSpawned() { // spawned by our OnSpawning
			continue
		}
		child.spawn()
	}

	node.outer().OnChildNodesSpawned()
}

func (node *Node) resolveWorld() *World {
	node.hierarchyMu.RLock()
	parent, world := node.parent, node.world
	node.hierarchyMu.RUnlock()

	if parent == nil {
		return world
	}
	return parent.World()
}

// despawn despawns the children of the node (depth-first) and then the node itself.
func (node *Node) despawn() {
	if !node.IsSpawned() {
		Logger().Warn("node is already despawned", zap.String("node", node.Name()))
		return
	}

	for _, child := range node.childNodes() {
		if child.IsSpawned() {
			child.despawn()
		}
	}

	node.outer().OnDespawning()

	node.isSpawned.Store(false)
	if world := node.World(); world != nil {
		world.onNodeDespawned(node.outer())
	}

	node.id.Store(0)
	node.hierarchyMu.Lock()
	node.world = nil
	node.hierarchyMu.Unlock()
}

// destroy releases the node and its subtree. Destroying a spawned node is fatal.
func (node *Node) destroy() {
	if node.IsSpawned() {
		fatal("node %q can't be destroyed while spawned", node.Name())
	}
	if node.isDestroyed.Load() {
		return
	}

	for _, child := range node.childNodes() {
		child.destroy()
	}

	node.hierarchyMu.Lock()
	node.children = nil
	node.parent = nil
	node.hierarchyMu.Unlock()

	node.isDestroyed.Store(true)
	counters.alive.Add(-1)
}

func (node *Node) checkNotDestroyed() {
	if node.isDestroyed.Load() {
		fatal("node %q was already destroyed and can't be used", node.Name())
	}
}

// ReindexChild moves the child in the calling Node's children slice to the specified newPosition.
// The function returns the old index where the child Node was, or -1 if it wasn't a child of the calling Node.
// The newPosition is clamped to the size of the node's children slice.
func (node *Node) ReindexChild(child INode, newPosition int) int {
	c := child.base()

	node.hierarchyMu.Lock()
	defer node.hierarchyMu.Unlock()

	oldIndex := -1
	for i, existing := range node.children {
		if existing == c {
			oldIndex = i
			break
		}
	}
	if oldIndex < 0 {
		return -1
	}

	if newPosition < 0 {
		newPosition = 0
	} else if newPosition > len(node.children)-1 {
		newPosition = len(node.children) - 1
	}

	node.children = append(node.children[:oldIndex], node.children[oldIndex+1:]...)
	node.children = append(node.children, nil)
	copy(node.children[newPosition+1:], node.children[newPosition:])
	node.children[newPosition] = c

	return oldIndex
}

// Index returns the index of the Node in its parent's children list.
// If the node doesn't have a parent, its index will be -1.
func (node *Node) Index() int {
	parent := node.parentNode()
	if parent == nil {
		return -1
	}
	for i, child := range parent.childNodes() {
		if child == node {
			return i
		}
	}
	return -1
}

// Root returns the top-most node of the tree this node is in (the node itself if it has no parent).
func (node *Node) Root() INode {
	root := node
	for parent := root.parentNode(); parent != nil; parent = root.parentNode() {
		root = parent
	}
	return root.outer()
}

// HierarchyAsString returns a string displaying the hierarchy of this Node, and all recursive children.
// This is a useful function to debug the layout of a node tree, for example.
// Spawned nodes show their ID; spatial nodes also show their world location, truncated to the first 2 decimals.
func (node *Node) HierarchyAsString() string {

	var printNode func(node INode, level int) string

	printNode = func(node INode, level int) string {

		str := ""

		if level > 0 {
			for i := 0; i < level; i++ {
				str += "    |"
			}
			str += "\n"
		}

		for i := 0; i < level; i++ {
			str += "    |"
		}

		if level > 0 {
			str += "-"
		}

		str += " [" + nodeTypeName(node) + "] " + node.Name()

		if id, ok := node.ID(); ok {
			str += " #" + strconv.FormatUint(id, 10)
		}

		if spatial, ok := node.(Spatial); ok {
			wp := spatial.WorldLocation()
			floatTruncation := 2
			str += " : [" + strconv.FormatFloat(wp.X, 'f', floatTruncation, 64) + ", " + strconv.FormatFloat(wp.Y, 'f', floatTruncation, 64) + ", " + strconv.FormatFloat(wp.Z, 'f', floatTruncation, 64) + "]"
		}

		str += "\n"

		for _, child := range node.Children() {
			str += printNode(child, level+1)
		}

		return str
	}

	return printNode(node.outer(), 0)
}

// Get searches a node's hierarchy using a string to find a specified node. The path is in the format of names of nodes, separated by forward
// slashes ('/'), and is relative to the node you use to call Get. As an example of Get, if you had a cup parented to a desk, which was
// parented to a room, that was finally parented to the root of the world, it would be found at "Room/Desk/Cup". Note also that you can use "../" to
// "go up one" in the hierarchy (so cup.Get("../") would return the Desk node).
// Since Get uses forward slashes as path separation, it would be good to avoid using forward slashes in your Node names. Also note that Get()
// trims the extra spaces from the beginning and end of Node Names, so avoid using spaces at the beginning or end of your Nodes' names.
func (node *Node) Get(path string) INode {

	var search func(node INode) INode

	split := []string{}

	for _, s := range strings.Split(path, `/`) {
		if len(strings.TrimSpace(s)) > 0 {
			split = append(split, strings.TrimSpace(s))
		}
	}

	search = func(node INode) INode {

		if node == nil {
			return nil
		} else if len(split) == 0 {
			return node
		}

		if split[0] == ".." {
			split = split[1:]
			return search(node.Parent())
		}

		for _, child := range node.Children() {

			if child.Name() == split[0] {
				split = split[1:]
				return search(child)
			}

		}

		return nil

	}

	return search(node.outer())

}

// Path returns a string indicating the hierarchical path to get this Node from the root. The path returned will be absolute, such that
// passing it to Get() called on the root node will return this node. The path returned will not contain the root node's name.
func (node *Node) Path() string {

	parent := node.parentNode()
	if parent == nil {
		return ""
	}

	path := node.Name()

	for ; parent != nil && parent.parentNode() != nil; parent = parent.parentNode() {
		path = parent.Name() + "/" + path
	}

	return path

}

// SearchTree returns a NodeFilter over the node's descendants.
func (node *Node) SearchTree() NodeFilter {
	return newNodeFilter(node.outer())
}
