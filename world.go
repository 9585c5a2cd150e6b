package stage3d

import (
	"sync"

	"go.uber.org/zap"
)

// maxDeferredTasksPerDrain bounds how many deferred tasks one drain may run. Tasks that keep queueing new tasks
// forever are a bug, so running into the bound is fatal instead of hanging the frame.
const maxDeferredTasksPerDrain = 100_000

// ModalInputConsumer takes over button input of a World (a modal menu, for example). While a World has one, button
// events go to it instead of to the World's nodes, and mouse movement, scrolling and axis events aren't forwarded
// to the nodes.
type ModalInputConsumer interface {
	OnModalButtonInput(event ButtonEvent)
}

// World owns a node tree (through its root node) and keeps track of its spawned nodes: which are ticked every frame
// and which receive input.
type World struct {
	gameManager    *GameManager
	physicsManager *PhysicsManager
	root           INode

	nodesMu          sync.RWMutex
	spawnedNodesByID map[uint64]INode

	// setsMu guards the tickable and input-receiving sets, the iteration flag and the deferred tasks.
	setsMu         sync.Mutex
	tickable       [2]*nodeSet
	inputReceiving *nodeSet
	isIterating    bool
	tasksAfterTick []func()

	stateMu            sync.RWMutex
	activeCamera       *CameraNode
	modalInputConsumer ModalInputConsumer
	isDestroyed        bool
}

// NewWorld creates a standalone World (not managed by a GameManager) around root and spawns the tree.
// If root is nil, a new Node named "Root" is used.
func NewWorld(root INode) *World {
	return newWorld(nil, root, PhysicsSettings{})
}

func newWorld(gameManager *GameManager, root INode, physicsSettings PhysicsSettings) *World {
	if root == nil {
		root = NewNode("Root")
	}

	world := &World{
		gameManager:      gameManager,
		root:             root,
		spawnedNodesByID: map[uint64]INode{},
		tickable:         [2]*nodeSet{newNodeSet(), newNodeSet()},
		inputReceiving:   newNodeSet(),
	}
	world.physicsManager = newPhysicsManager(world, physicsSettings)

	rootNode := root.base()
	rootNode.checkNotDestroyed()
	if rootNode.parentNode() != nil {
		fatal("node %q has a parent and can't be the root of a world", rootNode.Name())
	}
	if rootNode.IsSpawned() {
		fatal("node %q is already spawned and can't be the root of another world", rootNode.Name())
	}
	if _, bare := root.(*Node); !bare || rootNode.self == nil {
		rootNode.self = root
	}

	rootNode.hierarchyMu.Lock()
	rootNode.world = world
	rootNode.hierarchyMu.Unlock()

	rootNode.spawn()

	return world
}

// RootNode returns the root of the World's node tree.
func (world *World) RootNode() INode { return world.root }

// GameManager returns the GameManager that owns the World, or nil for a standalone World.
func (world *World) GameManager() *GameManager { return world.gameManager }

// PhysicsManager returns the World's physics.
func (world *World) PhysicsManager() *PhysicsManager { return world.physicsManager }

// SoundManager returns the sound manager of the owning GameManager, or nil.
func (world *World) SoundManager() SoundManager {
	if world.gameManager == nil {
		return nil
	}
	return world.gameManager.SoundManager()
}

// ActiveCamera returns the camera the World is seen (and heard) through, or nil.
func (world *World) ActiveCamera() *CameraNode {
	world.stateMu.RLock()
	defer world.stateMu.RUnlock()
	return world.activeCamera
}

// SetActiveCamera sets the camera the World is seen (and heard) through. Cameras reset it to nil when they despawn.
func (world *World) SetActiveCamera(camera *CameraNode) {
	world.stateMu.Lock()
	world.activeCamera = camera
	world.stateMu.Unlock()
}

// ModalInputConsumer returns the World's modal input consumer, or nil.
func (world *World) ModalInputConsumer() ModalInputConsumer {
	world.stateMu.RLock()
	defer world.stateMu.RUnlock()
	return world.modalInputConsumer
}

// SetModalInputConsumer sets (or, with nil, removes) the World's modal input consumer.
func (world *World) SetModalInputConsumer(consumer ModalInputConsumer) {
	world.stateMu.Lock()
	world.modalInputConsumer = consumer
	world.stateMu.Unlock()
}

// SpawnedNodeByID returns the spawned node with the given ID, or nil.
func (world *World) SpawnedNodeByID(id uint64) INode {
	world.nodesMu.RLock()
	defer world.nodesMu.RUnlock()
	return world.spawnedNodesByID[id]
}

// TotalSpawnedNodeCount returns how many nodes are spawned in the World.
func (world *World) TotalSpawnedNodeCount() int {
	world.nodesMu.RLock()
	defer world.nodesMu.RUnlock()
	return len(world.spawnedNodesByID)
}

// CalledEveryFrameNodeCount returns how many nodes are in the World's tickable sets.
func (world *World) CalledEveryFrameNodeCount() int {
	world.setsMu.Lock()
	defer world.setsMu.Unlock()
	return world.tickable[TickGroupFirst].len() + world.tickable[TickGroupSecond].len()
}

// ReceivingInputNodeCount returns how many nodes are in the World's input-receiving set.
func (world *World) ReceivingInputNodeCount() int {
	world.setsMu.Lock()
	defer world.setsMu.Unlock()
	return world.inputReceiving.len()
}

// TickTickableNodes calls OnBeforeNewFrame on every tickable node, the first tick group first. Changes to the
// tickable and input-receiving sets requested by the nodes are applied after each group.
func (world *World) TickTickableNodes(deltaTime float64) {
	world.iterateTickable(func(node INode) {
		node.OnBeforeNewFrame(deltaTime)
	})
}

// callBeforePhysicsUpdate calls OnBeforePhysicsUpdate on the tickable nodes that implement it.
func (world *World) callBeforePhysicsUpdate(deltaTime float64) {
	world.iterateTickable(func(node INode) {
		if handler, ok := node.(PhysicsUpdateHandler); ok {
			handler.OnBeforePhysicsUpdate(deltaTime)
		}
	})
}

func (world *World) iterateTickable(call func(node INode)) {
	world.setsMu.Lock()
	if world.isIterating {
		world.setsMu.Unlock()
		fatal("tickable nodes are already being iterated")
	}
	world.isIterating = true
	world.setsMu.Unlock()

	world.executeTasksAfterNodeTick()

	for _, group := range []TickGroup{TickGroupFirst, TickGroupSecond} {
		world.setsMu.Lock()
		nodes := world.tickable[group].snapshot()
		world.setsMu.Unlock()

		for _, node := range nodes {
			// Despawned (or moved to another world) by a node ticked before it.
			if !node.IsSpawned() || node.World() != world {
				continue
			}
			call(node)
		}

		world.executeTasksAfterNodeTick()
	}

	world.setsMu.Lock()
	world.isIterating = false
	world.setsMu.Unlock()
}

// receivingInputNodes returns a copy of the input-receiving set, in spawn order.
func (world *World) receivingInputNodes() []INode {
	world.setsMu.Lock()
	defer world.setsMu.Unlock()
	return world.inputReceiving.snapshot()
}

// runOrDefer runs task right away, or queues it until the running iteration over the sets is done.
func (world *World) runOrDefer(task func()) {
	world.setsMu.Lock()
	if world.isIterating {
		world.tasksAfterTick = append(world.tasksAfterTick, task)
		world.setsMu.Unlock()
		return
	}
	world.setsMu.Unlock()
	task()
}

// executeTasksAfterNodeTick runs the deferred tasks in order until none are left, including tasks queued by the
// tasks themselves.
func (world *World) executeTasksAfterNodeTick() {
	for executed := 0; ; executed++ {
		world.setsMu.Lock()
		if len(world.tasksAfterTick) == 0 {
			world.setsMu.Unlock()
			return
		}
		task := world.tasksAfterTick[0]
		world.tasksAfterTick[0] = nil
		world.tasksAfterTick = world.tasksAfterTick[1:]
		world.setsMu.Unlock()

		if executed >= maxDeferredTasksPerDrain {
			fatal("more than %d deferred tasks were run after one tick pass, the tasks keep queueing each other", maxDeferredTasksPerDrain)
		}

		task()
	}
}

// stillSpawnedAs reports whether node is spawned in the World with the given ID.
func (world *World) stillSpawnedAs(node INode, id uint64) bool {
	current, ok := node.ID()
	return ok && current == id && node.World() == world
}

func (world *World) onNodeSpawned(node INode) {
	id, ok := node.ID()
	if !ok {
		fatal("node %q was reported as spawned without an ID", node.Name())
	}

	world.nodesMu.Lock()
	if existing, exists := world.spawnedNodesByID[id]; exists {
		world.nodesMu.Unlock()
		fatal("node %q was spawned with ID %d, which already belongs to %q", node.Name(), id, existing.Name())
	}
	world.spawnedNodesByID[id] = node
	world.nodesMu.Unlock()

	group := node.TickGroup()
	tickable := node.IsCalledEveryFrame()
	receivingInput := node.IsReceivingInput()
	if !tickable && !receivingInput {
		return
	}

	world.runOrDefer(func() {
		if !world.stillSpawnedAs(node, id) {
			return
		}
		world.setsMu.Lock()
		defer world.setsMu.Unlock()
		if tickable {
			world.tickable[group].add(id, node)
		}
		if receivingInput {
			world.inputReceiving.add(id, node)
		}
	})
}

func (world *World) onNodeDespawned(node INode) {
	id, ok := node.ID()
	if !ok {
		fatal("node %q was reported as despawned without an ID", node.Name())
	}

	world.nodesMu.Lock()
	if _, exists := world.spawnedNodesByID[id]; !exists {
		world.nodesMu.Unlock()
		fatal("node %q (ID %d) was reported as despawned but isn't registered as spawned", node.Name(), id)
	}
	delete(world.spawnedNodesByID, id)
	world.nodesMu.Unlock()

	// Removed regardless of the node's current flags: a flag turned off right before despawning may not have
	// been applied to the sets yet.
	world.runOrDefer(func() {
		world.setsMu.Lock()
		defer world.setsMu.Unlock()
		world.tickable[TickGroupFirst].remove(id)
		world.tickable[TickGroupSecond].remove(id)
		world.inputReceiving.remove(id)
	})
}

func (world *World) onSpawnedNodeChangedIsCalledEveryFrame(node INode) {
	id, ok := node.ID()
	if !ok {
		return
	}
	group := node.TickGroup()
	called := node.IsCalledEveryFrame()

	world.runOrDefer(func() {
		if !world.stillSpawnedAs(node, id) || node.IsCalledEveryFrame() != called {
			return
		}
		world.setsMu.Lock()
		defer world.setsMu.Unlock()
		if called {
			world.tickable[group].add(id, node)
		} else {
			world.tickable[group].remove(id)
		}
	})
}

func (world *World) onSpawnedNodeChangedIsReceivingInput(node INode) {
	id, ok := node.ID()
	if !ok {
		return
	}
	receiving := node.IsReceivingInput()

	world.runOrDefer(func() {
		if !world.stillSpawnedAs(node, id) || node.IsReceivingInput() != receiving {
			return
		}
		world.setsMu.Lock()
		defer world.setsMu.Unlock()
		if receiving {
			world.inputReceiving.add(id, node)
		} else {
			world.inputReceiving.remove(id)
		}
	})
}

// Destroy despawns and destroys the World's node tree and releases its physics. Worlds owned by a GameManager
// are destroyed through GameManager.DestroyWorld instead.
func (world *World) Destroy() {
	if world.isDestroyedAlready() {
		return
	}
	if world.root.IsSpawned() {
		world.root.base().despawn()
	}
	world.destroy()
}

// destroy releases the World. It's expected to be called with the tree already despawned.
func (world *World) destroy() {
	world.stateMu.Lock()
	if world.isDestroyed {
		world.stateMu.Unlock()
		return
	}
	world.isDestroyed = true
	world.activeCamera = nil
	world.modalInputConsumer = nil
	world.stateMu.Unlock()

	if world.root.IsSpawned() {
		Logger().Error("world is being destroyed while its root node is still spawned, despawning it now",
			zap.String("root", world.root.Name()))
		world.root.base().despawn()
	}

	world.executeTasksAfterNodeTick()
	world.root.base().destroy()
	world.physicsManager.Close()
}

func (world *World) isDestroyedAlready() bool {
	world.stateMu.RLock()
	defer world.stateMu.RUnlock()
	return world.isDestroyed
}
