package stage3d

import (
	"sync"

	"go.uber.org/zap"

	"github.com/solarlune/stage3d/input"
)

// GameManagerOptions configures a GameManager. Nil fields get defaults: a BaseGameInstance, an empty input
// manager, no renderer and no sound.
type GameManagerOptions struct {
	Instance       GameInstance
	Renderer       Renderer
	Sound          SoundManager
	Input          *input.Manager
	ThreadPoolSize int
	Physics        PhysicsSettings
}

// worldCreationTask is a pending CreateWorld or LoadNodeTreeAsWorld request.
type worldCreationTask struct {
	destroyOldWorlds bool
	onCreated        func(root INode)

	// Set for node-tree loading.
	path       string
	onLoaded   func(root INode, err error)
	dispatched bool

	mu         sync.Mutex
	loaded     bool
	loadedRoot INode
	loadErr    error
}

func (task *worldCreationTask) setLoadResult(root INode, err error) {
	task.mu.Lock()
	task.loadedRoot, task.loadErr, task.loaded = root, err, true
	task.mu.Unlock()
}

func (task *worldCreationTask) loadResult() (root INode, err error, loaded bool) {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.loadedRoot, task.loadErr, task.loaded
}

type worldDestructionTask struct {
	world       *World
	onDestroyed func()
}

// GameManager owns the Worlds and drives them: it resolves world creation and destruction at frame boundaries,
// ticks the game instance, the physics and the nodes, and dispatches input.
type GameManager struct {
	instance GameInstance
	renderer Renderer
	sound    SoundManager
	input    *input.Manager
	pool     *ThreadPool
	physics  PhysicsSettings

	// worldsMu guards the world list and the pending tasks.
	worldsMu    sync.Mutex
	worlds      []*World
	createTask  *worldCreationTask
	destroyTask *worldDestructionTask
	isShutDown  bool
}

// NewGameManager creates a GameManager and starts its thread pool.
func NewGameManager(options GameManagerOptions) *GameManager {
	gm := &GameManager{
		instance: options.Instance,
		renderer: options.Renderer,
		sound:    options.Sound,
		input:    options.Input,
		physics:  options.Physics,
		pool:     NewThreadPool(options.ThreadPoolSize),
	}
	if gm.instance == nil {
		gm.instance = BaseGameInstance{}
	}
	if gm.input == nil {
		gm.input = input.NewManager(Logger())
	}
	return gm
}

func (gm *GameManager) Instance() GameInstance       { return gm.instance }
func (gm *GameManager) Renderer() Renderer           { return gm.renderer }
func (gm *GameManager) SoundManager() SoundManager   { return gm.sound }
func (gm *GameManager) InputManager() *input.Manager { return gm.input }
func (gm *GameManager) ThreadPool() *ThreadPool      { return gm.pool }

// Worlds returns a copy of the list of active Worlds, oldest first.
func (gm *GameManager) Worlds() []*World {
	gm.worldsMu.Lock()
	defer gm.worldsMu.Unlock()
	return append([]*World(nil), gm.worlds...)
}

// CreateWorld requests a new World with a fresh root node. The World is created at the start of the next frame,
// after which onCreated is called with its root. If destroyOldWorlds is true, every existing World is destroyed
// first. Requesting a World while another creation or load is pending is fatal.
func (gm *GameManager) CreateWorld(onCreated func(root INode), destroyOldWorlds bool) {
	gm.queueCreation(&worldCreationTask{onCreated: onCreated, destroyOldWorlds: destroyOldWorlds})
}

// LoadNodeTreeAsWorld requests a new World built from a node-tree file (.toml, .gltf or .glb). The file is
// loaded on the thread pool; once it's ready (checked at the start of every frame) the World is created and
// onLoaded is called with its root. If loading fails, no World is created and onLoaded gets the error.
func (gm *GameManager) LoadNodeTreeAsWorld(path string, onLoaded func(root INode, err error), destroyOldWorlds bool) {
	gm.queueCreation(&worldCreationTask{path: path, onLoaded: onLoaded, destroyOldWorlds: destroyOldWorlds})
}

func (gm *GameManager) queueCreation(task *worldCreationTask) {
	gm.worldsMu.Lock()
	if gm.createTask != nil {
		gm.worldsMu.Unlock()
		fatal("a world creation was requested while another one is still pending")
	}
	gm.createTask = task
	gm.worldsMu.Unlock()
}

// DestroyWorld requests the World to be despawned and destroyed at the start of the next frame; onDestroyed (if
// not nil) is called afterwards. Requesting a destruction while another one is pending is fatal.
func (gm *GameManager) DestroyWorld(world *World, onDestroyed func()) {
	gm.worldsMu.Lock()
	if gm.destroyTask != nil {
		gm.worldsMu.Unlock()
		fatal("a world destruction was requested while another one is still pending")
	}
	gm.destroyTask = &worldDestructionTask{world: world, onDestroyed: onDestroyed}
	gm.worldsMu.Unlock()
}

// OnBeforeNewFrame runs one frame: pending world destruction and creation, the game instance, then per World
// the physics and the tickable nodes, and finally the sound listener.
func (gm *GameManager) OnBeforeNewFrame(deltaTime float64) {
	gm.resolveDestructionTask()
	gm.resolveCreationTask()

	gm.instance.OnBeforeNewFrame(deltaTime)

	worlds := gm.Worlds()
	for _, world := range worlds {
		world.TickTickableNodes(deltaTime)
		world.physicsManager.OnBeforeNewFrame(deltaTime)
	}

	if gm.sound != nil {
		var listener Spatial
		for _, world := range worlds {
			if camera := world.ActiveCamera(); camera != nil {
				listener = camera
				break
			}
		}
		gm.sound.OnBeforeNewFrame(listener)
	}
}

func (gm *GameManager) resolveDestructionTask() {
	gm.worldsMu.Lock()
	task := gm.destroyTask
	gm.destroyTask = nil
	gm.worldsMu.Unlock()

	if task == nil {
		return
	}

	gm.destroyWorlds(task.world)

	if task.onDestroyed != nil {
		task.onDestroyed()
	}
}

func (gm *GameManager) resolveCreationTask() {
	gm.worldsMu.Lock()
	task := gm.createTask
	gm.worldsMu.Unlock()

	if task == nil {
		return
	}

	var root INode
	if task.path != "" {
		if !task.dispatched {
			task.dispatched = true
			path := task.path
			gm.pool.Submit(func() {
				task.setLoadResult(LoadNodeTree(path))
			})
			return
		}

		loadedRoot, err, loaded := task.loadResult()
		if !loaded {
			return
		}
		if err != nil {
			gm.clearCreationTask()
			Logger().Error("failed to load node tree as world", zap.String("path", task.path), zap.Error(err))
			task.onLoaded(nil, err)
			return
		}
		root = loadedRoot
	}

	if task.destroyOldWorlds {
		gm.destroyWorlds(gm.Worlds()...)
	}

	world := newWorld(gm, root, gm.physics)

	gm.worldsMu.Lock()
	gm.worlds = append(gm.worlds, world)
	gm.createTask = nil
	gm.worldsMu.Unlock()

	Logger().Debug("world created", zap.String("root", world.root.Name()), zap.Int("nodes", world.TotalSpawnedNodeCount()))

	if task.onLoaded != nil {
		task.onLoaded(world.root, nil)
	} else if task.onCreated != nil {
		task.onCreated(world.root)
	}
}

func (gm *GameManager) clearCreationTask() {
	gm.worldsMu.Lock()
	gm.createTask = nil
	gm.worldsMu.Unlock()
}

// destroyWorlds removes the Worlds from the list and destroys them, once the renderer is done with them.
func (gm *GameManager) destroyWorlds(worlds ...*World) {
	if len(worlds) == 0 {
		return
	}

	if gm.renderer != nil {
		gm.renderer.WaitForGPUWorkToFinish()
	}

	gm.worldsMu.Lock()
	remaining := gm.worlds[:0]
	for _, existing := range gm.worlds {
		destroyed := false
		for _, world := range worlds {
			if existing == world {
				destroyed = true
				break
			}
		}
		if !destroyed {
			remaining = append(remaining, existing)
		}
	}
	for i := len(remaining); i < len(gm.worlds); i++ {
		gm.worlds[i] = nil
	}
	gm.worlds = remaining
	gm.worldsMu.Unlock()

	for _, world := range worlds {
		world.Destroy()
	}
}

// OnKeyboardInput dispatches a keyboard key event.
func (gm *GameManager) OnKeyboardInput(key input.KeyboardKey, modifiers input.KeyboardModifiers, isPressed, isRepeat bool) {
	gm.onButtonInput(ButtonEvent{Button: key.Button(), Modifiers: modifiers, IsPressed: isPressed, IsRepeat: isRepeat})
}

// OnMouseInput dispatches a mouse button event.
func (gm *GameManager) OnMouseInput(button input.MouseButton, modifiers input.KeyboardModifiers, isPressed bool) {
	gm.onButtonInput(ButtonEvent{Button: button.Button(), Modifiers: modifiers, IsPressed: isPressed})
}

// OnGamepadInput dispatches a gamepad button event.
func (gm *GameManager) OnGamepadInput(gamepadID int, button input.GamepadButton, isPressed bool) {
	gm.onButtonInput(ButtonEvent{Button: button.Button(), IsPressed: isPressed, GamepadID: gamepadID})
}

func (gm *GameManager) onButtonInput(event ButtonEvent) {
	gm.instance.OnButtonInput(event)

	worlds := gm.Worlds()
	blocked := make(map[*World]bool, len(worlds))
	for _, world := range worlds {
		if consumer := world.ModalInputConsumer(); consumer != nil {
			blocked[world] = true
			if !event.IsRepeat {
				consumer.OnModalButtonInput(event)
			}
		}
	}

	if event.IsRepeat {
		return
	}

	actionChanges, axisChanges := gm.input.OnButton(event.Button, event.IsPressed)
	gm.dispatchActionChanges(worlds, blocked, actionChanges, event.Modifiers)
	gm.dispatchAxisChanges(worlds, blocked, axisChanges, event.Modifiers)
}

// OnGamepadAxisMoved dispatches a new position of a gamepad axis.
func (gm *GameManager) OnGamepadAxisMoved(gamepadID int, axis input.GamepadAxis, value float64) {
	gm.instance.OnGamepadAxisMoved(gamepadID, axis, value)

	changes := gm.input.OnGamepadAxis(axis, value)

	worlds := gm.Worlds()
	gm.dispatchAxisChanges(worlds, modalWorlds(worlds), changes, 0)
}

// OnMouseMove dispatches relative mouse movement to the game instance and, once, to every input-receiving node of
// the Worlds without a modal input consumer.
func (gm *GameManager) OnMouseMove(xOffset, yOffset float64) {
	gm.instance.OnMouseMove(xOffset, yOffset)

	for _, world := range gm.Worlds() {
		if world.ModalInputConsumer() != nil {
			continue
		}
		for _, node := range world.receivingInputNodes() {
			if handler, ok := node.(MouseMoveHandler); ok && node.IsSpawned() {
				handler.OnMouseMove(xOffset, yOffset)
			}
		}
	}
}

// OnMouseScrollMove dispatches mouse wheel movement like OnMouseMove.
func (gm *GameManager) OnMouseScrollMove(offset float64) {
	gm.instance.OnMouseScrollMove(offset)

	for _, world := range gm.Worlds() {
		if world.ModalInputConsumer() != nil {
			continue
		}
		for _, node := range world.receivingInputNodes() {
			if handler, ok := node.(MouseScrollHandler); ok && node.IsSpawned() {
				handler.OnMouseScrollMove(offset)
			}
		}
	}
}

func modalWorlds(worlds []*World) map[*World]bool {
	blocked := map[*World]bool{}
	for _, world := range worlds {
		if world.ModalInputConsumer() != nil {
			blocked[world] = true
		}
	}
	return blocked
}

func (gm *GameManager) dispatchActionChanges(worlds []*World, blocked map[*World]bool, changes []input.ActionStateChange, modifiers input.KeyboardModifiers) {
	for _, change := range changes {
		gm.instance.OnInputActionEvent(change.ActionID, modifiers, change.IsPressed)

		for _, world := range worlds {
			if blocked[world] {
				continue
			}
			// A copy: callbacks may change which nodes receive input.
			for _, node := range world.receivingInputNodes() {
				if !node.IsSpawned() {
					continue
				}
				if callback := node.base().actionEventBinding(change.ActionID); callback != nil {
					callback(modifiers, change.IsPressed)
				}
			}
		}
	}
}

func (gm *GameManager) dispatchAxisChanges(worlds []*World, blocked map[*World]bool, changes []input.AxisStateChange, modifiers input.KeyboardModifiers) {
	for _, change := range changes {
		gm.instance.OnInputAxisEvent(change.AxisID, modifiers, change.Value)

		for _, world := range worlds {
			if blocked[world] {
				continue
			}
			for _, node := range world.receivingInputNodes() {
				if !node.IsSpawned() {
					continue
				}
				if callback := node.base().axisEventBinding(change.AxisID); callback != nil {
					callback(modifiers, change.Value)
				}
			}
		}
	}
}

// OnWindowSizeChanged forwards the new window size to the renderer.
func (gm *GameManager) OnWindowSizeChanged(width, height int) {
	if gm.renderer != nil {
		gm.renderer.OnWindowSizeChanged(width, height)
	}
}

// OnWindowFocusChanged notifies the game instance. Losing focus releases every held button, since the releases
// won't be seen.
func (gm *GameManager) OnWindowFocusChanged(isFocused bool) {
	gm.instance.OnWindowFocusChanged(isFocused)

	if isFocused {
		return
	}

	actionChanges, axisChanges := gm.input.ReleaseAll()
	worlds := gm.Worlds()
	blocked := modalWorlds(worlds)
	gm.dispatchActionChanges(worlds, blocked, actionChanges, 0)
	gm.dispatchAxisChanges(worlds, blocked, axisChanges, 0)
}

// OnWindowClose notifies the game instance that the window is about to close.
func (gm *GameManager) OnWindowClose() {
	gm.instance.OnWindowClose()
}

// Shutdown destroys every World, drops pending requests (destroying a node tree loaded for one), stops the
// thread pool and reports leaked nodes.
func (gm *GameManager) Shutdown() {
	gm.worldsMu.Lock()
	if gm.isShutDown {
		gm.worldsMu.Unlock()
		return
	}
	gm.isShutDown = true
	pending := gm.createTask
	gm.createTask = nil
	gm.destroyTask = nil
	gm.worldsMu.Unlock()

	gm.destroyWorlds(gm.Worlds()...)
	gm.pool.Stop()

	// A node tree still loading when the pool stopped has finished now, and no World will take it.
	if pending != nil {
		if root, _, loaded := pending.loadResult(); loaded && root != nil {
			root.UnsafeDetachFromParentAndDespawn()
		}
	}

	CheckAliveNodes()
}
