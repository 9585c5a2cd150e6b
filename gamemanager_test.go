package stage3d

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlune/stage3d/input"
)

const (
	testActionJump uint = iota + 1
	testAxisMove
)

type fakeRenderer struct {
	slots   *RenderSlotPool
	waits   int
	resized [2]int
}

func newFakeRenderer() *fakeRenderer { return &fakeRenderer{slots: NewRenderSlotPool()} }

func (r *fakeRenderer) OnWindowSizeChanged(width, height int) { r.resized = [2]int{width, height} }
func (r *fakeRenderer) WaitForGPUWorkToFinish()               { r.waits++ }
func (r *fakeRenderer) RenderSlots() *RenderSlotPool          { return r.slots }

type fakeSound struct {
	spawned   []*SoundNode
	listeners []Spatial
}

func (s *fakeSound) OnSoundNodeSpawned(node *SoundNode) { s.spawned = append(s.spawned, node) }
func (s *fakeSound) OnSoundNodeDespawned(node *SoundNode) {
	for i, spawned := range s.spawned {
		if spawned == node {
			s.spawned = append(s.spawned[:i], s.spawned[i+1:]...)
			return
		}
	}
}
func (s *fakeSound) PlaySound(node *SoundNode)         {}
func (s *fakeSound) StopSound(node *SoundNode)         {}
func (s *fakeSound) OnBeforeNewFrame(listener Spatial) { s.listeners = append(s.listeners, listener) }

type recordingInstance struct {
	BaseGameInstance
	frames  int
	buttons []ButtonEvent
	actions []input.ActionStateChange
	focus   []bool
}

func (g *recordingInstance) OnBeforeNewFrame(deltaTime float64) { g.frames++ }
func (g *recordingInstance) OnButtonInput(event ButtonEvent)    { g.buttons = append(g.buttons, event) }
func (g *recordingInstance) OnWindowFocusChanged(isFocused bool) {
	g.focus = append(g.focus, isFocused)
}
func (g *recordingInstance) OnInputActionEvent(actionID uint, _ input.KeyboardModifiers, isPressed bool) {
	g.actions = append(g.actions, input.ActionStateChange{ActionID: actionID, IsPressed: isPressed})
}

// newTestGameManager returns a GameManager with a World already created, and its root.
func newTestGameManager(t *testing.T, options GameManagerOptions) (*GameManager, INode) {
	t.Helper()
	gm := NewGameManager(options)
	t.Cleanup(gm.Shutdown)

	var root INode
	gm.CreateWorld(func(created INode) { root = created }, false)
	gm.OnBeforeNewFrame(0)
	require.NotNil(t, root)
	return gm, root
}

func TestWorldCountsFollowTheTree(t *testing.T) {
	gm, root := newTestGameManager(t, GameManagerOptions{})
	world := gm.Worlds()[0]

	assert.Equal(t, 1, world.TotalSpawnedNodeCount())
	assert.Zero(t, world.CalledEveryFrameNodeCount())

	child := NewNode("Child")
	child.SetIsCalledEveryFrame(true)
	root.AddChild(child)
	assert.Equal(t, 2, world.TotalSpawnedNodeCount())
	assert.Equal(t, 1, world.CalledEveryFrameNodeCount())

	child.UnsafeDetachFromParentAndDespawn()
	assert.Equal(t, 1, world.TotalSpawnedNodeCount())
	assert.Zero(t, world.CalledEveryFrameNodeCount())
}

func TestCreatingTwoWorldsAtOnceIsFatal(t *testing.T) {
	gm := NewGameManager(GameManagerOptions{})
	defer gm.Shutdown()

	gm.CreateWorld(nil, false)
	requireFatal(t, func() { gm.CreateWorld(nil, false) })

	gm.OnBeforeNewFrame(0)
	assert.Len(t, gm.Worlds(), 1)

	// Resolved, so another request is fine.
	gm.CreateWorld(nil, false)
	gm.OnBeforeNewFrame(0)
	assert.Len(t, gm.Worlds(), 2)
}

func TestDestroyingTwoWorldsAtOnceIsFatal(t *testing.T) {
	gm, _ := newTestGameManager(t, GameManagerOptions{})
	world := gm.Worlds()[0]

	gm.DestroyWorld(world, nil)
	requireFatal(t, func() { gm.DestroyWorld(world, nil) })
}

func TestWorldsAreCreatedAndDestroyedBetweenFrames(t *testing.T) {
	renderer := newFakeRenderer()
	instance := &recordingInstance{}
	gm, firstRoot := newTestGameManager(t, GameManagerOptions{Instance: instance, Renderer: renderer})
	first := gm.Worlds()[0]

	var secondRoot INode
	gm.CreateWorld(func(root INode) { secondRoot = root }, true)
	assert.Nil(t, secondRoot, "nothing happens before the next frame")
	assert.Len(t, gm.Worlds(), 1)

	gm.OnBeforeNewFrame(0)
	require.NotNil(t, secondRoot)
	require.Len(t, gm.Worlds(), 1)
	assert.NotSame(t, first, gm.Worlds()[0])
	assert.False(t, firstRoot.IsSpawned())
	assert.Equal(t, 1, renderer.waits, "the renderer is waited for before a world goes away")

	destroyed := false
	gm.DestroyWorld(gm.Worlds()[0], func() { destroyed = true })
	gm.OnBeforeNewFrame(0)
	assert.True(t, destroyed)
	assert.Empty(t, gm.Worlds())
	assert.Equal(t, 3, instance.frames)
}

func TestLoadNodeTreeAsWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.toml")
	tree := NewSpatialNode("Level")
	tree.AddChild(NewNode("Spawner"))
	require.NoError(t, SaveNodeTree(tree, path))
	tree.UnsafeDetachFromParentAndDespawn()

	gm := NewGameManager(GameManagerOptions{ThreadPoolSize: 1})
	defer gm.Shutdown()

	var (
		loaded  INode
		loadErr error
		calls   int
	)
	gm.LoadNodeTreeAsWorld(path, func(root INode, err error) {
		loaded, loadErr = root, err
		calls++
	}, false)

	runFramesUntil(t, gm, func() bool { return calls > 0 })

	require.NoError(t, loadErr)
	require.NotNil(t, loaded)
	assert.Equal(t, "Level", loaded.Name())
	assert.True(t, loaded.IsSpawned())
	assert.NotNil(t, loaded.Get("Spawner"))
	assert.Len(t, gm.Worlds(), 1)
	assert.Equal(t, 1, calls)
}

func TestLoadingAMissingNodeTreeCreatesNoWorld(t *testing.T) {
	gm := NewGameManager(GameManagerOptions{ThreadPoolSize: 1})
	defer gm.Shutdown()

	var loadErr error
	done := false
	gm.LoadNodeTreeAsWorld(filepath.Join(t.TempDir(), "missing.toml"), func(root INode, err error) {
		assert.Nil(t, root)
		loadErr, done = err, true
	}, false)

	runFramesUntil(t, gm, func() bool { return done })

	assert.Error(t, loadErr)
	assert.Empty(t, gm.Worlds())

	// The failed request doesn't block the next one.
	gm.CreateWorld(nil, false)
	gm.OnBeforeNewFrame(0)
	assert.Len(t, gm.Worlds(), 1)
}

func runFramesUntil(t *testing.T, gm *GameManager, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		require.True(t, time.Now().Before(deadline), "timed out")
		gm.OnBeforeNewFrame(1.0 / 60)
		time.Sleep(time.Millisecond)
	}
}

type inputNode struct {
	*Node
	mouseMoves [][2]float64
	scrolls    []float64
}

func newInputNode(name string) *inputNode {
	node := &inputNode{Node: NewNode(name)}
	node.SetIsReceivingInput(true)
	return node
}

func (node *inputNode) OnMouseMove(xOffset, yOffset float64) {
	node.mouseMoves = append(node.mouseMoves, [2]float64{xOffset, yOffset})
}

func (node *inputNode) OnMouseScrollMove(offset float64) { node.scrolls = append(node.scrolls, offset) }

func newBoundInputManager(t *testing.T) *input.Manager {
	manager := input.NewManager(nil)
	require.NoError(t, manager.AddActionEvent(testActionJump, input.KeySpace.Button(), input.GamepadButtonA.Button()))
	require.NoError(t, manager.AddAxisEvent(testAxisMove, []input.AxisTrigger{
		{Positive: input.KeyD.Button(), Negative: input.KeyA.Button()},
	}, input.GamepadAxisLeftX))
	return manager
}

func TestInputReachesBoundNodes(t *testing.T) {
	instance := &recordingInstance{}
	gm, root := newTestGameManager(t, GameManagerOptions{Instance: instance, Input: newBoundInputManager(t)})

	node := newInputNode("Player")
	var jumps []bool
	var moves []float64
	node.BindActionEvent(testActionJump, func(_ input.KeyboardModifiers, isPressed bool) { jumps = append(jumps, isPressed) })
	node.BindAxisEvent(testAxisMove, func(_ input.KeyboardModifiers, value float64) { moves = append(moves, value) })
	root.AddChild(node)

	deaf := NewNode("Deaf")
	deaf.BindActionEvent(testActionJump, func(input.KeyboardModifiers, bool) { t.Error("a node not receiving input got an action") })
	root.AddChild(deaf)

	gm.OnKeyboardInput(input.KeySpace, 0, true, false)
	gm.OnKeyboardInput(input.KeySpace, 0, true, true) // repeats don't drive actions
	gm.OnGamepadInput(0, input.GamepadButtonA, true)
	gm.OnKeyboardInput(input.KeySpace, 0, false, false)
	gm.OnGamepadInput(0, input.GamepadButtonA, false)

	assert.Equal(t, []bool{true, false}, jumps)
	assert.Equal(t, []input.ActionStateChange{
		{ActionID: testActionJump, IsPressed: true},
		{ActionID: testActionJump, IsPressed: false},
	}, instance.actions)
	assert.Len(t, instance.buttons, 5, "the game instance sees every button event")

	gm.OnKeyboardInput(input.KeyD, 0, true, false)
	gm.OnGamepadAxisMoved(0, input.GamepadAxisLeftX, -0.5)
	assert.Equal(t, []float64{1, 0.5}, moves)

	gm.OnMouseMove(3, -2)
	gm.OnMouseScrollMove(1)
	assert.Equal(t, [][2]float64{{3, -2}}, node.mouseMoves, "each node hears a mouse move once")
	assert.Equal(t, []float64{1}, node.scrolls)

	node.UnbindActionEvent(testActionJump)
	gm.OnKeyboardInput(input.KeySpace, 0, true, false)
	assert.Equal(t, []bool{true, false}, jumps)
}

type modalMenu struct {
	events []ButtonEvent
}

func (menu *modalMenu) OnModalButtonInput(event ButtonEvent) {
	menu.events = append(menu.events, event)
}

func TestModalInputConsumerTakesOverItsWorld(t *testing.T) {
	gm, root := newTestGameManager(t, GameManagerOptions{Input: newBoundInputManager(t)})
	world := gm.Worlds()[0]

	node := newInputNode("Player")
	jumps := 0
	node.BindActionEvent(testActionJump, func(input.KeyboardModifiers, bool) { jumps++ })
	root.AddChild(node)

	menu := &modalMenu{}
	world.SetModalInputConsumer(menu)

	gm.OnKeyboardInput(input.KeySpace, 0, true, false)
	gm.OnKeyboardInput(input.KeySpace, 0, true, true)
	gm.OnMouseMove(1, 1)

	assert.Zero(t, jumps)
	assert.Empty(t, node.mouseMoves)
	assert.Len(t, menu.events, 1, "repeats aren't forwarded to the consumer")

	world.SetModalInputConsumer(nil)
	gm.OnKeyboardInput(input.KeySpace, 0, false, false)
	assert.Equal(t, 1, jumps)
}

func TestLosingFocusReleasesEverything(t *testing.T) {
	instance := &recordingInstance{}
	gm, root := newTestGameManager(t, GameManagerOptions{Instance: instance, Input: newBoundInputManager(t)})

	node := newInputNode("Player")
	var jumps []bool
	var moves []float64
	node.BindActionEvent(testActionJump, func(_ input.KeyboardModifiers, isPressed bool) { jumps = append(jumps, isPressed) })
	node.BindAxisEvent(testAxisMove, func(_ input.KeyboardModifiers, value float64) { moves = append(moves, value) })
	root.AddChild(node)

	gm.OnKeyboardInput(input.KeySpace, 0, true, false)
	gm.OnKeyboardInput(input.KeyA, 0, true, false)
	gm.OnWindowFocusChanged(false)
	gm.OnWindowFocusChanged(true)

	assert.Equal(t, []bool{true, false}, jumps)
	assert.Equal(t, []float64{-1, 0}, moves)
	assert.Equal(t, []bool{false, true}, instance.focus)
	assert.False(t, gm.InputManager().IsActionEventPressed(testActionJump))
}

func TestSoundListenerIsTheFirstActiveCamera(t *testing.T) {
	sound := &fakeSound{}
	renderer := newFakeRenderer()
	gm, root := newTestGameManager(t, GameManagerOptions{Sound: sound, Renderer: renderer})
	require.Len(t, sound.listeners, 1)
	assert.Nil(t, sound.listeners[0])

	camera := NewCameraNode("Camera", 320, 240)
	camera.ActivateOnSpawn = true
	root.AddChild(camera)

	beep := NewSoundNode("Beep", "beep")
	root.AddChild(beep)
	assert.Equal(t, []*SoundNode{beep}, sound.spawned)

	gm.OnBeforeNewFrame(1.0 / 60)
	assert.Equal(t, Spatial(camera), sound.listeners[1])

	gm.OnWindowSizeChanged(800, 600)
	assert.Equal(t, [2]int{800, 600}, renderer.resized)

	beep.UnsafeDetachFromParentAndDespawn()
	assert.Empty(t, sound.spawned)
}

func TestShutdownDestroysEveryWorld(t *testing.T) {
	alive := AliveNodeCount()

	gm := NewGameManager(GameManagerOptions{})
	gm.CreateWorld(func(root INode) {
		root.AddChild(NewNode("Child"))
	}, false)
	gm.OnBeforeNewFrame(0)
	gm.CreateWorld(nil, false) // dropped by the shutdown
	require.Len(t, gm.Worlds(), 1)

	gm.Shutdown()
	assert.Empty(t, gm.Worlds())
	assert.Equal(t, alive, AliveNodeCount())

	gm.Shutdown()
}

func TestShutdownDestroysANodeTreeStillLoading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.toml")
	tree := NewSpatialNode("Level")
	tree.AddChild(NewNode("Spawner"))
	require.NoError(t, SaveNodeTree(tree, path))
	tree.UnsafeDetachFromParentAndDespawn()

	alive := AliveNodeCount()

	gm := NewGameManager(GameManagerOptions{ThreadPoolSize: 1})
	called := false
	gm.LoadNodeTreeAsWorld(path, func(root INode, err error) { called = true }, false)
	gm.OnBeforeNewFrame(0) // starts loading on the pool

	gm.Shutdown()
	assert.False(t, called)
	assert.Empty(t, gm.Worlds())
	assert.Equal(t, alive, AliveNodeCount())
}

// frameOrderNode records its ticks and the physics sub-steps run after them.
type frameOrderNode struct {
	*Node
	calls []string
}

func (node *frameOrderNode) OnBeforeNewFrame(deltaTime float64) {
	node.calls = append(node.calls, "tick")
	node.Node.OnBeforeNewFrame(deltaTime)
}

func (node *frameOrderNode) OnBeforePhysicsUpdate(deltaTime float64) {
	node.calls = append(node.calls, "physics")
}

func TestNodesTickBeforePhysicsSteps(t *testing.T) {
	gm, root := newTestGameManager(t, GameManagerOptions{})

	node := &frameOrderNode{Node: NewNode("Recorder")}
	node.SetIsCalledEveryFrame(true)
	root.AddChild(node)

	gm.OnBeforeNewFrame(gm.Worlds()[0].PhysicsManager().Settings().FixedStep)
	assert.Equal(t, []string{"tick", "physics"}, node.calls)
}
