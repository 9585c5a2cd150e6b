package stage3d

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticks(log []string) []string {
	var out []string
	for _, event := range log {
		if strings.HasSuffix(event, ":tick") {
			out = append(out, event)
		}
	}
	return out
}

func TestNodesSpawnedDuringATickWaitForTheNextFrame(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	var log []string
	a := newRecordingNode("A", &log)
	a.SetIsCalledEveryFrame(true)
	b := newRecordingNode("B", &log)
	b.SetTickGroup(TickGroupSecond)
	b.SetIsCalledEveryFrame(true)

	var c *recordingNode
	a.onTick = func() {
		if c != nil {
			return
		}
		c = newRecordingNode("C", &log)
		c.SetIsCalledEveryFrame(true)
		world.RootNode().AddChild(c)
		assert.True(t, c.IsSpawned(), "spawning itself isn't deferred")
	}

	// B is spawned first, to show groups order the ticks and not spawn order.
	world.RootNode().AddChild(b)
	world.RootNode().AddChild(a)

	world.TickTickableNodes(1.0 / 60)
	assert.Equal(t, []string{"A:tick", "B:tick"}, ticks(log))

	log = nil
	world.TickTickableNodes(1.0 / 60)
	assert.Equal(t, []string{"A:tick", "C:tick", "B:tick"}, ticks(log))
}

func TestNodesDespawnedDuringATickAreSkipped(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	var log []string
	first := newRecordingNode("First", &log)
	first.SetIsCalledEveryFrame(true)
	second := newRecordingNode("Second", &log)
	second.SetIsCalledEveryFrame(true)

	first.onTick = func() {
		if !second.IsDestroyed() {
			second.UnsafeDetachFromParentAndDespawn()
		}
	}
	world.RootNode().AddChild(first)
	world.RootNode().AddChild(second)

	world.TickTickableNodes(1.0 / 60)

	assert.Equal(t, []string{"First:tick"}, ticks(log))
	assert.Equal(t, 1, world.CalledEveryFrameNodeCount())
}

func TestTurningTickingOffStopsTicks(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	var log []string
	node := newRecordingNode("Node", &log)
	node.SetIsCalledEveryFrame(true)
	node.onTick = func() { node.SetIsCalledEveryFrame(false) }
	world.RootNode().AddChild(node)

	world.TickTickableNodes(1.0 / 60)
	world.TickTickableNodes(1.0 / 60)

	assert.Equal(t, []string{"Node:tick"}, ticks(log))
	assert.Zero(t, world.CalledEveryFrameNodeCount())
	assert.True(t, node.IsSpawned())
}

func TestDeferredTasksThatNeverSettleAreFatal(t *testing.T) {
	world := NewWorld(nil)
	defer func() {
		world.setsMu.Lock()
		world.isIterating = false
		world.tasksAfterTick = nil
		world.setsMu.Unlock()
		world.Destroy()
	}()

	var requeue func()
	requeue = func() { world.runOrDefer(requeue) }

	node := newRecordingNode("Looper", nil)
	node.SetIsCalledEveryFrame(true)
	node.onTick = func() { world.runOrDefer(requeue) }
	world.RootNode().AddChild(node)

	err := requireFatal(t, func() { world.TickTickableNodes(1.0 / 60) })
	assert.Contains(t, err.Error(), "deferred tasks")
}

func TestTickingWhileTickingIsFatal(t *testing.T) {
	world := NewWorld(nil)
	defer func() {
		world.setsMu.Lock()
		world.isIterating = false
		world.setsMu.Unlock()
		world.Destroy()
	}()

	node := newRecordingNode("Reentrant", nil)
	node.SetIsCalledEveryFrame(true)
	node.onTick = func() { world.TickTickableNodes(0) }
	world.RootNode().AddChild(node)

	requireFatal(t, func() { world.TickTickableNodes(1.0 / 60) })
}

func TestWorldRoots(t *testing.T) {
	world := NewWorld(nil)
	assert.Equal(t, "Root", world.RootNode().Name())
	assert.Equal(t, 1, world.TotalSpawnedNodeCount())
	assert.Nil(t, world.GameManager())
	assert.Nil(t, world.SoundManager())
	world.Destroy()
	assert.True(t, world.RootNode().base().IsDestroyed())

	parent := NewNode("Parent")
	child := NewNode("Child")
	parent.AddChild(child)
	defer parent.UnsafeDetachFromParentAndDespawn()

	requireFatal(t, func() { NewWorld(child) })

	spatialRoot := NewSpatialNode("Spatial")
	spatialWorld := NewWorld(spatialRoot)
	defer spatialWorld.Destroy()
	assert.Equal(t, INode(spatialRoot), spatialWorld.RootNode())
	assert.Same(t, spatialWorld, spatialRoot.World())

	requireFatal(t, func() { NewWorld(spatialRoot) })
}

func TestInputReceivingSetFollowsTheFlag(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	node := NewNode("Listener")
	world.RootNode().AddChild(node)
	assert.Zero(t, world.ReceivingInputNodeCount())

	node.SetIsReceivingInput(true)
	assert.Equal(t, 1, world.ReceivingInputNodeCount())

	node.SetIsReceivingInput(false)
	assert.Zero(t, world.ReceivingInputNodeCount())

	node.SetIsReceivingInput(true)
	node.UnsafeDetachFromParentAndDespawn()
	assert.Zero(t, world.ReceivingInputNodeCount())
}

func TestDestroyingAWorldDestroysItsTree(t *testing.T) {
	alive := AliveNodeCount()

	world := NewWorld(nil)
	child := NewNode("Child")
	child.AddChild(NewNode("Grandchild"))
	world.RootNode().AddChild(child)
	require.Equal(t, 3, world.TotalSpawnedNodeCount())

	world.Destroy()

	assert.Zero(t, world.TotalSpawnedNodeCount())
	assert.True(t, child.IsDestroyed())
	assert.Equal(t, alive, AliveNodeCount())

	// Destroying twice is harmless.
	world.Destroy()
}
