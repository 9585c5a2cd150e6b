package stage3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyingASpawnedNodeIsFatal(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	child := NewNode("Child")
	world.RootNode().AddChild(child)

	err := requireFatal(t, func() { child.destroy() })
	assert.Contains(t, err.Error(), "Child")
	assert.True(t, child.IsSpawned())
	assert.False(t, child.IsDestroyed())
}

func TestDetachingTheRootIsFatal(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	requireFatal(t, world.RootNode().UnsafeDetachFromParentAndDespawn)
	assert.True(t, world.RootNode().IsSpawned())
}

func TestChangingTheTickGroupWhileSpawnedIsFatal(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	node := NewNode("Node")
	node.SetTickGroup(TickGroupSecond)
	world.RootNode().AddChild(node)

	requireFatal(t, func() { node.SetTickGroup(TickGroupFirst) })
	assert.Equal(t, TickGroupSecond, node.TickGroup())
}

func TestUsingADestroyedNodeIsFatal(t *testing.T) {
	node := NewNode("Gone")
	node.UnsafeDetachFromParentAndDespawn()
	require.True(t, node.IsDestroyed())

	parent := NewNode("Parent")
	defer parent.UnsafeDetachFromParentAndDespawn()
	requireFatal(t, func() { parent.AddChild(node) })
}

func TestAttachingANodeBelowItselfIsFatal(t *testing.T) {
	parent := NewNode("Parent")
	child := NewNode("Child")
	parent.AddChild(child)
	defer parent.UnsafeDetachFromParentAndDespawn()

	requireFatal(t, func() { child.AddChild(parent) })
	requireFatal(t, func() { parent.AddChild(parent) })
}

func TestSpawnThenDespawnLeavesTheWorldAsItWas(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	before := snapshotWorld(world)
	alive := AliveNodeCount()

	parent := NewNode("Parent")
	parent.SetIsCalledEveryFrame(true)
	parent.SetIsReceivingInput(true)
	ticked := NewNode("Ticked")
	ticked.SetTickGroup(TickGroupSecond)
	ticked.SetIsCalledEveryFrame(true)
	listening := NewNode("Listening")
	listening.SetIsReceivingInput(true)
	parent.AddChild(ticked)
	ticked.AddChild(listening)

	world.RootNode().AddChild(parent)

	during := snapshotWorld(world)
	assert.Len(t, during.spawned, len(before.spawned)+3)
	assert.Len(t, during.first, 1)
	assert.Len(t, during.second, 1)
	assert.Len(t, during.input, 2)

	// Attaching to an unspawned node despawns the subtree without destroying it.
	holder := NewNode("Holder")
	holder.AddChild(parent)

	assert.Equal(t, before, snapshotWorld(world))
	for _, node := range []INode{parent, ticked, listening} {
		assert.False(t, node.IsSpawned(), node.Name())
		_, ok := node.ID()
		assert.False(t, ok, node.Name())
		assert.Nil(t, node.World(), node.Name())
	}

	holder.UnsafeDetachFromParentAndDespawn()
	assert.Equal(t, alive, AliveNodeCount())
	assert.True(t, listening.IsDestroyed())
}

func TestTickToggledOnAndOffBeforeDespawnLeavesNoTrace(t *testing.T) {
	sequences := map[string][]bool{
		"on then off": {true, false},
		"on":          {true},
	}

	for name, toggles := range sequences {
		t.Run(name, func(t *testing.T) {
			world := NewWorld(nil)
			defer world.Destroy()

			target := NewNode("Target")
			world.RootNode().AddChild(target)
			targetID, _ := target.ID()

			driver := newRecordingNode("Driver", nil)
			driver.SetIsCalledEveryFrame(true)
			driver.onTick = func() {
				if target.IsDestroyed() {
					return
				}
				// Inside a tick, these changes are only queued.
				for _, called := range toggles {
					target.SetIsCalledEveryFrame(called)
				}
				target.UnsafeDetachFromParentAndDespawn()
			}
			world.RootNode().AddChild(driver)

			world.TickTickableNodes(1.0 / 60)

			snapshot := snapshotWorld(world)
			assert.NotContains(t, snapshot.first, targetID)
			assert.Equal(t, 1, world.CalledEveryFrameNodeCount())
			assert.Nil(t, world.SpawnedNodeByID(targetID))
		})
	}
}

func TestChildrenAreSpawnedBeforeOnChildNodesSpawned(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	var log []string
	parent := newRecordingNode("p", &log)
	a := newRecordingNode("a", &log)
	a1 := newRecordingNode("a1", &log)
	b := newRecordingNode("b", &log)
	parent.AddChild(a)
	a.AddChild(a1)
	parent.AddChild(b)

	checked := false
	parent.onChildNodesSpawned = func() {
		checked = true
		parent.SearchTree().ForEach(func(node INode) bool {
			assert.True(t, node.IsSpawned(), "%s isn't spawned yet", node.Name())
			return true
		})
	}

	world.RootNode().AddChild(parent)

	require.True(t, checked)
	assert.Equal(t, []string{
		"p:spawning",
		"a:spawning",
		"a1:spawning",
		"a1:children_spawned",
		"a:children_spawned",
		"b:spawning",
		"b:children_spawned",
		"p:children_spawned",
	}, log)
}

func TestChildrenAreDespawnedBeforeOnDespawning(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	var log []string
	parent := newRecordingNode("p", &log)
	a := newRecordingNode("a", &log)
	a1 := newRecordingNode("a1", &log)
	b := newRecordingNode("b", &log)
	parent.AddChild(a)
	a.AddChild(a1)
	parent.AddChild(b)
	world.RootNode().AddChild(parent)

	checked := false
	parent.onDespawning = func() {
		checked = true
		assert.True(t, parent.IsSpawned())
		id, ok := parent.ID()
		require.True(t, ok)
		assert.NotNil(t, world.SpawnedNodeByID(id), "still registered while despawning")
		for _, child := range []INode{a, a1, b} {
			assert.False(t, child.IsSpawned(), "%s is still spawned", child.Name())
		}
	}

	log = nil
	parent.UnsafeDetachFromParentAndDespawn()

	require.True(t, checked)
	assert.Equal(t, []string{"a1:despawning", "a:despawning", "b:despawning", "p:despawning"}, log)
}

func TestReparentingInsideAWorldKeepsTheID(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	first := NewNode("First")
	second := NewNode("Second")
	moved := NewNode("Moved")
	world.RootNode().AddChild(first)
	world.RootNode().AddChild(second)
	first.AddChild(moved)

	id, ok := moved.ID()
	require.True(t, ok)
	ref := moved.Ref()

	second.AddChild(moved)

	newID, ok := moved.ID()
	require.True(t, ok)
	assert.Equal(t, id, newID)
	assert.Equal(t, INode(moved), ref.Resolve(world))
	assert.Equal(t, "Second/Moved", moved.Path())
	assert.Empty(t, first.Children())
}

func TestMovingANodeToAnotherWorldRespawnsIt(t *testing.T) {
	from := NewWorld(nil)
	defer from.Destroy()
	to := NewWorld(nil)
	defer to.Destroy()

	node := NewNode("Traveler")
	from.RootNode().AddChild(node)
	ref := node.Ref()

	to.RootNode().AddChild(node)

	assert.Same(t, to, node.World())
	assert.Nil(t, ref.Resolve(from))
	assert.Nil(t, ref.Resolve(to), "a new spawn gets a new ID")
	assert.Equal(t, INode(node), node.Ref().Resolve(to))
	assert.Equal(t, 1, from.TotalSpawnedNodeCount())
}

func TestRefsResolveOnlyWhileSpawned(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	node := NewNode("Node")
	assert.True(t, node.Ref().IsEmpty())

	world.RootNode().AddChild(node)
	ref := node.Ref()
	require.False(t, ref.IsEmpty())
	assert.Equal(t, INode(node), ref.Resolve(world))

	node.UnsafeDetachFromParentAndDespawn()
	assert.Nil(t, ref.Resolve(world))
	assert.Nil(t, ref.Resolve(nil))
}

func TestGetPathAndIndex(t *testing.T) {
	room := NewNode("Room")
	desk := NewNode("Desk")
	cup := NewNode("Cup")
	lamp := NewNode("Lamp")
	root := NewNode("Root")
	root.AddChild(room)
	room.AddChild(desk)
	desk.AddChild(lamp)
	desk.AddChild(cup)
	defer root.UnsafeDetachFromParentAndDespawn()

	assert.Equal(t, INode(cup), root.Get("Room/Desk/Cup"))
	assert.Equal(t, INode(desk), cup.Get("../"))
	assert.Equal(t, INode(lamp), cup.Get("../Lamp"))
	assert.Nil(t, root.Get("Room/Chair"))
	assert.Equal(t, "Room/Desk/Cup", cup.Path())
	assert.Equal(t, "", root.Path())
	assert.Equal(t, INode(root), cup.Root())

	assert.Equal(t, 1, cup.Index())
	assert.Equal(t, -1, root.Index())

	assert.Equal(t, 1, desk.ReindexChild(cup, 0))
	assert.Equal(t, 0, cup.Index())
	assert.Equal(t, -1, desk.ReindexChild(room, 0))
	assert.Equal(t, 0, desk.ReindexChild(cup, 10))
	assert.Equal(t, []INode{lamp, cup}, desk.Children())
}

func TestHierarchyAsString(t *testing.T) {
	root := NewNode("Root")
	child := NewSpatialNode("Child")
	child.SetRelativeLocation(Vector{X: 1, Y: 2.5, Z: -3})
	root.AddChild(child)
	defer root.UnsafeDetachFromParentAndDespawn()

	str := root.HierarchyAsString()
	assert.Contains(t, str, "[Node] Root")
	assert.Contains(t, str, "[SpatialNode] Child : [1.00, 2.50, -3.00]")
}

func TestOnReparentCallback(t *testing.T) {
	first := NewNode("First")
	second := NewNode("Second")
	child := NewNode("Child")
	defer first.UnsafeDetachFromParentAndDespawn()
	defer second.UnsafeDetachFromParentAndDespawn()

	var calls [][2]INode
	child.Callbacks.OnReparent = func(node, oldParent, newParent INode) {
		calls = append(calls, [2]INode{oldParent, newParent})
	}

	first.AddChild(child)
	second.AddChild(child)

	assert.Equal(t, [][2]INode{{nil, first}, {first, second}}, calls)
}

func TestDestroyingADetachedTreeReleasesEveryNode(t *testing.T) {
	alive := AliveNodeCount()

	root := NewNode("Root")
	for range 3 {
		child := NewNode("Child")
		child.AddChild(NewNode("Grandchild"))
		root.AddChild(child)
	}
	assert.Equal(t, alive+7, AliveNodeCount())

	root.UnsafeDetachFromParentAndDespawn()
	assert.Equal(t, alive, AliveNodeCount())
}
