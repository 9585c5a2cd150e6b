package stage3d

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// requireFatal runs f and requires it to raise an invariant violation.
func requireFatal(t *testing.T, f func()) *InvariantError {
	t.Helper()

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		f()
	}()

	require.NotNil(t, recovered, "expected an invariant violation")
	invariant, ok := recovered.(*InvariantError)
	require.True(t, ok, "panicked with %T (%v) instead of an invariant violation", recovered, recovered)
	return invariant
}

// recordingNode records its lifecycle hooks into a shared log.
type recordingNode struct {
	*Node
	log *[]string

	// Checks run from the hooks.
	onChildNodesSpawned func()
	onDespawning        func()
	onTick              func()
}

func newRecordingNode(name string, log *[]string) *recordingNode {
	node := &recordingNode{Node: NewNode(name), log: log}
	return node
}

func (node *recordingNode) record(event string) {
	if node.log != nil {
		*node.log = append(*node.log, node.Name()+":"+event)
	}
}

func (node *recordingNode) OnSpawning() {
	node.record("spawning")
	node.Node.OnSpawning()
}

func (node *recordingNode) OnChildNodesSpawned() {
	node.record("children_spawned")
	if node.onChildNodesSpawned != nil {
		node.onChildNodesSpawned()
	}
}

func (node *recordingNode) OnDespawning() {
	node.record("despawning")
	if node.onDespawning != nil {
		node.onDespawning()
	}
}

func (node *recordingNode) OnBeforeNewFrame(deltaTime float64) {
	node.record("tick")
	if node.onTick != nil {
		node.onTick()
	}
}

// worldSnapshot is what a World tracks about its spawned nodes.
type worldSnapshot struct {
	spawned, first, second, input []uint64
}

func snapshotWorld(world *World) worldSnapshot {
	ids := func(nodes []INode) []uint64 {
		out := make([]uint64, 0, len(nodes))
		for _, node := range nodes {
			id, _ := node.ID()
			out = append(out, id)
		}
		return out
	}

	world.nodesMu.RLock()
	spawned := make([]uint64, 0, len(world.spawnedNodesByID))
	for id := range world.spawnedNodesByID {
		spawned = append(spawned, id)
	}
	world.nodesMu.RUnlock()
	slices.Sort(spawned)

	world.setsMu.Lock()
	defer world.setsMu.Unlock()
	return worldSnapshot{
		spawned: spawned,
		first:   ids(world.tickable[TickGroupFirst].snapshot()),
		second:  ids(world.tickable[TickGroupSecond].snapshot()),
		input:   ids(world.inputReceiving.snapshot()),
	}
}
