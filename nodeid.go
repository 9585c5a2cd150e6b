package stage3d

import (
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

// idExhaustionWarningMargin is how close to the end of the ID space the counter has to get before spawning
// starts logging warnings.
const idExhaustionWarningMargin = 1 << 16

// nodeCounters is the process-wide ID and alive-node bookkeeping for Nodes.
type nodeCounters struct {
	nextID atomic.Uint64
	alive  atomic.Int64
}

var counters nodeCounters

// nextNodeID returns a new, unique node ID. IDs are never reused within a process.
func nextNodeID() uint64 {
	id := counters.nextID.Add(1)
	if id >= math.MaxUint64-idExhaustionWarningMargin {
		Logger().Warn("node ID space is almost exhausted", zap.Uint64("id", id))
	}
	return id
}

// AliveNodeCount returns the number of Nodes that were constructed and not yet destroyed.
func AliveNodeCount() int64 {
	return counters.alive.Load()
}

// CheckAliveNodes logs an error if any Node is still alive; this should be called on shutdown, after all Worlds
// have been destroyed. It returns true if no nodes leaked.
func CheckAliveNodes() bool {
	alive := AliveNodeCount()
	if alive != 0 {
		Logger().Error("nodes are still alive on shutdown", zap.Int64("count", alive))
		return false
	}
	return true
}

// NodeRef is a weak reference to a spawned node. It doesn't keep the node alive and resolves to nil once the node
// despawned, so it's safe to hold on to across frames (unlike the node itself).
type NodeRef struct {
	id uint64
}

// IsEmpty returns whether the reference was taken from an unspawned node.
func (ref NodeRef) IsEmpty() bool { return ref.id == 0 }

// ID returns the ID of the referenced node.
func (ref NodeRef) ID() uint64 { return ref.id }

// Resolve returns the referenced node if it's still spawned in world, or nil.
func (ref NodeRef) Resolve(world *World) INode {
	if ref.id == 0 || world == nil {
		return nil
	}
	return world.SpawnedNodeByID(ref.id)
}
