package stage3d

import (
	"sort"
	"sync"

	"github.com/solarlune/stage3d/physics"
)

// nodeContact is a contact between two nodes, known by their IDs only.
type nodeContact struct {
	bodies       physics.BodyPair
	node1, node2 uint64
	isSensor     bool
}

// contactQueue collects contact events on the physics worker goroutines until the main goroutine drains them.
type contactQueue struct {
	mu      sync.Mutex
	added   []nodeContact
	removed []nodeContact
	// active remembers the node IDs of the body pairs in contact, since removal events only carry body IDs.
	active map[physics.BodyPair]nodeContact
}

func newContactQueue() *contactQueue {
	return &contactQueue{active: map[physics.BodyPair]nodeContact{}}
}

func (queue *contactQueue) OnContactAdded(contact physics.Contact) {
	added := nodeContact{
		bodies:   contact.Pair,
		node1:    contact.UserData1,
		node2:    contact.UserData2,
		isSensor: contact.IsSensor,
	}

	queue.mu.Lock()
	queue.active[contact.Pair] = added
	queue.added = append(queue.added, added)
	queue.mu.Unlock()
}

func (queue *contactQueue) OnContactRemoved(pair physics.BodyPair) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	removed, ok := queue.active[pair]
	if !ok {
		return
	}
	delete(queue.active, pair)
	queue.removed = append(queue.removed, removed)
}

// drain returns and clears the queued events, each list sorted by node IDs so dispatch order doesn't depend on
// the worker goroutines.
func (queue *contactQueue) drain() (removed, added []nodeContact) {
	queue.mu.Lock()
	removed, added = queue.removed, queue.added
	queue.removed, queue.added = nil, nil
	queue.mu.Unlock()

	sortContacts(removed)
	sortContacts(added)
	return removed, added
}

func (queue *contactQueue) activeCount() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.active)
}

func sortContacts(contacts []nodeContact) {
	sort.Slice(contacts, func(i, j int) bool {
		a, b := contacts[i], contacts[j]
		if a.node1 != b.node1 {
			return a.node1 < b.node1
		}
		if a.node2 != b.node2 {
			return a.node2 < b.node2
		}
		return a.bodies.Body1 < b.bodies.Body1
	})
}

// dispatchContacts resolves the drained events through the World's spawned nodes and notifies them: ended
// contacts first, then new ones. Events whose nodes aren't spawned anymore aren't delivered, but an ended
// overlap still leaves the bookkeeping of the node that is.
func (pm *PhysicsManager) dispatchContacts() {
	removed, added := pm.contacts.drain()

	for _, contact := range removed {
		pm.dispatchContact(contact, false)
	}
	for _, contact := range added {
		pm.dispatchContact(contact, true)
	}
}

func (pm *PhysicsManager) dispatchContact(contact nodeContact, began bool) {
	// Resolved one event at a time: a handler may despawn nodes of later events.
	node1 := pm.world.SpawnedNodeByID(contact.node1)
	node2 := pm.world.SpawnedNodeByID(contact.node2)
	if node1 == nil || node2 == nil {
		if !began {
			forgetOverlap(node1, contact.node2)
			forgetOverlap(node2, contact.node1)
		}
		return
	}

	notify := func(node, other INode) {
		if contact.isSensor {
			if handler, ok := node.(OverlapHandler); ok {
				if began {
					handler.OnBeginOverlap(other)
				} else {
					handler.OnEndOverlap(other)
				}
			}
			return
		}
		if handler, ok := node.(ContactHandler); ok {
			if began {
				handler.OnContactAdded(other)
			} else {
				handler.OnContactRemoved(other)
			}
		}
	}

	notify(node1, node2)
	if node2.IsSpawned() && node1.IsSpawned() {
		notify(node2, node1)
	}
}

// overlapTracker is implemented by nodes keeping the IDs of the nodes they overlap.
type overlapTracker interface {
	forgetOverlap(id uint64)
}

func forgetOverlap(node INode, otherID uint64) {
	if tracker, ok := node.(overlapTracker); ok {
		tracker.forgetOverlap(otherID)
	}
}
