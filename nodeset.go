package stage3d

import "sort"

// Set represents a Set of elements.
type Set[E comparable] map[E]struct{}

// newSet creates a new set.
func newSet[E comparable]() Set[E] {
	return Set[E]{}
}

// Add adds the given elements to a set.
func (s Set[E]) Add(element E) {
	s[element] = struct{}{}
}

// Contains returns if the set contains the given element.
func (s Set[E]) Contains(element E) bool {
	_, ok := s[element]
	return ok
}

// Remove removes the given element from the set.
func (s Set[E]) Remove(element E) {
	delete(s, element)
}

// nodeSet is a set of spawned nodes keyed by ID that iterates in spawn order (IDs only ever grow).
// It isn't safe for concurrent use; World guards its sets.
type nodeSet struct {
	byID  map[uint64]INode
	order []uint64
}

func newNodeSet() *nodeSet {
	return &nodeSet{byID: map[uint64]INode{}}
}

// add inserts the node; it returns false if a node with that ID is already in the set.
func (set *nodeSet) add(id uint64, node INode) bool {
	if _, exists := set.byID[id]; exists {
		return false
	}
	set.byID[id] = node

	i := sort.Search(len(set.order), func(i int) bool { return set.order[i] >= id })
	set.order = append(set.order, 0)
	copy(set.order[i+1:], set.order[i:])
	set.order[i] = id
	return true
}

// remove removes the node with the given ID; it returns false if there was none.
func (set *nodeSet) remove(id uint64) bool {
	if _, exists := set.byID[id]; !exists {
		return false
	}
	delete(set.byID, id)

	i := sort.Search(len(set.order), func(i int) bool { return set.order[i] >= id })
	set.order = append(set.order[:i], set.order[i+1:]...)
	return true
}

func (set *nodeSet) contains(id uint64) bool {
	_, exists := set.byID[id]
	return exists
}

func (set *nodeSet) len() int {
	return len(set.order)
}

// snapshot returns the nodes in spawn order.
func (set *nodeSet) snapshot() []INode {
	out := make([]INode, len(set.order))
	for i, id := range set.order {
		out[i] = set.byID[id]
	}
	return out
}
