package stage3d

import (
	"regexp"
	"slices"
	"sort"

	"go.uber.org/zap"
)

type nodeFilterSortMode int

const (
	sortModeNone nodeFilterSortMode = iota
	sortModeAxisX
	sortModeAxisY
	sortModeAxisZ
	sortModeDistance
)

// NodeFilter represents a chain of node filters, executed in sequence to collect the desired nodes out of a
// hierarchy. Filters are executed lazily, when the result is asked for; the starting node itself is never part of
// the result. NodeFilter is a value, so each ByX call returns a new chain and leaves the original untouched.
type NodeFilter struct {
	filters        []func(INode) bool
	start          INode
	stopOnFiltered bool // don't look at the children of nodes that fail the filters
	maxDepth       int  // less than zero means the entire tree is traversed
	sortMode       nodeFilterSortMode
	reverseSort    bool
	sortTo         Vector
}

func newNodeFilter(start INode) NodeFilter {
	return NodeFilter{start: start, maxDepth: -1}
}

func (nf NodeFilter) with(filter func(INode) bool) NodeFilter {
	nf.filters = append(slices.Clip(nf.filters), filter)
	return nf
}

func (nf NodeFilter) passes(node INode) bool {
	for _, filter := range nf.filters {
		if !filter(node) {
			return false
		}
	}
	return true
}

// walk calls visit on each passing node, depth first in child order, until visit returns false.
func (nf NodeFilter) walk(visit func(INode) bool) {
	var recurse func(node INode, depth int) bool
	recurse = func(node INode, depth int) bool {
		passed := true
		if depth > 0 {
			passed = nf.passes(node)
			if passed && !visit(node) {
				return false
			}
		}
		if nf.maxDepth >= 0 && depth >= nf.maxDepth {
			return true
		}
		if nf.stopOnFiltered && !passed {
			return true
		}
		for _, child := range node.Children() {
			if !recurse(child, depth+1) {
				return false
			}
		}
		return true
	}
	if nf.start != nil {
		recurse(nf.start, 0)
	}
}

func (nf NodeFilter) execute() []INode {
	out := []INode{}
	nf.walk(func(node INode) bool {
		out = append(out, node)
		return true
	})

	if nf.sortMode == sortModeNone {
		return out
	}

	key := func(node INode) float64 {
		spatial, ok := node.(Spatial)
		if !ok {
			return 0
		}
		location := spatial.WorldLocation()
		switch nf.sortMode {
		case sortModeAxisX:
			return location.X
		case sortModeAxisY:
			return location.Y
		case sortModeAxisZ:
			return location.Z
		default:
			return location.Sub(nf.sortTo).MagnitudeSquared()
		}
	}
	keys := make(map[INode]float64, len(out))
	for _, node := range out {
		keys[node] = key(node)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if nf.reverseSort {
			return keys[out[i]] > keys[out[j]]
		}
		return keys[out[i]] < keys[out[j]]
	})
	return out
}

// ByFunc filters the selection by the function provided.
func (nf NodeFilter) ByFunc(filter func(node INode) bool) NodeFilter {
	return nf.with(filter)
}

// ByName filters the selection to nodes with the given name.
func (nf NodeFilter) ByName(name string) NodeFilter {
	return nf.with(func(node INode) bool { return node.Name() == name })
}

// ByRegex filters the selection to nodes whose names match the regular expression. An invalid expression is logged
// and matches nothing.
func (nf NodeFilter) ByRegex(expression string) NodeFilter {
	re, err := regexp.Compile(expression)
	if err != nil {
		Logger().Warn("invalid node filter expression", zap.String("expression", expression), zap.Error(err))
		return nf.with(func(INode) bool { return false })
	}
	return nf.with(func(node INode) bool { return re.MatchString(node.Name()) })
}

// ByProps filters the selection to nodes that have all of the named properties.
func (nf NodeFilter) ByProps(names ...string) NodeFilter {
	return nf.with(func(node INode) bool { return node.Properties().Has(names...) })
}

// ByProp filters the selection to nodes with a property of the given name and value.
func (nf NodeFilter) ByProp(name string, value any) NodeFilter {
	return nf.with(func(node INode) bool {
		current, ok := node.Properties().Get(name)
		return ok && current == value
	})
}

// ByPropNameRegex filters the selection to nodes with at least one property whose name matches the expression.
func (nf NodeFilter) ByPropNameRegex(expression string) NodeFilter {
	re, err := regexp.Compile(expression)
	if err != nil {
		Logger().Warn("invalid node filter expression", zap.String("expression", expression), zap.Error(err))
		return nf.with(func(INode) bool { return false })
	}
	return nf.with(func(node INode) bool {
		return slices.ContainsFunc(node.Properties().Names(), re.MatchString)
	})
}

// Spawned filters the selection to spawned nodes.
func (nf NodeFilter) Spawned() NodeFilter {
	return nf.with(func(node INode) bool { return node.IsSpawned() })
}

// Not filters out the nodes given.
func (nf NodeFilter) Not(others ...INode) NodeFilter {
	return nf.with(func(node INode) bool { return !slices.Contains(others, node) })
}

// StopOnFiltered makes the search skip the children of nodes that don't pass the filters.
func (nf NodeFilter) StopOnFiltered() NodeFilter {
	nf.stopOnFiltered = true
	return nf
}

// SetMaxDepth limits how deep below the starting node the search goes; 1 means direct children only.
func (nf NodeFilter) SetMaxDepth(depth int) NodeFilter {
	nf.maxDepth = depth
	return nf
}

func (nf NodeFilter) SortByX() NodeFilter {
	nf.sortMode = sortModeAxisX
	return nf
}

func (nf NodeFilter) SortByY() NodeFilter {
	nf.sortMode = sortModeAxisY
	return nf
}

func (nf NodeFilter) SortByZ() NodeFilter {
	nf.sortMode = sortModeAxisZ
	return nf
}

// SortByDistance sorts the result by distance from the given world location, closest first. Non-spatial nodes
// count as being at the location.
func (nf NodeFilter) SortByDistance(to Vector) NodeFilter {
	nf.sortMode = sortModeDistance
	nf.sortTo = to
	return nf
}

// SortReverse reverses the sort order.
func (nf NodeFilter) SortReverse() NodeFilter {
	nf.reverseSort = true
	return nf
}

// ForEach calls callback on each node of the result until it returns false.
func (nf NodeFilter) ForEach(callback func(node INode) bool) {
	if nf.sortMode == sortModeNone {
		nf.walk(callback)
		return
	}
	for _, node := range nf.execute() {
		if !callback(node) {
			return
		}
	}
}

// First returns the first node of the result, or nil.
func (nf NodeFilter) First() INode {
	var first INode
	nf.ForEach(func(node INode) bool {
		first = node
		return false
	})
	return first
}

// Last returns the last node of the result, or nil.
func (nf NodeFilter) Last() INode {
	out := nf.execute()
	if len(out) == 0 {
		return nil
	}
	return out[len(out)-1]
}

// Get returns the node at index in the result, or nil if out of range.
func (nf NodeFilter) Get(index int) INode {
	out := nf.execute()
	if index < 0 || index >= len(out) {
		return nil
	}
	return out[index]
}

func (nf NodeFilter) Count() int {
	count := 0
	nf.walk(func(INode) bool {
		count++
		return true
	})
	return count
}

func (nf NodeFilter) IsEmpty() bool { return nf.First() == nil }

func (nf NodeFilter) Contains(node INode) bool {
	found := false
	nf.walk(func(other INode) bool {
		found = other == node
		return !found
	})
	return found
}

// INodes returns the result as a slice.
func (nf NodeFilter) INodes() []INode { return nf.execute() }

// Collect returns the nodes of the result that are of type T, such as *MeshNode or PhysicsNode.
func Collect[T any](nf NodeFilter) []T {
	out := []T{}
	nf.ForEach(func(node INode) bool {
		if typed, ok := node.(T); ok {
			out = append(out, typed)
		}
		return true
	})
	return out
}
