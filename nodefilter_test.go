package stage3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// filterTree builds Root > (Crate1 > Coin, Crate2, Lamp) with spatial nodes spread along X.
func filterTree(t *testing.T) (root *Node, nodes map[string]*SpatialNode) {
	t.Helper()
	root = NewNode("Root")
	nodes = map[string]*SpatialNode{}
	add := func(parent INode, name string, x float64) *SpatialNode {
		node := NewSpatialNode(name)
		node.SetRelativeLocation(Vector{X: x})
		parent.AddChildNode(node, RuleKeepRelative, RuleKeepRelative, RuleKeepRelative)
		nodes[name] = node
		return node
	}
	crate1 := add(root, "Crate1", 5)
	add(crate1, "Coin", 1)
	add(root, "Crate2", -3)
	add(root, "Lamp", 2)

	require.NoError(t, nodes["Crate1"].Properties().Set("breakable", true))
	require.NoError(t, nodes["Crate2"].Properties().Set("breakable", false))
	require.NoError(t, nodes["Coin"].Properties().Set("value", 10))
	return root, nodes
}

func TestNodeFilters(t *testing.T) {
	root, nodes := filterTree(t)
	defer root.UnsafeDetachFromParentAndDespawn()

	tree := root.SearchTree()
	assert.Equal(t, 4, tree.Count())
	assert.Equal(t, []INode{nodes["Crate1"], nodes["Coin"], nodes["Crate2"], nodes["Lamp"]}, tree.INodes())
	assert.False(t, tree.Contains(root), "the starting node isn't part of the result")

	assert.Equal(t, INode(nodes["Lamp"]), tree.ByName("Lamp").First())
	assert.Equal(t, 2, tree.ByRegex("^Crate").Count())
	assert.True(t, tree.ByRegex("([").IsEmpty(), "invalid expressions match nothing")
	assert.Equal(t, 2, tree.ByProps("breakable").Count())
	assert.Equal(t, INode(nodes["Crate1"]), tree.ByProp("breakable", true).First())
	assert.Equal(t, INode(nodes["Coin"]), tree.ByPropNameRegex("^val").First())
	assert.Equal(t, 3, tree.Not(nodes["Lamp"]).Count())
	assert.Equal(t, 3, tree.SetMaxDepth(1).Count())
	assert.Zero(t, tree.Spawned().Count())

	// Coin's parent is filtered out, so Coin isn't reached.
	assert.Equal(t, []INode{nodes["Lamp"]}, tree.ByRegex("^[CL]").ByFunc(func(node INode) bool {
		return node.Name() != "Crate1" && node.Name() != "Crate2"
	}).StopOnFiltered().INodes())
}

func TestNodeFiltersAreValues(t *testing.T) {
	root, _ := filterTree(t)
	defer root.UnsafeDetachFromParentAndDespawn()

	crates := root.SearchTree().ByRegex("^Crate")
	breakable := crates.ByProp("breakable", true)
	assert.Equal(t, 2, crates.Count(), "narrowing a filter leaves the original alone")
	assert.Equal(t, 1, breakable.Count())
}

func TestSortingNodeFilters(t *testing.T) {
	root, nodes := filterTree(t)
	defer root.UnsafeDetachFromParentAndDespawn()

	tree := root.SearchTree()
	assert.Equal(t, []INode{nodes["Crate2"], nodes["Lamp"], nodes["Crate1"], nodes["Coin"]}, tree.SortByX().INodes())
	assert.Equal(t, INode(nodes["Coin"]), tree.SortByX().SortReverse().First())
	assert.Equal(t, INode(nodes["Lamp"]), tree.SortByDistance(Vector{X: 2.5}).First())
	assert.Equal(t, INode(nodes["Coin"]), tree.SortByX().Last())
	assert.Equal(t, INode(nodes["Lamp"]), tree.SortByX().Get(1))
	assert.Nil(t, tree.Get(10))
}

func TestCollectingNodesByType(t *testing.T) {
	root, _ := filterTree(t)
	defer root.UnsafeDetachFromParentAndDespawn()
	root.AddChild(NewMeshNode("Mesh", nil))
	root.AddChild(NewNode("Plain"))

	assert.Len(t, Collect[Spatial](root.SearchTree()), 5)
	meshes := Collect[*MeshNode](root.SearchTree())
	require.Len(t, meshes, 1)
	assert.Equal(t, "Mesh", meshes[0].Name())
}
