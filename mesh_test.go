package stage3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshValidation(t *testing.T) {
	_, err := NewMesh("Broken", NewVertex(0, 0, 0, 0, 0), NewVertex(1, 0, 0, 0, 0))
	assert.Error(t, err)

	vertices := []Vertex{NewVertex(0, 0, 0, 0, 0), NewVertex(1, 0, 0, 0, 0), NewVertex(0, 1, 0, 0, 0)}
	_, err = NewIndexedMesh("OutOfRange", vertices, []uint32{0, 1, 3})
	assert.Error(t, err)

	mesh, err := NewIndexedMesh("Triangle", vertices, []uint32{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, mesh.TriangleCount())
	for _, vertex := range mesh.Vertices {
		assertVectorNear(t, Vector{Z: 1}, vertex.Normal)
	}
}

func TestCubeDimensions(t *testing.T) {
	cube := NewCube()
	assert.Equal(t, 12, cube.TriangleCount())
	assert.Equal(t, Dimensions{Min: Vector{X: -1, Y: -1, Z: -1}, Max: Vector{X: 1, Y: 1, Z: 1}}, cube.Dimensions)
	assert.Equal(t, 2.0, cube.Dimensions.MaxSpan())

	clone := cube.Clone()
	clone.ApplyMatrix(NewMatrix4Translate(5, 0, 0))
	assertVectorNear(t, Vector{X: 5}, clone.Dimensions.Center())
	assertVectorNear(t, Vector{}, cube.Dimensions.Center())
}

func TestMeshNodeWorldDimensions(t *testing.T) {
	node := NewMeshNode("Crate", NewCube())
	node.SetRelativeLocation(Vector{Y: 3})
	node.SetRelativeScale(Vector{X: 2, Y: 1, Z: 1})
	defer node.UnsafeDetachFromParentAndDespawn()

	dim := node.WorldDimensions()
	assertVectorNear(t, Vector{X: -2, Y: 2, Z: -1}, dim.Min)
	assertVectorNear(t, Vector{X: 2, Y: 4, Z: 1}, dim.Max)

	empty := NewMeshNode("Empty", nil)
	defer empty.UnsafeDetachFromParentAndDespawn()
	assert.Equal(t, Dimensions{}, empty.WorldDimensions())
}

func TestMeshNodesHoldRenderSlotsWhileSpawned(t *testing.T) {
	renderer := newFakeRenderer()
	_, root := newTestGameManager(t, GameManagerOptions{Renderer: renderer})

	first := NewMeshNode("First", NewCube())
	second := NewMeshNode("Second", NewCube())
	_, ok := first.RenderSlot()
	assert.False(t, ok)

	root.AddChild(first)
	root.AddChild(second)
	firstSlot, ok := first.RenderSlot()
	require.True(t, ok)
	secondSlot, ok := second.RenderSlot()
	require.True(t, ok)
	assert.NotEqual(t, firstSlot, secondSlot)
	assert.Equal(t, 2, renderer.slots.InUseCount())

	first.UnsafeDetachFromParentAndDespawn()
	assert.Equal(t, 1, renderer.slots.InUseCount())

	third := NewMeshNode("Third", nil)
	root.AddChild(third)
	thirdSlot, _ := third.RenderSlot()
	assert.Equal(t, firstSlot, thirdSlot, "released slots are reused")
}

func TestReleasingAnUnusedRenderSlotIsIgnored(t *testing.T) {
	pool := NewRenderSlotPool()
	slot := pool.Request()
	pool.Release(slot)
	pool.Release(slot)
	pool.Release(42)
	assert.Zero(t, pool.InUseCount())
	assert.Equal(t, slot, pool.Request())
}

func TestLibraries(t *testing.T) {
	lib := NewLibrary()
	plane := NewPlane()
	lib.AddMesh(plane)
	lib.AddMesh(NewCube())

	found, ok := lib.FindMesh("Plane")
	require.True(t, ok)
	assert.Same(t, plane, found)
	_, ok = lib.FindMesh("Sphere")
	assert.False(t, ok)
	assert.Equal(t, []string{"Cube", "Plane"}, lib.MeshNames())

	_, ok = LibraryMesh("Cube")
	assert.True(t, ok, "the default library starts with the built-in meshes")
}
