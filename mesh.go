package stage3d

import (
	"fmt"
	"math"
)

// Dimensions is the axis-aligned box spanned by a set of points.
type Dimensions struct {
	Min, Max Vector
}

// emptyDimensions returns Dimensions that any point expands.
func emptyDimensions() Dimensions {
	return Dimensions{
		Min: Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
}

func (dim Dimensions) expand(point Vector) Dimensions {
	dim.Min = Vector{X: math.Min(dim.Min.X, point.X), Y: math.Min(dim.Min.Y, point.Y), Z: math.Min(dim.Min.Z, point.Z)}
	dim.Max = Vector{X: math.Max(dim.Max.X, point.X), Y: math.Max(dim.Max.Y, point.Y), Z: math.Max(dim.Max.Z, point.Z)}
	return dim
}

// Center returns the center point inbetween the two corners.
func (dim Dimensions) Center() Vector {
	return dim.Min.Add(dim.Max).Scale(0.5)
}

func (dim Dimensions) Width() float64 { return dim.Max.X - dim.Min.X }

func (dim Dimensions) Height() float64 { return dim.Max.Y - dim.Min.Y }

func (dim Dimensions) Depth() float64 { return dim.Max.Z - dim.Min.Z }

// Size returns the width, height and depth as a Vector.
func (dim Dimensions) Size() Vector { return dim.Max.Sub(dim.Min) }

// MaxSpan returns the maximum span out of width, height, and depth.
func (dim Dimensions) MaxSpan() float64 {
	return math.Max(math.Max(dim.Width(), dim.Height()), dim.Depth())
}

// Transformed returns the Dimensions enclosing these Dimensions' eight corners transformed by matrix.
func (dim Dimensions) Transformed(matrix Matrix4) Dimensions {
	out := emptyDimensions()
	for i := 0; i < 8; i++ {
		corner := dim.Min
		if i&1 != 0 {
			corner.X = dim.Max.X
		}
		if i&2 != 0 {
			corner.Y = dim.Max.Y
		}
		if i&4 != 0 {
			corner.Z = dim.Max.Z
		}
		out = out.expand(matrix.MultVec(corner))
	}
	return out
}

// Vertex is a corner of a triangle.
type Vertex struct {
	Position Vector
	Normal   Vector
	UV       [2]float64
	Color    Color
}

// NewVertex creates a new white Vertex with the provided position (x, y, z) and UV values (u, v).
func NewVertex(x, y, z, u, v float64) Vertex {
	return Vertex{
		Position: Vector{X: x, Y: y, Z: z},
		UV:       [2]float64{u, v},
		Color:    NewColor(1, 1, 1, 1),
	}
}

// Mesh is indexed triangle data that MeshNodes draw. Meshes can be shared between nodes.
type Mesh struct {
	Name       string
	Vertices   []Vertex
	Indices    []uint32 // Three per triangle.
	Dimensions Dimensions
}

// NewMesh takes a name and the vertices of unindexed triangles, and returns a new Mesh. The number of vertices must
// be divisible by 3.
func NewMesh(name string, vertices ...Vertex) (*Mesh, error) {
	if len(vertices)%3 != 0 {
		return nil, fmt.Errorf("mesh %q: %d vertices don't make whole triangles", name, len(vertices))
	}
	indices := make([]uint32, len(vertices))
	for i := range indices {
		indices[i] = uint32(i)
	}
	return NewIndexedMesh(name, vertices, indices)
}

// NewIndexedMesh returns a new Mesh made of the given vertices and triangle indices.
func NewIndexedMesh(name string, vertices []Vertex, indices []uint32) (*Mesh, error) {
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("mesh %q: %d indices don't make whole triangles", name, len(indices))
	}
	for _, index := range indices {
		if int(index) >= len(vertices) {
			return nil, fmt.Errorf("mesh %q: index %d is out of range of %d vertices", name, index, len(vertices))
		}
	}
	mesh := &Mesh{Name: name, Vertices: vertices, Indices: indices}
	mesh.RecalculateNormals(false)
	mesh.UpdateBounds()
	return mesh, nil
}

func mustMesh(mesh *Mesh, err error) *Mesh {
	if err != nil {
		panic(err)
	}
	return mesh
}

// TriangleCount returns the number of triangles in the Mesh.
func (mesh *Mesh) TriangleCount() int { return len(mesh.Indices) / 3 }

// Triangle returns the positions of the corners of triangle i.
func (mesh *Mesh) Triangle(i int) (a, b, c Vector) {
	return mesh.Vertices[mesh.Indices[i*3]].Position,
		mesh.Vertices[mesh.Indices[i*3+1]].Position,
		mesh.Vertices[mesh.Indices[i*3+2]].Position
}

// Clone returns a deep copy of the Mesh.
func (mesh *Mesh) Clone() *Mesh {
	return &Mesh{
		Name:       mesh.Name,
		Vertices:   append([]Vertex(nil), mesh.Vertices...),
		Indices:    append([]uint32(nil), mesh.Indices...),
		Dimensions: mesh.Dimensions,
	}
}

// SetVertexColor sets the color of all vertices in the Mesh.
func (mesh *Mesh) SetVertexColor(color Color) {
	for i := range mesh.Vertices {
		mesh.Vertices[i].Color = color
	}
}

// ApplyMatrix applies the Matrix provided to all vertices on the Mesh. You can use this to, for example, move all
// vertices of a Mesh to the right by 5 units ( mesh.ApplyMatrix(NewMatrix4Translate(5, 0, 0)) ).
func (mesh *Mesh) ApplyMatrix(matrix Matrix4) {
	for i := range mesh.Vertices {
		mesh.Vertices[i].Position = matrix.MultVec(mesh.Vertices[i].Position)
	}
	mesh.RecalculateNormals(true)
	mesh.UpdateBounds()
}

// RecalculateNormals sets each vertex normal to the normalized sum of the normals of the triangles using it. Unless
// force is set, only vertices without a normal are changed, keeping normals that came from a model file.
func (mesh *Mesh) RecalculateNormals(force bool) {
	sums := make([]Vector, len(mesh.Vertices))
	for i := 0; i < mesh.TriangleCount(); i++ {
		a, b, c := mesh.Triangle(i)
		normal := calculateNormal(a, b, c)
		for _, index := range mesh.Indices[i*3 : i*3+3] {
			sums[index] = sums[index].Add(normal)
		}
	}
	for i := range mesh.Vertices {
		if force || mesh.Vertices[i].Normal.IsZero() {
			mesh.Vertices[i].Normal = sums[i].Unit()
		}
	}
}

// UpdateBounds updates the mesh's dimensions; call this after manually changing vertex positions.
func (mesh *Mesh) UpdateBounds() {
	if len(mesh.Vertices) == 0 {
		mesh.Dimensions = Dimensions{}
		return
	}
	dim := emptyDimensions()
	for _, vertex := range mesh.Vertices {
		dim = dim.expand(vertex.Position)
	}
	mesh.Dimensions = dim
}

func calculateNormal(p1, p2, p3 Vector) Vector {
	return p2.Sub(p1).Cross(p3.Sub(p2)).Unit()
}

// NewCube creates a 2x2x2 cube Mesh centered on the origin.
func NewCube() *Mesh {
	return mustMesh(NewMesh("Cube",

		// Top

		NewVertex(-1, 1, -1, 0, 0),
		NewVertex(-1, 1, 1, 0, 1),
		NewVertex(1, 1, 1, 1, 1),

		NewVertex(1, 1, 1, 1, 1),
		NewVertex(1, 1, -1, 1, 0),
		NewVertex(-1, 1, -1, 0, 0),

		// Bottom

		NewVertex(1, -1, -1, 1, 0),
		NewVertex(1, -1, 1, 1, 1),
		NewVertex(-1, -1, -1, 0, 0),

		NewVertex(-1, -1, -1, 0, 0),
		NewVertex(1, -1, 1, 1, 1),
		NewVertex(-1, -1, 1, 0, 1),

		// Front

		NewVertex(-1, 1, 1, 0, 0),
		NewVertex(-1, -1, 1, 0, 1),
		NewVertex(1, -1, 1, 1, 1),

		NewVertex(1, -1, 1, 1, 1),
		NewVertex(1, 1, 1, 1, 0),
		NewVertex(-1, 1, 1, 0, 0),

		// Back

		NewVertex(1, 1, -1, 1, 0),
		NewVertex(1, -1, -1, 1, 1),
		NewVertex(-1, 1, -1, 0, 0),

		NewVertex(-1, 1, -1, 0, 0),
		NewVertex(1, -1, -1, 1, 1),
		NewVertex(-1, -1, -1, 0, 1),

		// Right

		NewVertex(1, 1, 1, 0, 0),
		NewVertex(1, -1, 1, 0, 1),
		NewVertex(1, -1, -1, 1, 1),

		NewVertex(1, -1, -1, 1, 1),
		NewVertex(1, 1, -1, 1, 0),
		NewVertex(1, 1, 1, 0, 0),

		// Left

		NewVertex(-1, -1, -1, 0, 0),
		NewVertex(-1, 1, 1, 1, 1),
		NewVertex(-1, 1, -1, 1, 0),

		NewVertex(-1, -1, 1, 0, 1),
		NewVertex(-1, 1, 1, 1, 1),
		NewVertex(-1, -1, -1, 0, 0),
	))
}

// NewPlane creates a 2x2 plane Mesh on the XZ plane, facing up.
func NewPlane() *Mesh {
	return mustMesh(NewMesh("Plane",
		NewVertex(1, 0, -1, 1, 0),
		NewVertex(-1, 0, -1, 0, 0),
		NewVertex(1, 0, 1, 1, 1),

		NewVertex(-1, 0, -1, 0, 0),
		NewVertex(-1, 0, 1, 0, 1),
		NewVertex(1, 0, 1, 1, 1),
	))
}
