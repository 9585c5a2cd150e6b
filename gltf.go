package stage3d

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// LoadGLTFNodeTree imports the default scene of a .gltf or .glb file as a detached node tree. The root is a
// SpatialNode named after the file; glTF nodes with a mesh become MeshNodes, nodes with a camera become
// CameraNodes and the rest SpatialNodes. Meshes are added to the default Library as "<file>/<mesh>", and node
// extras become node properties.
func LoadGLTFNodeTree(path string) (INode, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading glTF file %q: %w", path, err)
	}

	fileName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	meshes := make([]*Mesh, len(doc.Meshes))
	for i, gltfMesh := range doc.Meshes {
		mesh, err := readGLTFMesh(doc, gltfMesh, fileName+"/"+gltfMesh.Name)
		if err != nil {
			return nil, fmt.Errorf("loading glTF file %q: %w", path, err)
		}
		DefaultLibrary().AddMesh(mesh)
		meshes[i] = mesh
	}

	nodes := make([]INode, len(doc.Nodes))
	for i, gltfNode := range doc.Nodes {
		nodes[i] = newGLTFNode(doc, gltfNode, meshes)
	}

	root := NewSpatialNode(fileName)
	attached := make([]bool, len(nodes))
	for i, gltfNode := range doc.Nodes {
		for _, childIndex := range gltfNode.Children {
			if int(childIndex) >= len(nodes) || attached[childIndex] {
				return nil, fmt.Errorf("loading glTF file %q: node %q has an invalid child %d", path, gltfNode.Name, childIndex)
			}
			attached[childIndex] = true
			nodes[i].AddChildNode(nodes[childIndex], RuleKeepRelative, RuleKeepRelative, RuleKeepRelative)
		}
	}

	var sceneNodes []int
	if len(doc.Scenes) > 0 {
		scene := doc.Scenes[0]
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			scene = doc.Scenes[*doc.Scene]
		}
		for _, index := range scene.Nodes {
			sceneNodes = append(sceneNodes, int(index))
		}
	} else {
		// No scene: every top-level node.
		for i := range nodes {
			if !attached[i] {
				sceneNodes = append(sceneNodes, i)
			}
		}
	}
	for _, index := range sceneNodes {
		if index >= len(nodes) || attached[index] {
			return nil, fmt.Errorf("loading glTF file %q: scene refers to invalid node %d", path, index)
		}
		attached[index] = true
		root.AddChildNode(nodes[index], RuleKeepRelative, RuleKeepRelative, RuleKeepRelative)
	}

	Logger().Debug("glTF file imported",
		zap.String("path", path),
		zap.Int("nodes", len(nodes)),
		zap.Int("meshes", len(meshes)),
	)

	return root, nil
}

func newGLTFNode(doc *gltf.Document, gltfNode *gltf.Node, meshes []*Mesh) INode {
	var node INode
	var spatial *SpatialNode

	switch {
	case gltfNode.Mesh != nil && int(*gltfNode.Mesh) < len(meshes):
		meshNode := NewMeshNode(gltfNode.Name, meshes[*gltfNode.Mesh])
		node, spatial = meshNode, meshNode.SpatialNode
	case gltfNode.Camera != nil && int(*gltfNode.Camera) < len(doc.Cameras):
		camera := NewCameraNode(gltfNode.Name, 1920, 1080)
		gltfCamera := doc.Cameras[*gltfNode.Camera]
		camera.set(func() {
			if gltfCamera.Perspective != nil {
				camera.perspective = true
				camera.near = float64(gltfCamera.Perspective.Znear)
				if gltfCamera.Perspective.Zfar != nil {
					camera.far = float64(*gltfCamera.Perspective.Zfar)
				}
				camera.fieldOfView = float64(gltfCamera.Perspective.Yfov) * 180 / math.Pi
			} else if gltfCamera.Orthographic != nil {
				camera.perspective = false
				camera.near = float64(gltfCamera.Orthographic.Znear)
				camera.far = float64(gltfCamera.Orthographic.Zfar)
				camera.orthoScale = float64(gltfCamera.Orthographic.Xmag * 2)
			}
		})
		node, spatial = camera, camera.SpatialNode
	default:
		spatialNode := NewSpatialNode(gltfNode.Name)
		node, spatial = spatialNode, spatialNode
	}

	spatial.SetRelativeTransform(gltfNodeTransform(gltfNode))

	if extras, ok := gltfNode.Extras.(map[string]any); ok {
		for name, value := range extras {
			if err := node.Properties().Set(name, value); err != nil {
				Logger().Debug("skipped glTF node extra", zap.String("node", gltfNode.Name), zap.Error(err))
			}
		}
	}

	return node
}

func gltfNodeTransform(gltfNode *gltf.Node) Transform {
	transform := NewTransform()

	var matrix Matrix4
	for i, value := range gltfNode.Matrix {
		matrix[i/4][i%4] = float64(value)
	}
	if matrix != (Matrix4{}) && !matrix.IsIdentity() {
		transform.Location, transform.Scale, transform.Rotation = matrix.Decompose()
		return transform
	}

	t, r, s := gltfNode.Translation, gltfNode.Rotation, gltfNode.Scale
	transform.Location = Vector{X: float64(t[0]), Y: float64(t[1]), Z: float64(t[2])}
	if r != [4]float64{} {
		transform.Rotation = Quaternion{X: float64(r[0]), Y: float64(r[1]), Z: float64(r[2]), W: float64(r[3])}
	}
	if s != [3]float64{} {
		transform.Scale = Vector{X: float64(s[0]), Y: float64(s[1]), Z: float64(s[2])}
	}
	return transform
}

// readGLTFMesh merges the primitives of a glTF mesh into one Mesh.
func readGLTFMesh(doc *gltf.Document, gltfMesh *gltf.Mesh, name string) (*Mesh, error) {
	var vertices []Vertex
	var indices []uint32

	for p, primitive := range gltfMesh.Primitives {
		positionAccessor, ok := primitive.Attributes[gltf.POSITION]
		if !ok {
			return nil, fmt.Errorf("mesh %q: primitive %d has no positions", gltfMesh.Name, p)
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[positionAccessor], nil)
		if err != nil {
			return nil, fmt.Errorf("mesh %q: reading positions: %w", gltfMesh.Name, err)
		}

		base := uint32(len(vertices))
		part := make([]Vertex, len(positions))
		for i, position := range positions {
			part[i] = NewVertex(float64(position[0]), float64(position[1]), float64(position[2]), 0, 0)
		}

		if accessor, ok := primitive.Attributes[gltf.TEXCOORD_0]; ok {
			uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[accessor], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %q: reading texture coordinates: %w", gltfMesh.Name, err)
			}
			for i := range min(len(uvs), len(part)) {
				part[i].UV = [2]float64{float64(uvs[i][0]), 1 - float64(uvs[i][1])}
			}
		}

		if accessor, ok := primitive.Attributes[gltf.NORMAL]; ok {
			normals, err := modeler.ReadNormal(doc, doc.Accessors[accessor], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %q: reading normals: %w", gltfMesh.Name, err)
			}
			for i := range min(len(normals), len(part)) {
				part[i].Normal = Vector{X: float64(normals[i][0]), Y: float64(normals[i][1]), Z: float64(normals[i][2])}
			}
		}

		if accessor, ok := primitive.Attributes[gltf.COLOR_0]; ok {
			colors, err := modeler.ReadColor64(doc, doc.Accessors[accessor], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %q: reading vertex colors: %w", gltfMesh.Name, err)
			}
			// Vertex colors are linear; they're displayed as sRGB.
			for i := range min(len(colors), len(part)) {
				part[i].Color = NewColor(
					float32(colors[i][0])/math.MaxUint16,
					float32(colors[i][1])/math.MaxUint16,
					float32(colors[i][2])/math.MaxUint16,
					float32(colors[i][3])/math.MaxUint16,
				).ToSRGB()
			}
		}

		vertices = append(vertices, part...)

		if primitive.Indices == nil {
			for i := range part {
				indices = append(indices, base+uint32(i))
			}
			continue
		}
		primitiveIndices, err := modeler.ReadIndices(doc, doc.Accessors[*primitive.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("mesh %q: reading indices: %w", gltfMesh.Name, err)
		}
		for _, index := range primitiveIndices {
			indices = append(indices, base+index)
		}
	}

	return NewIndexedMesh(name, vertices, indices)
}
