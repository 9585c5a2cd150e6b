package stage3d

import "sync"

// MeshNode draws a Mesh at its world transform. While spawned in a World whose GameManager has a renderer, it holds
// a render slot for its per-object renderer data.
type MeshNode struct {
	*SpatialNode

	mu      sync.RWMutex
	mesh    *Mesh
	color   Color
	visible bool

	slot  RenderSlot // 0 while not holding one
	slots *RenderSlotPool
}

// NewMeshNode creates a visible, white MeshNode drawing mesh. mesh may be nil.
func NewMeshNode(name string, mesh *Mesh) *MeshNode {
	node := &MeshNode{
		SpatialNode: &SpatialNode{Node: &Node{}},
		mesh:        mesh,
		color:       NewColor(1, 1, 1, 1),
		visible:     true,
	}
	node.initSpatial(name, node)
	return node
}

func (node *MeshNode) OnSpawning() {
	if pool := node.renderSlots(); pool != nil {
		slot := pool.Request()
		node.mu.Lock()
		node.slot, node.slots = slot, pool
		node.mu.Unlock()
	}
	node.SpatialNode.OnSpawning()
}

func (node *MeshNode) OnDespawning() {
	node.SpatialNode.OnDespawning()

	node.mu.Lock()
	slot, pool := node.slot, node.slots
	node.slot, node.slots = 0, nil
	node.mu.Unlock()

	if pool != nil {
		pool.Release(slot)
	}
}

func (node *MeshNode) renderSlots() *RenderSlotPool {
	world := node.World()
	if world == nil || world.GameManager() == nil || world.GameManager().Renderer() == nil {
		return nil
	}
	return world.GameManager().Renderer().RenderSlots()
}

// RenderSlot returns the node's render slot, if it holds one.
func (node *MeshNode) RenderSlot() (RenderSlot, bool) {
	node.mu.RLock()
	defer node.mu.RUnlock()
	return node.slot, node.slot != 0
}

func (node *MeshNode) Mesh() *Mesh {
	node.mu.RLock()
	defer node.mu.RUnlock()
	return node.mesh
}

func (node *MeshNode) SetMesh(mesh *Mesh) {
	node.mu.Lock()
	node.mesh = mesh
	node.mu.Unlock()
}

// Color returns the color the mesh's vertex colors are multiplied by.
func (node *MeshNode) Color() Color {
	node.mu.RLock()
	defer node.mu.RUnlock()
	return node.color
}

func (node *MeshNode) SetColor(color Color) {
	node.mu.Lock()
	node.color = color
	node.mu.Unlock()
}

func (node *MeshNode) IsVisible() bool {
	node.mu.RLock()
	defer node.mu.RUnlock()
	return node.visible
}

func (node *MeshNode) SetVisible(visible bool) {
	node.mu.Lock()
	node.visible = visible
	node.mu.Unlock()
}

// WorldDimensions returns the world-space box enclosing the transformed mesh.
func (node *MeshNode) WorldDimensions() Dimensions {
	mesh := node.Mesh()
	if mesh == nil {
		location := node.WorldLocation()
		return Dimensions{Min: location, Max: location}
	}
	return mesh.Dimensions.Transformed(node.WorldMatrix())
}
