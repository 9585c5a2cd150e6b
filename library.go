package stage3d

import (
	"sort"
	"sync"
)

// Library is a collection of Meshes by name. Node tree files refer to the meshes of MeshNodes by name, so any mesh
// a saved MeshNode uses must be in the default library when the file is loaded again. Imported glTF meshes are
// added to it automatically.
type Library struct {
	mu     sync.RWMutex
	meshes map[string]*Mesh
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{meshes: map[string]*Mesh{}}
}

var defaultLibrary = func() *Library {
	lib := NewLibrary()
	lib.AddMesh(NewCube())
	lib.AddMesh(NewPlane())
	return lib
}()

// DefaultLibrary returns the library node tree files are resolved against. It starts out with the "Cube" and
// "Plane" meshes.
func DefaultLibrary() *Library { return defaultLibrary }

// LibraryMesh finds a mesh in the default library.
func LibraryMesh(name string) (*Mesh, bool) { return defaultLibrary.FindMesh(name) }

// AddMesh adds mesh under its name, replacing any mesh of the same name.
func (lib *Library) AddMesh(mesh *Mesh) {
	lib.mu.Lock()
	lib.meshes[mesh.Name] = mesh
	lib.mu.Unlock()
}

// FindMesh returns the mesh with the provided name.
func (lib *Library) FindMesh(name string) (*Mesh, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	mesh, ok := lib.meshes[name]
	return mesh, ok
}

// MeshNames returns the names of the library's meshes, sorted.
func (lib *Library) MeshNames() []string {
	lib.mu.RLock()
	names := make([]string, 0, len(lib.meshes))
	for name := range lib.meshes {
		names = append(names, name)
	}
	lib.mu.RUnlock()
	sort.Strings(names)
	return names
}
