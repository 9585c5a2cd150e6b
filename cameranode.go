package stage3d

import "sync"

// CameraNode is a point of view into a World. The World's active camera is the one the renderer draws from and
// the one the sound listener follows.
type CameraNode struct {
	*SpatialNode

	// ActivateOnSpawn makes the camera the World's active camera when it spawns.
	ActivateOnSpawn bool

	mu          sync.RWMutex
	perspective bool
	fieldOfView float64 // Vertical field of view in degrees for a perspective projection.
	orthoScale  float64
	near, far   float64
	width       int
	height      int

	projectionDirty  bool
	cachedProjection Matrix4
}

// NewCameraNode creates a perspective camera with a 60 degree vertical field of view, for a view of the given size
// in pixels.
func NewCameraNode(name string, width, height int) *CameraNode {
	camera := &CameraNode{
		SpatialNode:     &SpatialNode{Node: &Node{}},
		perspective:     true,
		fieldOfView:     60,
		orthoScale:      20,
		near:            0.1,
		far:             100,
		width:           width,
		height:          height,
		projectionDirty: true,
	}
	camera.initSpatial(name, camera)
	return camera
}

func (camera *CameraNode) OnSpawning() {
	if camera.ActivateOnSpawn {
		camera.Activate()
	}
	camera.SpatialNode.OnSpawning()
}

func (camera *CameraNode) OnDespawning() {
	camera.SpatialNode.OnDespawning()
	if world := camera.World(); world != nil && world.ActiveCamera() == camera {
		world.SetActiveCamera(nil)
	}
}

// Activate makes the camera its World's active camera. It does nothing while the camera isn't spawned.
func (camera *CameraNode) Activate() {
	if world := camera.World(); world != nil {
		world.SetActiveCamera(camera)
	}
}

// IsActive reports whether the camera is its World's active camera.
func (camera *CameraNode) IsActive() bool {
	world := camera.World()
	return world != nil && world.ActiveCamera() == camera
}

// Size returns the size of the camera's view in pixels.
func (camera *CameraNode) Size() (width, height int) {
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	return camera.width, camera.height
}

// Resize changes the size of the camera's view in pixels.
func (camera *CameraNode) Resize(width, height int) {
	camera.mu.Lock()
	defer camera.mu.Unlock()
	if camera.width == width && camera.height == height {
		return
	}
	camera.width, camera.height = width, height
	camera.projectionDirty = true
}

// AspectRatio returns the camera's view width divided by its height.
func (camera *CameraNode) AspectRatio() float64 {
	width, height := camera.Size()
	if height == 0 {
		return 1
	}
	return float64(width) / float64(height)
}

// SetPerspective sets the Camera's projection to be a perspective (true) or orthographic (false) projection.
func (camera *CameraNode) SetPerspective(perspective bool) {
	camera.set(func() { camera.perspective = perspective })
}

// Perspective returns whether the Camera has perspective projection enabled (true) or orthographic projection (false).
func (camera *CameraNode) Perspective() bool {
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	return camera.perspective
}

// SetFieldOfView sets the vertical field of view of the camera, in degrees.
func (camera *CameraNode) SetFieldOfView(fovY float64) {
	camera.set(func() { camera.fieldOfView = fovY })
}

func (camera *CameraNode) FieldOfView() float64 {
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	return camera.fieldOfView
}

// SetOrthoScale sets the width of the view of an orthographic camera, in world units.
func (camera *CameraNode) SetOrthoScale(scale float64) {
	camera.set(func() { camera.orthoScale = scale })
}

func (camera *CameraNode) OrthoScale() float64 {
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	return camera.orthoScale
}

// SetClipPlanes sets the distances of the near and far clipping planes.
func (camera *CameraNode) SetClipPlanes(near, far float64) {
	camera.set(func() { camera.near, camera.far = near, far })
}

func (camera *CameraNode) ClipPlanes() (near, far float64) {
	camera.mu.RLock()
	defer camera.mu.RUnlock()
	return camera.near, camera.far
}

func (camera *CameraNode) set(change func()) {
	camera.mu.Lock()
	change()
	camera.projectionDirty = true
	camera.mu.Unlock()
}

// ViewMatrix returns the matrix that transforms world space into the camera's view space, where the camera looks
// down -Z.
func (camera *CameraNode) ViewMatrix() Matrix4 {
	location := camera.WorldLocation().Invert()
	rotation := camera.WorldRotation().ToMatrix4().Transposed()
	return NewMatrix4Translate(location.X, location.Y, location.Z).Mult(rotation)
}

// Projection returns the Camera's projection matrix.
func (camera *CameraNode) Projection() Matrix4 {
	aspect := camera.AspectRatio()

	camera.mu.Lock()
	defer camera.mu.Unlock()

	if !camera.projectionDirty {
		return camera.cachedProjection
	}
	camera.projectionDirty = false

	if camera.perspective {
		camera.cachedProjection = NewProjectionPerspective(camera.fieldOfView, camera.near, camera.far, aspect)
	} else {
		halfWidth := camera.orthoScale / 2
		halfHeight := halfWidth / aspect
		camera.cachedProjection = NewProjectionOrthographic(camera.near, camera.far, halfWidth, -halfWidth, halfHeight, -halfHeight)
	}

	return camera.cachedProjection
}

// WorldToScreen transforms a 3D position in the world to normalized screen coordinates, with X and Y ranging from
// -1 to 1 (Y up) across the view and Z the normalized depth. It returns false for points behind the camera.
func (camera *CameraNode) WorldToScreen(point Vector) (Vector, bool) {
	view := camera.ViewMatrix().MultVec(point)
	clip, w := camera.Projection().MultVecW(view)
	if w <= 0 {
		return Vector{}, false
	}
	return Vector{X: clip.X / w, Y: clip.Y / w, Z: clip.Z / w}, true
}

// WorldToScreenPixels is WorldToScreen in pixels, with Y going down from the top of the view.
func (camera *CameraNode) WorldToScreenPixels(point Vector) (Vector, bool) {
	screen, ok := camera.WorldToScreen(point)
	if !ok {
		return Vector{}, false
	}
	width, height := camera.Size()
	return Vector{
		X: (screen.X + 1) / 2 * float64(width),
		Y: (1 - screen.Y) / 2 * float64(height),
		Z: screen.Z,
	}, true
}
