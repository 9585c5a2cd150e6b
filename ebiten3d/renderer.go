package ebiten3d

import (
	"fmt"
	"image/color"
	"slices"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"

	"github.com/solarlune/stage3d"
)

var (
	whiteImage = func() *ebiten.Image {
		img := ebiten.NewImage(3, 3)
		img.Fill(color.White)
		return img
	}()
	// Draw from the middle pixel so filtering never samples the edges.
	whiteSubImage = whiteImage.SubImage(whiteImage.Bounds().Inset(1)).(*ebiten.Image)

	debugFace = text.NewGoXFace(basicfont.Face7x13)

	// Worlds without lights are lit by these.
	defaultLights = []stage3d.Light{
		stage3d.NewAmbientLightNode("DefaultAmbient", stage3d.NewColor(1, 1, 1, 1), 0.35),
		func() *stage3d.DirectionalLightNode {
			sun := stage3d.NewDirectionalLightNode("DefaultSun", stage3d.NewColor(1, 1, 1, 1), 0.65)
			sun.LookAt(stage3d.Vector{X: -0.3, Y: -1, Z: -0.5})
			return sun
		}(),
	}
)

// screenTriangle is a projected triangle waiting to be sorted back to front.
type screenTriangle struct {
	points [3]stage3d.Vector // pixels; Z is depth
	depth  float64
	color  stage3d.Color
}

// Renderer draws the meshes of every World through the World's active camera, flat shaded and sorted back to
// front, with an optional wireframe and statistics overlay. It implements stage3d.Renderer.
type Renderer struct {
	slots *stage3d.RenderSlotPool

	mu            sync.Mutex
	width, height int

	ClearColor     stage3d.Color
	DrawWireframes bool
	ShowStats      bool
	// DebugText is drawn under the statistics.
	DebugText string

	triangles []screenTriangle
	vertices  []ebiten.Vertex
	indices   []uint16
	drawn     int
}

var _ stage3d.Renderer = (*Renderer)(nil)

func NewRenderer(clearColor stage3d.Color) *Renderer {
	return &Renderer{slots: stage3d.NewRenderSlotPool(), ClearColor: clearColor}
}

func (renderer *Renderer) RenderSlots() *stage3d.RenderSlotPool { return renderer.slots }

// OnWindowSizeChanged resizes the active cameras on the next Draw.
func (renderer *Renderer) OnWindowSizeChanged(width, height int) {
	renderer.mu.Lock()
	renderer.width, renderer.height = width, height
	renderer.mu.Unlock()
}

// WaitForGPUWorkToFinish returns immediately: ebiten flushes its command queue at the end of every frame, and
// Worlds are only created and destroyed between frames.
func (renderer *Renderer) WaitForGPUWorkToFinish() {}

// Draw renders worlds, oldest first, onto screen.
func (renderer *Renderer) Draw(screen *ebiten.Image, worlds []*stage3d.World) {
	screen.Fill(renderer.ClearColor.RGBA8())

	renderer.mu.Lock()
	width, height := renderer.width, renderer.height
	renderer.mu.Unlock()

	renderer.drawn = 0
	for _, world := range worlds {
		camera := world.ActiveCamera()
		if camera == nil {
			continue
		}
		if w, h := camera.Size(); width > 0 && height > 0 && (w != width || h != height) {
			camera.Resize(width, height)
		}
		renderer.drawWorld(screen, world, camera)
	}

	if renderer.ShowStats {
		renderer.drawStats(screen, worlds)
	}
}

func (renderer *Renderer) drawWorld(screen *ebiten.Image, world *stage3d.World, camera *stage3d.CameraNode) {
	renderer.triangles = renderer.triangles[:0]
	cameraLocation := camera.WorldLocation()

	spawned := world.RootNode().SearchTree().Spawned()
	meshNodes := stage3d.Collect[*stage3d.MeshNode](spawned)
	lights := stage3d.Collect[stage3d.Light](spawned)
	if len(lights) == 0 {
		lights = defaultLights
	}
	for _, node := range meshNodes {
		mesh := node.Mesh()
		if !node.IsVisible() || mesh == nil {
			continue
		}
		transform := node.WorldMatrix()
		tint := node.Color()

		for i := range mesh.TriangleCount() {
			a, b, c := mesh.Triangle(i)
			a, b, c = transform.MultVec(a), transform.MultVec(b), transform.MultVec(c)

			normal := b.Sub(a).Cross(c.Sub(a)).Unit()
			center := a.Add(b).Add(c).Scale(1.0 / 3)
			if normal.Dot(cameraLocation.Sub(center)) <= 0 {
				continue
			}

			var tri screenTriangle
			visible := true
			for p, point := range [3]stage3d.Vector{a, b, c} {
				projected, ok := camera.WorldToScreenPixels(point)
				if !ok {
					visible = false
					break
				}
				tri.points[p] = projected
				tri.depth += projected.Z
			}
			if !visible {
				continue
			}

			tri.color = tint.Multiply(stage3d.LightSurface(lights, center, normal))
			renderer.triangles = append(renderer.triangles, tri)
		}
	}

	sortBackToFront(renderer.triangles)
	renderer.drawTriangles(screen)

	if renderer.DrawWireframes {
		for _, tri := range renderer.triangles {
			edge := tri.color.Lerp(stage3d.NewColor(1, 1, 1, 1), 0.5).RGBA8()
			for p := range 3 {
				from, to := tri.points[p], tri.points[(p+1)%3]
				vector.StrokeLine(screen, float32(from.X), float32(from.Y), float32(to.X), float32(to.Y), 1, edge, false)
			}
		}
	}

	renderer.drawn += len(renderer.triangles)
}

// sortBackToFront orders triangles farthest first.
func sortBackToFront(triangles []screenTriangle) {
	slices.SortStableFunc(triangles, func(a, b screenTriangle) int {
		switch {
		case a.depth > b.depth:
			return -1
		case a.depth < b.depth:
			return 1
		}
		return 0
	})
}

// drawTriangles batches the sorted triangles into DrawTriangles calls, staying under the 16-bit index limit.
func (renderer *Renderer) drawTriangles(screen *ebiten.Image) {
	const maxTrianglesPerBatch = (1 << 16) / 3

	for start := 0; start < len(renderer.triangles); start += maxTrianglesPerBatch {
		batch := renderer.triangles[start:min(start+maxTrianglesPerBatch, len(renderer.triangles))]

		renderer.vertices = renderer.vertices[:0]
		renderer.indices = renderer.indices[:0]
		for _, tri := range batch {
			for _, point := range tri.points {
				renderer.indices = append(renderer.indices, uint16(len(renderer.vertices)))
				renderer.vertices = append(renderer.vertices, ebiten.Vertex{
					DstX:   float32(point.X),
					DstY:   float32(point.Y),
					SrcX:   1,
					SrcY:   1,
					ColorR: tri.color.R,
					ColorG: tri.color.G,
					ColorB: tri.color.B,
					ColorA: tri.color.A,
				})
			}
		}
		screen.DrawTriangles(renderer.vertices, renderer.indices, whiteSubImage, nil)
	}
}

func (renderer *Renderer) drawStats(screen *ebiten.Image, worlds []*stage3d.World) {
	var b strings.Builder
	fmt.Fprintf(&b, "FPS: %.1f  TPS: %.1f\n", ebiten.ActualFPS(), ebiten.ActualTPS())
	fmt.Fprintf(&b, "Worlds: %d  Triangles: %d  Render slots: %d\n", len(worlds), renderer.drawn, renderer.slots.InUseCount())
	for i, world := range worlds {
		fmt.Fprintf(&b, "World %d: %d nodes, %d ticking, %d bodies\n",
			i, world.TotalSpawnedNodeCount(), world.CalledEveryFrameNodeCount(), world.PhysicsManager().BodyCount())
	}
	if renderer.DebugText != "" {
		b.WriteString(renderer.DebugText)
	}
	drawOutlinedText(screen, b.String(), 4, 4)
}

// drawOutlinedText draws white text with a black outline so it stays readable over any scene.
func drawOutlinedText(screen *ebiten.Image, txt string, x, y float64) {
	options := &text.DrawOptions{}
	options.LineSpacing = 14

	options.ColorScale.Scale(0, 0, 0, 1)
	for oy := -1; oy <= 1; oy++ {
		for ox := -1; ox <= 1; ox++ {
			options.GeoM.Reset()
			options.GeoM.Translate(x+float64(ox), y+float64(oy))
			text.Draw(screen, txt, debugFace, options)
		}
	}

	options.ColorScale.Reset()
	options.GeoM.Reset()
	options.GeoM.Translate(x, y)
	text.Draw(screen, txt, debugFace, options)
}
