package stage3d

import (
	"math"
	"sync"
)

// Light is implemented by nodes that light MeshNodes. Renderers collect the spawned lights of a World and add up
// what each contributes to a surface.
type Light interface {
	INode
	// LightAt returns the light reaching a surface at location (world space) facing normal.
	LightAt(location, normal Vector) Color
	IsOn() bool
}

// LightSurface sums the light the lights that are on shine onto a surface, clamped to [0, 1].
func LightSurface(lights []Light, location, normal Vector) Color {
	var sum Color
	for _, light := range lights {
		if !light.IsOn() {
			continue
		}
		c := light.LightAt(location, normal)
		sum.R += c.R
		sum.G += c.G
		sum.B += c.B
	}
	return Color{clamp01(sum.R), clamp01(sum.G), clamp01(sum.B), 1}
}

// lightProps is what every kind of light has.
type lightProps struct {
	mu     sync.RWMutex
	color  Color
	energy float32
	on     bool
}

func newLightProps(color Color, energy float32) lightProps {
	return lightProps{color: color, energy: energy, on: true}
}

func (lp *lightProps) Color() Color {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.color
}

func (lp *lightProps) SetColor(color Color) {
	lp.mu.Lock()
	lp.color = color
	lp.mu.Unlock()
}

// Energy is the overall strength of the light. There's no difference between a brighter color and a higher energy;
// it's here because model editors work that way.
func (lp *lightProps) Energy() float32 {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.energy
}

func (lp *lightProps) SetEnergy(energy float32) {
	lp.mu.Lock()
	lp.energy = energy
	lp.mu.Unlock()
}

func (lp *lightProps) IsOn() bool {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.on
}

func (lp *lightProps) SetOn(on bool) {
	lp.mu.Lock()
	lp.on = on
	lp.mu.Unlock()
}

func (lp *lightProps) scaled(factor float64) Color {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	f := float32(factor) * lp.energy
	return Color{lp.color.R * f, lp.color.G * f, lp.color.B * f, 1}
}

func (lp *lightProps) encodeLight(fields map[string]any) {
	fields["light_color"] = lp.Color().Hex()
	fields["energy"] = float64(lp.Energy())
	fields["on"] = lp.IsOn()
}

func (lp *lightProps) decodeLight(fields *fieldReader) {
	color, energy, on := lp.Color(), float64(lp.Energy()), lp.IsOn()
	fields.color("light_color", &color)
	fields.float("energy", &energy)
	fields.bool("on", &on)
	lp.mu.Lock()
	lp.color, lp.energy, lp.on = color, float32(energy), on
	lp.mu.Unlock()
}

// AmbientLightNode lights every surface evenly, wherever it is.
type AmbientLightNode struct {
	*Node
	lightProps
}

// NewAmbientLightNode creates an ambient light of the given color and energy.
func NewAmbientLightNode(name string, color Color, energy float32) *AmbientLightNode {
	light := &AmbientLightNode{Node: &Node{}, lightProps: newLightProps(color, energy)}
	light.init(name, light)
	return light
}

func (amb *AmbientLightNode) LightAt(location, normal Vector) Color {
	return amb.scaled(1)
}

func (amb *AmbientLightNode) encodeFields(fields map[string]any) {
	amb.Node.encodeFields(fields)
	amb.encodeLight(fields)
}

func (amb *AmbientLightNode) decodeFields(fields *fieldReader) {
	amb.Node.decodeFields(fields)
	amb.decodeLight(fields)
}

// DirectionalLightNode is a light infinitely far away, like the sun, shining along its forward direction.
type DirectionalLightNode struct {
	*SpatialNode
	lightProps
}

// NewDirectionalLightNode creates a directional light of the given color and energy, shining down -Z until rotated.
func NewDirectionalLightNode(name string, color Color, energy float32) *DirectionalLightNode {
	sun := &DirectionalLightNode{SpatialNode: &SpatialNode{Node: &Node{}}, lightProps: newLightProps(color, energy)}
	sun.initSpatial(name, sun)
	return sun
}

func (sun *DirectionalLightNode) LightAt(location, normal Vector) Color {
	return sun.scaled(math.Max(0, normal.Dot(sun.ForwardDirection().Invert())))
}

func (sun *DirectionalLightNode) encodeFields(fields map[string]any) {
	sun.SpatialNode.encodeFields(fields)
	sun.encodeLight(fields)
}

func (sun *DirectionalLightNode) decodeFields(fields *fieldReader) {
	sun.SpatialNode.decodeFields(fields)
	sun.decodeLight(fields)
}

// PointLightNode shines in every direction from its location.
type PointLightNode struct {
	*SpatialNode
	lightProps

	// Range is the distance at which the light has fully faded out. At 0 it falls off roughly with the inverse
	// square of the distance and never reaches zero.
	Range float64
}

// NewPointLightNode creates a point light of the given color and energy.
func NewPointLightNode(name string, color Color, energy float32) *PointLightNode {
	point := &PointLightNode{SpatialNode: &SpatialNode{Node: &Node{}}, lightProps: newLightProps(color, energy)}
	point.initSpatial(name, point)
	return point
}

func (point *PointLightNode) LightAt(location, normal Vector) Color {
	toLight := point.WorldLocation().Sub(location)
	diffuse := math.Max(0, normal.Dot(toLight.Unit()))
	distanceSquared := toLight.MagnitudeSquared()

	var falloff float64
	if point.Range == 0 {
		falloff = 2 / (1 + 0.1*distanceSquared)
	} else {
		falloff = math.Max(0, math.Min(1, 1-math.Pow(distanceSquared/(point.Range*point.Range), 4)))
	}
	return point.scaled(diffuse * falloff)
}

func (point *PointLightNode) encodeFields(fields map[string]any) {
	point.SpatialNode.encodeFields(fields)
	point.encodeLight(fields)
	fields["range"] = point.Range
}

func (point *PointLightNode) decodeFields(fields *fieldReader) {
	point.SpatialNode.decodeFields(fields)
	point.decodeLight(fields)
	fields.float("range", &point.Range)
}
