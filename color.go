package stage3d

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// A Color represents a color, containing R, G, B, and A components, each expected to range from 0 to 1.
type Color struct {
	R, G, B, A float32
}

// NewColor returns a new Color, with the provided R, G, B, and A components expected to range from 0 to 1.
func NewColor(r, g, b, a float32) Color {
	return Color{r, g, b, a}
}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa" (the # is optional).
func ParseHexColor(hex string) (Color, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("color %q: want 6 or 8 hex digits", hex)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	value, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", hex, err)
	}
	channel := func(shift uint) float32 { return float32((value>>shift)&0xff) / 255 }
	return Color{channel(24), channel(16), channel(8), channel(0)}, nil
}

// Hex returns the color as "#rrggbbaa".
func (c Color) Hex() string {
	rgba := c.RGBA8()
	return fmt.Sprintf("#%02x%02x%02x%02x", rgba.R, rgba.G, rgba.B, rgba.A)
}

// RGBA8 converts the color to 8-bit channels, clamping each to [0, 1] first.
func (c Color) RGBA8() color.RGBA {
	to8 := func(v float32) uint8 { return uint8(math.Round(float64(clamp01(v)) * 255)) }
	return color.RGBA{to8(c.R), to8(c.G), to8(c.B), to8(c.A)}
}

// Multiply returns the component-wise product of the two colors.
func (c Color) Multiply(other Color) Color {
	return Color{c.R * other.R, c.G * other.G, c.B * other.B, c.A * other.A}
}

// Lerp blends towards other by percent (0 to 1).
func (c Color) Lerp(other Color, percent float32) Color {
	return Color{
		c.R + (other.R-c.R)*percent,
		c.G + (other.G-c.G)*percent,
		c.B + (other.B-c.B)*percent,
		c.A + (other.A-c.A)*percent,
	}
}

// ToSRGB converts a linear color to sRGB; alpha is left alone.
func (c Color) ToSRGB() Color {
	convert := func(v float32) float32 {
		if v <= 0.0031308 {
			return v * 12.92
		}
		return float32(1.055*math.Pow(float64(v), 1/2.4) - 0.055)
	}
	return Color{convert(c.R), convert(c.G), convert(c.B), c.A}
}

func clamp01(v float32) float32 {
	return float32(math.Max(0, math.Min(1, float64(v))))
}
