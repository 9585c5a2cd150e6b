// Package colors names a small palette of stage3d Colors, for colors written by hand in config files.
package colors

import (
	"sort"
	"strings"

	"github.com/solarlune/stage3d"
)

var palette = map[string]stage3d.Color{
	"transparent":  stage3d.NewColor(0, 0, 0, 0),
	"white":        stage3d.NewColor(1, 1, 1, 1),
	"black":        stage3d.NewColor(0, 0, 0, 1),
	"gray":         stage3d.NewColor(0.5, 0.5, 0.5, 1),
	"light_gray":   stage3d.NewColor(0.8, 0.8, 0.8, 1),
	"dark_gray":    stage3d.NewColor(0.25, 0.25, 0.25, 1),
	"darkest_gray": stage3d.NewColor(0.1, 0.1, 0.1, 1),
	"red":          stage3d.NewColor(1, 0, 0, 1),
	"pale_red":     stage3d.NewColor(1, 0.5, 0.5, 1),
	"orange":       stage3d.NewColor(1, 0.5, 0, 1),
	"yellow":       stage3d.NewColor(1, 1, 0, 1),
	"green":        stage3d.NewColor(0, 1, 0, 1),
	"sky_blue":     stage3d.NewColor(0, 0.5, 1, 1),
	"turquoise":    stage3d.NewColor(0, 1, 1, 1),
	"blue":         stage3d.NewColor(0, 0, 1, 1),
	"pink":         stage3d.NewColor(1, 0.5, 1, 1),
	"purple":       stage3d.NewColor(0.5, 0, 1, 1),
}

func White() stage3d.Color { return palette["white"] }

func Black() stage3d.Color { return palette["black"] }

func Gray() stage3d.Color { return palette["gray"] }

func DarkestGray() stage3d.Color { return palette["darkest_gray"] }

// Parse looks a color up by its palette name (case-insensitive, "sky blue" and "sky_blue" both work), falling back
// to a hex color such as "#336699".
func Parse(name string) (stage3d.Color, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if color, ok := palette[key]; ok {
		return color, nil
	}
	return stage3d.ParseHexColor(name)
}

// Names returns the palette's color names, sorted.
func Names() []string {
	names := make([]string, 0, len(palette))
	for name := range palette {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
