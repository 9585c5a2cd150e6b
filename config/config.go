// Package config loads the TOML settings of a stage3d game.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/solarlune/stage3d"
	"github.com/solarlune/stage3d/sound"
)

type Config struct {
	Window  WindowConfig            `toml:"window"`
	Logging LoggingConfig           `toml:"logging"`
	Physics stage3d.PhysicsSettings `toml:"physics"`
	Threads ThreadsConfig           `toml:"threads"`
	Input   InputConfig             `toml:"input"`
	Audio   sound.Settings          `toml:"audio"`
	Debug   DebugConfig             `toml:"debug"`
}

type WindowConfig struct {
	Title      string `toml:"title"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Resizable  bool   `toml:"resizable"`
	VSync      bool   `toml:"vsync"`
	ClearColor string `toml:"clear_color"` // a color name from the colors package, or "#rrggbb"
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ThreadsConfig struct {
	PoolSize int `toml:"pool_size"` // <= 0 uses one worker per CPU
}

type InputConfig struct {
	BindingsFile string `toml:"bindings_file"` // YAML; empty means no bindings
}

type DebugConfig struct {
	ShowStats      bool `toml:"show_stats"`
	DrawWireframes bool `toml:"draw_wireframes"`
}

// Load reads the config file at path. Settings the file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a TOML config document over the defaults.
func Parse(data string) (*Config, error) {
	cfg := Defaults()
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse config: unknown setting %q", undecoded[0].String())
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Window: WindowConfig{
			Title:      "stage3d",
			Width:      1280,
			Height:     720,
			Resizable:  true,
			VSync:      true,
			ClearColor: "darkest_gray",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Physics: stage3d.DefaultPhysicsSettings(),
		Audio: sound.Settings{
			SampleRate:     48000,
			BufferDuration: 100 * time.Millisecond,
			ChannelVolumes: map[string]float64{
				stage3d.SoundChannelEffects: 1,
				stage3d.SoundChannelMusic:   0.8,
				stage3d.SoundChannelVoice:   1,
			},
		},
		Debug: DebugConfig{
			ShowStats:      true,
			DrawWireframes: true,
		},
	}
}
