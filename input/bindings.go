package input

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ActionBinding describes one action event in a bindings file.
type ActionBinding struct {
	ID       uint     `yaml:"id"`
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"` // "key:space", "mouse:left", "gamepad:a"
}

// AxisBinding describes one axis event in a bindings file.
type AxisBinding struct {
	ID          uint                 `yaml:"id"`
	Name        string               `yaml:"name"`
	Triggers    []AxisTriggerBinding `yaml:"triggers"`
	GamepadAxes []string             `yaml:"gamepad_axes"`
}

// AxisTriggerBinding is a positive/negative button pair in a bindings file.
type AxisTriggerBinding struct {
	Positive string `yaml:"positive"`
	Negative string `yaml:"negative"`
}

// Bindings is the content of an input bindings file.
type Bindings struct {
	Actions []ActionBinding `yaml:"actions"`
	Axes    []AxisBinding   `yaml:"axes"`
}

// ParseBindings decodes a YAML bindings document.
func ParseBindings(raw []byte) (*Bindings, error) {
	var bindings Bindings
	if err := yaml.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("input: parse bindings: %w", err)
	}
	return &bindings, nil
}

// LoadBindings reads a YAML bindings file.
func LoadBindings(path string) (*Bindings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("input: read %s: %w", path, err)
	}
	bindings, err := ParseBindings(raw)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", path, err)
	}
	return bindings, nil
}

// Apply registers every action and axis event of the bindings in the manager.
func (bindings *Bindings) Apply(m *Manager) error {
	for _, action := range bindings.Actions {
		triggers := make([]Button, 0, len(action.Triggers))
		for _, text := range action.Triggers {
			button, err := ParseButton(text)
			if err != nil {
				return fmt.Errorf("input: action %q: %w", action.Name, err)
			}
			triggers = append(triggers, button)
		}
		if err := m.AddActionEvent(action.ID, triggers...); err != nil {
			return fmt.Errorf("input: action %q: %w", action.Name, err)
		}
	}

	for _, axis := range bindings.Axes {
		triggers := make([]AxisTrigger, 0, len(axis.Triggers))
		for _, pair := range axis.Triggers {
			positive, err := ParseButton(pair.Positive)
			if err != nil {
				return fmt.Errorf("input: axis %q: %w", axis.Name, err)
			}
			negative, err := ParseButton(pair.Negative)
			if err != nil {
				return fmt.Errorf("input: axis %q: %w", axis.Name, err)
			}
			triggers = append(triggers, AxisTrigger{Positive: positive, Negative: negative})
		}

		gamepadAxes := make([]GamepadAxis, 0, len(axis.GamepadAxes))
		for _, name := range axis.GamepadAxes {
			gamepadAxis, err := ParseGamepadAxis(name)
			if err != nil {
				return fmt.Errorf("input: axis %q: %w", axis.Name, err)
			}
			gamepadAxes = append(gamepadAxes, gamepadAxis)
		}

		if err := m.AddAxisEvent(axis.ID, triggers, gamepadAxes...); err != nil {
			return fmt.Errorf("input: axis %q: %w", axis.Name, err)
		}
	}
	return nil
}
