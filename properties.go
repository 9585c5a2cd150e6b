package stage3d

import (
	"fmt"
	"sort"
	"sync"
)

// Properties is a set of named values carried by a node, used to tag nodes and to attach game data to them. Values
// are bools, strings, float64s, ints, Vectors or Colors. Properties are safe to use from several goroutines.
type Properties struct {
	mu    sync.RWMutex
	props map[string]any
}

// NewProperties returns an empty Properties object.
func NewProperties() *Properties {
	return &Properties{props: map[string]any{}}
}

func (props *Properties) Clone() *Properties {
	clone := NewProperties()
	props.mu.RLock()
	for name, value := range props.props {
		clone.props[name] = value
	}
	props.mu.RUnlock()
	return clone
}

// Set sets a property. Values of unsupported types are rejected.
func (props *Properties) Set(name string, value any) error {
	switch v := value.(type) {
	case bool, string, float64, int, Vector, Color:
	case int64:
		value = int(v)
	case float32:
		value = float64(v)
	default:
		return fmt.Errorf("property %q: unsupported type %T", name, value)
	}
	props.mu.Lock()
	props.props[name] = value
	props.mu.Unlock()
	return nil
}

// Get returns the value of a property.
func (props *Properties) Get(name string) (any, bool) {
	props.mu.RLock()
	defer props.mu.RUnlock()
	value, ok := props.props[name]
	return value, ok
}

// Remove removes the property specified.
func (props *Properties) Remove(name string) {
	props.mu.Lock()
	delete(props.props, name)
	props.mu.Unlock()
}

// Clear removes all properties.
func (props *Properties) Clear() {
	props.mu.Lock()
	props.props = map[string]any{}
	props.mu.Unlock()
}

// Has returns true if there are properties by all of the names specified.
func (props *Properties) Has(names ...string) bool {
	props.mu.RLock()
	defer props.mu.RUnlock()
	for _, name := range names {
		if _, ok := props.props[name]; !ok {
			return false
		}
	}
	return true
}

// Names returns the names of the properties, sorted.
func (props *Properties) Names() []string {
	props.mu.RLock()
	names := make([]string, 0, len(props.props))
	for name := range props.props {
		names = append(names, name)
	}
	props.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (props *Properties) Len() int {
	props.mu.RLock()
	defer props.mu.RUnlock()
	return len(props.props)
}

func (props *Properties) Bool(name string) bool {
	value, _ := props.Get(name)
	b, _ := value.(bool)
	return b
}

func (props *Properties) String(name string) string {
	value, _ := props.Get(name)
	s, _ := value.(string)
	return s
}

// Float returns a float64 or int property as a float64.
func (props *Properties) Float(name string) float64 {
	value, _ := props.Get(name)
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (props *Properties) Int(name string) int {
	value, _ := props.Get(name)
	i, _ := value.(int)
	return i
}

func (props *Properties) Vector(name string) Vector {
	value, _ := props.Get(name)
	v, _ := value.(Vector)
	return v
}

func (props *Properties) Color(name string) Color {
	value, _ := props.Get(name)
	c, _ := value.(Color)
	return c
}

// encode converts the properties to plain values for a node tree file: Vectors become [x, y, z] and Colors become
// hex strings under a "color:" prefix.
func (props *Properties) encode() map[string]any {
	props.mu.RLock()
	defer props.mu.RUnlock()
	if len(props.props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props.props))
	for name, value := range props.props {
		switch v := value.(type) {
		case Vector:
			out[name] = []float64{v.X, v.Y, v.Z}
		case Color:
			out[name] = colorPrefix + v.Hex()
		default:
			out[name] = value
		}
	}
	return out
}

const colorPrefix = "color:"

// decode is the inverse of encode.
func (props *Properties) decode(values map[string]any) error {
	for name, value := range values {
		switch v := value.(type) {
		case []any:
			vector, err := decodeVector(v)
			if err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			value = vector
		case string:
			if len(v) > len(colorPrefix) && v[:len(colorPrefix)] == colorPrefix {
				color, err := ParseHexColor(v[len(colorPrefix):])
				if err != nil {
					return fmt.Errorf("property %q: %w", name, err)
				}
				value = color
			}
		}
		if err := props.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func decodeVector(values []any) (Vector, error) {
	if len(values) != 3 {
		return Vector{}, fmt.Errorf("vector needs 3 components, got %d", len(values))
	}
	var components [3]float64
	for i, value := range values {
		switch v := value.(type) {
		case float64:
			components[i] = v
		case int64:
			components[i] = float64(v)
		case int:
			components[i] = float64(v)
		default:
			return Vector{}, fmt.Errorf("vector component %d has type %T", i, value)
		}
	}
	return Vector{X: components[0], Y: components[1], Z: components[2]}, nil
}
