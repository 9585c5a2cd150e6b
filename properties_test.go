package stage3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties(t *testing.T) {
	props := NewProperties()
	require.NoError(t, props.Set("name", "crate"))
	require.NoError(t, props.Set("health", int64(3)))
	require.NoError(t, props.Set("speed", float32(1.5)))
	require.NoError(t, props.Set("breakable", true))
	assert.Error(t, props.Set("contents", []string{"coin"}))

	assert.Equal(t, "crate", props.String("name"))
	assert.Equal(t, 3, props.Int("health"))
	assert.Equal(t, 3.0, props.Float("health"), "ints read as floats")
	assert.Equal(t, 1.5, props.Float("speed"))
	assert.True(t, props.Bool("breakable"))
	assert.False(t, props.Bool("name"), "wrong types read as zero")
	assert.True(t, props.Has("name", "health"))
	assert.False(t, props.Has("name", "contents"))
	assert.Equal(t, []string{"breakable", "health", "name", "speed"}, props.Names())

	clone := props.Clone()
	props.Remove("name")
	assert.Equal(t, 3, props.Len())
	assert.Equal(t, "crate", clone.String("name"), "clones are independent")

	props.Clear()
	assert.Zero(t, props.Len())
}

func TestPropertiesEncoding(t *testing.T) {
	props := NewProperties()
	require.NoError(t, props.Set("spawn", Vector{X: 1, Y: 2, Z: 3}))
	require.NoError(t, props.Set("tint", NewColor(0, 0, 1, 1)))
	require.NoError(t, props.Set("label", "plain"))

	encoded := props.encode()
	assert.Equal(t, []float64{1, 2, 3}, encoded["spawn"])
	assert.Equal(t, "color:#0000ffff", encoded["tint"])

	decoded := NewProperties()
	require.NoError(t, decoded.decode(map[string]any{
		"spawn": []any{1.0, int64(2), 3.0},
		"tint":  "color:#0000ffff",
		"label": "plain",
	}))
	assert.Equal(t, Vector{X: 1, Y: 2, Z: 3}, decoded.Vector("spawn"))
	assert.Equal(t, NewColor(0, 0, 1, 1), decoded.Color("tint"))
	assert.Equal(t, "plain", decoded.String("label"))

	assert.Error(t, NewProperties().decode(map[string]any{"short": []any{1.0}}))
	assert.Error(t, NewProperties().decode(map[string]any{"tint": "color:#zz"}))
	assert.Nil(t, NewProperties().encode())
}
