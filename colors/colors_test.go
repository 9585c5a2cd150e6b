package colors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarlune/stage3d"
)

func TestParse(t *testing.T) {
	color, err := Parse("Sky Blue")
	require.NoError(t, err)
	assert.Equal(t, stage3d.NewColor(0, 0.5, 1, 1), color)

	color, err = Parse("#ff000080")
	require.NoError(t, err)
	assert.Equal(t, "#ff000080", color.Hex())

	_, err = Parse("mauve")
	assert.Error(t, err)
}

func TestNamesAreSorted(t *testing.T) {
	names := Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "darkest_gray")
}
