package ebiten3d

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solarlune/stage3d"
	"github.com/solarlune/stage3d/input"
)

func TestKeyRepeat(t *testing.T) {
	var repeats []int
	for duration := 1; duration <= keyRepeatDelay+2*keyRepeatInterval; duration++ {
		if isRepeatTick(duration) {
			repeats = append(repeats, duration)
		}
	}
	assert.Equal(t, []int{keyRepeatDelay, keyRepeatDelay + keyRepeatInterval, keyRepeatDelay + 2*keyRepeatInterval}, repeats)
}

func TestGamepadAxisFiltering(t *testing.T) {
	assert.Zero(t, applyDeadzone(0.1))
	assert.Zero(t, applyDeadzone(-0.1))
	assert.Equal(t, 0.5, applyDeadzone(0.5))

	assert.False(t, axisMoved(0.5, 0.5))
	assert.False(t, axisMoved(0.5, 0.505))
	assert.True(t, axisMoved(0.5, 0.6))
	assert.True(t, axisMoved(0.2, 0), "coming to rest is always reported")
}

func TestInputTablesMapToDistinctButtons(t *testing.T) {
	seenKeys := map[input.KeyboardKey]bool{}
	for _, key := range keys {
		assert.False(t, seenKeys[key], "%v mapped twice", key.Button())
		seenKeys[key] = true
	}

	seenGamepad := map[input.GamepadButton]bool{}
	for _, button := range gamepadButtons {
		assert.False(t, seenGamepad[button])
		seenGamepad[button] = true
	}
	assert.Len(t, gamepadAxes, 6)
}

func TestTrianglesSortFarthestFirst(t *testing.T) {
	triangles := []screenTriangle{{depth: 0.2}, {depth: 0.9}, {depth: 0.5}}
	sortBackToFront(triangles)
	assert.Equal(t, 0.9, triangles[0].depth)
	assert.Equal(t, 0.5, triangles[1].depth)
	assert.Equal(t, 0.2, triangles[2].depth)
}

func TestRendererHandsOutRenderSlots(t *testing.T) {
	renderer := NewRenderer(stage3d.NewColor(0, 0, 0, 1))
	gm := stage3d.NewGameManager(stage3d.GameManagerOptions{Renderer: renderer})
	defer gm.Shutdown()

	gm.CreateWorld(func(root stage3d.INode) {
		root.AddChildNode(stage3d.NewMeshNode("cube", stage3d.NewCube()), stage3d.RuleKeepRelative, stage3d.RuleKeepRelative, stage3d.RuleKeepRelative)
	}, false)
	gm.OnBeforeNewFrame(1.0 / 60)

	assert.Equal(t, 1, renderer.RenderSlots().InUseCount())

	gm.DestroyWorld(gm.Worlds()[0], nil)
	gm.OnBeforeNewFrame(1.0 / 60)
	assert.Zero(t, renderer.RenderSlots().InUseCount())
}
