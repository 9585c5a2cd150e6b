package ebiten3d

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/solarlune/stage3d"
	"github.com/solarlune/stage3d/input"
)

const (
	// Key repeat timing, in ticks.
	keyRepeatDelay    = 30
	keyRepeatInterval = 4

	axisDeadzone  = 0.15
	axisThreshold = 0.01
)

type gamepadAxisKey struct {
	id   ebiten.GamepadID
	axis input.GamepadAxis
}

// inputPoller turns ebiten's per-tick input state into GameManager input events.
type inputPoller struct {
	keyBuffer []ebiten.Key
	gamepads  []ebiten.GamepadID

	cursorX, cursorY int
	hasCursor        bool
	axes             map[gamepadAxisKey]float64
	focused          bool
}

func newInputPoller() *inputPoller {
	return &inputPoller{axes: map[gamepadAxisKey]float64{}, focused: true}
}

func (poller *inputPoller) poll(gm *stage3d.GameManager) {
	if focused := ebiten.IsFocused(); focused != poller.focused {
		poller.focused = focused
		gm.OnWindowFocusChanged(focused)
	}

	mods := currentModifiers()
	poller.pollKeys(gm, mods)
	poller.pollMouse(gm, mods)
	poller.pollGamepads(gm)
}

func (poller *inputPoller) pollKeys(gm *stage3d.GameManager, mods input.KeyboardModifiers) {
	poller.keyBuffer = inpututil.AppendJustReleasedKeys(poller.keyBuffer[:0])
	for _, key := range poller.keyBuffer {
		if mapped, ok := keys[key]; ok {
			gm.OnKeyboardInput(mapped, mods, false, false)
		}
	}

	poller.keyBuffer = inpututil.AppendPressedKeys(poller.keyBuffer[:0])
	for _, key := range poller.keyBuffer {
		mapped, ok := keys[key]
		if !ok {
			continue
		}
		duration := inpututil.KeyPressDuration(key)
		if duration == 1 {
			gm.OnKeyboardInput(mapped, mods, true, false)
		} else if isRepeatTick(duration) {
			gm.OnKeyboardInput(mapped, mods, true, true)
		}
	}
}

// isRepeatTick reports whether a key held for duration ticks sends a repeat.
func isRepeatTick(duration int) bool {
	return duration >= keyRepeatDelay && (duration-keyRepeatDelay)%keyRepeatInterval == 0
}

func (poller *inputPoller) pollMouse(gm *stage3d.GameManager, mods input.KeyboardModifiers) {
	for button, mapped := range mouseButtons {
		if inpututil.IsMouseButtonJustPressed(button) {
			gm.OnMouseInput(mapped, mods, true)
		} else if inpututil.IsMouseButtonJustReleased(button) {
			gm.OnMouseInput(mapped, mods, false)
		}
	}

	x, y := ebiten.CursorPosition()
	if poller.hasCursor && (x != poller.cursorX || y != poller.cursorY) {
		gm.OnMouseMove(float64(x-poller.cursorX), float64(y-poller.cursorY))
	}
	poller.cursorX, poller.cursorY, poller.hasCursor = x, y, true

	if _, wheel := ebiten.Wheel(); wheel != 0 {
		gm.OnMouseScrollMove(wheel)
	}
}

func (poller *inputPoller) pollGamepads(gm *stage3d.GameManager) {
	poller.gamepads = ebiten.AppendGamepadIDs(poller.gamepads[:0])
	for _, id := range poller.gamepads {
		if !ebiten.IsStandardGamepadLayoutAvailable(id) {
			continue
		}
		for button, mapped := range gamepadButtons {
			if inpututil.IsStandardGamepadButtonJustPressed(id, button) {
				gm.OnGamepadInput(int(id), mapped, true)
			} else if inpututil.IsStandardGamepadButtonJustReleased(id, button) {
				gm.OnGamepadInput(int(id), mapped, false)
			}
		}
		for axis, source := range gamepadAxes {
			key := gamepadAxisKey{id: id, axis: axis}
			value := applyDeadzone(source.value(id))
			if axisMoved(poller.axes[key], value) {
				poller.axes[key] = value
				gm.OnGamepadAxisMoved(int(id), axis, value)
			}
		}
	}

	// Disconnected gamepads snap back to rest.
	for key, value := range poller.axes {
		if inpututil.IsGamepadJustDisconnected(key.id) {
			delete(poller.axes, key)
			if value != 0 {
				gm.OnGamepadAxisMoved(int(key.id), key.axis, 0)
			}
		}
	}
}

func applyDeadzone(value float64) float64 {
	if math.Abs(value) < axisDeadzone {
		return 0
	}
	return value
}

// axisMoved reports whether an axis moved far enough from its last reported value to report it again. Reaching
// rest is always reported.
func axisMoved(previous, value float64) bool {
	if value == previous {
		return false
	}
	return value == 0 || math.Abs(value-previous) >= axisThreshold
}
