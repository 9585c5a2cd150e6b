package ebiten3d

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/solarlune/stage3d/input"
)

var keys = map[ebiten.Key]input.KeyboardKey{
	ebiten.KeyA: input.KeyA, ebiten.KeyB: input.KeyB, ebiten.KeyC: input.KeyC, ebiten.KeyD: input.KeyD,
	ebiten.KeyE: input.KeyE, ebiten.KeyF: input.KeyF, ebiten.KeyG: input.KeyG, ebiten.KeyH: input.KeyH,
	ebiten.KeyI: input.KeyI, ebiten.KeyJ: input.KeyJ, ebiten.KeyK: input.KeyK, ebiten.KeyL: input.KeyL,
	ebiten.KeyM: input.KeyM, ebiten.KeyN: input.KeyN, ebiten.KeyO: input.KeyO, ebiten.KeyP: input.KeyP,
	ebiten.KeyQ: input.KeyQ, ebiten.KeyR: input.KeyR, ebiten.KeyS: input.KeyS, ebiten.KeyT: input.KeyT,
	ebiten.KeyU: input.KeyU, ebiten.KeyV: input.KeyV, ebiten.KeyW: input.KeyW, ebiten.KeyX: input.KeyX,
	ebiten.KeyY: input.KeyY, ebiten.KeyZ: input.KeyZ,

	ebiten.KeyDigit0: input.Key0, ebiten.KeyDigit1: input.Key1, ebiten.KeyDigit2: input.Key2,
	ebiten.KeyDigit3: input.Key3, ebiten.KeyDigit4: input.Key4, ebiten.KeyDigit5: input.Key5,
	ebiten.KeyDigit6: input.Key6, ebiten.KeyDigit7: input.Key7, ebiten.KeyDigit8: input.Key8,
	ebiten.KeyDigit9: input.Key9,

	ebiten.KeySpace:     input.KeySpace,
	ebiten.KeyEnter:     input.KeyEnter,
	ebiten.KeyEscape:    input.KeyEscape,
	ebiten.KeyTab:       input.KeyTab,
	ebiten.KeyBackspace: input.KeyBackspace,

	ebiten.KeyArrowUp:    input.KeyUp,
	ebiten.KeyArrowDown:  input.KeyDown,
	ebiten.KeyArrowLeft:  input.KeyLeft,
	ebiten.KeyArrowRight: input.KeyRight,

	ebiten.KeyShiftLeft:    input.KeyLeftShift,
	ebiten.KeyShiftRight:   input.KeyRightShift,
	ebiten.KeyControlLeft:  input.KeyLeftControl,
	ebiten.KeyControlRight: input.KeyRightControl,
	ebiten.KeyAltLeft:      input.KeyLeftAlt,
	ebiten.KeyAltRight:     input.KeyRightAlt,

	ebiten.KeyF1: input.KeyF1, ebiten.KeyF2: input.KeyF2, ebiten.KeyF3: input.KeyF3, ebiten.KeyF4: input.KeyF4,
	ebiten.KeyF5: input.KeyF5, ebiten.KeyF6: input.KeyF6, ebiten.KeyF7: input.KeyF7, ebiten.KeyF8: input.KeyF8,
	ebiten.KeyF9: input.KeyF9, ebiten.KeyF10: input.KeyF10, ebiten.KeyF11: input.KeyF11, ebiten.KeyF12: input.KeyF12,
}

var mouseButtons = map[ebiten.MouseButton]input.MouseButton{
	ebiten.MouseButtonLeft:   input.MouseButtonLeft,
	ebiten.MouseButtonRight:  input.MouseButtonRight,
	ebiten.MouseButtonMiddle: input.MouseButtonMiddle,
	ebiten.MouseButton3:      input.MouseButton4,
	ebiten.MouseButton4:      input.MouseButton5,
}

var gamepadButtons = map[ebiten.StandardGamepadButton]input.GamepadButton{
	ebiten.StandardGamepadButtonRightBottom:   input.GamepadButtonA,
	ebiten.StandardGamepadButtonRightRight:    input.GamepadButtonB,
	ebiten.StandardGamepadButtonRightLeft:     input.GamepadButtonX,
	ebiten.StandardGamepadButtonRightTop:      input.GamepadButtonY,
	ebiten.StandardGamepadButtonFrontTopLeft:  input.GamepadButtonLeftBumper,
	ebiten.StandardGamepadButtonFrontTopRight: input.GamepadButtonRightBumper,
	ebiten.StandardGamepadButtonCenterLeft:    input.GamepadButtonBack,
	ebiten.StandardGamepadButtonCenterRight:   input.GamepadButtonStart,
	ebiten.StandardGamepadButtonCenterCenter:  input.GamepadButtonGuide,
	ebiten.StandardGamepadButtonLeftStick:     input.GamepadButtonLeftStick,
	ebiten.StandardGamepadButtonRightStick:    input.GamepadButtonRightStick,
	ebiten.StandardGamepadButtonLeftTop:       input.GamepadButtonDPadUp,
	ebiten.StandardGamepadButtonLeftBottom:    input.GamepadButtonDPadDown,
	ebiten.StandardGamepadButtonLeftLeft:      input.GamepadButtonDPadLeft,
	ebiten.StandardGamepadButtonLeftRight:     input.GamepadButtonDPadRight,
}

type gamepadAxisSource struct {
	axis   ebiten.StandardGamepadAxis
	button ebiten.StandardGamepadButton // analog triggers are buttons with a value
	analog bool
}

var gamepadAxes = map[input.GamepadAxis]gamepadAxisSource{
	input.GamepadAxisLeftX:        {axis: ebiten.StandardGamepadAxisLeftStickHorizontal},
	input.GamepadAxisLeftY:        {axis: ebiten.StandardGamepadAxisLeftStickVertical},
	input.GamepadAxisRightX:       {axis: ebiten.StandardGamepadAxisRightStickHorizontal},
	input.GamepadAxisRightY:       {axis: ebiten.StandardGamepadAxisRightStickVertical},
	input.GamepadAxisLeftTrigger:  {button: ebiten.StandardGamepadButtonFrontBottomLeft, analog: true},
	input.GamepadAxisRightTrigger: {button: ebiten.StandardGamepadButtonFrontBottomRight, analog: true},
}

func (source gamepadAxisSource) value(id ebiten.GamepadID) float64 {
	if source.analog {
		return ebiten.StandardGamepadButtonValue(id, source.button)
	}
	return ebiten.StandardGamepadAxisValue(id, source.axis)
}

func currentModifiers() input.KeyboardModifiers {
	var mods input.KeyboardModifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		mods |= input.ModifierShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) {
		mods |= input.ModifierControl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) {
		mods |= input.ModifierAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) {
		mods |= input.ModifierSuper
	}
	return mods
}
