package input

import (
	"fmt"
	"strings"
)

// ButtonKind is the device a Button belongs to.
type ButtonKind uint8

const (
	KindKeyboard ButtonKind = iota
	KindMouse
	KindGamepad
)

func (kind ButtonKind) String() string {
	switch kind {
	case KindKeyboard:
		return "key"
	case KindMouse:
		return "mouse"
	case KindGamepad:
		return "gamepad"
	}
	return "unknown"
}

// Button is a single keyboard key, mouse button or gamepad button. Buttons are comparable and are used as map keys
// in the trigger tables.
type Button struct {
	Kind ButtonKind
	Code int
}

func (button Button) String() string {
	var names map[int]string
	switch button.Kind {
	case KindKeyboard:
		names = keyNames
	case KindMouse:
		names = mouseButtonNames
	case KindGamepad:
		names = gamepadButtonNames
	}
	if name, ok := names[button.Code]; ok {
		return button.Kind.String() + ":" + name
	}
	return fmt.Sprintf("%s:%d", button.Kind, button.Code)
}

// KeyboardKey is a physical keyboard key.
type KeyboardKey int

const (
	KeyUnknown KeyboardKey = iota
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeySpace
	KeyEnter
	KeyEscape
	KeyTab
	KeyBackspace
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyLeftShift
	KeyRightShift
	KeyLeftControl
	KeyRightControl
	KeyLeftAlt
	KeyRightAlt
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	keyCount
)

// Button returns the key as a generic Button.
func (key KeyboardKey) Button() Button { return Button{Kind: KindKeyboard, Code: int(key)} }

// MouseButton is a mouse button.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
	MouseButton4
	MouseButton5
)

// Button returns the mouse button as a generic Button.
func (mb MouseButton) Button() Button { return Button{Kind: KindMouse, Code: int(mb)} }

// GamepadButton is a button on a standard-layout gamepad.
type GamepadButton int

const (
	GamepadButtonA GamepadButton = iota
	GamepadButtonB
	GamepadButtonX
	GamepadButtonY
	GamepadButtonLeftBumper
	GamepadButtonRightBumper
	GamepadButtonBack
	GamepadButtonStart
	GamepadButtonGuide
	GamepadButtonLeftStick
	GamepadButtonRightStick
	GamepadButtonDPadUp
	GamepadButtonDPadDown
	GamepadButtonDPadLeft
	GamepadButtonDPadRight
)

// Button returns the gamepad button as a generic Button.
func (gb GamepadButton) Button() Button { return Button{Kind: KindGamepad, Code: int(gb)} }

// GamepadAxis is an analog axis on a standard-layout gamepad.
type GamepadAxis int

const (
	GamepadAxisLeftX GamepadAxis = iota
	GamepadAxisLeftY
	GamepadAxisRightX
	GamepadAxisRightY
	GamepadAxisLeftTrigger
	GamepadAxisRightTrigger
)

// KeyboardModifiers is the set of modifier keys held when an event happened.
type KeyboardModifiers uint8

const (
	ModifierShift KeyboardModifiers = 1 << iota
	ModifierControl
	ModifierAlt
	ModifierSuper
	ModifierCapsLock
	ModifierNumLock
)

func (mods KeyboardModifiers) IsShiftPressed() bool   { return mods&ModifierShift != 0 }
func (mods KeyboardModifiers) IsControlPressed() bool { return mods&ModifierControl != 0 }
func (mods KeyboardModifiers) IsAltPressed() bool     { return mods&ModifierAlt != 0 }
func (mods KeyboardModifiers) IsSuperPressed() bool   { return mods&ModifierSuper != 0 }
func (mods KeyboardModifiers) IsCapsLockOn() bool     { return mods&ModifierCapsLock != 0 }
func (mods KeyboardModifiers) IsNumLockOn() bool      { return mods&ModifierNumLock != 0 }

var keyNames = map[int]string{
	int(KeySpace): "space", int(KeyEnter): "enter", int(KeyEscape): "escape", int(KeyTab): "tab",
	int(KeyBackspace): "backspace", int(KeyUp): "up", int(KeyDown): "down", int(KeyLeft): "left",
	int(KeyRight): "right", int(KeyLeftShift): "left_shift", int(KeyRightShift): "right_shift",
	int(KeyLeftControl): "left_control", int(KeyRightControl): "right_control",
	int(KeyLeftAlt): "left_alt", int(KeyRightAlt): "right_alt",
}

var mouseButtonNames = map[int]string{
	int(MouseButtonLeft): "left", int(MouseButtonRight): "right", int(MouseButtonMiddle): "middle",
	int(MouseButton4): "button4", int(MouseButton5): "button5",
}

var gamepadButtonNames = map[int]string{
	int(GamepadButtonA): "a", int(GamepadButtonB): "b", int(GamepadButtonX): "x", int(GamepadButtonY): "y",
	int(GamepadButtonLeftBumper): "left_bumper", int(GamepadButtonRightBumper): "right_bumper",
	int(GamepadButtonBack): "back", int(GamepadButtonStart): "start", int(GamepadButtonGuide): "guide",
	int(GamepadButtonLeftStick): "left_stick", int(GamepadButtonRightStick): "right_stick",
	int(GamepadButtonDPadUp): "dpad_up", int(GamepadButtonDPadDown): "dpad_down",
	int(GamepadButtonDPadLeft): "dpad_left", int(GamepadButtonDPadRight): "dpad_right",
}

var gamepadAxisNames = map[string]GamepadAxis{
	"left_x": GamepadAxisLeftX, "left_y": GamepadAxisLeftY,
	"right_x": GamepadAxisRightX, "right_y": GamepadAxisRightY,
	"left_trigger": GamepadAxisLeftTrigger, "right_trigger": GamepadAxisRightTrigger,
}

func init() {
	for i := 0; i < 26; i++ {
		keyNames[int(KeyA)+i] = string(rune('a' + i))
	}
	for i := 0; i < 10; i++ {
		keyNames[int(Key0)+i] = string(rune('0' + i))
	}
	for i := 0; i < 12; i++ {
		keyNames[int(KeyF1)+i] = fmt.Sprintf("f%d", i+1)
	}
}

// ParseButton parses a "device:name" string ("key:w", "mouse:left", "gamepad:a") into a Button.
// A bare name is treated as a keyboard key.
func ParseButton(text string) (Button, error) {
	kindName, name, found := strings.Cut(strings.ToLower(strings.TrimSpace(text)), ":")
	if !found {
		kindName, name = "key", kindName
	}

	var (
		kind  ButtonKind
		names map[int]string
	)
	switch kindName {
	case "key":
		kind, names = KindKeyboard, keyNames
	case "mouse":
		kind, names = KindMouse, mouseButtonNames
	case "gamepad":
		kind, names = KindGamepad, gamepadButtonNames
	default:
		return Button{}, fmt.Errorf("unknown input device %q in %q", kindName, text)
	}

	for code, n := range names {
		if n == name {
			return Button{Kind: kind, Code: code}, nil
		}
	}
	return Button{}, fmt.Errorf("unknown %s button %q", kindName, name)
}

// ParseGamepadAxis parses a gamepad axis name such as "left_x".
func ParseGamepadAxis(name string) (GamepadAxis, error) {
	axis, ok := gamepadAxisNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown gamepad axis %q", name)
	}
	return axis, nil
}
