package stage3d

import "github.com/solarlune/stage3d/input"

// ButtonEvent is a keyboard key, mouse button or gamepad button being pressed, repeated or released.
type ButtonEvent struct {
	Button    input.Button
	Modifiers input.KeyboardModifiers
	IsPressed bool
	IsRepeat  bool // key held long enough for the OS to repeat it
	GamepadID int
}

// GameInstance is the game-wide object: it sees every frame and every input event before any node does.
type GameInstance interface {
	OnBeforeNewFrame(deltaTime float64)

	OnButtonInput(event ButtonEvent)
	OnGamepadAxisMoved(gamepadID int, axis input.GamepadAxis, value float64)
	OnMouseMove(xOffset, yOffset float64)
	OnMouseScrollMove(offset float64)

	OnInputActionEvent(actionID uint, modifiers input.KeyboardModifiers, isPressed bool)
	OnInputAxisEvent(axisID uint, modifiers input.KeyboardModifiers, value float64)

	OnWindowFocusChanged(isFocused bool)
	OnWindowClose()
}

// BaseGameInstance implements GameInstance with no-ops; embed it and override what you need.
type BaseGameInstance struct{}

func (BaseGameInstance) OnBeforeNewFrame(deltaTime float64)                                      {}
func (BaseGameInstance) OnButtonInput(event ButtonEvent)                                         {}
func (BaseGameInstance) OnGamepadAxisMoved(gamepadID int, axis input.GamepadAxis, value float64) {}
func (BaseGameInstance) OnMouseMove(xOffset, yOffset float64)                                    {}
func (BaseGameInstance) OnMouseScrollMove(offset float64)                                        {}
func (BaseGameInstance) OnInputActionEvent(actionID uint, modifiers input.KeyboardModifiers, isPressed bool) {
}
func (BaseGameInstance) OnInputAxisEvent(axisID uint, modifiers input.KeyboardModifiers, value float64) {
}
func (BaseGameInstance) OnWindowFocusChanged(isFocused bool) {}
func (BaseGameInstance) OnWindowClose()                      {}
