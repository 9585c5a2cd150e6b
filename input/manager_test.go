package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	actionJump uint = iota
	actionFire
)

const axisMoveForward uint = 0

func TestActionStaysPressedWhileAnyTriggerIsHeld(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button(), GamepadButtonA.Button()))

	actions, _ := m.OnButton(KeySpace.Button(), true)
	assert.Equal(t, []ActionStateChange{{ActionID: actionJump, IsPressed: true}}, actions)

	actions, _ = m.OnButton(GamepadButtonA.Button(), true)
	assert.Empty(t, actions)

	actions, _ = m.OnButton(KeySpace.Button(), false)
	assert.Empty(t, actions)
	assert.True(t, m.IsActionEventPressed(actionJump))

	actions, _ = m.OnButton(GamepadButtonA.Button(), false)
	assert.Equal(t, []ActionStateChange{{ActionID: actionJump, IsPressed: false}}, actions)
	assert.False(t, m.IsActionEventPressed(actionJump))
}

func TestOneButtonDrivesSeveralActions(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button()))
	require.NoError(t, m.AddActionEvent(actionFire, KeySpace.Button(), MouseButtonLeft.Button()))

	actions, _ := m.OnButton(KeySpace.Button(), true)
	assert.Equal(t, []ActionStateChange{
		{ActionID: actionJump, IsPressed: true},
		{ActionID: actionFire, IsPressed: true},
	}, actions)
}

func TestUnboundButtonProducesNoChanges(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button()))

	actions, axes := m.OnButton(KeyQ.Button(), true)
	assert.Empty(t, actions)
	assert.Empty(t, axes)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button()))
	assert.Error(t, m.AddActionEvent(actionJump, KeyEnter.Button()))
	assert.Error(t, m.RemoveActionEvent(actionFire))
	assert.Error(t, m.ModifyActionEventTriggers(actionFire))
}

func TestModifyTriggersResetsState(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button()))
	m.OnButton(KeySpace.Button(), true)

	require.NoError(t, m.ModifyActionEventTriggers(actionJump, KeyEnter.Button()))
	assert.False(t, m.IsActionEventPressed(actionJump))

	actions, _ := m.OnButton(KeySpace.Button(), false)
	assert.Empty(t, actions)
	actions, _ = m.OnButton(KeyEnter.Button(), true)
	assert.Len(t, actions, 1)
}

func TestAxisButtonsAndGamepadAxis(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddAxisEvent(axisMoveForward, []AxisTrigger{
		{Positive: KeyW.Button(), Negative: KeyS.Button()},
		{Positive: KeyUp.Button(), Negative: KeyDown.Button()},
	}, GamepadAxisLeftY))

	_, axes := m.OnButton(KeyW.Button(), true)
	assert.Equal(t, []AxisStateChange{{AxisID: axisMoveForward, Value: 1}}, axes)

	// W and Up together still clamp to 1, so nothing changes.
	_, axes = m.OnButton(KeyUp.Button(), true)
	assert.Empty(t, axes)

	_, axes = m.OnButton(KeyW.Button(), false)
	assert.Empty(t, axes)

	_, axes = m.OnButton(KeyDown.Button(), true)
	assert.Equal(t, []AxisStateChange{{AxisID: axisMoveForward, Value: 0}}, axes)

	_, _ = m.OnButton(KeyUp.Button(), false)
	assert.Equal(t, -1.0, m.AxisEventValue(axisMoveForward))

	_, _ = m.OnButton(KeyDown.Button(), false)
	changes := m.OnGamepadAxis(GamepadAxisLeftY, 0.5)
	assert.Equal(t, []AxisStateChange{{AxisID: axisMoveForward, Value: 0.5}}, changes)

	assert.Empty(t, m.OnGamepadAxis(GamepadAxisRightX, 1))
}

func TestReleaseAll(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.AddActionEvent(actionJump, KeySpace.Button()))
	require.NoError(t, m.AddAxisEvent(axisMoveForward, []AxisTrigger{{Positive: KeyW.Button(), Negative: KeyS.Button()}}))
	m.OnButton(KeySpace.Button(), true)
	m.OnButton(KeyW.Button(), true)

	actions, axes := m.ReleaseAll()
	assert.Equal(t, []ActionStateChange{{ActionID: actionJump}}, actions)
	assert.Equal(t, []AxisStateChange{{AxisID: axisMoveForward}}, axes)
	assert.False(t, m.IsActionEventPressed(actionJump))
}

func TestParseButton(t *testing.T) {
	tests := []struct {
		text string
		want Button
	}{
		{"space", KeySpace.Button()},
		{"key:w", KeyW.Button()},
		{"KEY:F5", KeyF5.Button()},
		{"mouse:left", MouseButtonLeft.Button()},
		{"gamepad:dpad_up", GamepadButtonDPadUp.Button()},
		{"key:7", Key7.Button()},
	}
	for _, tt := range tests {
		got, err := ParseButton(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, err := ParseButton("joystick:a")
	assert.Error(t, err)
	_, err = ParseButton("key:nope")
	assert.Error(t, err)
}

func TestBindingsApply(t *testing.T) {
	raw := []byte(`
actions:
  - id: 0
    name: jump
    triggers: [key:space, gamepad:a]
axes:
  - id: 0
    name: moveForward
    triggers:
      - {positive: key:w, negative: key:s}
    gamepad_axes: [left_y]
`)
	bindings, err := ParseBindings(raw)
	require.NoError(t, err)

	m := NewManager(nil)
	require.NoError(t, bindings.Apply(m))
	assert.Equal(t, []uint{0}, m.ActionEventIDs())
	assert.Equal(t, []uint{0}, m.AxisEventIDs())

	actions, _ := m.OnButton(GamepadButtonA.Button(), true)
	assert.Len(t, actions, 1)

	bad := &Bindings{Actions: []ActionBinding{{ID: 1, Name: "broken", Triggers: []string{"key:nope"}}}}
	assert.Error(t, bad.Apply(NewManager(nil)))
}

func BenchmarkOnButton(b *testing.B) {
	m := NewManager(nil)
	_ = m.AddActionEvent(actionJump, KeySpace.Button(), GamepadButtonA.Button())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.OnButton(KeySpace.Button(), i%2 == 0)
	}
}
