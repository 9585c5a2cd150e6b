// Package input maps raw keyboard, mouse and gamepad buttons to numbered action and axis events.
//
// Many buttons can drive one event (W and the up arrow both moving forward), and every event keeps the pressed
// state of each of its triggers separately, so releasing one of several held triggers doesn't release the event.
package input

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AxisTrigger is a pair of buttons driving an axis event: Positive pushes the axis to 1, Negative to -1.
type AxisTrigger struct {
	Positive Button
	Negative Button
}

// ActionStateChange reports that an action event became pressed or released.
type ActionStateChange struct {
	ActionID  uint
	IsPressed bool
}

// AxisStateChange reports a new value of an axis event.
type AxisStateChange struct {
	AxisID uint
	Value  float64
}

type actionEvent struct {
	pressedTriggers map[Button]bool
	isPressed       bool
}

type axisTriggerState struct {
	positive bool
	negative bool
}

func (state axisTriggerState) value() float64 {
	switch {
	case state.positive && !state.negative:
		return 1
	case state.negative && !state.positive:
		return -1
	}
	return 0
}

type axisEvent struct {
	triggers    map[AxisTrigger]*axisTriggerState
	gamepadAxes map[GamepadAxis]float64
	value       float64
}

func (event *axisEvent) recalculate() float64 {
	sum := 0.0
	for _, state := range event.triggers {
		sum += state.value()
	}
	for _, value := range event.gamepadAxes {
		sum += value
	}
	return max(-1, min(1, sum))
}

// Manager owns the action and axis event tables. It is safe for concurrent use.
type Manager struct {
	log *zap.Logger

	mu                sync.Mutex
	actions           map[uint]*actionEvent
	axes              map[uint]*axisEvent
	actionsByButton   map[Button][]uint
	axesByButton      map[Button][]uint
	axesByGamepadAxis map[GamepadAxis][]uint
}

// NewManager creates an empty Manager. A nil logger disables logging.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:               log,
		actions:           map[uint]*actionEvent{},
		axes:              map[uint]*axisEvent{},
		actionsByButton:   map[Button][]uint{},
		axesByButton:      map[Button][]uint{},
		axesByGamepadAxis: map[GamepadAxis][]uint{},
	}
}

// AddActionEvent registers a new action event triggered by any of the given buttons.
func (m *Manager) AddActionEvent(id uint, triggers ...Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.actions[id]; exists {
		return fmt.Errorf("action event %d is already registered", id)
	}
	m.actions[id] = newActionEvent(triggers)
	m.rebuildIndexes()
	return nil
}

// ModifyActionEventTriggers replaces the triggers of an existing action event. The event's pressed state is reset.
func (m *Manager) ModifyActionEventTriggers(id uint, triggers ...Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.actions[id]; !exists {
		return fmt.Errorf("action event %d is not registered", id)
	}
	m.actions[id] = newActionEvent(triggers)
	m.rebuildIndexes()
	return nil
}

// RemoveActionEvent unregisters an action event.
func (m *Manager) RemoveActionEvent(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.actions[id]; !exists {
		return fmt.Errorf("action event %d is not registered", id)
	}
	delete(m.actions, id)
	m.rebuildIndexes()
	return nil
}

// AddAxisEvent registers a new axis event driven by button pairs and (optionally) gamepad axes.
func (m *Manager) AddAxisEvent(id uint, triggers []AxisTrigger, gamepadAxes ...GamepadAxis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.axes[id]; exists {
		return fmt.Errorf("axis event %d is already registered", id)
	}
	m.axes[id] = newAxisEvent(triggers, gamepadAxes)
	m.rebuildIndexes()
	return nil
}

// RemoveAxisEvent unregisters an axis event.
func (m *Manager) RemoveAxisEvent(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.axes[id]; !exists {
		return fmt.Errorf("axis event %d is not registered", id)
	}
	delete(m.axes, id)
	m.rebuildIndexes()
	return nil
}

// ActionEventIDs returns the registered action event IDs in ascending order.
func (m *Manager) ActionEventIDs() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.actions)
}

// AxisEventIDs returns the registered axis event IDs in ascending order.
func (m *Manager) AxisEventIDs() []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.axes)
}

// IsActionEventPressed returns whether any trigger of the action event is held.
func (m *Manager) IsActionEventPressed(id uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := m.actions[id]; ok {
		return event.isPressed
	}
	return false
}

// AxisEventValue returns the current value of the axis event in the range [-1, 1].
func (m *Manager) AxisEventValue(id uint) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := m.axes[id]; ok {
		return event.value
	}
	return 0
}

// OnButton records a button press or release and returns the action and axis events whose state changed as a
// result, in ascending ID order.
func (m *Manager) OnButton(button Button, isPressed bool) ([]ActionStateChange, []AxisStateChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var actionChanges []ActionStateChange
	for _, id := range m.actionsByButton[button] {
		event := m.actions[id]
		if _, ok := event.pressedTriggers[button]; !ok {
			m.log.Warn("button is missing from the action event's trigger table",
				zap.Uint("action", id), zap.Stringer("button", button))
			continue
		}
		event.pressedTriggers[button] = isPressed

		nowPressed := false
		for _, pressed := range event.pressedTriggers {
			if pressed {
				nowPressed = true
				break
			}
		}
		if nowPressed != event.isPressed {
			event.isPressed = nowPressed
			actionChanges = append(actionChanges, ActionStateChange{ActionID: id, IsPressed: nowPressed})
		}
	}

	var axisChanges []AxisStateChange
	for _, id := range m.axesByButton[button] {
		event := m.axes[id]
		found := false
		for trigger, state := range event.triggers {
			if trigger.Positive == button {
				state.positive = isPressed
				found = true
			}
			if trigger.Negative == button {
				state.negative = isPressed
				found = true
			}
		}
		if !found {
			m.log.Warn("button is missing from the axis event's trigger table",
				zap.Uint("axis", id), zap.Stringer("button", button))
			continue
		}
		if value := event.recalculate(); value != event.value {
			event.value = value
			axisChanges = append(axisChanges, AxisStateChange{AxisID: id, Value: value})
		}
	}

	return actionChanges, axisChanges
}

// OnGamepadAxis records a new position of a gamepad axis and returns the axis events whose value changed.
func (m *Manager) OnGamepadAxis(axis GamepadAxis, value float64) []AxisStateChange {
	m.mu.Lock()
	defer m.mu.Unlock()

	value = max(-1, min(1, value))

	var changes []AxisStateChange
	for _, id := range m.axesByGamepadAxis[axis] {
		event := m.axes[id]
		if _, ok := event.gamepadAxes[axis]; !ok {
			m.log.Warn("gamepad axis is missing from the axis event's trigger table", zap.Uint("axis", id))
			continue
		}
		event.gamepadAxes[axis] = value
		if newValue := event.recalculate(); newValue != event.value {
			event.value = newValue
			changes = append(changes, AxisStateChange{AxisID: id, Value: newValue})
		}
	}
	return changes
}

// ReleaseAll clears every pressed trigger (for example when the window loses focus) and returns the resulting
// state changes.
func (m *Manager) ReleaseAll() ([]ActionStateChange, []AxisStateChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var actionChanges []ActionStateChange
	for _, id := range sortedKeys(m.actions) {
		event := m.actions[id]
		for button := range event.pressedTriggers {
			event.pressedTriggers[button] = false
		}
		if event.isPressed {
			event.isPressed = false
			actionChanges = append(actionChanges, ActionStateChange{ActionID: id})
		}
	}

	var axisChanges []AxisStateChange
	for _, id := range sortedKeys(m.axes) {
		event := m.axes[id]
		for _, state := range event.triggers {
			*state = axisTriggerState{}
		}
		for axis := range event.gamepadAxes {
			event.gamepadAxes[axis] = 0
		}
		if event.value != 0 {
			event.value = 0
			axisChanges = append(axisChanges, AxisStateChange{AxisID: id})
		}
	}
	return actionChanges, axisChanges
}

func newActionEvent(triggers []Button) *actionEvent {
	event := &actionEvent{pressedTriggers: make(map[Button]bool, len(triggers))}
	for _, trigger := range triggers {
		event.pressedTriggers[trigger] = false
	}
	return event
}

func newAxisEvent(triggers []AxisTrigger, gamepadAxes []GamepadAxis) *axisEvent {
	event := &axisEvent{
		triggers:    make(map[AxisTrigger]*axisTriggerState, len(triggers)),
		gamepadAxes: make(map[GamepadAxis]float64, len(gamepadAxes)),
	}
	for _, trigger := range triggers {
		event.triggers[trigger] = &axisTriggerState{}
	}
	for _, axis := range gamepadAxes {
		event.gamepadAxes[axis] = 0
	}
	return event
}

// rebuildIndexes recomputes the button → event lookups. Called with m.mu held.
func (m *Manager) rebuildIndexes() {
	clear(m.actionsByButton)
	clear(m.axesByButton)
	clear(m.axesByGamepadAxis)

	for _, id := range sortedKeys(m.actions) {
		for button := range m.actions[id].pressedTriggers {
			m.actionsByButton[button] = append(m.actionsByButton[button], id)
		}
	}

	for _, id := range sortedKeys(m.axes) {
		event := m.axes[id]
		seen := map[Button]bool{}
		for trigger := range event.triggers {
			for _, button := range []Button{trigger.Positive, trigger.Negative} {
				if !seen[button] {
					seen[button] = true
					m.axesByButton[button] = append(m.axesByButton[button], id)
				}
			}
		}
		for axis := range event.gamepadAxes {
			m.axesByGamepadAxis[axis] = append(m.axesByGamepadAxis[axis], id)
		}
	}
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
