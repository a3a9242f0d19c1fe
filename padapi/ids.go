package padapi

import "fmt"

// AxisID identifies an analog control within a device profile.
type AxisID uint8

// ButtonID identifies a digital control within a device profile.
// Button and axis ids live in separate spaces.
type ButtonID uint8

type RawEventType uint8

const (
	// RawEventNone marks an event the backend could not decode. The controller drops it.
	RawEventNone RawEventType = iota
	RawEventAxisMotion
	RawEventButton
	// RawEventQuit asks the controller to close immediately.
	RawEventQuit
)

func (t RawEventType) String() string {
	switch t {
	case RawEventAxisMotion:
		return "axis"
	case RawEventButton:
		return "button"
	case RawEventQuit:
		return "quit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// RawEvent is a single sample pulled from a Device. Value is set for axis motion,
// State for buttons.
type RawEvent struct {
	Type   RawEventType
	Axis   AxisID
	Button ButtonID
	Value  int16
	State  uint8
}

func AxisMotion(axis AxisID, value int16) RawEvent {
	return RawEvent{Type: RawEventAxisMotion, Axis: axis, Value: value}
}

func ButtonEvent(button ButtonID, state uint8) RawEvent {
	return RawEvent{Type: RawEventButton, Button: button, State: state}
}

func Quit() RawEvent {
	return RawEvent{Type: RawEventQuit}
}

func (e RawEvent) String() string {
	switch e.Type {
	case RawEventAxisMotion:
		return fmt.Sprintf("axis%d=%d", e.Axis, e.Value)
	case RawEventButton:
		return fmt.Sprintf("button%d=%d", e.Button, e.State)
	default:
		return e.Type.String()
	}
}
