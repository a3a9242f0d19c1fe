package padapi

import (
	"fmt"
	"strings"
)

type NotificationKind uint8

const (
	KindButtonChanged NotificationKind = iota + 1
	KindAxisChanged
	KindTriggerChanged
	KindAbsolutePositionChanged
	KindPollCompleted
)

var kindNames = map[NotificationKind]string{
	KindButtonChanged:           "button",
	KindAxisChanged:             "axis",
	KindTriggerChanged:          "trigger",
	KindAbsolutePositionChanged: "position",
	KindPollCompleted:           "poll",
}

func (k NotificationKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseNotificationKind resolves the short name used in JSON output.
func ParseNotificationKind(name string) (NotificationKind, bool) {
	for k, n := range kindNames {
		if n == strings.ToLower(name) {
			return k, true
		}
	}
	return 0, false
}

func (k NotificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Notification is delivered synchronously to subscribers from the poll cycle.
type Notification interface {
	Kind() NotificationKind
}

// Handler receives notifications. It runs on the poll cycle and must not block.
type Handler func(n Notification)

type ButtonChanged struct {
	Controller int      `json:"controller"`
	Button     ButtonID `json:"button"`
	Key        string   `json:"key"`
	State      uint8    `json:"state"`
	Pressed    bool     `json:"pressed"`
}

func (ButtonChanged) Kind() NotificationKind { return KindButtonChanged }

// AxisChanged reports a thumbstick axis. Initial is set for the first observation of
// the axis, in which case Value is scaled and rounded but not dead-zone filtered.
type AxisChanged struct {
	Controller int     `json:"controller"`
	Axis       AxisID  `json:"axis"`
	Value      float64 `json:"value"`
	Raw        int16   `json:"raw"`
	Initial    bool    `json:"initial,omitempty"`
}

func (AxisChanged) Kind() NotificationKind { return KindAxisChanged }

type TriggerChanged struct {
	Controller int    `json:"controller"`
	Axis       AxisID `json:"axis"`
	Raw        int16  `json:"raw"`
	Initial    bool   `json:"initial,omitempty"`
}

func (TriggerChanged) Kind() NotificationKind { return KindTriggerChanged }

type Stick uint8

const (
	StickLeft Stick = iota
	StickRight
)

func (s Stick) String() string {
	if s == StickRight {
		return "right"
	}
	return "left"
}

func (s Stick) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stick) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "left", "l":
		*s = StickLeft
	case "right", "r":
		*s = StickRight
	default:
		return fmt.Errorf("unknown stick %q", string(text))
	}
	return nil
}

type AbsolutePositionChanged struct {
	Controller int     `json:"controller"`
	Stick      Stick   `json:"stick"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

func (AbsolutePositionChanged) Kind() NotificationKind { return KindAbsolutePositionChanged }

// PollCompleted is emitted at the end of a cycle that processed at least one raw event.
type PollCompleted struct {
	Controller int `json:"controller"`
	Events     int `json:"events"`
}

func (PollCompleted) Kind() NotificationKind { return KindPollCompleted }
