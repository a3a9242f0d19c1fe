package monitor

import (
	"time"

	"github.com/neuroplastio/neio-pad/padapi"
)

// Message is sent from the server to clients. Type is a notification kind
// ("button", "axis", "trigger", "position", "poll") or one of the reply types below.
type Message struct {
	Type      string `json:"type"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	TypeSnapshot = "snapshot"
	TypeAck      = "ack"
	TypeError    = "error"
)

// ClientMessage is a command sent by a client.
type ClientMessage struct {
	Type       string       `json:"type"`
	Controller int          `json:"controller"`
	Stick      padapi.Stick `json:"stick"`
}

const (
	CommandResetPosition = "reset_position"
	CommandSnapshot      = "snapshot"
)

// ControllerStatus is the full state of one controller.
type ControllerStatus struct {
	Index    int                     `json:"index"`
	Name     string                  `json:"name"`
	Serial   string                  `json:"serial,omitempty"`
	Profile  string                  `json:"profile"`
	State    string                  `json:"state"`
	Attached bool                    `json:"attached"`
	Axes     map[padapi.AxisID]int16 `json:"axes"`
	Buttons  map[string]bool         `json:"buttons"`
	Left     padapi.Position         `json:"left"`
	Right    padapi.Position         `json:"right"`
}

func newMessage(seq uint64, typ string, data any) Message {
	return Message{
		Type:      typ,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}
