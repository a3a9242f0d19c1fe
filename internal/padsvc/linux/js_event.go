package linux

import (
	"encoding/binary"

	"github.com/neuroplastio/neio-pad/padapi"
)

// Joystick API event record (linux/joystick.h): u32 time, s16 value, u8 type, u8 number.
const (
	jsEventSize = 8

	jsEventButton = 0x01
	jsEventAxis   = 0x02
	// jsEventInit marks synthetic events describing the initial state on open.
	jsEventInit = 0x80
)

// decodeEvents converts whole records in buf and returns the unconsumed tail.
func decodeEvents(buf []byte, out []padapi.RawEvent) ([]padapi.RawEvent, []byte) {
	for len(buf) >= jsEventSize {
		out = append(out, decodeEvent(buf[:jsEventSize]))
		buf = buf[jsEventSize:]
	}
	return out, buf
}

func decodeEvent(rec []byte) padapi.RawEvent {
	value := int16(binary.LittleEndian.Uint16(rec[4:6]))
	number := rec[7]
	switch rec[6] &^ jsEventInit {
	case jsEventButton:
		var state uint8
		if value != 0 {
			state = 1
		}
		return padapi.ButtonEvent(padapi.ButtonID(number), state)
	case jsEventAxis:
		return padapi.AxisMotion(padapi.AxisID(number), value)
	}
	return padapi.RawEvent{Type: padapi.RawEventNone}
}
