package padapi

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// StateStore holds the last raw value seen for every axis and button of one device.
// It is written by the owning controller's poll cycle and may be read concurrently
// from any goroutine. Unknown ids read as zero.
type StateStore struct {
	axes    *xsync.MapOf[AxisID, int16]
	buttons *xsync.MapOf[ButtonID, uint8]
}

func NewStateStore() *StateStore {
	return &StateStore{
		axes:    xsync.NewMapOf[AxisID, int16](),
		buttons: xsync.NewMapOf[ButtonID, uint8](),
	}
}

func (s *StateStore) Axis(id AxisID) int16 {
	v, _ := s.axes.Load(id)
	return v
}

// LookupAxis reports whether the axis has been observed at least once.
func (s *StateStore) LookupAxis(id AxisID) (int16, bool) {
	return s.axes.Load(id)
}

// SetAxis stores value and returns the previous one.
func (s *StateStore) SetAxis(id AxisID, value int16) int16 {
	prev, _ := s.axes.LoadAndStore(id, value)
	return prev
}

func (s *StateStore) Button(id ButtonID) uint8 {
	v, _ := s.buttons.Load(id)
	return v
}

// SetButton stores state and returns the previous one.
func (s *StateStore) SetButton(id ButtonID, state uint8) uint8 {
	prev, _ := s.buttons.LoadAndStore(id, state)
	return prev
}

// Snapshot is a point-in-time copy of a StateStore.
type Snapshot struct {
	Axes    map[AxisID]int16   `json:"axes"`
	Buttons map[ButtonID]uint8 `json:"buttons"`
}

func (s *StateStore) Snapshot() Snapshot {
	snap := Snapshot{
		Axes:    make(map[AxisID]int16, s.axes.Size()),
		Buttons: make(map[ButtonID]uint8, s.buttons.Size()),
	}
	s.axes.Range(func(id AxisID, v int16) bool {
		snap.Axes[id] = v
		return true
	})
	s.buttons.Range(func(id ButtonID, v uint8) bool {
		snap.Buttons[id] = v
		return true
	})
	return snap
}
