package padapi

// Device is an opened handle to one physical controller.
type Device interface {
	// PollRawEvents returns up to max buffered events in arrival order. It must not block.
	PollRawEvents(max int) []RawEvent
	Attached() bool
	Name() string
	Serial() string
	Close() error
}

// DeviceInfo describes an attached device as reported by Backend.Enumerate.
type DeviceInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Serial  string `json:"serial,omitempty"`
	Path    string `json:"path,omitempty"`
	Profile string `json:"profile"`
}

// Backend opens devices by index.
type Backend interface {
	Enumerate() ([]DeviceInfo, error)
	Open(index int) (Device, error)
	Close() error
}
