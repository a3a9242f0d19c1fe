package agent

import "encoding/json"

// Config is the boot configuration. It is read once at startup; live changes go
// through the tuning file.
type Config struct {
	DataDir      string `json:"dataDir"`
	TuningConfig string `json:"tuningConfig"`

	// Backend names the device backend: "sdl", "linux" or "virtual".
	Backend       string          `json:"backend"`
	BackendConfig json.RawMessage `json:"backendConfig,omitempty"`

	// Profile is a built-in profile name or a path to a YAML profile. Empty uses the
	// backend's suggestion per device.
	Profile string `json:"profile,omitempty"`

	Controllers []int `json:"controllers,omitempty"`
	OpenAll     bool  `json:"openAll"`

	// MonitorAddr is the WebSocket monitor listen address. Empty disables the monitor.
	MonitorAddr string `json:"monitorAddr,omitempty"`
}
