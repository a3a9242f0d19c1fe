// Package virtual implements an in-memory device backend. Devices are fed by Push and
// drained by the controller like real hardware.
package virtual

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DefaultQueueLimit bounds each device's pending events.
const DefaultQueueLimit = 4096

type Config struct {
	Devices []DeviceConfig `json:"devices"`
}

type DeviceConfig struct {
	Name    string `json:"name"`
	Serial  string `json:"serial"`
	Profile string `json:"profile"`
}

// ParseConfig decodes backend config. Empty config yields one default device.
func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := Config{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid virtual backend config: %w", err)
		}
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = []DeviceConfig{{Name: "Virtual Pad", Serial: "virtual-0", Profile: "xbox"}}
	}
	return cfg, nil
}

type Backend struct {
	log     *zap.Logger
	mu      sync.Mutex
	count   int
	devices *xsync.MapOf[int, *Device]
}

func NewBackend(log *zap.Logger, cfg Config) *Backend {
	b := &Backend{
		log:     log,
		devices: xsync.NewMapOf[int, *Device](),
	}
	for _, d := range cfg.Devices {
		b.Add(d.Name, d.Serial, d.Profile)
	}
	return b
}

// Add attaches a new device at the next free index.
func (b *Backend) Add(name, serial, profile string) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &Device{
		name:    name,
		serial:  serial,
		profile: profile,
		index:   b.count,
		queue:   padapi.NewEventQueue(DefaultQueueLimit),
	}
	d.attached.Store(true)
	b.devices.Store(b.count, d)
	b.count++
	b.log.Debug("Virtual device added", zap.Int("index", d.index), zap.String("name", name))
	return d
}

// Device returns the device at index, attached or not.
func (b *Backend) Device(index int) (*Device, bool) {
	return b.devices.Load(index)
}

func (b *Backend) Enumerate() ([]padapi.DeviceInfo, error) {
	b.mu.Lock()
	count := b.count
	b.mu.Unlock()
	infos := make([]padapi.DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		d, ok := b.devices.Load(i)
		if !ok || !d.Attached() {
			continue
		}
		infos = append(infos, padapi.DeviceInfo{
			Index:   i,
			Name:    d.name,
			Serial:  d.serial,
			Path:    fmt.Sprintf("virtual:%d", i),
			Profile: d.profile,
		})
	}
	return infos, nil
}

func (b *Backend) Open(index int) (padapi.Device, error) {
	d, ok := b.devices.Load(index)
	if !ok || !d.Attached() {
		return nil, fmt.Errorf("%w: no virtual device at index %d", padapi.ErrDeviceUnavailable, index)
	}
	if !d.open.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: virtual device %d is already open", padapi.ErrDeviceUnavailable, index)
	}
	return d, nil
}

func (b *Backend) Close() error {
	return nil
}

// Device is a scripted device handle.
type Device struct {
	name     string
	serial   string
	profile  string
	index    int
	queue    *padapi.EventQueue
	attached atomic.Bool
	open     atomic.Bool
}

// Push queues events for the next poll cycles and returns how many were rejected.
func (d *Device) Push(events ...padapi.RawEvent) int {
	return d.queue.Push(events...)
}

// Detach simulates unplugging. Queued events stay readable.
func (d *Device) Detach() {
	d.attached.Store(false)
}

func (d *Device) IsOpen() bool {
	return d.open.Load()
}

func (d *Device) Index() int {
	return d.index
}

func (d *Device) PollRawEvents(max int) []padapi.RawEvent {
	return d.queue.Take(max)
}

func (d *Device) Attached() bool {
	return d.attached.Load()
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Serial() string {
	return d.serial
}

func (d *Device) Close() error {
	d.open.Store(false)
	return nil
}
