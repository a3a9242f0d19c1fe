//go:build linux

// Package linux implements a device backend on the Linux joystick interface
// (/dev/input/jsN). Devices are discovered through udev and serial numbers are
// resolved through hidapi.
package linux

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jochenvg/go-udev"
	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/sstallion/go-hid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type Config struct {
	DevDir  string `json:"devDir"`
	Profile string `json:"profile"`
}

var defaultConfig = Config{
	DevDir:  "/dev/input",
	Profile: "xpad",
}

func ParseConfig(raw json.RawMessage) (Config, error) {
	cfg := defaultConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid linux backend config: %w", err)
		}
	}
	return cfg, nil
}

type Backend struct {
	log    *zap.Logger
	config Config
	udev   *udev.Udev

	hidOnce  sync.Once
	hidReady atomic.Bool
}

func NewBackend(log *zap.Logger, cfg Config) *Backend {
	return &Backend{
		log:    log,
		config: cfg,
		udev:   &udev.Udev{},
	}
}

func (b *Backend) Enumerate() ([]padapi.DeviceInfo, error) {
	e := b.udev.NewEnumerate()
	if err := e.AddMatchSubsystem("input"); err != nil {
		return nil, fmt.Errorf("%w: %w", padapi.ErrDeviceUnavailable, err)
	}
	if err := e.AddMatchSysname("js*"); err != nil {
		return nil, fmt.Errorf("%w: %w", padapi.ErrDeviceUnavailable, err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate joysticks: %w", padapi.ErrDeviceUnavailable, err)
	}
	infos := make([]padapi.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		index, err := strconv.Atoi(dev.Sysnum())
		if err != nil {
			b.log.Debug("Skipping joystick without number", zap.String("syspath", dev.Syspath()))
			continue
		}
		infos = append(infos, padapi.DeviceInfo{
			Index:   index,
			Name:    deviceName(dev),
			Serial:  b.serial(dev),
			Path:    b.devPath(index),
			Profile: b.config.Profile,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Index < infos[j].Index
	})
	return infos, nil
}

func (b *Backend) devPath(index int) string {
	return filepath.Join(b.config.DevDir, fmt.Sprintf("js%d", index))
}

func (b *Backend) lookup(index int) *udev.Device {
	return b.udev.NewDeviceFromSubsystemSysname("input", fmt.Sprintf("js%d", index))
}

func deviceName(dev *udev.Device) string {
	if parent := dev.Parent(); parent != nil {
		if name := strings.Trim(parent.SysattrValue("name"), "\" \n"); name != "" {
			return name
		}
	}
	return dev.Sysname()
}

// serial prefers the HID serial number and falls back to the udev property.
func (b *Backend) serial(dev *udev.Device) string {
	vendor, errV := strconv.ParseUint(dev.PropertyValue("ID_VENDOR_ID"), 16, 16)
	product, errP := strconv.ParseUint(dev.PropertyValue("ID_MODEL_ID"), 16, 16)
	if errV == nil && errP == nil {
		if serial := b.hidSerial(uint16(vendor), uint16(product)); serial != "" {
			return serial
		}
	}
	return dev.PropertyValue("ID_SERIAL_SHORT")
}

func (b *Backend) hidSerial(vendor, product uint16) string {
	b.hidOnce.Do(func() {
		if err := hid.Init(); err != nil {
			b.log.Warn("hidapi unavailable, serial numbers fall back to udev", zap.Error(err))
			return
		}
		b.hidReady.Store(true)
	})
	if !b.hidReady.Load() {
		return ""
	}
	var serial string
	err := hid.Enumerate(vendor, product, func(info *hid.DeviceInfo) error {
		if serial == "" {
			serial = info.SerialNbr
		}
		return nil
	})
	if err != nil {
		b.log.Debug("HID enumeration failed", zap.Error(err))
		return ""
	}
	return serial
}

func (b *Backend) Open(index int) (padapi.Device, error) {
	path := b.devPath(index)
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", padapi.ErrDeviceUnavailable, path, err)
	}
	d := &device{
		log:  b.log.With(zap.String("path", path)),
		fd:   fd,
		name: jsName(fd),
	}
	if udevDev := b.lookup(index); udevDev != nil {
		if d.name == "" {
			d.name = deviceName(udevDev)
		}
		d.serial = b.serial(udevDev)
	}
	d.attached.Store(true)
	b.log.Debug("Joystick opened", zap.String("path", path), zap.String("name", d.name))
	return d, nil
}

func (b *Backend) Close() error {
	if b.hidReady.CompareAndSwap(true, false) {
		return hid.Exit()
	}
	return nil
}

type device struct {
	log      *zap.Logger
	mu       sync.Mutex
	fd       int
	name     string
	serial   string
	carry    []byte
	attached atomic.Bool
}

func (d *device) PollRawEvents(max int) []padapi.RawEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 || max <= 0 {
		return nil
	}
	var events []padapi.RawEvent
	for len(events) < max {
		want := (max-len(events))*jsEventSize - len(d.carry)
		if want <= 0 {
			break
		}
		buf := make([]byte, len(d.carry)+want)
		copy(buf, d.carry)
		n, err := unix.Read(d.fd, buf[len(d.carry):])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return events
		case errors.Is(err, unix.ENODEV):
			if d.attached.CompareAndSwap(true, false) {
				d.log.Warn("Joystick detached")
			}
			return events
		case err != nil:
			d.log.Debug("Joystick read failed", zap.Error(err))
			return events
		case n == 0:
			return events
		}
		events, d.carry = decodeEvents(buf[:len(d.carry)+n], events)
		d.carry = append([]byte(nil), d.carry...)
	}
	return events
}

func (d *device) Attached() bool {
	return d.attached.Load()
}

func (d *device) Name() string {
	return d.name
}

func (d *device) Serial() string {
	return d.serial
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	d.attached.Store(false)
	return err
}
