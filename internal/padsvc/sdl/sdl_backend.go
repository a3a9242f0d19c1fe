// Package sdl implements a device backend on top of the SDL2 game controller API.
package sdl

import (
	"fmt"
	"sync"

	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
)

// queueLimit bounds events routed to a controller between two of its poll cycles.
const queueLimit = 1024

// Backend shares one SDL event queue between all opened controllers. Every poll of any
// device pumps SDL and routes the events to per-controller queues by instance id, so
// no goroutine is needed.
type Backend struct {
	log *zap.Logger

	mu          sync.Mutex
	initialized bool
	opened      *xsync.MapOf[sdl.JoystickID, *device]
}

func NewBackend(log *zap.Logger) *Backend {
	return &Backend{
		log:    log,
		opened: xsync.NewMapOf[sdl.JoystickID, *device](),
	}
}

func (b *Backend) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	if err := sdl.Init(sdl.INIT_GAMECONTROLLER); err != nil {
		return fmt.Errorf("%w: failed to initialize SDL: %w", padapi.ErrDeviceUnavailable, err)
	}
	b.initialized = true
	b.log.Info("SDL game controller subsystem initialized")
	return nil
}

func (b *Backend) Enumerate() ([]padapi.DeviceInfo, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var infos []padapi.DeviceInfo
	for i := 0; i < sdl.NumJoysticks(); i++ {
		if !sdl.IsGameController(i) {
			continue
		}
		infos = append(infos, padapi.DeviceInfo{
			Index:   i,
			Name:    sdl.GameControllerNameForIndex(i),
			Path:    fmt.Sprintf("sdl:%d", i),
			Profile: "xbox",
		})
	}
	return infos, nil
}

func (b *Backend) Open(index int) (padapi.Device, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= sdl.NumJoysticks() || !sdl.IsGameController(index) {
		return nil, fmt.Errorf("%w: no game controller at index %d", padapi.ErrDeviceUnavailable, index)
	}
	gc := sdl.GameControllerOpen(index)
	if gc == nil {
		return nil, fmt.Errorf("%w: %s", padapi.ErrDeviceUnavailable, sdl.GetError())
	}
	joy := gc.Joystick()
	d := &device{
		backend: b,
		gc:      gc,
		id:      joy.InstanceID(),
		name:    gc.Name(),
		serial:  sdl.JoystickGetGUIDString(joy.GUID()),
		queue:   padapi.NewEventQueue(queueLimit),
	}
	b.opened.Store(d.id, d)
	b.log.Debug("Game controller opened",
		zap.Int("index", index),
		zap.Int32("instance", int32(d.id)),
		zap.String("name", d.name),
	)
	return d, nil
}

// pump drains SDL's event queue into the opened controllers' queues.
func (b *Backend) pump() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return
	}
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch ev := ev.(type) {
		case *sdl.ControllerAxisEvent:
			b.route(ev.Which, padapi.AxisMotion(padapi.AxisID(ev.Axis), ev.Value))
		case *sdl.ControllerButtonEvent:
			b.route(ev.Which, padapi.ButtonEvent(padapi.ButtonID(ev.Button), ev.State))
		case *sdl.QuitEvent:
			b.opened.Range(func(_ sdl.JoystickID, d *device) bool {
				d.queue.Push(padapi.Quit())
				return true
			})
		}
	}
}

func (b *Backend) route(id sdl.JoystickID, ev padapi.RawEvent) {
	d, ok := b.opened.Load(id)
	if !ok {
		return
	}
	if d.queue.Push(ev) > 0 {
		b.log.Debug("Controller queue full, event dropped", zap.Int32("instance", int32(id)))
	}
}

// Close shuts the SDL subsystem down. Opened devices must be closed first.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	b.opened.Range(func(id sdl.JoystickID, d *device) bool {
		d.gc.Close()
		b.opened.Delete(id)
		return true
	})
	sdl.QuitSubSystem(sdl.INIT_GAMECONTROLLER)
	b.initialized = false
	return nil
}

type device struct {
	backend *Backend
	gc      *sdl.GameController
	id      sdl.JoystickID
	name    string
	serial  string
	queue   *padapi.EventQueue
}

func (d *device) PollRawEvents(max int) []padapi.RawEvent {
	d.backend.pump()
	return d.queue.Take(max)
}

func (d *device) Attached() bool {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if _, ok := d.backend.opened.Load(d.id); !ok {
		return false
	}
	return d.gc.Attached()
}

func (d *device) Name() string {
	return d.name
}

// Serial returns the controller GUID, which is stable across sessions.
func (d *device) Serial() string {
	return d.serial
}

func (d *device) Close() error {
	d.backend.mu.Lock()
	defer d.backend.mu.Unlock()
	if _, ok := d.backend.opened.LoadAndDelete(d.id); !ok {
		return nil
	}
	d.gc.Close()
	return nil
}
