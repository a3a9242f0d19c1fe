// Package padsvc owns the set of open controllers: it opens them on demand, keeps their
// tuning in sync with the tuning file, remembers every device it has seen and fans
// their notifications out to service-wide subscribers.
package padsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-pad/internal/configsvc"
	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/neuroplastio/neio-pad/pkg/bus"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrControllerNotFound = errors.New("controller not found")

type Service struct {
	log         *zap.Logger
	db          *badger.DB
	config      *configsvc.Service
	backend     padapi.Backend
	backendName string
	options     serviceOptions
	now         func() time.Time
	ready       chan struct{}

	bus         *padapi.NotificationBus
	tuning      atomic.Pointer[padapi.Tuning]
	openMu      sync.Mutex
	controllers *xsync.MapOf[int, *controllerEntry]
	closed      atomic.Bool
}

type controllerEntry struct {
	ctrl  *padapi.Controller
	left  *padapi.Integrator
	right *padapi.Integrator
	info  padapi.DeviceInfo
}

func (e *controllerEntry) integrator(stick padapi.Stick) *padapi.Integrator {
	if stick == padapi.StickRight {
		return e.right
	}
	return e.left
}

var defaultOptions = serviceOptions{}

type serviceOptions struct {
	tuningPath  string
	profile     *padapi.Profile
	controllers []int
	openAll     bool
}

type Option func(*serviceOptions)

// WithTuningPath enables the live tuning file. It is created with defaults when missing.
func WithTuningPath(path string) Option {
	return func(o *serviceOptions) {
		o.tuningPath = path
	}
}

// WithProfile forces a layout for every controller instead of the backend's suggestion.
func WithProfile(p *padapi.Profile) Option {
	return func(o *serviceOptions) {
		o.profile = p
	}
}

// WithControllers opens the given device indexes on Start.
func WithControllers(indexes ...int) Option {
	return func(o *serviceOptions) {
		o.controllers = append(o.controllers, indexes...)
	}
}

// WithOpenAll opens every attached device on Start.
func WithOpenAll() Option {
	return func(o *serviceOptions) {
		o.openAll = true
	}
}

func New(db *badger.DB, config *configsvc.Service, backendName string, backend padapi.Backend, log *zap.Logger, now func() time.Time, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		log:         log,
		db:          db,
		config:      config,
		backend:     backend,
		backendName: backendName,
		options:     options,
		now:         now,
		ready:       make(chan struct{}),
		bus:         bus.NewBus[padapi.NotificationKind, padapi.Notification](log),
		controllers: xsync.NewMapOf[int, *controllerEntry](),
	}
	tuning := padapi.DefaultTuning()
	s.tuning.Store(&tuning)
	return s
}

// Start loads the tuning file, opens the configured controllers and blocks until ctx is
// done. Every controller is closed on return.
func (s *Service) Start(ctx context.Context) error {
	defer s.Close()
	if s.options.tuningPath != "" {
		select {
		case <-ctx.Done():
			return nil
		case <-s.config.Ready():
		}
		tuning, err := configsvc.RegisterWriteable(s.config, s.options.tuningPath, padapi.DefaultTuning(), s.onTuningChange)
		if err != nil {
			return fmt.Errorf("failed to register tuning config: %w", err)
		}
		if err := tuning.Validate(); err != nil {
			return fmt.Errorf("tuning file %s: %w", s.options.tuningPath, err)
		}
		s.tuning.Store(&tuning)
	}

	switch {
	case s.options.openAll:
		if _, err := s.OpenAll(ctx); err != nil {
			s.log.Error("Failed to open some controllers", zap.Error(err))
		}
	default:
		for _, index := range s.options.controllers {
			// Failures are logged by Open.
			_, _ = s.Open(ctx, index)
		}
	}

	close(s.ready)
	s.log.Info("Service started", zap.String("backend", s.backendName), zap.Int("controllers", s.controllers.Size()))
	<-ctx.Done()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) BackendName() string {
	return s.backendName
}

func (s *Service) Tuning() padapi.Tuning {
	return *s.tuning.Load()
}

// onTuningChange applies a reloaded tuning file. An invalid file is rejected and the
// last valid tuning stays in effect.
func (s *Service) onTuningChange(tuning padapi.Tuning, err error) error {
	if err != nil {
		return err
	}
	if err := tuning.Validate(); err != nil {
		return err
	}
	s.tuning.Store(&tuning)
	s.controllers.Range(func(index int, e *controllerEntry) bool {
		if err := e.ctrl.SetTuning(tuning); err != nil {
			s.log.Error("Failed to apply tuning", zap.Int("index", index), zap.Error(err))
		}
		e.left.Configure(tuning.Integrator(padapi.StickLeft))
		e.right.Configure(tuning.Integrator(padapi.StickRight))
		return true
	})
	s.log.Info("Tuning reloaded", zap.Any("tuning", tuning))
	return nil
}

// SetTuning applies and, when a tuning file is configured, persists tuning.
func (s *Service) SetTuning(tuning padapi.Tuning) error {
	if err := s.onTuningChange(tuning, nil); err != nil {
		return err
	}
	if s.options.tuningPath == "" {
		return nil
	}
	return configsvc.Write(s.options.tuningPath, tuning)
}

// ListDevices enumerates the devices currently attached to the backend.
func (s *Service) ListDevices() ([]padapi.DeviceInfo, error) {
	infos, err := s.backend.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return infos, nil
}

func (s *Service) deviceInfo(index int) padapi.DeviceInfo {
	infos, err := s.backend.Enumerate()
	if err != nil {
		s.log.Debug("Enumeration failed", zap.Error(err))
	}
	for _, info := range infos {
		if info.Index == index {
			return info
		}
	}
	return padapi.DeviceInfo{Index: index}
}

func (s *Service) profileFor(info padapi.DeviceInfo) *padapi.Profile {
	if s.options.profile != nil {
		return s.options.profile
	}
	if info.Profile != "" {
		p, err := padapi.BuiltinProfile(info.Profile)
		if err == nil {
			return p
		}
		s.log.Warn("Unknown device profile, using xbox", zap.String("profile", info.Profile))
	}
	return padapi.XboxProfile()
}

// Open returns the controller at index, opening it if needed. The poll loop of a newly
// opened controller runs until ctx is done or the controller is closed.
func (s *Service) Open(ctx context.Context, index int) (*padapi.Controller, error) {
	if s.closed.Load() {
		return nil, padapi.ErrClosed
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()
	if e, ok := s.controllers.Load(index); ok {
		if e.ctrl.State() == padapi.StatePolling {
			return e.ctrl, nil
		}
		s.controllers.Delete(index)
	}

	info := s.deviceInfo(index)
	tuning := s.Tuning()
	e := &controllerEntry{
		left:  padapi.NewIntegrator(padapi.StickLeft, tuning.Integrator(padapi.StickLeft)),
		right: padapi.NewIntegrator(padapi.StickRight, tuning.Integrator(padapi.StickRight)),
	}
	e.ctrl = padapi.NewController(s.log.Named(fmt.Sprintf("pad.%d", index)), s.backend,
		padapi.WithProfile(s.profileFor(info)),
		padapi.WithTuning(tuning),
		padapi.WithPollHook(e.left),
		padapi.WithPollHook(e.right),
	)
	e.ctrl.Subscribe(s.forward)
	if err := e.ctrl.Open(ctx, index); err != nil {
		s.log.Error("Failed to open controller", zap.Int("index", index), zap.Error(err))
		return nil, err
	}
	info.Name = e.ctrl.Name()
	info.Serial = e.ctrl.Serial()
	info.Profile = e.ctrl.Profile().Name
	e.info = info
	s.controllers.Store(index, e)

	if _, err := s.rememberDevice(info); err != nil {
		s.log.Warn("Failed to record device", zap.Int("index", index), zap.Error(err))
	}
	return e.ctrl, nil
}

// OpenAll opens every attached device and returns the controllers that opened.
func (s *Service) OpenAll(ctx context.Context) ([]*padapi.Controller, error) {
	infos, err := s.ListDevices()
	if err != nil {
		return nil, err
	}
	var (
		ctrls []*padapi.Controller
		errs  []error
	)
	for _, info := range infos {
		c, err := s.Open(ctx, info.Index)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ctrls = append(ctrls, c)
	}
	return ctrls, errors.Join(errs...)
}

func (s *Service) forward(n padapi.Notification) {
	s.bus.Publish(n.Kind(), n)
}

// Subscribe registers h for notifications of every controller the service opens.
func (s *Service) Subscribe(h padapi.Handler, kinds ...padapi.NotificationKind) padapi.Subscription {
	return s.bus.Subscribe(bus.Handler[padapi.Notification](h), kinds...)
}

func (s *Service) Unsubscribe(id padapi.Subscription) bool {
	return s.bus.Unsubscribe(id)
}

// Controller returns the open controller at index.
func (s *Service) Controller(index int) (*padapi.Controller, bool) {
	e, ok := s.controllers.Load(index)
	if !ok || e.ctrl.State() != padapi.StatePolling {
		return nil, false
	}
	return e.ctrl, true
}

// Controllers returns the open controllers ordered by index.
func (s *Service) Controllers() []*padapi.Controller {
	var ctrls []*padapi.Controller
	s.controllers.Range(func(_ int, e *controllerEntry) bool {
		if e.ctrl.State() == padapi.StatePolling {
			ctrls = append(ctrls, e.ctrl)
		}
		return true
	})
	sort.Slice(ctrls, func(i, j int) bool {
		return ctrls[i].Index() < ctrls[j].Index()
	})
	return ctrls
}

func (s *Service) entry(index int) (*controllerEntry, error) {
	e, ok := s.controllers.Load(index)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrControllerNotFound, index)
	}
	return e, nil
}

// Position returns the accumulated absolute position of one stick.
func (s *Service) Position(index int, stick padapi.Stick) (padapi.Position, error) {
	e, err := s.entry(index)
	if err != nil {
		return padapi.Position{}, err
	}
	return e.integrator(stick).Position(), nil
}

// ResetPosition snaps a stick's accumulated position back to the origin.
func (s *Service) ResetPosition(index int, stick padapi.Stick) error {
	e, err := s.entry(index)
	if err != nil {
		return err
	}
	e.integrator(stick).Reset()
	s.log.Debug("Position reset", zap.Int("index", index), zap.Stringer("stick", stick))
	return nil
}

// CloseController closes and forgets the controller at index.
func (s *Service) CloseController(index int) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	e, ok := s.controllers.LoadAndDelete(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrControllerNotFound, index)
	}
	return e.ctrl.Close()
}

// Close closes every controller and the backend. It is safe to call more than once.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()
	var errs []error
	s.controllers.Range(func(index int, e *controllerEntry) bool {
		if err := e.ctrl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("controller %d: %w", index, err))
		}
		s.controllers.Delete(index)
		return true
	})
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	return errors.Join(errs...)
}

// KnownDevice is a catalog entry for a device the service has opened at least once.
type KnownDevice struct {
	Backend     string    `json:"backend"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Serial      string    `json:"serial,omitempty"`
	Profile     string    `json:"profile"`
	LastIndex   int       `json:"lastIndex"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

const knownDevicePrefix = "pad/devices/"

func deviceID(info padapi.DeviceInfo) string {
	if info.Serial != "" {
		return info.Serial
	}
	if info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("index-%d", info.Index)
}

func (s *Service) knownDeviceKey(id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", knownDevicePrefix, s.backendName, id))
}

func (s *Service) rememberDevice(info padapi.DeviceInfo) (KnownDevice, error) {
	var dev KnownDevice
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		id := deviceID(info)
		key := s.knownDeviceKey(id)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			dev = KnownDevice{}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device: %w", err)
			}
		}
		dev.Backend = s.backendName
		dev.ID = id
		dev.Name = info.Name
		dev.Serial = info.Serial
		dev.Profile = info.Profile
		dev.LastIndex = info.Index
		if dev.FirstSeenAt.IsZero() {
			dev.FirstSeenAt = now
		}
		dev.LastSeenAt = now
		b, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return KnownDevice{}, fmt.Errorf("failed to store device: %w", err)
	}
	return dev, nil
}

// KnownDevices lists every device recorded for any backend, most recently seen first.
func (s *Service) KnownDevices() ([]KnownDevice, error) {
	var devices []KnownDevice
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(knownDevicePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dev KnownDevice
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal %s: %w", it.Item().Key(), err)
			}
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list known devices: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if !devices[i].LastSeenAt.Equal(devices[j].LastSeenAt) {
			return devices[i].LastSeenAt.After(devices[j].LastSeenAt)
		}
		return strings.Compare(devices[i].ID, devices[j].ID) < 0
	})
	return devices, nil
}
