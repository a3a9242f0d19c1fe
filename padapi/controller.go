package padapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neuroplastio/neio-pad/pkg/bus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type ControllerState int32

const (
	StateIdle ControllerState = iota
	StatePolling
	StateClosed
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// PollHook runs at the end of every poll cycle, whether or not events arrived.
type PollHook interface {
	OnPoll(c *Controller)
}

type PollHookFunc func(c *Controller)

func (f PollHookFunc) OnPoll(c *Controller) { f(c) }

// Subscription identifies a handler registered with Controller.Subscribe.
type Subscription = bus.Subscription

type NotificationBus = bus.Bus[NotificationKind, Notification]

var defaultControllerOptions = controllerOptions{
	tuning: DefaultTuning(),
}

type controllerOptions struct {
	profile    *Profile
	classifier Classifier
	tuning     Tuning
	hooks      []PollHook
	manual     bool
}

type Option func(*controllerOptions)

// WithProfile sets the layout used for classification and button keys.
func WithProfile(p *Profile) Option {
	return func(o *controllerOptions) {
		o.profile = p
	}
}

// WithClassifier overrides the profile's role table.
func WithClassifier(c Classifier) Option {
	return func(o *controllerOptions) {
		o.classifier = c
	}
}

func WithTuning(t Tuning) Option {
	return func(o *controllerOptions) {
		o.tuning = t
	}
}

func WithPollHook(h PollHook) Option {
	return func(o *controllerOptions) {
		o.hooks = append(o.hooks, h)
	}
}

// WithManualPoll disables the internal ticker; the caller drives cycles with Poll.
func WithManualPoll() Option {
	return func(o *controllerOptions) {
		o.manual = true
	}
}

// Controller samples one device on a fixed interval, keeps its StateStore current and
// notifies subscribers of meaningful changes.
//
// Lifecycle is Idle -> Polling (Open) -> Closed (Close, or a quit event). A failed
// Open leaves the controller Idle. Close is idempotent and may be called from any
// goroutine, including from inside a notification handler.
type Controller struct {
	log        *zap.Logger
	backend    Backend
	profile    *Profile
	classifier Classifier
	hooks      []PollHook
	manual     bool
	bus        *NotificationBus

	tuning     atomic.Pointer[Tuning]
	index      atomic.Int64
	state      atomic.Int32
	store      atomic.Pointer[StateStore]
	lost       atomic.Bool
	intervalCh chan time.Duration

	// cycleMu serializes poll cycles. devMu guards the device handle only and is
	// never held while notifications are delivered.
	cycleMu sync.Mutex
	devMu   sync.Mutex
	dev     Device
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(log *zap.Logger, backend Backend, opts ...Option) *Controller {
	options := defaultControllerOptions
	options.hooks = nil
	for _, opt := range opts {
		opt(&options)
	}
	if options.profile == nil {
		options.profile = XboxProfile()
	}
	if options.classifier == nil {
		options.classifier = options.profile.Classifier()
	}
	c := &Controller{
		log:        log,
		backend:    backend,
		profile:    options.profile,
		classifier: options.classifier,
		hooks:      options.hooks,
		manual:     options.manual,
		bus:        bus.NewBus[NotificationKind, Notification](log),
		intervalCh: make(chan time.Duration, 1),
	}
	tuning := options.tuning
	c.tuning.Store(&tuning)
	c.index.Store(-1)
	return c
}

// Open attaches the device at index and starts polling. The poll loop stops when
// ctx is cancelled or the controller is closed.
func (c *Controller) Open(ctx context.Context, index int) error {
	switch c.State() {
	case StatePolling:
		return ErrAlreadyOpen
	case StateClosed:
		return ErrClosed
	}
	c.devMu.Lock()
	dev, err := c.backend.Open(index)
	if err != nil {
		c.devMu.Unlock()
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("failed to open controller %d: %w", index, err)
	}
	c.dev = dev
	c.devMu.Unlock()

	c.index.Store(int64(index))
	c.store.Store(NewStateStore())
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StatePolling)) {
		// Closed while the device was being opened.
		c.release()
		return ErrClosed
	}
	c.log.Info("Controller opened",
		zap.Int("index", index),
		zap.String("name", dev.Name()),
		zap.String("profile", c.profile.Name),
	)

	if c.manual {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.devMu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.devMu.Unlock()
	go c.run(loopCtx, done)
	return nil
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.Tuning().PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-c.intervalCh:
			ticker.Reset(d)
			c.log.Debug("Poll interval changed", zap.Duration("interval", d))
		case <-ticker.C:
			c.Poll()
			if c.State() == StateClosed {
				return
			}
		}
	}
}

// Done is closed when the poll loop exits. It is nil for manually polled controllers.
func (c *Controller) Done() <-chan struct{} {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	return c.done
}

// Close stops polling and releases the device before returning. No handler is
// invoked after Close returns; a handler already running when Close is called
// (including the one calling it) completes normally.
func (c *Controller) Close() error {
	prev := ControllerState(c.state.Swap(int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}
	err := c.release()
	c.log.Info("Controller closed", zap.Int("index", c.Index()), zap.Stringer("from", prev))
	return err
}

func (c *Controller) release() error {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.store.Store(nil)
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	return nil
}

// PollResult summarizes one poll cycle. It is not retained by the controller.
type PollResult struct {
	Events  int
	Dropped int
	Quit    bool
	Changes []Notification
}

// Poll runs one cycle: drain the device, update state, notify, then run poll hooks.
// It is a no-op unless the controller is polling.
func (c *Controller) Poll() PollResult {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	var result PollResult
	if c.State() != StatePolling {
		return result
	}
	tuning := c.Tuning()
	events, attached := c.drain(tuning.MaxEventsPerCycle)
	if !attached && c.lost.CompareAndSwap(false, true) {
		c.log.Warn("Device is no longer attached, state is stale until close",
			zap.Int("index", c.Index()),
			zap.Error(ErrDeviceLost),
		)
	}
	if len(events) >= tuning.MaxEventsPerCycle {
		c.log.Debug("Event budget exhausted, remaining events deferred", zap.Int("budget", tuning.MaxEventsPerCycle))
	}

	normalizer := tuning.Normalizer()
loop:
	for _, ev := range events {
		store := c.store.Load()
		if c.State() != StatePolling || store == nil {
			break
		}
		switch ev.Type {
		case RawEventQuit:
			result.Quit = true
			c.log.Info("Quit event received", zap.Int("index", c.Index()))
			c.Close()
			break loop
		case RawEventAxisMotion:
			c.handleAxis(store, ev, normalizer, tuning.TriggerMinDelta, &result)
		case RawEventButton:
			c.handleButton(store, ev, &result)
		default:
			result.Dropped++
			c.log.Debug("Dropped malformed event", zap.Stringer("type", ev.Type))
			continue
		}
		result.Events++
	}

	if c.State() != StatePolling {
		return result
	}
	for _, hook := range c.hooks {
		hook.OnPoll(c)
	}
	if result.Events > 0 {
		c.Emit(PollCompleted{Controller: c.Index(), Events: result.Events})
	}
	return result
}

func (c *Controller) drain(max int) ([]RawEvent, bool) {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	if c.dev == nil {
		// Released by a concurrent Close.
		return nil, true
	}
	return c.dev.PollRawEvents(max), c.dev.Attached()
}

func (c *Controller) handleAxis(store *StateStore, ev RawEvent, n Normalizer, minDelta int, result *PollResult) {
	role := c.classifier.Role(ev.Axis)
	prev, seen := store.LookupAxis(ev.Axis)
	if !seen {
		// The first sample is always reported so subscribers learn the resting
		// value, even when it sits inside the dead zone.
		store.SetAxis(ev.Axis, ev.Value)
		switch role {
		case RoleThumbstick:
			c.record(result, AxisChanged{
				Controller: c.Index(),
				Axis:       ev.Axis,
				Value:      Round(Scale(ev.Value), n.Digits),
				Raw:        ev.Value,
				Initial:    true,
			})
		case RoleTrigger:
			c.record(result, TriggerChanged{
				Controller: c.Index(),
				Axis:       ev.Axis,
				Raw:        ev.Value,
				Initial:    true,
			})
		}
		return
	}

	switch role {
	case RoleThumbstick:
		store.SetAxis(ev.Axis, ev.Value)
		value := n.Normalize(ev.Value)
		if value == n.Normalize(prev) {
			return
		}
		c.record(result, AxisChanged{
			Controller: c.Index(),
			Axis:       ev.Axis,
			Value:      value,
			Raw:        ev.Value,
		})
	case RoleTrigger:
		// The store keeps the last reported trigger value so slow ramps still
		// accumulate past the threshold.
		delta := int(ev.Value) - int(prev)
		if delta < 0 {
			delta = -delta
		}
		if delta < minDelta {
			return
		}
		store.SetAxis(ev.Axis, ev.Value)
		c.record(result, TriggerChanged{
			Controller: c.Index(),
			Axis:       ev.Axis,
			Raw:        ev.Value,
		})
	default:
		store.SetAxis(ev.Axis, ev.Value)
	}
}

func (c *Controller) handleButton(store *StateStore, ev RawEvent, result *PollResult) {
	prev := store.SetButton(ev.Button, ev.State)
	if prev == ev.State {
		return
	}
	c.record(result, ButtonChanged{
		Controller: c.Index(),
		Button:     ev.Button,
		Key:        c.profile.ButtonKey(ev.Button),
		State:      ev.State,
		Pressed:    ev.State != 0,
	})
}

func (c *Controller) record(result *PollResult, n Notification) {
	result.Changes = append(result.Changes, n)
	c.Emit(n)
}

// Emit delivers n to subscribers. It does nothing unless the controller is polling.
func (c *Controller) Emit(n Notification) {
	if c.State() != StatePolling {
		return
	}
	c.bus.Publish(n.Kind(), n)
}

// Subscribe registers h for the given kinds, or all kinds when none are given.
func (c *Controller) Subscribe(h Handler, kinds ...NotificationKind) Subscription {
	return c.bus.Subscribe(func(n Notification) {
		// Re-checked per handler so a Close issued by an earlier handler in the
		// same delivery silences the rest.
		if c.State() != StatePolling {
			return
		}
		h(n)
	}, kinds...)
}

func (c *Controller) Unsubscribe(s Subscription) bool {
	return c.bus.Unsubscribe(s)
}

func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

// Index returns the device index, or -1 before the first Open.
func (c *Controller) Index() int {
	return int(c.index.Load())
}

func (c *Controller) Profile() *Profile {
	return c.profile
}

func (c *Controller) Tuning() Tuning {
	return *c.tuning.Load()
}

// SetTuning replaces the tuning. It takes effect on the next cycle; a changed poll
// interval re-arms the ticker.
func (c *Controller) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	prev := c.tuning.Swap(&t)
	if prev.PollIntervalMs != t.PollIntervalMs {
		c.signalInterval(t.PollInterval())
	}
	return nil
}

func (c *Controller) SetPollInterval(d time.Duration) error {
	t := c.Tuning()
	t.PollIntervalMs = int(d / time.Millisecond)
	return c.SetTuning(t)
}

func (c *Controller) signalInterval(d time.Duration) {
	for {
		select {
		case c.intervalCh <- d:
			return
		default:
		}
		// Replace a pending, not yet applied interval.
		select {
		case <-c.intervalCh:
		default:
		}
	}
}

func (c *Controller) device() Device {
	c.devMu.Lock()
	defer c.devMu.Unlock()
	return c.dev
}

func (c *Controller) Name() string {
	if dev := c.device(); dev != nil {
		return dev.Name()
	}
	return ""
}

func (c *Controller) Serial() string {
	if dev := c.device(); dev != nil {
		return dev.Serial()
	}
	return ""
}

// Attached reports whether the device handle is open and still attached.
func (c *Controller) Attached() bool {
	if dev := c.device(); dev != nil {
		return dev.Attached()
	}
	return false
}

// Pressed reports whether the button's last state is non-zero.
func (c *Controller) Pressed(id ButtonID) bool {
	store := c.store.Load()
	return store != nil && store.Button(id) != 0
}

// Axis returns the last stored raw value of an axis.
func (c *Controller) Axis(id AxisID) int16 {
	if store := c.store.Load(); store != nil {
		return store.Axis(id)
	}
	return 0
}

// Trigger returns the last reported raw value of a trigger axis.
func (c *Controller) Trigger(id AxisID) int16 {
	return c.Axis(id)
}

// NormalizedAxis returns the normalized value of an axis using the current tuning.
func (c *Controller) NormalizedAxis(id AxisID) float64 {
	return c.Tuning().Normalizer().Normalize(c.Axis(id))
}

// Thumbstick returns the normalized position of a stick. Sticks the profile does
// not define read as (0, 0).
func (c *Controller) Thumbstick(stick Stick) (x, y float64) {
	spec, ok := c.profile.Stick(stick)
	if !ok {
		return 0, 0
	}
	return c.NormalizedAxis(spec.X), c.NormalizedAxis(spec.Y)
}

// Snapshot copies the current state. It reports false when no state is allocated.
func (c *Controller) Snapshot() (Snapshot, bool) {
	store := c.store.Load()
	if store == nil {
		return Snapshot{}, false
	}
	return store.Snapshot(), true
}
