package padapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeDevice struct {
	name     string
	queue    *EventQueue
	mu       sync.Mutex
	attached bool
	closed   int
}

func (d *fakeDevice) PollRawEvents(max int) []RawEvent { return d.queue.Take(max) }

func (d *fakeDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

func (d *fakeDevice) Name() string   { return d.name }
func (d *fakeDevice) Serial() string { return "serial-" + d.name }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	d.attached = false
	return nil
}

type fakeBackend struct {
	devices []*fakeDevice
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{}
	for _, name := range names {
		b.devices = append(b.devices, &fakeDevice{name: name, queue: NewEventQueue(0), attached: true})
	}
	return b
}

func (b *fakeBackend) Enumerate() ([]DeviceInfo, error) {
	infos := make([]DeviceInfo, 0, len(b.devices))
	for i, d := range b.devices {
		infos = append(infos, DeviceInfo{Index: i, Name: d.name})
	}
	return infos, nil
}

func (b *fakeBackend) Open(index int) (Device, error) {
	if index < 0 || index >= len(b.devices) {
		return nil, ErrDeviceUnavailable
	}
	return b.devices[index], nil
}

func (b *fakeBackend) Close() error { return nil }

type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) handle(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

func openManual(t *testing.T, opts ...Option) (*Controller, *fakeDevice, *recorder) {
	t.Helper()
	backend := newFakeBackend("pad0")
	c := NewController(zaptest.NewLogger(t), backend, append([]Option{WithManualPoll()}, opts...)...)
	require.NoError(t, c.Open(context.Background(), 0))
	rec := &recorder{}
	c.Subscribe(rec.handle)
	return c, backend.devices[0], rec
}

func TestControllerOpenUnavailable(t *testing.T) {
	c := NewController(zaptest.NewLogger(t), newFakeBackend(), WithManualPoll())
	err := c.Open(context.Background(), 3)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, c.State())
	_, ok := c.Snapshot()
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestControllerButtonTransitions(t *testing.T) {
	c, dev, rec := openManual(t)

	dev.queue.Push(ButtonEvent(0, 1))
	c.Poll()
	assert.True(t, c.Pressed(0))
	dev.queue.Push(ButtonEvent(0, 0))
	c.Poll()
	assert.False(t, c.Pressed(0))

	var buttons []ButtonChanged
	for _, n := range rec.all() {
		if b, ok := n.(ButtonChanged); ok {
			buttons = append(buttons, b)
		}
	}
	require.Len(t, buttons, 2)
	assert.Equal(t, ButtonChanged{Controller: 0, Button: 0, Key: "a", State: 1, Pressed: true}, buttons[0])
	assert.Equal(t, ButtonChanged{Controller: 0, Button: 0, Key: "a", State: 0, Pressed: false}, buttons[1])

	// Repeated state is not a transition.
	rec.reset()
	dev.queue.Push(ButtonEvent(0, 0))
	result := c.Poll()
	assert.Equal(t, 1, result.Events)
	assert.Empty(t, result.Changes)
}

func TestControllerTriggerThreshold(t *testing.T) {
	c, dev, _ := openManual(t)

	dev.queue.Push(AxisMotion(4, 100))
	result := c.Poll()
	require.Len(t, result.Changes, 1)
	assert.Equal(t, TriggerChanged{Controller: 0, Axis: 4, Raw: 100, Initial: true}, result.Changes[0])

	dev.queue.Push(AxisMotion(4, 104))
	result = c.Poll()
	assert.Empty(t, result.Changes)
	assert.Equal(t, int16(100), c.Axis(4))

	dev.queue.Push(AxisMotion(4, 105))
	result = c.Poll()
	require.Len(t, result.Changes, 1)
	assert.Equal(t, TriggerChanged{Controller: 0, Axis: 4, Raw: 105}, result.Changes[0])
	assert.Equal(t, int16(105), c.Axis(4))
}

func TestControllerThumbstick(t *testing.T) {
	c, dev, _ := openManual(t)

	// First sample is reported even inside the dead zone.
	dev.queue.Push(AxisMotion(0, 1000))
	result := c.Poll()
	require.Len(t, result.Changes, 1)
	assert.Equal(t, AxisChanged{Controller: 0, Axis: 0, Value: 0.031, Raw: 1000, Initial: true}, result.Changes[0])

	// Jitter inside the dead zone normalizes to the same value.
	dev.queue.Push(AxisMotion(0, 1200))
	result = c.Poll()
	assert.Empty(t, result.Changes)
	assert.Equal(t, int16(1200), c.Axis(0))

	dev.queue.Push(AxisMotion(0, 32767), AxisMotion(1, -32768))
	result = c.Poll()
	require.Len(t, result.Changes, 2)
	assert.Equal(t, AxisChanged{Controller: 0, Axis: 0, Value: 1, Raw: 32767}, result.Changes[0])
	assert.Equal(t, AxisChanged{Controller: 0, Axis: 1, Value: -1, Raw: -32768, Initial: true}, result.Changes[1])

	x, y := c.Thumbstick(StickLeft)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, -1.0, y)
	x, y = c.Thumbstick(StickRight)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestControllerUnclassifiedAndMalformed(t *testing.T) {
	c, dev, rec := openManual(t, WithProfile(XpadProfile()))

	dev.queue.Push(AxisMotion(6, -32768), RawEvent{Type: RawEventNone}, RawEvent{Type: 42})
	result := c.Poll()
	assert.Equal(t, 1, result.Events)
	assert.Equal(t, 2, result.Dropped)
	assert.Empty(t, result.Changes)
	assert.Equal(t, int16(-32768), c.Axis(6))
	assert.Equal(t, []Notification{PollCompleted{Controller: 0, Events: 1}}, rec.all())
}

func TestControllerPollCompleted(t *testing.T) {
	hooks := 0
	c, dev, rec := openManual(t, WithPollHook(PollHookFunc(func(*Controller) { hooks++ })))
	c.Poll()
	assert.Empty(t, rec.all())

	dev.queue.Push(ButtonEvent(3, 1))
	c.Poll()
	assert.Equal(t, 2, hooks)
	notes := rec.all()
	require.Len(t, notes, 2)
	assert.Equal(t, PollCompleted{Controller: 0, Events: 1}, notes[1])
}

func TestControllerEventBudget(t *testing.T) {
	tuning := DefaultTuning()
	tuning.MaxEventsPerCycle = 2
	c, dev, _ := openManual(t, WithTuning(tuning))

	dev.queue.Push(ButtonEvent(0, 1), ButtonEvent(1, 1), ButtonEvent(2, 1))
	assert.Equal(t, 2, c.Poll().Events)
	assert.False(t, c.Pressed(2))
	assert.Equal(t, 1, c.Poll().Events)
	assert.True(t, c.Pressed(2))
}

func TestControllerQuit(t *testing.T) {
	c, dev, rec := openManual(t)

	dev.queue.Push(ButtonEvent(0, 1), Quit(), ButtonEvent(1, 1))
	result := c.Poll()
	assert.True(t, result.Quit)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, dev.closed)
	assert.Len(t, rec.all(), 1)
	_, ok := c.Snapshot()
	assert.False(t, ok)

	dev.queue.Push(ButtonEvent(2, 1))
	assert.Zero(t, c.Poll().Events)
}

func TestControllerCloseIdempotent(t *testing.T) {
	c, dev, rec := openManual(t)
	dev.queue.Push(ButtonEvent(0, 1))
	c.Poll()
	rec.reset()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, dev.closed)

	dev.queue.Push(ButtonEvent(0, 0))
	c.Poll()
	c.Emit(PollCompleted{})
	assert.Empty(t, rec.all())
	assert.False(t, c.Pressed(0))
	assert.ErrorIs(t, c.Open(context.Background(), 0), ErrClosed)
}

func TestControllerCloseFromHandler(t *testing.T) {
	c, dev, _ := openManual(t)
	var after []Notification
	c.Subscribe(func(n Notification) {
		if _, ok := n.(ButtonChanged); ok {
			require.NoError(t, c.Close())
		}
	}, KindButtonChanged)
	c.Subscribe(func(n Notification) {
		after = append(after, n)
	}, KindButtonChanged, KindPollCompleted)

	dev.queue.Push(ButtonEvent(0, 1), ButtonEvent(1, 1))
	c.Poll()
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, after)
}

func TestControllerSubscribeKinds(t *testing.T) {
	c, dev, _ := openManual(t)
	triggers := &recorder{}
	id := c.Subscribe(triggers.handle, KindTriggerChanged)

	dev.queue.Push(ButtonEvent(0, 1), AxisMotion(5, 0), AxisMotion(0, 9000))
	c.Poll()
	assert.Equal(t, []Notification{TriggerChanged{Controller: 0, Axis: 5, Initial: true}}, triggers.all())

	assert.True(t, c.Unsubscribe(id))
	dev.queue.Push(AxisMotion(5, 30000))
	c.Poll()
	assert.Len(t, triggers.all(), 1)
}

func TestControllerTicker(t *testing.T) {
	backend := newFakeBackend("pad0")
	tuning := DefaultTuning()
	tuning.PollIntervalMs = 5
	c := NewController(zaptest.NewLogger(t), backend, WithTuning(tuning))

	pressed := make(chan ButtonChanged, 1)
	c.Subscribe(func(n Notification) {
		pressed <- n.(ButtonChanged)
	}, KindButtonChanged)

	require.NoError(t, c.Open(context.Background(), 0))
	assert.ErrorIs(t, c.Open(context.Background(), 0), ErrAlreadyOpen)
	assert.Equal(t, "pad0", c.Name())
	assert.Equal(t, "serial-pad0", c.Serial())
	assert.True(t, c.Attached())

	backend.devices[0].queue.Push(ButtonEvent(9, 1))
	select {
	case b := <-pressed:
		assert.Equal(t, "lb", b.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification from poll loop")
	}

	require.NoError(t, c.SetPollInterval(10*time.Millisecond))
	assert.Equal(t, 10, c.Tuning().PollIntervalMs)
	assert.Error(t, c.SetPollInterval(0))

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop")
	}
	assert.False(t, c.Attached())
	assert.Equal(t, "", c.Name())
}
