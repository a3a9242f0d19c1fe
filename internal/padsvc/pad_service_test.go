package padsvc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-pad/internal/configsvc"
	"github.com/neuroplastio/neio-pad/internal/padsvc/virtual"
	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	svc     *Service
	backend *virtual.Backend
	config  *configsvc.Service
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(t.TempDir(), "db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	config, err := configsvc.New(log.Named("config"), configsvc.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	f := &fixture{
		config: config,
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		backend: virtual.NewBackend(log.Named("virtual"), virtual.Config{Devices: []virtual.DeviceConfig{
			{Name: "Pad A", Serial: "serial-a", Profile: "xbox"},
			{Name: "Pad B", Profile: "xpad"},
		}}),
	}
	f.svc = New(db, config, "virtual", f.backend, log.Named("padsvc"), func() time.Time { return f.now }, opts...)
	t.Cleanup(func() {
		f.svc.Close()
	})
	return f
}

func fastTuning() padapi.Tuning {
	tuning := padapi.DefaultTuning()
	tuning.PollIntervalMs = 5
	return tuning
}

func TestOpenIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Open(ctx, 0)
	require.NoError(t, err)
	again, err := f.svc.Open(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, "xbox", a.Profile().Name)

	b, err := f.svc.Open(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "xpad", b.Profile().Name)
	assert.Equal(t, []*padapi.Controller{a, b}, f.svc.Controllers())

	_, err = f.svc.Open(ctx, 7)
	assert.ErrorIs(t, err, padapi.ErrDeviceUnavailable)
	_, ok := f.svc.Controller(7)
	assert.False(t, ok)

	require.NoError(t, f.svc.CloseController(0))
	assert.Equal(t, padapi.StateClosed, a.State())
	assert.ErrorIs(t, f.svc.CloseController(0), ErrControllerNotFound)
	assert.Equal(t, []*padapi.Controller{b}, f.svc.Controllers())

	reopened, err := f.svc.Open(ctx, 0)
	require.NoError(t, err)
	assert.NotSame(t, a, reopened)

	require.NoError(t, f.svc.Close())
	require.NoError(t, f.svc.Close())
	assert.Equal(t, padapi.StateClosed, reopened.State())
	assert.Empty(t, f.svc.Controllers())
	_, err = f.svc.Open(ctx, 0)
	assert.ErrorIs(t, err, padapi.ErrClosed)
}

func TestOpenAll(t *testing.T) {
	f := newFixture(t)
	dev, _ := f.backend.Device(1)
	dev.Detach()

	ctrls, err := f.svc.OpenAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ctrls, 1)
	assert.Equal(t, 0, ctrls[0].Index())

	infos, err := f.svc.ListDevices()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestKnownDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.now

	_, err := f.svc.Open(ctx, 0)
	require.NoError(t, err)
	_, err = f.svc.Open(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.CloseController(0))
	f.now = f.now.Add(time.Hour)
	_, err = f.svc.Open(ctx, 0)
	require.NoError(t, err)

	devices, err := f.svc.KnownDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, KnownDevice{
		Backend:     "virtual",
		ID:          "serial-a",
		Name:        "Pad A",
		Serial:      "serial-a",
		Profile:     "xbox",
		LastIndex:   0,
		FirstSeenAt: first,
		LastSeenAt:  first.Add(time.Hour),
	}, devices[0])
	assert.Equal(t, "Pad B", devices[1].ID)
	assert.Equal(t, "xpad", devices[1].Profile)
}

func TestNotificationsAndPosition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetTuning(fastTuning()))

	positions := make(chan padapi.AbsolutePositionChanged, 64)
	buttons := make(chan padapi.ButtonChanged, 4)
	f.svc.Subscribe(func(n padapi.Notification) {
		switch n := n.(type) {
		case padapi.AbsolutePositionChanged:
			select {
			case positions <- n:
			default:
			}
		case padapi.ButtonChanged:
			buttons <- n
		}
	}, padapi.KindAbsolutePositionChanged, padapi.KindButtonChanged)

	_, err := f.svc.Open(context.Background(), 0)
	require.NoError(t, err)
	dev, _ := f.backend.Device(0)
	dev.Push(padapi.ButtonEvent(0, 1), padapi.AxisMotion(0, 32767))

	select {
	case b := <-buttons:
		assert.Equal(t, "a", b.Key)
		assert.True(t, b.Pressed)
	case <-time.After(2 * time.Second):
		t.Fatal("no button notification")
	}
	select {
	case p := <-positions:
		assert.Equal(t, padapi.StickLeft, p.Stick)
		assert.Greater(t, p.X, 0.0)
	case <-time.After(2 * time.Second):
		t.Fatal("no position notification")
	}

	dev.Push(padapi.AxisMotion(0, 0))
	require.Eventually(t, func() bool {
		x, _ := mustController(t, f.svc, 0).Thumbstick(padapi.StickLeft)
		return x == 0
	}, 2*time.Second, 5*time.Millisecond)

	pos, err := f.svc.Position(0, padapi.StickLeft)
	require.NoError(t, err)
	assert.Greater(t, pos.X, 0.0)
	require.NoError(t, f.svc.ResetPosition(0, padapi.StickLeft))
	pos, err = f.svc.Position(0, padapi.StickLeft)
	require.NoError(t, err)
	assert.Equal(t, padapi.Position{}, pos)

	assert.ErrorIs(t, f.svc.ResetPosition(3, padapi.StickLeft), ErrControllerNotFound)
}

func mustController(t *testing.T, svc *Service, index int) *padapi.Controller {
	t.Helper()
	c, ok := svc.Controller(index)
	require.True(t, ok)
	return c
}

func TestTuningReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	f := newFixture(t, WithTuningPath(path), WithControllers(0, 5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.config.Start(ctx)
	done := make(chan error, 1)
	go func() {
		done <- f.svc.Start(ctx)
	}()
	select {
	case <-f.svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("service not ready")
	}

	c := mustController(t, f.svc, 0)
	assert.Equal(t, padapi.DefaultTuning(), c.Tuning())
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("pollIntervalMs: 20\ndeadZoneThreshold: 0.1\n"), 0644))
	require.Eventually(t, func() bool {
		return c.Tuning().PollIntervalMs == 20
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.1, c.Tuning().DeadZoneThreshold)
	assert.Equal(t, 3, c.Tuning().RoundingDigits)

	// Invalid tuning keeps the last valid one.
	require.NoError(t, os.WriteFile(path, []byte("pollIntervalMs: -1\n"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 20, f.svc.Tuning().PollIntervalMs)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, padapi.StateClosed, c.State())
}

func TestNewBackend(t *testing.T) {
	reg := NewBackendRegistry(zaptest.NewLogger(t))
	assert.Contains(t, reg.Names(), "virtual")
	assert.Contains(t, reg.Names(), "sdl")

	backend, err := NewBackend(reg, "virtual", json.RawMessage(`{"devices": [{"name": "X"}, {"name": "Y"}]}`))
	require.NoError(t, err)
	infos, err := backend.Enumerate()
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	_, err = NewBackend(reg, "bluetooth", nil)
	assert.ErrorIs(t, err, padapi.ErrUnknownBackend)

	_, err = NewBackend(reg, "virtual", json.RawMessage(`[]`))
	assert.Error(t, err)
}
