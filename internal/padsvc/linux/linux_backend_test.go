//go:build linux

package linux

import (
	"encoding/json"
	"testing"

	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, cfg)

	cfg, err = ParseConfig(json.RawMessage(`{"devDir": "/tmp/js"}`))
	require.NoError(t, err)
	assert.Equal(t, Config{DevDir: "/tmp/js", Profile: "xpad"}, cfg)
}

func TestOpenMissing(t *testing.T) {
	b := NewBackend(zaptest.NewLogger(t), Config{DevDir: t.TempDir(), Profile: "xpad"})
	_, err := b.Open(0)
	assert.ErrorIs(t, err, padapi.ErrDeviceUnavailable)
}

func pipeDevice(t *testing.T) (*device, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(fds[1])
	})
	d := &device{log: zaptest.NewLogger(t), fd: fds[0], name: "pipe"}
	d.attached.Store(true)
	return d, fds[1]
}

func TestDevicePollBudget(t *testing.T) {
	d, w := pipeDevice(t)
	defer d.Close()

	assert.Empty(t, d.PollRawEvents(10))

	var buf []byte
	for i := 0; i < 5; i++ {
		buf = append(buf, record(jsEventButton, uint8(i), 1)...)
	}
	_, err := unix.Write(w, buf)
	require.NoError(t, err)

	events := d.PollRawEvents(3)
	assert.Equal(t, []padapi.RawEvent{
		padapi.ButtonEvent(0, 1),
		padapi.ButtonEvent(1, 1),
		padapi.ButtonEvent(2, 1),
	}, events)
	events = d.PollRawEvents(3)
	assert.Equal(t, []padapi.RawEvent{
		padapi.ButtonEvent(3, 1),
		padapi.ButtonEvent(4, 1),
	}, events)
	assert.True(t, d.Attached())

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.False(t, d.Attached())
	assert.Nil(t, d.PollRawEvents(3))
}

func TestDevicePartialRecord(t *testing.T) {
	d, w := pipeDevice(t)
	defer d.Close()

	rec := record(jsEventAxis, 1, -200)
	_, err := unix.Write(w, rec[:3])
	require.NoError(t, err)
	assert.Empty(t, d.PollRawEvents(4))

	_, err = unix.Write(w, rec[3:])
	require.NoError(t, err)
	assert.Equal(t, []padapi.RawEvent{padapi.AxisMotion(1, -200)}, d.PollRawEvents(4))
}
