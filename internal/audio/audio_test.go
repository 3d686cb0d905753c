package audio

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDevicePrefersExplicitInput(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.builtin", Description: "Built-in Microphone", Available: true, Default: true},
		{ID: "alsa_input.usb_headset", Description: "USB Headset", Available: true},
	}

	sel, err := selectDeviceFromList(devices, "headset", "")
	require.NoError(t, err)
	assert.Equal(t, "alsa_input.usb_headset", sel.Device.ID)
	assert.Empty(t, sel.Warning)
}

func TestSelectDeviceDefaultsWhenInputEmpty(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.usb_headset", Description: "USB Headset", Available: true},
		{ID: "alsa_input.builtin", Description: "Built-in Microphone", Available: true, Default: true},
	}

	sel, err := selectDeviceFromList(devices, "", "")
	require.NoError(t, err)
	assert.Equal(t, "alsa_input.builtin", sel.Device.ID)
}

func TestSelectDeviceFallsBackWhenPrimaryMuted(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.usb_headset", Description: "USB Headset", Available: true, Muted: true},
		{ID: "alsa_input.builtin", Description: "Built-in Microphone", Available: true, Default: true},
	}

	sel, err := selectDeviceFromList(devices, "headset", "built-in")
	require.NoError(t, err)
	assert.Equal(t, "alsa_input.builtin", sel.Device.ID)
	assert.True(t, sel.Fallback)
	assert.Contains(t, sel.Warning, "muted")
}

func TestSelectDeviceErrorsWhenNothingUsable(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.usb_headset", Description: "USB Headset", Muted: true, Available: true, Default: true},
	}

	_, err := selectDeviceFromList(devices, "headset", "")
	require.Error(t, err)
}

func TestBufferDurationFromSize(t *testing.T) {
	// One second of 16kHz mono s16 audio is 32000 bytes.
	buf := &Buffer{PCM: make([]byte, 32000), Format: DefaultFormat}
	assert.Equal(t, time.Second, buf.Duration())

	half := &Buffer{PCM: make([]byte, 16000), Format: DefaultFormat}
	assert.Equal(t, 500*time.Millisecond, half.Duration())

	empty := &Buffer{Format: DefaultFormat}
	assert.Equal(t, time.Duration(0), empty.Duration())
	assert.True(t, empty.Empty())
}

func TestTrimFlushAlignsToFrames(t *testing.T) {
	pcm := make([]byte, 32000)

	// 50ms of 16kHz mono s16 is exactly 1600 bytes.
	trimmed := trimFlush(pcm, DefaultFormat, 50*time.Millisecond)
	assert.Len(t, trimmed, 32000-1600)

	// A take shorter than the flush window is all stale audio.
	short := trimFlush(make([]byte, 800), DefaultFormat, 50*time.Millisecond)
	assert.Empty(t, short)

	// Zero flush is a no-op.
	assert.Len(t, trimFlush(pcm, DefaultFormat, 0), 32000)
}

type fakeRecorder struct {
	pcm   []byte
	stops atomic.Int32
}

func (f *fakeRecorder) RawPCM() []byte       { return f.pcm }
func (f *fakeRecorder) BytesCaptured() int64 { return int64(len(f.pcm)) }
func (f *fakeRecorder) Device() Device       { return Device{ID: "fake"} }
func (f *fakeRecorder) Stop() error {
	f.stops.Add(1)
	return nil
}

func TestSessionStopAppliesGraceAndFlush(t *testing.T) {
	rec := &fakeRecorder{pcm: make([]byte, 32000)}
	session := &Session{
		capture: rec,
		format:  DefaultFormat,
		opts: SessionOptions{
			Flush: 50 * time.Millisecond,
			Grace: 20 * time.Millisecond,
		},
		started: time.Now(),
	}

	start := time.Now()
	buf, err := session.Stop(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, int32(1), rec.stops.Load())
	assert.Len(t, buf.PCM, 32000-1600)
}

func TestSessionStopIsSingleUse(t *testing.T) {
	rec := &fakeRecorder{pcm: make([]byte, 3200)}
	session := &Session{capture: rec, format: DefaultFormat}

	_, err := session.Stop(context.Background())
	require.NoError(t, err)

	_, err = session.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), rec.stops.Load())
}

func TestSessionCancelSkipsGrace(t *testing.T) {
	rec := &fakeRecorder{pcm: make([]byte, 3200)}
	session := &Session{
		capture: rec,
		format:  DefaultFormat,
		opts:    SessionOptions{Grace: time.Second},
	}

	start := time.Now()
	session.Cancel()
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, int32(1), rec.stops.Load())

	// Cancel after cancel is a no-op.
	session.Cancel()
	assert.Equal(t, int32(1), rec.stops.Load())
}
