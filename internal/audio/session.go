package audio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Format describes the fixed capture sample format.
type Format struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
}

// DefaultFormat is 16kHz mono signed 16-bit little-endian, the format every
// downstream collaborator assumes.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BytesPerSample: 2}

// BytesPerSecond returns the raw PCM byte rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BytesPerSample
}

// frameSize returns the byte width of one multi-channel sample frame.
func (f Format) frameSize() int {
	return f.Channels * f.BytesPerSample
}

// Buffer is one finalized capture take.
type Buffer struct {
	PCM    []byte
	Format Format
}

// Duration derives clip length from buffer size and format; no wall-clock
// bookkeeping is involved.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	rate := b.Format.BytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.PCM)) / float64(rate) * float64(time.Second))
}

// Empty reports whether the take contains no audio.
func (b *Buffer) Empty() bool {
	return b == nil || len(b.PCM) == 0
}

// recorder is the slice of Capture the session depends on, separated so tests
// can stand in a scripted recorder.
type recorder interface {
	RawPCM() []byte
	BytesCaptured() int64
	Stop() error
	Device() Device
}

// SessionOptions carries the tunable parts of session behavior.
type SessionOptions struct {
	Input    string
	Fallback string
	// Flush is the leading window discarded from the take; Pulse delivers a
	// stale burst when a stream resumes after idle.
	Flush time.Duration
	// Grace extends capture past the stop request so trailing speech is not
	// clipped mid-word.
	Grace time.Duration
}

// Session owns one capture take from start through stop or cancel.
type Session struct {
	capture recorder
	format  Format
	opts    SessionOptions
	warning string
	started time.Time

	mu   sync.Mutex
	done bool
}

// Start selects a device and begins capturing immediately.
// The returned session must be finished with exactly one Stop or Cancel.
func Start(ctx context.Context, opts SessionOptions) (*Session, error) {
	selected, err := SelectDevice(ctx, opts.Input, opts.Fallback)
	if err != nil {
		return nil, err
	}

	capture, err := StartCapture(ctx, selected.Device)
	if err != nil {
		return nil, fmt.Errorf("start capture on %q: %w", selected.Device.ID, err)
	}

	return &Session{
		capture: capture,
		format:  DefaultFormat,
		opts:    opts,
		warning: selected.Warning,
		started: time.Now(),
	}, nil
}

// Warning returns fallback-selection context for logging, empty when the
// primary device was used.
func (s *Session) Warning() string {
	return s.warning
}

// DeviceID identifies the source the session captured from.
func (s *Session) DeviceID() string {
	return s.capture.Device().ID
}

// StartedAt reports when capture began.
func (s *Session) StartedAt() time.Time {
	return s.started
}

// Stop waits out the trailing grace window, halts capture, and returns the
// finalized take with the leading flush window trimmed.
func (s *Session) Stop(ctx context.Context) (*Buffer, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, fmt.Errorf("recording session already finished")
	}
	s.done = true
	s.mu.Unlock()

	if s.opts.Grace > 0 {
		select {
		case <-time.After(s.opts.Grace):
		case <-ctx.Done():
		}
	}

	if err := s.capture.Stop(); err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}

	pcm := s.capture.RawPCM()
	pcm = trimFlush(pcm, s.format, s.opts.Flush)
	return &Buffer{PCM: pcm, Format: s.format}, nil
}

// Cancel halts capture immediately and discards everything. No grace window
// applies: the user asked for the take to be thrown away.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()

	_ = s.capture.Stop()
}

// trimFlush drops the leading flush window from a take, aligned to whole
// sample frames. Takes shorter than the window yield an empty buffer.
func trimFlush(pcm []byte, format Format, flush time.Duration) []byte {
	if flush <= 0 || len(pcm) == 0 {
		return pcm
	}

	skip := int(float64(format.BytesPerSecond()) * flush.Seconds())
	if frame := format.frameSize(); frame > 0 {
		skip -= skip % frame
	}
	if skip >= len(pcm) {
		return nil
	}
	return pcm[skip:]
}
