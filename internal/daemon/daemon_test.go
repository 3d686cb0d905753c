package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/asr"
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/correct"
	"github.com/rbright/murmur/internal/dispatch"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/history"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/router"
)

type fakeSession struct {
	mu        sync.Mutex
	stopped   bool
	cancelled bool
	buf       *audio.Buffer
	stopErr   error
}

func (f *fakeSession) Stop(context.Context) (*audio.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.buf, nil
}

func (f *fakeSession) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

func (f *fakeSession) DeviceID() string { return "fake-device" }
func (f *fakeSession) Warning() string  { return "" }

func (f *fakeSession) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, buf *audio.Buffer) (asr.Result, error) {
	if f.err != nil {
		return asr.Result{}, f.err
	}
	return asr.Result{Text: f.text, Duration: buf.Duration()}, nil
}

type fakeCorrector struct{}

func (fakeCorrector) Run(_ context.Context, text string) correct.Result {
	return correct.Result{Original: text, Corrected: text}
}

type fakeRouter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRouter) Route(_ context.Context, text string) router.Decision {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return router.Decision{Intent: router.IntentDictate, Text: text, Source: router.SourceDefault, Confidence: 1.0}
}

func (f *fakeRouter) routeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDispatcher struct {
	outcome dispatch.Outcome
}

func (f *fakeDispatcher) Dispatch(_ context.Context, decision router.Decision) dispatch.Outcome {
	if f.outcome.Success || f.outcome.Err != nil {
		return f.outcome
	}
	return dispatch.Outcome{Success: true, Response: decision.Text}
}

type fakeSink struct{}

func (fakeSink) Deliver(_ context.Context, text string) bool { return text != "" }

type captureRecorder struct {
	mu   sync.Mutex
	rows []*history.Interaction
	ch   chan *history.Interaction
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{ch: make(chan *history.Interaction, 8)}
}

func (r *captureRecorder) Commit(_ context.Context, rec *history.Interaction) error {
	r.mu.Lock()
	r.rows = append(r.rows, rec)
	r.mu.Unlock()
	r.ch <- rec
	return nil
}

func (r *captureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *captureRecorder) waitRow(t *testing.T) *history.Interaction {
	t.Helper()
	select {
	case rec := <-r.ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for interaction row")
		return nil
	}
}

type fakeMedia struct {
	mu      sync.Mutex
	paused  int
	resumed int
}

func (f *fakeMedia) PauseForCapture(context.Context) {
	f.mu.Lock()
	f.paused++
	f.mu.Unlock()
}

func (f *fakeMedia) Resume(context.Context) {
	f.mu.Lock()
	f.resumed++
	f.mu.Unlock()
}

func (f *fakeMedia) ClearStale() {}

func (f *fakeMedia) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.resumed
}

type harness struct {
	daemon   *Daemon
	gateway  *Gateway
	recorder *captureRecorder
	media    *fakeMedia
	router   *fakeRouter
	session  *fakeSession
	cancel   context.CancelFunc
	done     chan struct{}
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := &fakeSession{buf: &audio.Buffer{PCM: make([]byte, 32000), Format: audio.DefaultFormat}}
	recorder := newCaptureRecorder()
	media := &fakeMedia{}
	fr := &fakeRouter{}

	deps := Deps{
		Logger: logger,
		Sessions: func(context.Context) (RecordingSession, error) {
			return session, nil
		},
		Transcriber: &fakeTranscriber{text: "hello world"},
		ASRModel:    "whisper-1",
		Corrector:   fakeCorrector{},
		Router:      fr,
		Dispatcher:  &fakeDispatcher{},
		Sink:        fakeSink{},
		Recorder:    recorder,
		Media:       media,
	}
	if mutate != nil {
		mutate(&deps)
	}

	d := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{
		daemon:   d,
		gateway:  NewGateway(d, logger),
		recorder: recorder,
		media:    media,
		router:   fr,
		session:  session,
		cancel:   cancel,
		done:     done,
	}
}

// waitForState polls until the daemon reaches the wanted state.
func waitForState(t *testing.T, d *Daemon, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("daemon never reached state %s (current %s)", want, d.State())
}

func TestToggleToggleReachesRoutingAndCompletes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	resp := h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	require.True(t, resp.OK)
	waitForState(t, h.daemon, fsm.StateRecording)

	resp = h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	require.True(t, resp.OK)

	rec := h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)

	assert.Equal(t, 1, h.router.routeCalls())
	assert.True(t, rec.Completed)
	require.NotNil(t, rec.TranscriptionText)
	assert.Equal(t, "hello world", *rec.TranscriptionText)
	require.NotNil(t, rec.Intent)
	assert.Equal(t, "dictate", *rec.Intent)
	require.NotNil(t, rec.OutputDelivered)
	assert.True(t, *rec.OutputDelivered)

	paused, resumed := h.media.counts()
	assert.Equal(t, 1, paused)
	assert.Equal(t, 1, resumed)
}

func TestCancelBeforeStopAborts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)

	resp := h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandCancel})
	require.True(t, resp.OK)

	rec := h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)

	assert.True(t, h.session.wasCancelled())
	assert.False(t, rec.Completed)
	require.NotNil(t, rec.ErrorSummary)
	assert.Equal(t, "cancelled", *rec.ErrorSummary)
	assert.Nil(t, rec.TranscriptionText)
	assert.Nil(t, rec.Intent)
	assert.Nil(t, rec.Response)

	_, resumed := h.media.counts()
	assert.Equal(t, 1, resumed, "media must resume on abnormal termination")
}

func TestCancelWhileIdleIsNoOpWithoutRow(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.gateway.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	assert.True(t, resp.OK)
	assert.Equal(t, "nothing to cancel", resp.Message)

	// Give the loop a moment; nothing should have been enqueued.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, h.recorder.count())
	assert.Equal(t, fsm.StateIdle, h.daemon.State())
}

func TestNoSpeechIsTerminalWithoutFailure(t *testing.T) {
	h := newHarness(t, func(deps *Deps) {
		deps.Transcriber = &fakeTranscriber{text: "   "}
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)

	assert.True(t, rec.Completed)
	assert.Nil(t, rec.ErrorSummary)
	assert.Nil(t, rec.Intent, "routing must be skipped for empty speech")
	assert.Zero(t, h.router.routeCalls())
}

func TestExecutionTimeoutCommitsPartialRow(t *testing.T) {
	h := newHarness(t, func(deps *Deps) {
		deps.Dispatcher = &fakeDispatcher{outcome: dispatch.Outcome{
			Response: "partial answ",
			Err:      dispatch.ErrTimeout,
			Duration: time.Second,
		}}
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)

	assert.False(t, rec.Completed)
	require.NotNil(t, rec.ErrorSummary)
	assert.Equal(t, "timeout", *rec.ErrorSummary)
	require.NotNil(t, rec.Response, "partial output must be retained")
	assert.Equal(t, "partial answ", *rec.Response)
	assert.Nil(t, rec.OutputDelivered, "delivery is skipped after a failed stage")
}

func TestTranscriptionFailureAbortsSession(t *testing.T) {
	h := newHarness(t, func(deps *Deps) {
		deps.Transcriber = &fakeTranscriber{err: errors.New("backend unreachable")}
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)

	assert.False(t, rec.Completed)
	require.NotNil(t, rec.AudioDevice, "reached stages must be recorded")
	assert.Nil(t, rec.Intent)
	assert.Equal(t, 1, h.recorder.count(), "exactly one row per session attempt")
}

func TestToggleRejectedWhileProcessing(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, func(deps *Deps) {
		deps.Dispatcher = blockingDispatcher{release: block}
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateProcessing)

	resp := h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	assert.False(t, resp.OK)
	assert.Equal(t, string(fsm.StateProcessing), resp.State)

	resp = h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandCancel})
	assert.False(t, resp.OK, "cancellation is cooperative only through recording")

	close(block)
	h.recorder.waitRow(t)
	waitForState(t, h.daemon, fsm.StateIdle)
}

type blockingDispatcher struct {
	release chan struct{}
}

func (b blockingDispatcher) Dispatch(_ context.Context, decision router.Decision) dispatch.Outcome {
	<-b.release
	return dispatch.Outcome{Success: true, Response: decision.Text}
}

func TestShutdownDrainsActiveRecording(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)

	resp := h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandShutdown})
	require.True(t, resp.OK)

	rec := h.recorder.waitRow(t)
	assert.True(t, rec.Completed, "in-flight recording must be finished, not dropped")

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon loop did not exit after shutdown")
	}
}

func TestShutdownSurvivesFullCommandQueue(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := &fakeSession{buf: &audio.Buffer{PCM: make([]byte, 32000), Format: audio.DefaultFormat}}
	recorder := newCaptureRecorder()

	d := New(Deps{
		Logger: logger,
		Sessions: func(context.Context) (RecordingSession, error) {
			return session, nil
		},
		Transcriber: &fakeTranscriber{text: "hello world"},
		Corrector:   fakeCorrector{},
		Router:      &fakeRouter{},
		Dispatcher:  &fakeDispatcher{},
		Sink:        fakeSink{},
		Recorder:    recorder,
	})
	gateway := NewGateway(d, logger)
	ctx := context.Background()

	// Fill the command slot before the loop starts, then request shutdown.
	resp := gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	require.True(t, resp.OK)
	resp = gateway.Handle(ctx, ipc.Request{Command: ipc.CommandShutdown})
	require.True(t, resp.OK)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(runCtx)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon loop did not exit; shutdown request was lost behind the queued toggle")
	}
}

type degradedCorrector struct{}

func (degradedCorrector) Run(_ context.Context, text string) correct.Result {
	return correct.Result{Original: text, Corrected: text, Err: correct.ErrRatioGuard}
}

func TestCorrectionDegradationRecordedInRow(t *testing.T) {
	h := newHarness(t, func(deps *Deps) {
		deps.Corrector = degradedCorrector{}
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	assert.True(t, rec.Completed, "degraded correction must not fail the session")
	require.NotNil(t, rec.CorrectionError)
	assert.Contains(t, *rec.CorrectionError, "diverged")
	require.NotNil(t, rec.CorrectionText)
	assert.Equal(t, "hello world", *rec.CorrectionText)
}

func TestCaptureStartFailureRecordsAbortedRow(t *testing.T) {
	h := newHarness(t, func(deps *Deps) {
		deps.Sessions = func(context.Context) (RecordingSession, error) {
			return nil, errors.New("pulse server gone")
		}
	})

	h.gateway.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	assert.False(t, rec.Completed)
	require.NotNil(t, rec.ErrorSummary)
	assert.Contains(t, *rec.ErrorSummary, "capture start")
	waitForState(t, h.daemon, fsm.StateIdle)
}

func TestWarmupGateFailsSessionWhenBackendNeverReady(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHarness(t, func(deps *Deps) {
		deps.Warmup = NewWarmup(probeFunc(func(context.Context) error {
			return errors.New("connection refused")
		}), logger)
		deps.ReadyTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})
	waitForState(t, h.daemon, fsm.StateRecording)
	h.gateway.Handle(ctx, ipc.Request{Command: ipc.CommandToggle})

	rec := h.recorder.waitRow(t)
	assert.False(t, rec.Completed)
	require.NotNil(t, rec.ErrorSummary)
	assert.Contains(t, *rec.ErrorSummary, "warmup")
}

type probeFunc func(context.Context) error

func (f probeFunc) Probe(ctx context.Context) error { return f(ctx) }

func TestWarmupSignalsReadinessOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWarmup(probeFunc(func(context.Context) error { return nil }), logger)

	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx) // second start is a no-op

	require.NoError(t, w.Await(ctx, time.Second))
	require.NoError(t, w.Await(ctx, time.Second), "readiness is sticky")
}
