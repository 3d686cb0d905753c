// Package daemon composes the pipeline stages into the single-threaded
// cooperative event loop at the heart of murmur.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/asr"
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/correct"
	"github.com/rbright/murmur/internal/dispatch"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/history"
	"github.com/rbright/murmur/internal/router"
)

type command int

const (
	cmdToggle command = iota + 1
	cmdCancel
)

// RecordingSession is one active capture; audio.Session in production.
type RecordingSession interface {
	Stop(ctx context.Context) (*audio.Buffer, error)
	Cancel()
	DeviceID() string
	Warning() string
}

// SessionFactory starts a new capture session.
type SessionFactory func(ctx context.Context) (RecordingSession, error)

// Collaborator interfaces, narrowed to what the loop calls so tests can
// substitute scripted fakes.
type (
	transcriber interface {
		Transcribe(ctx context.Context, buf *audio.Buffer) (asr.Result, error)
	}
	corrector interface {
		Run(ctx context.Context, text string) correct.Result
	}
	intentRouter interface {
		Route(ctx context.Context, text string) router.Decision
	}
	dispatcher interface {
		Dispatch(ctx context.Context, decision router.Decision) dispatch.Outcome
	}
	outputSink interface {
		Deliver(ctx context.Context, text string) bool
	}
	notifier interface {
		Ready(ctx context.Context)
		Recording(ctx context.Context)
		Processing(ctx context.Context, model string)
		Done(ctx context.Context, text string)
		Cancelled(ctx context.Context)
		NoSpeech(ctx context.Context)
		Error(ctx context.Context, summary string)
	}
	interactionRecorder interface {
		Commit(ctx context.Context, rec *history.Interaction) error
	}
	mediaCoordinator interface {
		PauseForCapture(ctx context.Context)
		Resume(ctx context.Context)
		ClearStale()
	}
)

type noopNotifier struct{}

func (noopNotifier) Ready(context.Context)              {}
func (noopNotifier) Recording(context.Context)          {}
func (noopNotifier) Processing(context.Context, string) {}
func (noopNotifier) Done(context.Context, string)       {}
func (noopNotifier) Cancelled(context.Context)          {}
func (noopNotifier) NoSpeech(context.Context)           {}
func (noopNotifier) Error(context.Context, string)      {}

type noopRecorder struct{}

func (noopRecorder) Commit(context.Context, *history.Interaction) error { return nil }

type noopMedia struct{}

func (noopMedia) PauseForCapture(context.Context) {}
func (noopMedia) Resume(context.Context)          {}
func (noopMedia) ClearStale()                     {}

// Deps bundles the daemon's collaborators.
type Deps struct {
	Logger      *slog.Logger
	Sessions    SessionFactory
	Transcriber transcriber
	ASRModel    string
	Corrector   corrector
	Router      intentRouter
	Dispatcher  dispatcher
	Sink        outputSink
	Notifier    notifier
	Recorder    interactionRecorder
	Media       mediaCoordinator
	Warmup      *Warmup
	// ReadyTimeout bounds how long a session waits for warmup before the
	// transcription stage is declared unavailable.
	ReadyTimeout time.Duration
}

// Daemon owns all mutable session state. Signal handlers and IPC clients
// only enqueue commands; every mutation happens on the Run loop.
type Daemon struct {
	deps Deps

	mu    sync.RWMutex
	state fsm.State

	commands chan command
	active   RecordingSession

	// quit is closed on the first shutdown request. Shutdown gets its own
	// signal so it never competes with a queued toggle or cancel for the
	// command slot.
	quit     chan struct{}
	quitOnce sync.Once
}

// New constructs the daemon with safe no-op fallbacks for optional
// collaborators.
func New(deps Deps) *Daemon {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Media == nil {
		deps.Media = noopMedia{}
	}
	return &Daemon{
		deps:     deps,
		state:    fsm.StateIdle,
		commands: make(chan command, 1),
		quit:     make(chan struct{}),
	}
}

// State returns the current lifecycle state snapshot.
func (d *Daemon) State() fsm.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// transition applies one FSM event to the daemon state.
func (d *Daemon) transition(event fsm.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := fsm.Transition(d.state, event)
	if err != nil {
		return err
	}
	d.state = next
	return nil
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (d *Daemon) toErrorAndReset() {
	_ = d.transition(fsm.EventFail)
	_ = d.transition(fsm.EventReset)
}

// Run consumes commands until shutdown. One command is processed to its
// terminal session state before the next is accepted; at-most-one-active-
// session falls out of the loop structure rather than locking.
func (d *Daemon) Run(ctx context.Context) error {
	d.deps.Media.ClearStale()

	if d.deps.Warmup != nil {
		d.deps.Warmup.Start(ctx)
		go func() {
			if err := d.deps.Warmup.Await(ctx, d.deps.ReadyTimeout); err == nil {
				d.deps.Notifier.Ready(ctx)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown(ctx)
			return nil
		case <-d.quit:
			d.shutdown(ctx)
			return nil
		case cmd := <-d.commands:
			switch cmd {
			case cmdToggle:
				d.handleToggle(ctx)
			case cmdCancel:
				d.handleCancel(ctx)
			}
		}
	}
}

// requestShutdown asks the loop to exit after the current command, if any,
// reaches its terminal state. Safe to call any number of times.
func (d *Daemon) requestShutdown() {
	d.quitOnce.Do(func() { close(d.quit) })
}

// handleToggle starts a session from idle or finishes the active one.
func (d *Daemon) handleToggle(ctx context.Context) {
	switch d.State() {
	case fsm.StateIdle:
		d.startSession(ctx)
	case fsm.StateRecording:
		d.finishSession(ctx)
	default:
		d.deps.Logger.Warn("toggle ignored", "state", d.State())
	}
}

// handleCancel discards the active recording. Cancel while idle is a no-op
// and records nothing.
func (d *Daemon) handleCancel(ctx context.Context) {
	if d.State() != fsm.StateRecording {
		return
	}

	session := d.active
	d.active = nil

	session.Cancel()
	_ = d.transition(fsm.EventCancel)
	d.deps.Media.Resume(ctx)
	d.deps.Notifier.Cancelled(ctx)

	rec := history.Begin()
	rec.SetAudio(session.DeviceID(), 0)
	rec.Fail("cancelled")
	d.commit(ctx, rec)

	d.deps.Logger.Info("session cancelled")
}

// shutdown finishes an in-flight recording before the loop exits so speech
// already captured is not silently thrown away.
func (d *Daemon) shutdown(ctx context.Context) {
	if d.State() == fsm.StateRecording {
		d.deps.Logger.Info("shutdown with active recording, finishing session")
		// The parent context may already be cancelled; the drain gets its
		// own bound.
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		d.finishSession(drainCtx)
	}
}

// startSession begins capture and pauses ambient media.
func (d *Daemon) startSession(ctx context.Context) {
	session, err := d.deps.Sessions(ctx)
	if err != nil {
		d.deps.Logger.Error("capture start failed", "error", err)
		d.deps.Notifier.Error(ctx, "recording failed to start")
		d.toErrorAndReset()

		rec := history.Begin()
		rec.Fail(fmt.Sprintf("capture start: %v", err))
		d.commit(ctx, rec)
		return
	}

	if warning := session.Warning(); warning != "" {
		d.deps.Logger.Warn("audio device fallback", "detail", warning)
	}

	if err := d.transition(fsm.EventStart); err != nil {
		session.Cancel()
		d.deps.Logger.Error("session start rejected", "error", err)
		return
	}

	d.active = session
	d.deps.Media.PauseForCapture(ctx)
	d.deps.Notifier.Recording(ctx)
	d.deps.Logger.Info("recording started", "device", session.DeviceID())
}

// finishSession runs the full pipeline for the active recording and commits
// exactly one interaction row at its terminal state.
func (d *Daemon) finishSession(ctx context.Context) {
	session := d.active
	d.active = nil

	if err := d.transition(fsm.EventStop); err != nil {
		d.deps.Logger.Error("stop rejected", "error", err)
		return
	}

	rec := history.Begin()
	completed := false
	defer func() {
		d.deps.Media.Resume(ctx)
		if completed {
			_ = d.transition(fsm.EventFinish)
		} else {
			d.toErrorAndReset()
		}
		d.commit(ctx, rec)
	}()

	d.deps.Notifier.Processing(ctx, "")

	buf, err := session.Stop(ctx)
	if err != nil {
		d.deps.Logger.Error("capture finalize failed", "error", err)
		d.deps.Notifier.Error(ctx, "recording failed")
		rec.Fail(fmt.Sprintf("capture: %v", err))
		return
	}
	rec.SetAudio(session.DeviceID(), buf.Duration())

	if err := d.awaitReady(ctx); err != nil {
		d.deps.Logger.Error("inference backend not ready", "error", err)
		d.deps.Notifier.Error(ctx, "speech backend not ready")
		rec.Fail(fmt.Sprintf("warmup: %v", err))
		return
	}

	transcribeStart := time.Now()
	result, err := d.deps.Transcriber.Transcribe(ctx, buf)
	if err != nil {
		d.deps.Logger.Error("transcription failed", "error", err)
		d.deps.Notifier.Error(ctx, "speech recognition failed")
		rec.Fail(fmt.Sprintf("transcription: %v", err))
		return
	}
	rec.SetTranscription(result.Text, d.deps.ASRModel, time.Since(transcribeStart))

	if result.Empty() {
		// Terminal but not a failure: the user simply said nothing.
		d.deps.Notifier.NoSpeech(ctx)
		rec.Finish()
		completed = true
		d.deps.Logger.Info("no speech detected")
		return
	}

	text := result.Text
	if d.deps.Corrector != nil {
		correctStart := time.Now()
		correction := d.deps.Corrector.Run(ctx, text)
		rec.SetCorrection(correction.Corrected, correction.Changed, time.Since(correctStart), correction.Err)
		if correction.Err != nil {
			d.deps.Logger.Warn("correction degraded", "error", correction.Err)
		}
		text = correction.Corrected
	}

	decision := d.deps.Router.Route(ctx, text)
	rec.SetRoute(string(decision.Intent), decision.Profile, decision.Trigger, string(decision.Source), decision.Text)
	d.deps.Logger.Info("routed",
		"intent", decision.Intent,
		"profile", decision.Profile,
		"source", decision.Source)

	d.deps.Notifier.Processing(ctx, decision.Profile)

	outcome := d.deps.Dispatcher.Dispatch(ctx, decision)
	rec.SetExecution(outcome.Response, outcome.Duration)
	if !outcome.Success {
		summary := summarizeOutcome(outcome)
		d.deps.Logger.Error("execution failed", "intent", decision.Intent, "error", outcome.Err)
		d.deps.Notifier.Error(ctx, summary)
		rec.Fail(summary)
		return
	}

	delivered := d.deps.Sink.Deliver(ctx, outcome.Response)
	rec.SetDelivered(delivered)

	d.deps.Notifier.Done(ctx, outcome.Response)
	rec.Finish()
	completed = true
	d.deps.Logger.Info("session complete",
		"intent", decision.Intent,
		"delivered", delivered,
		"response_len", len(outcome.Response))
}

// awaitReady blocks until warmup finishes or the ready timeout elapses.
func (d *Daemon) awaitReady(ctx context.Context) error {
	if d.deps.Warmup == nil {
		return nil
	}
	return d.deps.Warmup.Await(ctx, d.deps.ReadyTimeout)
}

// commit writes the interaction row; persistence failure is logged, never
// fatal.
func (d *Daemon) commit(ctx context.Context, rec *history.Interaction) {
	if err := d.deps.Recorder.Commit(ctx, rec); err != nil {
		d.deps.Logger.Error("interaction commit failed", "error", err)
	}
}

// summarizeOutcome renders a terse failure cause for notifications and the
// interaction row.
func summarizeOutcome(outcome dispatch.Outcome) string {
	if errors.Is(outcome.Err, dispatch.ErrTimeout) {
		return "timeout"
	}
	if outcome.Err != nil {
		return outcome.Err.Error()
	}
	return "execution failed"
}
