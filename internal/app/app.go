// Package app wires parsed commands to the daemon and its control plane.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/murmur/internal/asr"
	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/cli"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/correct"
	"github.com/rbright/murmur/internal/daemon"
	"github.com/rbright/murmur/internal/dispatch"
	"github.com/rbright/murmur/internal/history"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/logging"
	"github.com/rbright/murmur/internal/media"
	"github.com/rbright/murmur/internal/notify"
	"github.com/rbright/murmur/internal/output"
	"github.com/rbright/murmur/internal/router"
	"github.com/rbright/murmur/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("murmur"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("murmur"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	// Control commands only need the socket; they should not pay the cost
	// of config parsing or fail on a broken config file.
	switch parsed.Command {
	case cli.CommandToggle:
		return r.forwardOrFail(ctx, ipc.CommandToggle)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandShutdown)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	if parsed.Command == cli.CommandDaemon {
		return r.commandDaemon(ctx, cfgLoaded, parsed.CheckOnly, logger)
	}

	fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
	return 2
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: murmur daemon is not running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandDaemon(ctx context.Context, cfgLoaded config.Loaded, checkOnly bool, logger *slog.Logger) int {
	cfg := cfgLoaded.Config

	if checkOnly {
		return r.checkEnvironment(ctx, cfgLoaded)
	}

	pidfilePath := daemon.PidfilePath()
	if err := daemon.WritePidfile(pidfilePath); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer daemon.RemovePidfile(pidfilePath)

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	if err := audio.Probe(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: audio capture unavailable: %v\n", err)
		logger.Error("audio server probe failed", "error", err.Error())
		return 1
	}

	deps, closeDeps, err := buildDeps(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err.Error())
		return 1
	}
	defer closeDeps()

	d := daemon.New(deps)
	gateway := daemon.NewGateway(d, logger)
	gateway.WatchSignals(ctx)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, gateway)
	}()

	logger.Info("daemon ready", "socket", socketPath, "pidfile", pidfilePath)
	runErr := d.Run(ctx)

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

// checkEnvironment validates startup preconditions without claiming the
// socket or pidfile, so it is safe to run next to a live daemon.
func (r Runner) checkEnvironment(ctx context.Context, cfgLoaded config.Loaded) int {
	failed := false

	if cfgLoaded.Exists {
		fmt.Fprintf(r.Stdout, "config: ok (%s)\n", cfgLoaded.Path)
	} else {
		fmt.Fprintf(r.Stdout, "config: defaults (%s not found)\n", cfgLoaded.Path)
	}

	if err := audio.Probe(ctx); err != nil {
		fmt.Fprintf(r.Stdout, "audio: unavailable (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(r.Stdout, "audio: ok")
	}

	asrClient, err := asr.New(cfgLoaded.Config.ASR)
	if err != nil {
		fmt.Fprintf(r.Stdout, "asr: invalid config (%v)\n", err)
		failed = true
	} else if err := asrClient.Probe(ctx); err != nil {
		fmt.Fprintf(r.Stdout, "asr: unreachable (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(r.Stdout, "asr: ok")
	}

	if failed {
		return 1
	}
	return 0
}

// buildDeps constructs the pipeline collaborators from config. The returned
// closer releases anything holding file handles.
func buildDeps(cfg config.Config, logger *slog.Logger) (daemon.Deps, func(), error) {
	asrClient, err := asr.New(cfg.ASR)
	if err != nil {
		return daemon.Deps{}, nil, fmt.Errorf("asr client: %w", err)
	}

	corrector, err := buildCorrector(cfg, logger)
	if err != nil {
		return daemon.Deps{}, nil, err
	}

	var intentClassifier *router.Classifier
	if cfg.Router.ClassifierEnabled {
		intentClassifier, err = router.NewClassifier(cfg.ASR.BaseURL, cfg.ASR.APIKey, cfg.Router.Model)
		if err != nil {
			return daemon.Deps{}, nil, fmt.Errorf("intent classifier: %w", err)
		}
	}
	intentRouter := router.New(cfg.Router, intentClassifier, logger)

	localBackend, err := dispatch.NewLocalBackend(cfg.ASR.BaseURL, cfg.ASR.APIKey, cfg.Exec.LocalModel, cfg.Exec.LocalTimeout())
	if err != nil {
		return daemon.Deps{}, nil, fmt.Errorf("local backend: %w", err)
	}
	dispatcher := dispatch.New(
		dispatch.NewAgentBackend(cfg.Exec, logger),
		localBackend,
		dispatch.NewTimerBackend(cfg.Exec.TimerSound),
		logger,
	)

	deps := daemon.Deps{
		Logger:       logger,
		Sessions:     sessionFactory(cfg.Audio),
		Transcriber:  asrClient,
		ASRModel:     cfg.ASR.Model,
		Corrector:    corrector,
		Router:       intentRouter,
		Dispatcher:   dispatcher,
		Sink:         output.New(cfg.Output, logger),
		Notifier:     notify.New(cfg.Notify, logger),
		Media:        media.New(cfg.Media.Enabled, logger),
		Warmup:       daemon.NewWarmup(asrClient, logger),
		ReadyTimeout: cfg.ASR.ReadyTimeout(),
	}

	closeDeps := func() {}
	if cfg.History.Enabled {
		historyPath, err := config.ResolveHistoryPath(cfg.History.Path)
		if err != nil {
			return daemon.Deps{}, nil, fmt.Errorf("history path: %w", err)
		}
		store, err := history.Open(historyPath, cfg.History.MaxResponseChars)
		if err != nil {
			return daemon.Deps{}, nil, fmt.Errorf("open history: %w", err)
		}
		deps.Recorder = store
		closeDeps = func() { _ = store.Close() }
	}

	return deps, closeDeps, nil
}

// buildCorrector assembles the fail-open correction chain, or a disabled
// chain that passes text through untouched.
func buildCorrector(cfg config.Config, logger *slog.Logger) (*correct.Chain, error) {
	var steps []correct.Step
	if cfg.Correction.Enabled {
		if len(cfg.Correction.Lexicon) > 0 {
			steps = append(steps, correct.NewLexiconStep(cfg.Correction.Lexicon))
		}
		if cfg.Correction.Model != "" {
			grammar, err := correct.NewGrammarStep(cfg.ASR.BaseURL, cfg.ASR.APIKey, cfg.Correction.Model)
			if err != nil {
				return nil, fmt.Errorf("grammar step: %w", err)
			}
			steps = append(steps, grammar)
		}
	}

	return correct.NewChain(
		steps,
		cfg.Correction.MinWords,
		cfg.Correction.MinRatio,
		cfg.Correction.MaxRatio,
		cfg.Correction.StepTimeout(),
		logger,
	), nil
}

// sessionFactory adapts audio session startup to the daemon's capture hook.
func sessionFactory(cfg config.AudioConfig) daemon.SessionFactory {
	opts := audio.SessionOptions{
		Input:    cfg.Input,
		Fallback: cfg.Fallback,
		Flush:    time.Duration(cfg.FlushMS) * time.Millisecond,
		Grace:    time.Duration(cfg.GraceMS) * time.Millisecond,
	}
	return func(ctx context.Context) (daemon.RecordingSession, error) {
		session, err := audio.Start(ctx, opts)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
