package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// prober checks backend reachability; asr.Client in production.
type prober interface {
	Probe(ctx context.Context) error
}

// Warmup probes the inference backend in the background so the first session
// after startup does not pay connection and model-load latency inside the
// pipeline. Readiness is signalled once through a closed channel.
type Warmup struct {
	probe  prober
	logger *slog.Logger

	once  sync.Once
	ready chan struct{}

	mu  sync.Mutex
	err error
}

// NewWarmup builds the warmup coordinator.
func NewWarmup(probe prober, logger *slog.Logger) *Warmup {
	return &Warmup{
		probe:  probe,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Start launches the background probe. Retries with backoff until the
// backend answers or the daemon context ends.
func (w *Warmup) Start(ctx context.Context) {
	w.once.Do(func() {
		go w.run(ctx)
	})
}

func (w *Warmup) run(ctx context.Context) {
	backoff := time.Second
	for {
		err := w.probe.Probe(ctx)
		if err == nil {
			w.logger.Info("inference backend ready")
			close(w.ready)
			return
		}

		w.setErr(err)
		w.logger.Warn("inference backend probe failed, retrying",
			"error", err,
			"backoff", backoff)

		select {
		case <-ctx.Done():
			w.setErr(ctx.Err())
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Await blocks until readiness or the timeout. On timeout the last probe
// error is attached for diagnostics.
func (w *Warmup) Await(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		if last := w.lastErr(); last != nil {
			return fmt.Errorf("backend not ready after %s: %w", timeout, last)
		}
		return errors.New("backend not ready after " + timeout.String())
	}
}

func (w *Warmup) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *Warmup) lastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
