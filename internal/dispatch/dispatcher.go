package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbright/murmur/internal/router"
)

// backend executes one intent's work.
type backend interface {
	Execute(ctx context.Context, decision router.Decision) Outcome
}

// Dispatcher holds one backend per intent and matches the closed set
// exhaustively.
type Dispatcher struct {
	agent  backend
	local  backend
	timer  backend
	logger *slog.Logger
}

// New wires the three external backends. Dictation needs none.
func New(agent, local, timer backend, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{agent: agent, local: local, timer: timer, logger: logger}
}

// Dispatch runs the backend for the decision's intent. Dictation is a pure
// passthrough: the routed text is the response.
func (d *Dispatcher) Dispatch(ctx context.Context, decision router.Decision) Outcome {
	switch decision.Intent {
	case router.IntentDictate:
		return succeeded(decision.Text, 0)
	case router.IntentAgent:
		return d.run(ctx, d.agent, decision)
	case router.IntentLocal:
		return d.run(ctx, d.local, decision)
	case router.IntentTimer:
		return d.run(ctx, d.timer, decision)
	default:
		// Unreachable: router output is validated against the closed set.
		return failed("", fmt.Errorf("no backend for intent %q", decision.Intent), 0)
	}
}

// run guards a backend call so a panicking backend degrades to a failed
// outcome instead of killing the daemon loop.
func (d *Dispatcher) run(ctx context.Context, b backend, decision router.Decision) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("execution backend panicked",
				"intent", decision.Intent,
				"panic", r)
			out = failed("", fmt.Errorf("backend panic: %v", r), 0)
		}
	}()

	if b == nil {
		return failed("", fmt.Errorf("intent %q has no configured backend", decision.Intent), 0)
	}
	return b.Execute(ctx, decision)
}
