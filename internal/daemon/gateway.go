package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/ipc"
)

// Gateway translates external control inputs, IPC commands and POSIX
// signals, into queued daemon commands. It checks the state snapshot before
// enqueueing so a client gets an immediate rejection instead of a command
// that the loop would discard later.
type Gateway struct {
	daemon *Daemon
	logger *slog.Logger
}

// NewGateway builds the gateway for a daemon.
func NewGateway(d *Daemon, logger *slog.Logger) *Gateway {
	return &Gateway{daemon: d, logger: logger}
}

// Handle serves one IPC control request.
func (g *Gateway) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(g.daemon.State()), Message: "status"}
	case ipc.CommandToggle:
		return g.requestToggle()
	case ipc.CommandCancel:
		return g.requestCancel()
	case ipc.CommandShutdown:
		return g.requestShutdown()
	default:
		return ipc.Response{
			OK:    false,
			State: string(g.daemon.State()),
			Error: fmt.Sprintf("unknown command: %s", req.Command),
		}
	}
}

// WatchSignals forwards SIGUSR1 as toggle and SIGUSR2 as cancel until the
// context ends. Handlers do nothing but enqueue.
func (g *Gateway) WatchSignals(ctx context.Context) {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, unix.SIGUSR1, unix.SIGUSR2)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				switch sig {
				case unix.SIGUSR1:
					resp := g.requestToggle()
					g.logger.Info("signal toggle", "accepted", resp.OK, "state", resp.State)
				case unix.SIGUSR2:
					resp := g.requestCancel()
					g.logger.Info("signal cancel", "accepted", resp.OK, "state", resp.State)
				}
			}
		}
	}()
}

// requestToggle enqueues a toggle when the state permits one. A session in
// Processing runs to its terminal state first; the client retries.
func (g *Gateway) requestToggle() ipc.Response {
	state := g.daemon.State()
	switch state {
	case fsm.StateIdle, fsm.StateRecording:
	default:
		return ipc.Response{
			OK:    false,
			State: string(state),
			Error: fmt.Sprintf("cannot toggle from state %s", state),
		}
	}

	select {
	case g.daemon.commands <- cmdToggle:
		return ipc.Response{OK: true, State: string(state), Message: "toggle requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "toggle already requested"}
	}
}

// requestCancel enqueues a cancel for an active recording. Cancel while
// idle succeeds as a no-op without enqueueing anything.
func (g *Gateway) requestCancel() ipc.Response {
	state := g.daemon.State()
	switch state {
	case fsm.StateIdle:
		return ipc.Response{OK: true, State: string(state), Message: "nothing to cancel"}
	case fsm.StateRecording:
	default:
		return ipc.Response{
			OK:    false,
			State: string(state),
			Error: fmt.Sprintf("cannot cancel from state %s", state),
		}
	}

	select {
	case g.daemon.commands <- cmdCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// requestShutdown signals the loop directly; the loop drains any active
// recording before exiting. Unlike toggle and cancel, an accepted shutdown
// must survive a full command queue.
func (g *Gateway) requestShutdown() ipc.Response {
	g.daemon.requestShutdown()
	return ipc.Response{OK: true, State: string(g.daemon.State()), Message: "shutdown requested"}
}
