package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/router"
	"github.com/rbright/murmur/internal/timerparse"
)

// timerRunner invokes systemd-run; replaced in tests.
type timerRunner func(ctx context.Context, args ...string) ([]byte, error)

func defaultTimerRunner(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "systemd-run", args...).CombinedOutput()
}

// TimerBackend schedules notification timers as transient systemd units.
// The unit outlives the daemon, so a timer survives a murmur restart.
type TimerBackend struct {
	soundEnabled bool
	run          timerRunner
}

// NewTimerBackend builds the timer backend.
func NewTimerBackend(soundEnabled bool) *TimerBackend {
	return &TimerBackend{soundEnabled: soundEnabled, run: defaultTimerRunner}
}

// Execute parses the spoken duration and creates the transient timer.
// Remaining text after the duration becomes the timer label.
func (b *TimerBackend) Execute(ctx context.Context, decision router.Decision) Outcome {
	start := time.Now()

	seconds, label, ok := timerparse.ParseDuration(decision.Text)
	if !ok || seconds <= 0 {
		return failed("", fmt.Errorf("could not parse timer duration from %q", decision.Text), time.Since(start))
	}

	label = strings.Trim(label, " .,!?")
	displayLabel := label
	if displayLabel == "" {
		displayLabel = "Timer complete"
	}
	human := timerparse.FormatHuman(seconds)

	notifyCmd := fmt.Sprintf(
		`notify-send -a murmur -i alarm-symbolic -u critical %q %q`,
		"Timer: "+displayLabel,
		human+" elapsed",
	)
	if b.soundEnabled {
		notifyCmd += " ; paplay /usr/share/sounds/freedesktop/stereo/complete.oga 2>/dev/null || true"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	args := []string{
		"--user",
		"--on-active=" + timerparse.FormatSystemd(seconds),
		"--description=murmur timer",
		"/bin/sh", "-c", notifyCmd,
	}
	if out, err := b.run(ctx, args...); err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return failed("", fmt.Errorf("create timer unit: %w", err), time.Since(start))
		}
		return failed("", fmt.Errorf("create timer unit: %w (%s)", err, detail), time.Since(start))
	}

	message := "Timer set for " + human
	if label != "" {
		message += ": " + label
	}
	return succeeded(message, time.Since(start))
}
