// Package media pauses desktop playback during capture and resumes it
// afterwards, but only when murmur was the one that paused it.
package media

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// commandRunner invokes playerctl; replaced in tests.
type commandRunner func(ctx context.Context, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "playerctl", args...).CombinedOutput()
}

// Coordinator pauses and resumes playback around a recording session.
// A marker file records that murmur paused the player, so a pause the user
// initiated themselves is never overridden with an unwanted resume. The
// marker survives a daemon crash: the next startup clears the stale state.
type Coordinator struct {
	enabled    bool
	markerPath string
	logger     *slog.Logger
	run        commandRunner
}

// New builds a Coordinator writing its marker under the runtime directory.
func New(enabled bool, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		enabled:    enabled,
		markerPath: markerPath(),
		logger:     logger,
		run:        defaultRunner,
	}
}

// markerPath places the pause marker next to the daemon socket.
func markerPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "murmur-media-paused")
	}
	return filepath.Join(os.TempDir(), "murmur-media-paused")
}

// PauseForCapture pauses playback when something is actually playing and
// records the marker. All failures are logged and swallowed; media control is
// best-effort.
func (c *Coordinator) PauseForCapture(ctx context.Context) {
	if !c.enabled {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	out, err := c.run(ctx, "status")
	if err != nil {
		// No player registered, or playerctl missing. Either way nothing to pause.
		return
	}
	if strings.TrimSpace(string(out)) != "Playing" {
		return
	}

	if _, err := c.run(ctx, "pause"); err != nil {
		c.logger.Warn("media pause failed", "error", err)
		return
	}
	if err := os.WriteFile(c.markerPath, []byte(""), 0o600); err != nil {
		c.logger.Warn("media marker write failed", "path", c.markerPath, "error", err)
	}
}

// Resume restarts playback if and only if murmur paused it. The marker is
// consumed regardless of whether the resume command succeeds.
func (c *Coordinator) Resume(ctx context.Context) {
	if !c.enabled {
		return
	}

	if _, err := os.Stat(c.markerPath); err != nil {
		return
	}
	if err := os.Remove(c.markerPath); err != nil {
		c.logger.Warn("media marker remove failed", "path", c.markerPath, "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if _, err := c.run(ctx, "play"); err != nil {
		c.logger.Warn("media resume failed", "error", err)
	}
}

// ClearStale removes a marker left behind by an earlier abnormal exit.
// Called once at daemon startup before any session runs.
func (c *Coordinator) ClearStale() {
	if err := os.Remove(c.markerPath); err == nil {
		c.logger.Info("cleared stale media pause marker", "path", c.markerPath)
	}
}
