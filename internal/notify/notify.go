// Package notify surfaces pipeline progress as freedesktop desktop
// notifications. Notification failures are logged and swallowed; feedback is
// never allowed to break the pipeline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/config"
)

// busRunner invokes busctl; replaced in tests.
type busRunner func(ctx context.Context, args ...string) ([]byte, error)

func defaultBusRunner(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
}

// Notifier sends replaceable progress notifications for one pipeline.
// Each phase replaces the previous bubble so the user sees a single
// progressing indicator rather than a stack.
type Notifier struct {
	enabled   bool
	appName   string
	timeoutMS int
	logger    *slog.Logger
	run       busRunner

	mu     sync.Mutex
	lastID uint32
}

// New builds a Notifier from configuration.
func New(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		enabled:   cfg.Enabled,
		appName:   cfg.AppName,
		timeoutMS: cfg.TimeoutMS,
		logger:    logger,
		run:       defaultBusRunner,
	}
}

// Ready announces the daemon finished warmup.
func (n *Notifier) Ready(ctx context.Context) {
	n.send(ctx, "Ready")
}

// Recording announces capture start.
func (n *Notifier) Recording(ctx context.Context) {
	n.send(ctx, "Recording…")
}

// Processing announces transcription/routing, naming the executing model when known.
func (n *Notifier) Processing(ctx context.Context, model string) {
	if model == "" {
		n.send(ctx, "Processing…")
		return
	}
	n.send(ctx, fmt.Sprintf("Processing (%s)…", model))
}

// Done announces completion with a preview of the delivered text.
func (n *Notifier) Done(ctx context.Context, text string) {
	n.send(ctx, "Done: "+preview(text, 100))
}

// Cancelled announces that the session was discarded.
func (n *Notifier) Cancelled(ctx context.Context) {
	n.send(ctx, "Cancelled")
}

// NoSpeech announces an empty transcription.
func (n *Notifier) NoSpeech(ctx context.Context) {
	n.send(ctx, "No speech detected")
}

// Error announces a failed session.
func (n *Notifier) Error(ctx context.Context, summary string) {
	n.send(ctx, "Error: "+preview(summary, 100))
}

// Dismiss closes the current notification, if any.
func (n *Notifier) Dismiss(ctx context.Context) {
	if !n.enabled {
		return
	}

	n.mu.Lock()
	id := n.lastID
	n.lastID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}

	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		strconv.FormatUint(uint64(id), 10),
	}
	if _, err := n.run(ctx, args...); err != nil {
		n.logger.Warn("notification dismiss failed", "error", err)
	}
}

// send posts one notification, replacing the previous one.
func (n *Notifier) send(ctx context.Context, summary string) {
	if !n.enabled {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	n.mu.Lock()
	replaceID := n.lastID
	n.mu.Unlock()

	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"",
		summary,
		"",
		"0", // actions array length
		"0", // hints map length
		strconv.Itoa(n.timeoutMS),
	}

	out, err := n.run(ctx, args...)
	if err != nil {
		n.logger.Warn("notification failed", "summary", summary, "error", err)
		return
	}

	id, err := parseNotifyID(out)
	if err != nil {
		n.logger.Warn("notification id unreadable", "error", err)
		return
	}

	n.mu.Lock()
	n.lastID = id
	n.mu.Unlock()
}

// parseNotifyID extracts the server-assigned ID from busctl's "u <id>" reply.
func parseNotifyID(out []byte) (uint32, error) {
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("invalid busctl response: %q", strings.TrimSpace(string(out)))
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse notification id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

// preview truncates text for a one-line notification body.
func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if line, _, found := strings.Cut(text, "\n"); found {
		text = line + "…"
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
