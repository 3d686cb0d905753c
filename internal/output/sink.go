// Package output delivers final response text into the active environment
// via the configured clipboard and paste commands.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
)

// commandRunner executes one configured command with text on stdin.
type commandRunner func(ctx context.Context, argv []string, stdin string) error

func defaultRunner(ctx context.Context, argv []string, stdin string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			return err
		}
		return fmt.Errorf("%w (%s)", err, detail)
	}
	return nil
}

// Sink copies text to the clipboard and optionally triggers a paste.
// Delivery failures degrade, they never propagate: the caller learns whether
// delivery happened from the return value and notifies accordingly.
type Sink struct {
	cfg    config.OutputConfig
	logger *slog.Logger
	run    commandRunner
}

// New builds a Sink from configuration.
func New(cfg config.OutputConfig, logger *slog.Logger) *Sink {
	return &Sink{cfg: cfg, logger: logger, run: defaultRunner}
}

// Deliver places text into the environment. Empty text is a no-op. The paste
// step is best-effort on top of a successful copy; a paste failure still
// counts as delivered since the text is on the clipboard.
func (s *Sink) Deliver(ctx context.Context, text string) bool {
	if !s.cfg.Enabled || strings.TrimSpace(text) == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.copy(ctx, text); err != nil {
		s.logger.Warn("clipboard delivery failed", "error", err)
		return false
	}

	if len(s.cfg.Paste.Argv) > 0 {
		if err := s.run(ctx, s.cfg.Paste.Argv, ""); err != nil {
			s.logger.Warn("paste trigger failed, text remains on clipboard", "error", err)
		}
	}
	return true
}

func (s *Sink) copy(ctx context.Context, text string) error {
	if len(s.cfg.Clipboard.Argv) == 0 {
		return errors.New("clipboard command not configured")
	}
	return s.run(ctx, s.cfg.Clipboard.Argv, text)
}
