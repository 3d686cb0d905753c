package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/router"
)

// streamRecord is one newline-delimited record from the agent CLI.
type streamRecord struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AgentBackend runs the streaming agent CLI as a subprocess. The CLI emits
// newline-delimited JSON: "delta" records carrying text fragments and a
// final "done" marker. Text streamed before a timeout or crash is retained
// in the outcome.
type AgentBackend struct {
	command config.CommandConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewAgentBackend builds the agent backend from configuration.
func NewAgentBackend(cfg config.ExecConfig, logger *slog.Logger) *AgentBackend {
	return &AgentBackend{
		command: cfg.AgentCommand,
		timeout: cfg.AgentTimeout(),
		logger:  logger,
	}
}

// Execute streams one agent run to completion or timeout.
func (b *AgentBackend) Execute(ctx context.Context, decision router.Decision) Outcome {
	start := time.Now()

	if len(b.command.Argv) == 0 {
		return failed("", errors.New("agent command not configured"), time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	argv := append([]string(nil), b.command.Argv...)
	if decision.Profile != "" {
		argv = append(argv, "--model", decision.Profile)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(decision.Text)
	// Don't let an orphaned grandchild holding stdout stall the wait
	// past the kill.
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failed("", fmt.Errorf("agent stdout pipe: %w", err), time.Since(start))
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return failed("", fmt.Errorf("start agent command: %w", err), time.Since(start))
	}

	var response strings.Builder
	sawDone := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record streamRecord
		if err := json.Unmarshal(line, &record); err != nil {
			b.logger.Warn("agent stream record unreadable", "line", string(line))
			continue
		}

		switch record.Type {
		case "delta":
			response.WriteString(record.Text)
		case "done":
			sawDone = true
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	partial := response.String()

	if ctx.Err() != nil {
		b.logger.Warn("agent run timed out",
			"timeout", b.timeout,
			"partial_len", len(partial))
		return failed(partial, ErrTimeout, elapsed)
	}
	if waitErr != nil {
		return failed(partial, agentError(waitErr, stderr.Bytes()), elapsed)
	}
	if scanErr != nil {
		return failed(partial, fmt.Errorf("read agent stream: %w", scanErr), elapsed)
	}
	if !sawDone {
		return failed(partial, errors.New("agent stream ended without completion marker"), elapsed)
	}

	return succeeded(partial, elapsed)
}

// agentError folds captured stderr into the exit error for diagnostics.
func agentError(waitErr error, stderr []byte) error {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		return fmt.Errorf("agent command failed: %w", waitErr)
	}
	return fmt.Errorf("agent command failed: %w (%s)", waitErr, detail)
}
