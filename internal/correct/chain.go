// Package correct cleans up transcribed text before routing. The chain is
// fail-open end to end: a failing step logs, contributes its error, and
// passes the text through unchanged. Correction can only improve a session,
// never kill it.
package correct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrRatioGuard marks a correction rejected because its length diverged too
// far from the input, the signature of a model that rewrote instead of
// corrected.
var ErrRatioGuard = errors.New("correction length diverged from original")

// StepResult is one step's verdict on the text.
type StepResult struct {
	Text    string
	Changed bool
	Err     error
}

// Step transforms text. Implementations must return the input text unchanged
// alongside any error; the chain relies on that to fail open.
type Step interface {
	Name() string
	Apply(ctx context.Context, text string) StepResult
}

// Result is the chain's aggregate outcome. Err collects step failures for
// telemetry; the session proceeds regardless.
type Result struct {
	Original  string
	Corrected string
	Changed   bool
	Err       error
}

// Chain runs correction steps in order, each under its own timeout.
type Chain struct {
	steps       []Step
	minWords    int
	minRatio    float64
	maxRatio    float64
	stepTimeout time.Duration
	logger      *slog.Logger
}

// NewChain builds a chain over the given steps.
func NewChain(steps []Step, minWords int, minRatio, maxRatio float64, stepTimeout time.Duration, logger *slog.Logger) *Chain {
	return &Chain{
		steps:       steps,
		minWords:    minWords,
		minRatio:    minRatio,
		maxRatio:    maxRatio,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

// Run applies every step to the text. Short inputs bypass the chain
// entirely: correcting a two-word command is more likely to mangle it than
// improve it.
func (c *Chain) Run(ctx context.Context, text string) Result {
	result := Result{Original: text, Corrected: text}

	if len(strings.Fields(text)) < c.minWords {
		return result
	}

	var errs []error
	current := text

	for _, step := range c.steps {
		stepResult := c.runStep(ctx, step, current)
		if stepResult.Err != nil {
			c.logger.Warn("correction step failed",
				"step", step.Name(),
				"error", stepResult.Err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name(), stepResult.Err))
			continue
		}
		if !stepResult.Changed {
			continue
		}

		if !c.ratioOK(current, stepResult.Text) {
			c.logger.Warn("correction step rejected by ratio guard",
				"step", step.Name(),
				"input_len", len(current),
				"output_len", len(stepResult.Text))
			errs = append(errs, fmt.Errorf("%s: %w", step.Name(), ErrRatioGuard))
			continue
		}

		current = stepResult.Text
		result.Changed = true
	}

	result.Corrected = current
	result.Err = errors.Join(errs...)
	return result
}

// runStep bounds one step with the per-step timeout and converts a panic
// into a step error. A misbehaving corrector must not take the daemon down.
func (c *Chain) runStep(ctx context.Context, step Step, text string) (out StepResult) {
	defer func() {
		if r := recover(); r != nil {
			out = StepResult{Text: text, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	return step.Apply(ctx, text)
}

// ratioOK checks the corrected length against the configured band around the
// input length.
func (c *Chain) ratioOK(input, output string) bool {
	inLen := float64(len(input))
	if inLen == 0 {
		return true
	}
	ratio := float64(len(output)) / inLen
	return ratio >= c.minRatio && ratio <= c.maxRatio
}
