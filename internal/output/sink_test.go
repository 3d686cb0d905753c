package output

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rbright/murmur/internal/config"
)

type call struct {
	argv  []string
	stdin string
}

func testSink(cfg config.OutputConfig, run commandRunner) *Sink {
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.run = run
	return s
}

func enabledConfig() config.OutputConfig {
	return config.OutputConfig{
		Enabled:   true,
		Clipboard: config.CommandConfig{Argv: []string{"wl-copy", "--trim-newline"}},
		Paste:     config.CommandConfig{Argv: []string{"wtype", "-M", "ctrl", "v"}},
	}
}

func TestDeliverCopiesThenPastes(t *testing.T) {
	var calls []call
	s := testSink(enabledConfig(), func(_ context.Context, argv []string, stdin string) error {
		calls = append(calls, call{argv: argv, stdin: stdin})
		return nil
	})

	delivered := s.Deliver(context.Background(), "hello world")
	assert.True(t, delivered)
	assert.Len(t, calls, 2)
	assert.Equal(t, "wl-copy", calls[0].argv[0])
	assert.Equal(t, "hello world", calls[0].stdin)
	assert.Equal(t, "wtype", calls[1].argv[0])
	assert.Empty(t, calls[1].stdin)
}

func TestDeliverEmptyTextIsNoOp(t *testing.T) {
	s := testSink(enabledConfig(), func(_ context.Context, _ []string, _ string) error {
		t.Fatal("no command should run for empty text")
		return nil
	})

	assert.False(t, s.Deliver(context.Background(), "   \n"))
}

func TestClipboardFailureIsNotDelivered(t *testing.T) {
	s := testSink(enabledConfig(), func(_ context.Context, _ []string, _ string) error {
		return errors.New("wl-copy not found")
	})

	assert.False(t, s.Deliver(context.Background(), "hello"))
}

func TestPasteFailureStillCountsAsDelivered(t *testing.T) {
	s := testSink(enabledConfig(), func(_ context.Context, argv []string, _ string) error {
		if argv[0] == "wtype" {
			return errors.New("compositor rejected input")
		}
		return nil
	})

	assert.True(t, s.Deliver(context.Background(), "hello"))
}

func TestDisabledSinkDeliversNothing(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	s := testSink(cfg, func(_ context.Context, _ []string, _ string) error {
		t.Fatal("disabled sink must not run commands")
		return nil
	})

	assert.False(t, s.Deliver(context.Background(), "hello"))
}
