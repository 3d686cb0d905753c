// Package asr converts finalized audio takes to text through an
// OpenAI-compatible transcription endpoint.
package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
)

// Result is one completed transcription.
type Result struct {
	Text     string
	Language string
	Duration time.Duration
}

// Empty reports whether transcription produced no usable speech.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Client talks to an OpenAI-compatible /v1 audio endpoint.
type Client struct {
	api          oai.Client
	model        string
	language     string
	timeout      time.Duration
	readyTimeout time.Duration
}

// New builds a transcription client from configuration.
func New(cfg config.ASRConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("asr: base_url must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("asr: model must not be empty")
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
	}
	apiKey := cfg.APIKey
	if strings.TrimSpace(apiKey) == "" {
		// Local inference servers ignore auth but the SDK requires a key.
		apiKey = "murmur-local"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &Client{
		api:          oai.NewClient(opts...),
		model:        cfg.Model,
		language:     cfg.Language,
		timeout:      cfg.Timeout(),
		readyTimeout: cfg.ReadyTimeout(),
	}, nil
}

// Transcribe converts one take to text. The call is bounded by the configured
// timeout; duration is derived from the buffer, not the response.
func (c *Client) Transcribe(ctx context.Context, buf *audio.Buffer) (Result, error) {
	if buf.Empty() {
		return Result{}, errors.New("asr: empty audio buffer")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wav := EncodeWAV(buf)
	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(c.model),
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if c.language != "" {
		params.Language = param.NewOpt(c.language)
	}

	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("asr: transcribe: %w", err)
	}

	return Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: c.language,
		Duration: buf.Duration(),
	}, nil
}

// Probe checks endpoint reachability by listing models. Used during warmup;
// failure means the daemon reports not-ready, not that it exits.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	defer cancel()

	if _, err := c.api.Models.List(ctx); err != nil {
		return fmt.Errorf("asr: endpoint probe: %w", err)
	}
	return nil
}
