package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/rbright/murmur/internal/router"
)

const localSystemPrompt = "You are a concise voice assistant. " +
	"Answer the user's question in at most two short sentences of plain text."

// LocalBackend answers trivial questions with one bounded chat-completion
// call against the local inference server.
type LocalBackend struct {
	client  oai.Client
	model   string
	timeout time.Duration
}

// NewLocalBackend builds the local backend.
func NewLocalBackend(baseURL, apiKey, model string, timeout time.Duration) (*LocalBackend, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("dispatch: local model must not be empty")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = "murmur-local"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &LocalBackend{
		client:  oai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}, nil
}

// Execute makes the single-shot call.
func (b *LocalBackend) Execute(ctx context.Context, decision router.Decision) Outcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(localSystemPrompt),
			oai.UserMessage(decision.Text),
		},
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return failed("", ErrTimeout, elapsed)
		}
		return failed("", fmt.Errorf("local completion: %w", err), elapsed)
	}
	if len(resp.Choices) == 0 {
		return failed("", errors.New("local completion returned no choices"), elapsed)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return failed("", errors.New("local completion returned empty text"), elapsed)
	}
	return succeeded(text, elapsed)
}
