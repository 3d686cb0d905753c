package correct

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const grammarSystemPrompt = "Fix grammar and punctuation in the following text. " +
	"Output ONLY the corrected text with no explanation. " +
	"If the text is already correct, output it unchanged."

// GrammarStep asks a small local model to fix grammar and punctuation.
type GrammarStep struct {
	client oai.Client
	model  string
}

// NewGrammarStep builds a grammar step against an OpenAI-compatible endpoint.
func NewGrammarStep(baseURL, apiKey, model string) (*GrammarStep, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("correct: grammar model must not be empty")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = "murmur-local"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &GrammarStep{
		client: oai.NewClient(opts...),
		model:  model,
	}, nil
}

func (s *GrammarStep) Name() string { return "grammar" }

// Apply requests a correction. An empty model response is an error: the
// chain must never replace real speech with nothing.
func (s *GrammarStep) Apply(ctx context.Context, text string) StepResult {
	resp, err := s.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(grammarSystemPrompt),
			oai.UserMessage(text),
		},
		Temperature:         param.NewOpt(0.1),
		MaxCompletionTokens: param.NewOpt(int64(256)),
	})
	if err != nil {
		return StepResult{Text: text, Err: fmt.Errorf("grammar completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return StepResult{Text: text, Err: errors.New("grammar completion returned no choices")}
	}

	corrected := strings.TrimSpace(resp.Choices[0].Message.Content)
	if corrected == "" {
		return StepResult{Text: text, Err: errors.New("grammar completion returned empty text")}
	}

	return StepResult{Text: corrected, Changed: corrected != text}
}
