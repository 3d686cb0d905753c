package router

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

const classifierPrompt = `Classify the user's transcribed voice input into exactly one category.
Categories:
- dictate: text meant to be typed out verbatim
- local: a trivial question answerable in one sentence
- agent: a request requiring reasoning, code, or tools
- timer: a request to set a timer or reminder
Respond with the category name only, nothing else.`

// Classifier asks a small model for one token out of the closed intent
// vocabulary.
type Classifier struct {
	client oai.Client
	model  string
}

// NewClassifier builds a classifier against an OpenAI-compatible endpoint.
func NewClassifier(baseURL, apiKey, model string) (*Classifier, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("router: classifier model must not be empty")
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if strings.TrimSpace(apiKey) == "" {
		apiKey = "murmur-local"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &Classifier{client: oai.NewClient(opts...), model: model}, nil
}

// Classify returns one intent from the closed vocabulary. Any token outside
// the vocabulary is an error; the caller falls back to rules rather than
// trusting a rambling model.
func (c *Classifier) Classify(ctx context.Context, text string) (Intent, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(classifierPrompt),
			oai.UserMessage(text),
		},
		Temperature:         param.NewOpt(0.0),
		MaxCompletionTokens: param.NewOpt(int64(8)),
	})
	if err != nil {
		return "", fmt.Errorf("router: classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("router: classifier returned no choices")
	}

	token := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	token = strings.Trim(token, ".\"'")
	return ParseIntent(token)
}
