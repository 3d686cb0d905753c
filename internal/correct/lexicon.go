package correct

import (
	"context"
	"strings"

	"github.com/rbright/murmur/internal/config"
)

// LexiconStep applies user-configured literal replacements in order. It
// handles the recurring mishearings a general model never learns, like a
// product name the recognizer keeps mangling.
type LexiconStep struct {
	pairs []config.Replacement
}

// NewLexiconStep builds a step from configured replacement pairs.
func NewLexiconStep(pairs []config.Replacement) *LexiconStep {
	return &LexiconStep{pairs: pairs}
}

func (s *LexiconStep) Name() string { return "lexicon" }

// Apply replaces every occurrence of each configured pattern, in the order
// pairs were configured. Later pairs see the output of earlier ones.
func (s *LexiconStep) Apply(_ context.Context, text string) StepResult {
	current := text
	for _, pair := range s.pairs {
		if pair.From == "" {
			continue
		}
		current = strings.ReplaceAll(current, pair.From, pair.To)
	}
	return StepResult{Text: current, Changed: current != text}
}
