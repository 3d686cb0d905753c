package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
)

// classifier is the external intent model; swapped for a fake in tests.
type classifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// Router produces exactly one Decision per session.
type Router struct {
	cfg        config.RouterConfig
	classifier classifier
	logger     *slog.Logger
}

// New builds a Router. classifier may be nil when classification is
// disabled; every route then goes through the rule cascade.
func New(cfg config.RouterConfig, classifier classifier, logger *slog.Logger) *Router {
	return &Router{cfg: cfg, classifier: classifier, logger: logger}
}

// Route classifies text into an intent and execution profile. The classifier
// is primary; on timeout, unavailability, or an out-of-vocabulary answer the
// deterministic rule cascade decides instead. Routing itself never fails.
func (r *Router) Route(ctx context.Context, text string) Decision {
	if r.cfg.ClassifierEnabled && r.classifier != nil {
		if d, ok := r.classify(ctx, text); ok {
			return d
		}
	}
	return ruleRoute(r.cfg, text)
}

// classify runs the bounded classifier call and shapes its answer into a
// Decision.
func (r *Router) classify(ctx context.Context, text string) (Decision, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	start := time.Now()
	intent, err := r.classifier.Classify(ctx, text)
	if err != nil {
		r.logger.Warn("classifier unavailable, using rule cascade",
			"error", err,
			"elapsed", time.Since(start))
		return Decision{}, false
	}

	return Decision{
		Intent:     intent,
		Profile:    classifierProfile(r.cfg, intent, text),
		Text:       strings.TrimSpace(text),
		Source:     SourceClassifier,
		Confidence: 0.9,
	}, true
}

// classifierProfile picks the agent profile on the classifier path: complex
// keywords escalate, everything else uses the default.
func classifierProfile(cfg config.RouterConfig, intent Intent, text string) string {
	if intent != IntentAgent {
		return ""
	}
	lower := strings.ToLower(text)
	for _, keyword := range cfg.ComplexKeywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			return cfg.ComplexProfile
		}
	}
	return cfg.DefaultProfile
}
