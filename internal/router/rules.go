package router

import (
	"strings"

	"github.com/rbright/murmur/internal/config"
)

// ruleRoute is the deterministic cascade used when the classifier cannot
// answer. Priority is strict: prefix triggers, then first-word triggers,
// then word-count and keyword heuristics, then the configured default.
// Within a priority, the first configured match wins so routing never
// depends on map iteration order.
func ruleRoute(cfg config.RouterConfig, text string) Decision {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Decision{
			Intent:     mustIntent(cfg.DefaultIntent),
			Text:       trimmed,
			Source:     SourceDefault,
			Confidence: 1.0,
		}
	}

	if d, ok := matchPrefix(cfg, trimmed); ok {
		return d
	}
	if d, ok := matchFirstWord(cfg, trimmed); ok {
		return d
	}
	if d, ok := matchHeuristics(cfg, trimmed); ok {
		return d
	}

	return Decision{
		Intent:     mustIntent(cfg.DefaultIntent),
		Profile:    profileFor(cfg, mustIntent(cfg.DefaultIntent), cfg.DefaultProfile),
		Text:       trimmed,
		Source:     SourceDefault,
		Confidence: 1.0,
	}
}

// matchPrefix finds the longest configured prefix trigger; equal lengths
// resolve to the earlier rule. The prefix is stripped from the text.
func matchPrefix(cfg config.RouterConfig, text string) (Decision, bool) {
	lower := strings.ToLower(text)

	var best *config.TriggerRule
	for i := range cfg.PrefixTriggers {
		rule := &cfg.PrefixTriggers[i]
		trigger := strings.ToLower(rule.Trigger)
		if !strings.HasPrefix(lower, trigger) {
			continue
		}
		if best == nil || len(rule.Trigger) > len(best.Trigger) {
			best = rule
		}
	}
	if best == nil {
		return Decision{}, false
	}

	rest := strings.TrimSpace(text[len(best.Trigger):])
	intent := mustIntent(best.Intent)
	return Decision{
		Intent:     intent,
		Profile:    profileFor(cfg, intent, best.Profile),
		Text:       rest,
		Trigger:    best.Trigger,
		Source:     SourcePrefix,
		Confidence: 1.0,
	}, true
}

// matchFirstWord compares the first token, trailing punctuation stripped,
// against configured trigger words. The token is removed from the text.
func matchFirstWord(cfg config.RouterConfig, text string) (Decision, bool) {
	first, rest, _ := strings.Cut(text, " ")
	token := strings.ToLower(strings.TrimRight(first, ".,!?:;"))
	if token == "" {
		return Decision{}, false
	}

	for i := range cfg.WordTriggers {
		rule := &cfg.WordTriggers[i]
		if strings.ToLower(rule.Trigger) != token {
			continue
		}
		intent := mustIntent(rule.Intent)
		return Decision{
			Intent:     intent,
			Profile:    profileFor(cfg, intent, rule.Profile),
			Text:       strings.TrimSpace(rest),
			Trigger:    rule.Trigger,
			Source:     SourceWord,
			Confidence: 1.0,
		}, true
	}
	return Decision{}, false
}

// matchHeuristics applies keyword and word-count routing. Complexity
// keywords force the agent with the complex profile; very short takes go to
// the local model; very long takes go to the agent.
func matchHeuristics(cfg config.RouterConfig, text string) (Decision, bool) {
	lower := strings.ToLower(text)
	for _, keyword := range cfg.ComplexKeywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return Decision{
				Intent:     IntentAgent,
				Profile:    cfg.ComplexProfile,
				Text:       text,
				Source:     SourceHeuristic,
				Confidence: 0.7,
			}, true
		}
	}

	words := len(strings.Fields(text))
	switch {
	case words < cfg.ShortThreshold:
		return Decision{
			Intent:     IntentLocal,
			Text:       text,
			Source:     SourceHeuristic,
			Confidence: 0.6,
		}, true
	case words >= cfg.LongThreshold:
		return Decision{
			Intent:     IntentAgent,
			Profile:    cfg.ComplexProfile,
			Text:       text,
			Source:     SourceHeuristic,
			Confidence: 0.6,
		}, true
	}
	return Decision{}, false
}

// profileFor resolves the execution profile for an intent. Only the agent
// backend is profile-addressable; other intents carry no profile.
func profileFor(cfg config.RouterConfig, intent Intent, explicit string) string {
	if intent != IntentAgent {
		return ""
	}
	if explicit != "" {
		return explicit
	}
	return cfg.DefaultProfile
}

// mustIntent converts a validated config intent name. Config validation
// rejects unknown names at startup, so failure here is a programming error.
func mustIntent(name string) Intent {
	intent, err := ParseIntent(name)
	if err != nil {
		return IntentDictate
	}
	return intent
}
