// Package router decides what to do with corrected text: type it out, ask a
// model, or perform an action. A fast classifier gets the first word;
// deterministic rules take over whenever it cannot answer.
package router

import "fmt"

// Intent is the closed set of things murmur can do with a take.
type Intent string

const (
	// IntentDictate types the text as-is with no model involved.
	IntentDictate Intent = "dictate"
	// IntentLocal answers with a single-shot local model call.
	IntentLocal Intent = "local"
	// IntentAgent hands the text to the streaming agent CLI.
	IntentAgent Intent = "agent"
	// IntentTimer schedules a notification timer.
	IntentTimer Intent = "timer"
)

// ParseIntent validates a string against the closed intent set.
func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentDictate, IntentLocal, IntentAgent, IntentTimer:
		return Intent(s), nil
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// Source identifies which routing path produced a decision.
type Source string

const (
	SourceClassifier Source = "classifier"
	SourcePrefix     Source = "prefix"
	SourceWord       Source = "word"
	SourceHeuristic  Source = "heuristic"
	SourceDefault    Source = "default"
)

// Decision is the router's single verdict for a session.
type Decision struct {
	Intent     Intent
	Profile    string
	Text       string
	Trigger    string
	Source     Source
	Confidence float64
}
