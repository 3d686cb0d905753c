package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// knownIntents is the closed set of intent names trigger rules may target.
var knownIntents = []string{"dictate", "local", "agent", "timer"}

// Validate checks cross-field coherence and normalizes recoverable values.
// It returns warnings for values it repaired and an error for contradictions
// that cannot be repaired.
func Validate(cfg *Config) ([]Warning, error) {
	var (
		warnings []Warning
		errs     []error
	)

	warn := func(format string, args ...any) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Audio.FlushMS < 0 {
		warn("audio.flush_ms %d is negative; using 0", cfg.Audio.FlushMS)
		cfg.Audio.FlushMS = 0
	}
	if cfg.Audio.GraceMS < 0 {
		warn("audio.grace_ms %d is negative; using 0", cfg.Audio.GraceMS)
		cfg.Audio.GraceMS = 0
	}

	if strings.TrimSpace(cfg.ASR.BaseURL) == "" {
		errs = append(errs, errors.New("asr.base_url is required"))
	}
	if strings.TrimSpace(cfg.ASR.Model) == "" {
		errs = append(errs, errors.New("asr.model is required"))
	}
	if cfg.ASR.TimeoutS <= 0 {
		warn("asr.timeout_s %.1f is not positive; using 30", cfg.ASR.TimeoutS)
		cfg.ASR.TimeoutS = 30
	}

	if cfg.Correction.MinRatio <= 0 || cfg.Correction.MaxRatio <= 0 ||
		cfg.Correction.MinRatio >= cfg.Correction.MaxRatio {
		errs = append(errs, fmt.Errorf(
			"correction ratio band [%.2f, %.2f] is invalid; min_ratio must be positive and below max_ratio",
			cfg.Correction.MinRatio, cfg.Correction.MaxRatio))
	}
	if cfg.Correction.MinWords < 0 {
		warn("correction.min_words %d is negative; using 0", cfg.Correction.MinWords)
		cfg.Correction.MinWords = 0
	}

	if cfg.Router.ShortThreshold < 0 || cfg.Router.LongThreshold < 0 ||
		cfg.Router.ShortThreshold > cfg.Router.LongThreshold {
		errs = append(errs, fmt.Errorf(
			"router thresholds short=%d long=%d are invalid; short must not exceed long",
			cfg.Router.ShortThreshold, cfg.Router.LongThreshold))
	}
	if !slices.Contains(knownIntents, cfg.Router.DefaultIntent) {
		errs = append(errs, fmt.Errorf(
			"router.default_intent %q is unknown; valid intents: %s",
			cfg.Router.DefaultIntent, strings.Join(knownIntents, ", ")))
	}
	for i, rule := range cfg.Router.PrefixTriggers {
		if err := validateRule("router.prefix_triggers", i, rule); err != nil {
			errs = append(errs, err)
		}
	}
	for i, rule := range cfg.Router.WordTriggers {
		if err := validateRule("router.word_triggers", i, rule); err != nil {
			errs = append(errs, err)
		}
	}

	if len(cfg.Exec.AgentCommand.Argv) == 0 {
		warn("exec.agent_command is empty; agent intent will fail at dispatch")
	}
	if cfg.Output.Enabled && len(cfg.Output.Clipboard.Argv) == 0 {
		errs = append(errs, errors.New("output.clipboard command is required when output is enabled"))
	}
	if cfg.History.MaxResponseChars <= 0 {
		warn("history.max_response_chars %d is not positive; using 16384", cfg.History.MaxResponseChars)
		cfg.History.MaxResponseChars = 16384
	}

	return warnings, errors.Join(errs...)
}

func validateRule(section string, index int, rule TriggerRule) error {
	if strings.TrimSpace(rule.Trigger) == "" {
		return fmt.Errorf("%s[%d].trigger is required", section, index)
	}
	if !slices.Contains(knownIntents, rule.Intent) {
		return fmt.Errorf("%s[%d].intent %q is unknown; valid intents: %s",
			section, index, rule.Intent, strings.Join(knownIntents, ", "))
	}
	return nil
}
