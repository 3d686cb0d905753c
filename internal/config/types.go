// Package config resolves, parses, validates, and defaults murmur configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the fully materialized runtime configuration used by murmur.
// It is loaded once at daemon startup; there is no hot reload.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	ASR        ASRConfig        `yaml:"asr"`
	Correction CorrectionConfig `yaml:"correction"`
	Router     RouterConfig     `yaml:"router"`
	Exec       ExecConfig       `yaml:"exec"`
	Output     OutputConfig     `yaml:"output"`
	Notify     NotifyConfig     `yaml:"notify"`
	History    HistoryConfig    `yaml:"history"`
	Media      MediaConfig      `yaml:"media"`
}

// AudioConfig controls capture source selection and session timing.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
	// FlushMS is the leading capture window discarded on start to drop
	// stale frames some servers replay when a stream opens.
	FlushMS int `yaml:"flush_ms"`
	// GraceMS is the trailing delay applied on stop so abrupt stream
	// termination does not clip the end of speech.
	GraceMS int `yaml:"grace_ms"`
}

// ASRConfig controls the transcription collaborator endpoint.
type ASRConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	TimeoutS      float64 `yaml:"timeout_s"`
	ReadyTimeoutS float64 `yaml:"ready_timeout_s"`
}

func (c ASRConfig) Timeout() time.Duration      { return secondsDuration(c.TimeoutS) }
func (c ASRConfig) ReadyTimeout() time.Duration { return secondsDuration(c.ReadyTimeoutS) }

// Replacement is one ordered lexicon substitution applied after transcription.
type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CorrectionConfig controls the fail-open post-transcription correction chain.
type CorrectionConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Model        string        `yaml:"model"`
	MinWords     int           `yaml:"min_words"`
	MinRatio     float64       `yaml:"min_ratio"`
	MaxRatio     float64       `yaml:"max_ratio"`
	StepTimeoutS float64       `yaml:"step_timeout_s"`
	Lexicon      []Replacement `yaml:"lexicon"`
}

func (c CorrectionConfig) StepTimeout() time.Duration { return secondsDuration(c.StepTimeoutS) }

// TriggerRule binds one trigger token to an intent and execution profile.
type TriggerRule struct {
	Trigger string `yaml:"trigger"`
	Intent  string `yaml:"intent"`
	Profile string `yaml:"profile"`
}

// RouterConfig controls intent classification and the rule-based fallback.
type RouterConfig struct {
	ClassifierEnabled bool          `yaml:"classifier_enabled"`
	Model             string        `yaml:"model"`
	TimeoutS          float64       `yaml:"timeout_s"`
	DefaultIntent     string        `yaml:"default_intent"`
	DefaultProfile    string        `yaml:"default_profile"`
	ComplexProfile    string        `yaml:"complex_profile"`
	ShortThreshold    int           `yaml:"short_threshold"`
	LongThreshold     int           `yaml:"long_threshold"`
	ComplexKeywords   []string      `yaml:"complex_keywords"`
	PrefixTriggers    []TriggerRule `yaml:"prefix_triggers"`
	WordTriggers      []TriggerRule `yaml:"word_triggers"`
}

func (c RouterConfig) Timeout() time.Duration { return secondsDuration(c.TimeoutS) }

// ExecConfig controls the execution backends the dispatcher drives.
type ExecConfig struct {
	AgentCommand  CommandConfig `yaml:"agent_command"`
	AgentTimeoutS float64       `yaml:"agent_timeout_s"`
	LocalModel    string        `yaml:"local_model"`
	LocalTimeoutS float64       `yaml:"local_timeout_s"`
	TimerSound    bool          `yaml:"timer_sound"`
}

func (c ExecConfig) AgentTimeout() time.Duration { return secondsDuration(c.AgentTimeoutS) }
func (c ExecConfig) LocalTimeout() time.Duration { return secondsDuration(c.LocalTimeoutS) }

// OutputConfig controls response delivery into the active environment.
type OutputConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Clipboard CommandConfig `yaml:"clipboard"`
	Paste     CommandConfig `yaml:"paste"`
}

// NotifyConfig controls desktop status notifications.
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AppName   string `yaml:"app_name"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// HistoryConfig controls the append-only interaction store.
type HistoryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Path             string `yaml:"path"`
	MaxResponseChars int    `yaml:"max_response_chars"`
}

// MediaConfig controls ambient media pause/resume during sessions.
type MediaConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CommandConfig stores a raw command string and its parsed argv form.
// In YAML it is written as a single shell-like string.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// UnmarshalYAML parses the scalar command string into argv form.
func (c *CommandConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	argv, err := parseArgv(raw)
	if err != nil {
		return fmt.Errorf("parse command %q: %w", raw, err)
	}
	c.Raw = raw
	c.Argv = argv
	return nil
}

// MarshalYAML renders the command back to its raw string form.
func (c CommandConfig) MarshalYAML() (any, error) {
	return c.Raw, nil
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

func secondsDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
