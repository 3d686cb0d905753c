package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
			FlushMS:  50,
			GraceMS:  500,
		},
		ASR: ASRConfig{
			BaseURL:       "http://127.0.0.1:11434/v1",
			APIKey:        "murmur",
			Model:         "whisper-1",
			Language:      "en",
			TimeoutS:      30,
			ReadyTimeoutS: 15,
		},
		Correction: CorrectionConfig{
			Enabled:      true,
			Model:        "qwen3:0.6b",
			MinWords:     3,
			MinRatio:     0.5,
			MaxRatio:     1.5,
			StepTimeoutS: 10,
			Lexicon:      nil,
		},
		Router: RouterConfig{
			ClassifierEnabled: true,
			Model:             "qwen3:0.6b",
			TimeoutS:          2,
			DefaultIntent:     "dictate",
			DefaultProfile:    "sonnet",
			ComplexProfile:    "opus",
			ShortThreshold:    4,
			LongThreshold:     100,
			ComplexKeywords:   []string{"analyze", "refactor", "implement", "debug"},
			PrefixTriggers: []TriggerRule{
				{Trigger: "simple:", Intent: "local"},
				{Trigger: "edit:", Intent: "agent", Profile: "haiku"},
				{Trigger: "fix:", Intent: "agent", Profile: "haiku"},
				{Trigger: "change:", Intent: "agent", Profile: "haiku"},
				{Trigger: "rewrite:", Intent: "agent", Profile: "haiku"},
				{Trigger: "transform:", Intent: "agent", Profile: "haiku"},
			},
			WordTriggers: []TriggerRule{
				{Trigger: "timer", Intent: "timer"},
				{Trigger: "simple", Intent: "local"},
				{Trigger: "easy", Intent: "agent", Profile: "haiku"},
				{Trigger: "medium", Intent: "agent", Profile: "sonnet"},
				{Trigger: "hard", Intent: "agent", Profile: "opus"},
			},
		},
		Exec: ExecConfig{
			AgentCommand:  mustCommand("claude --print --output-format stream-json"),
			AgentTimeoutS: 120,
			LocalModel:    "qwen3:0.6b",
			LocalTimeoutS: 30,
			TimerSound:    true,
		},
		Output: OutputConfig{
			Enabled:   true,
			Clipboard: mustCommand(clipboard),
			Paste:     CommandConfig{},
		},
		Notify: NotifyConfig{
			Enabled:   true,
			AppName:   "murmur",
			TimeoutMS: 3000,
		},
		History: HistoryConfig{
			Enabled:          true,
			Path:             "",
			MaxResponseChars: 16384,
		},
		Media: MediaConfig{Enabled: true},
	}
}

func mustCommand(raw string) CommandConfig {
	return CommandConfig{Raw: raw, Argv: mustParseArgv(raw)}
}
