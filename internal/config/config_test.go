package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	warnings, err := Validate(&cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestParseOverridesDefaults(t *testing.T) {
	content := []byte(`
asr:
  base_url: http://10.0.0.2:8000/v1
  model: whisper-large-v3
  timeout_s: 12
correction:
  enabled: false
router:
  short_threshold: 2
  long_threshold: 40
  default_intent: dictate
exec:
  agent_command: "mycli --stream"
history:
  max_response_chars: 512
`)

	cfg, warnings, err := Parse(content)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "http://10.0.0.2:8000/v1", cfg.ASR.BaseURL)
	assert.Equal(t, "whisper-large-v3", cfg.ASR.Model)
	assert.InDelta(t, 12.0, cfg.ASR.TimeoutS, 1e-9)
	assert.False(t, cfg.Correction.Enabled)
	assert.Equal(t, 2, cfg.Router.ShortThreshold)
	assert.Equal(t, 40, cfg.Router.LongThreshold)
	assert.Equal(t, []string{"mycli", "--stream"}, cfg.Exec.AgentCommand.Argv)
	assert.Equal(t, 512, cfg.History.MaxResponseChars)

	// Untouched sections keep their defaults.
	assert.Equal(t, "default", cfg.Audio.Input)
	assert.True(t, cfg.Notify.Enabled)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, _, err := Parse([]byte("asr:\n  modle: oops\n"))
	require.Error(t, err)
}

func TestValidateRejectsInvertedRatioBand(t *testing.T) {
	cfg := Default()
	cfg.Correction.MinRatio = 2.0
	cfg.Correction.MaxRatio = 0.5
	_, err := Validate(&cfg)
	require.Error(t, err)
}

func TestValidateRejectsUnknownTriggerIntent(t *testing.T) {
	cfg := Default()
	cfg.Router.WordTriggers = append(cfg.Router.WordTriggers, TriggerRule{Trigger: "zap", Intent: "teleport"})
	_, err := Validate(&cfg)
	require.Error(t, err)
}

func TestValidateRepairsWithWarnings(t *testing.T) {
	cfg := Default()
	cfg.Audio.GraceMS = -10
	cfg.History.MaxResponseChars = 0

	warnings, err := Validate(&cfg)
	require.NoError(t, err)
	assert.Len(t, warnings, 2)
	assert.Equal(t, 0, cfg.Audio.GraceMS)
	assert.Equal(t, 16384, cfg.History.MaxResponseChars)
}

func TestCommandConfigQuoting(t *testing.T) {
	argv, err := parseArgv(`notify-send "hello world" --app-name=murmur`)
	require.NoError(t, err)
	assert.Equal(t, []string{"notify-send", "hello world", "--app-name=murmur"}, argv)

	_, err = parseArgv(`broken "quote`)
	require.Error(t, err)
}
