package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DEFAULT_SERVER_URL, cfg.Server.URL)
	assert.True(t, cfg.Suggest.Enabled)
	assert.True(t, cfg.Suggest.StrictCorrelation)
	assert.Equal(t, time.Second, cfg.QuietPeriod())
	assert.Equal(t, 2*time.Minute, cfg.StudyIdle())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: ws://example.test/ws
  token: abc
suggest:
  quiet_period_ms: 400
  max_suggestions: 9
  strict_correlation: false
popup:
  width: 30
llm:
  provider: openai
  model: gpt-4o-mini
`), 0644))

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "ws://example.test/ws", cfg.Server.URL)
	assert.Equal(t, "abc", cfg.Server.Token)
	assert.Equal(t, 400*time.Millisecond, cfg.QuietPeriod())
	assert.Equal(t, 3, cfg.Suggest.MaxSuggestions, "never more than three suggestions")
	assert.False(t, cfg.Suggest.StrictCorrelation)
	assert.True(t, cfg.Suggest.Enabled, "unset keys keep their defaults")
	assert.Equal(t, 30, cfg.Popup.Width)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := Load(path, zap.NewNop())
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		"QUILL_SERVER_URL":         "ws://other/ws",
		"QUILL_TOKEN":              "t0k3n",
		"QUILL_SUGGEST":            "off",
		"QUILL_QUIET_PERIOD_MS":    "250",
		"QUILL_STRICT_CORRELATION": "false",
		"QUILL_LOG_LEVEL":          "debug",
		"QUILL_LLM_TEMPERATURE":    "0.2",
	}), zap.NewNop())

	assert.Equal(t, "ws://other/ws", cfg.Server.URL)
	assert.Equal(t, "t0k3n", cfg.Server.Token)
	assert.False(t, cfg.Suggest.Enabled)
	assert.Equal(t, 250, cfg.Suggest.QuietPeriodMS)
	assert.False(t, cfg.Suggest.StrictCorrelation)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel().Level())
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
}

func TestApplyEnvIgnoresBadValues(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		"QUILL_QUIET_PERIOD_MS": "soon",
		"QUILL_SUGGEST":         "maybe",
		"QUILL_LLM_TEMPERATURE": "warm",
		"QUILL_SERVER_URL":      "",
	}), zap.NewNop())

	assert.Equal(t, DEFAULT_QUIET_PERIOD_MS, cfg.Suggest.QuietPeriodMS)
	assert.True(t, cfg.Suggest.Enabled)
	assert.Nil(t, cfg.LLM.Temperature)
	assert.Equal(t, DEFAULT_SERVER_URL, cfg.Server.URL)
}

func TestNormalize(t *testing.T) {
	cfg := Config{Suggest: SuggestConfig{QuietPeriodMS: -5, MaxSuggestions: 0}, Popup: PopupConfig{Width: 2, MinMargin: -1}}
	cfg.normalize()

	assert.Equal(t, DEFAULT_QUIET_PERIOD_MS, cfg.Suggest.QuietPeriodMS)
	assert.Equal(t, DEFAULT_MIN_WORD_LENGTH, cfg.Suggest.MinWordLength)
	assert.Equal(t, 1, cfg.Suggest.MaxSuggestions)
	assert.Equal(t, DEFAULT_POPUP_WIDTH, cfg.Popup.Width)
	assert.Equal(t, 0, cfg.Popup.MinMargin)
	assert.Equal(t, DEFAULT_STUDY_IDLE_SECS, cfg.Study.IdleSeconds)
}

func TestLogLevelFallback(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel().Level())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Token = "secret"
	cfg.Suggest.QuietPeriodMS = 700

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.Server.Token)
	assert.Equal(t, 700, loaded.Suggest.QuietPeriodMS)
}
