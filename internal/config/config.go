// Package config loads quill's settings from a YAML file and lets QUILL_*
// environment variables override individual values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atinylittleshell/quill/internal/thesaurus"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_SERVER_URL      = "ws://localhost:8089/ws"
	DEFAULT_QUIET_PERIOD_MS = 1000
	DEFAULT_MIN_WORD_LENGTH = 2
	DEFAULT_MAX_SUGGESTIONS = 3
	DEFAULT_POPUP_WIDTH     = 24
	DEFAULT_POPUP_MARGIN    = 1
	DEFAULT_STUDY_IDLE_SECS = 120
)

type Config struct {
	Server  ServerConfig        `yaml:"server"`
	Suggest SuggestConfig       `yaml:"suggest"`
	Popup   PopupConfig         `yaml:"popup"`
	Study   StudyConfig         `yaml:"study"`
	Log     LogConfig           `yaml:"log"`
	LLM     thesaurus.LLMConfig `yaml:"llm"`
}

type ServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type SuggestConfig struct {
	Enabled           bool `yaml:"enabled"`
	QuietPeriodMS     int  `yaml:"quiet_period_ms"`
	MinWordLength     int  `yaml:"min_word_length"`
	MaxSuggestions    int  `yaml:"max_suggestions"`
	StrictCorrelation bool `yaml:"strict_correlation"`
}

type PopupConfig struct {
	Width     int `yaml:"width"`
	MinMargin int `yaml:"min_margin"`
}

type StudyConfig struct {
	Enabled     bool `yaml:"enabled"`
	IdleSeconds int  `yaml:"idle_seconds"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Clean bool   `yaml:"clean"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{URL: DEFAULT_SERVER_URL},
		Suggest: SuggestConfig{
			Enabled:           true,
			QuietPeriodMS:     DEFAULT_QUIET_PERIOD_MS,
			MinWordLength:     DEFAULT_MIN_WORD_LENGTH,
			MaxSuggestions:    DEFAULT_MAX_SUGGESTIONS,
			StrictCorrelation: true,
		},
		Popup: PopupConfig{Width: DEFAULT_POPUP_WIDTH, MinMargin: DEFAULT_POPUP_MARGIN},
		Study: StudyConfig{Enabled: true, IdleSeconds: DEFAULT_STUDY_IDLE_SECS},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string, logger *zap.Logger) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("config file not found, using defaults", zap.String("path", path))
	case err != nil:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv, logger)
	cfg.normalize()
	return cfg, nil
}

// ApplyEnv overrides values from QUILL_* variables found through lookup.
// Values that fail to parse are logged and ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), logger *zap.Logger) {
	c.Server.URL = getString(lookup, "QUILL_SERVER_URL", c.Server.URL)
	c.Server.Token = getString(lookup, "QUILL_TOKEN", c.Server.Token)

	c.Suggest.Enabled = getBool(lookup, logger, "QUILL_SUGGEST", c.Suggest.Enabled)
	c.Suggest.QuietPeriodMS = getInt(lookup, logger, "QUILL_QUIET_PERIOD_MS", c.Suggest.QuietPeriodMS)
	c.Suggest.MinWordLength = getInt(lookup, logger, "QUILL_MIN_WORD_LENGTH", c.Suggest.MinWordLength)
	c.Suggest.MaxSuggestions = getInt(lookup, logger, "QUILL_MAX_SUGGESTIONS", c.Suggest.MaxSuggestions)
	c.Suggest.StrictCorrelation = getBool(lookup, logger, "QUILL_STRICT_CORRELATION", c.Suggest.StrictCorrelation)

	c.Popup.Width = getInt(lookup, logger, "QUILL_POPUP_WIDTH", c.Popup.Width)

	c.Study.Enabled = getBool(lookup, logger, "QUILL_STUDY", c.Study.Enabled)
	c.Study.IdleSeconds = getInt(lookup, logger, "QUILL_STUDY_IDLE_SECONDS", c.Study.IdleSeconds)

	c.Log.Level = getString(lookup, "QUILL_LOG_LEVEL", c.Log.Level)
	c.Log.Clean = getBool(lookup, logger, "QUILL_CLEAN_LOG_FILE", c.Log.Clean)

	c.LLM.Provider = getString(lookup, "QUILL_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.BaseURL = getString(lookup, "QUILL_LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getString(lookup, "QUILL_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getString(lookup, "QUILL_LLM_MODEL", c.LLM.Model)
	if raw, ok := lookup("QUILL_LLM_TEMPERATURE"); ok && raw != "" {
		temperature, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			logger.Debug("error parsing QUILL_LLM_TEMPERATURE", zap.Error(err))
		} else {
			c.LLM.Temperature = &temperature
		}
	}
}

func (c *Config) normalize() {
	c.Server.URL = strings.TrimSpace(c.Server.URL)
	if c.Suggest.QuietPeriodMS <= 0 {
		c.Suggest.QuietPeriodMS = DEFAULT_QUIET_PERIOD_MS
	}
	if c.Suggest.MinWordLength < 1 {
		c.Suggest.MinWordLength = DEFAULT_MIN_WORD_LENGTH
	}
	c.Suggest.MaxSuggestions = lo.Clamp(c.Suggest.MaxSuggestions, 1, DEFAULT_MAX_SUGGESTIONS)
	if c.Popup.Width < 8 {
		c.Popup.Width = DEFAULT_POPUP_WIDTH
	}
	if c.Popup.MinMargin < 0 {
		c.Popup.MinMargin = 0
	}
	if c.Study.IdleSeconds <= 0 {
		c.Study.IdleSeconds = DEFAULT_STUDY_IDLE_SECS
	}
}

func (c Config) QuietPeriod() time.Duration {
	return time.Duration(c.Suggest.QuietPeriodMS) * time.Millisecond
}

func (c Config) StudyIdle() time.Duration {
	return time.Duration(c.Study.IdleSeconds) * time.Second
}

// LogLevel parses Log.Level, falling back to info.
func (c Config) LogLevel() zap.AtomicLevel {
	logLevel, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		logLevel = zap.NewAtomicLevel()
	}
	return logLevel
}

func getString(lookup func(string) (string, bool), key string, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(lookup func(string) (string, bool), logger *zap.Logger, key string, fallback int) int {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		logger.Debug("error parsing "+key, zap.Error(err))
		return fallback
	}
	return int(value)
}

func getBool(lookup func(string) (string, bool), logger *zap.Logger, key string, fallback bool) bool {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	logger.Debug("error parsing "+key, zap.String("value", raw))
	return fallback
}
