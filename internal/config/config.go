package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/article-narrator/internal/llm"
	"github.com/MimeLyc/article-narrator/pkg/icron"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration: see llm.Config (LLM_PROVIDER, LLM_API_KEY, LLM_API_URL,
// LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT, LLM_MAX_RETRIES,
// LLM_SITE_URL, LLM_APP_NAME, LLM_JSON_MODE)
//
// VOICEVOX Configuration:
// - VOICEVOX_URL: engine base URL (default: http://localhost:50021)
// - VOICEVOX_TIMEOUT: request timeout in seconds (default: 60)
// - VOICEVOX_SPEAKER: default speaker style id (default: 3)
//
// Script Configuration:
// - SCRIPT_BATCH_MAX_CHARS: characters per LLM request (default: 15000)
// - SCRIPT_CONCURRENCY: batches in flight (default: 2)
// - SCRIPT_TEMPLATE: narrator template id (default: default-narrator)
// - SCRIPT_LANGUAGE: narration language, empty to detect (default: "")
//
// Speech Configuration:
// - SPEECH_CHUNK_LIMIT: characters per synthesis request (default: 500)
// - SPEECH_DELAY: pause between chunk requests (default: 100ms)
// - SPEECH_CONCURRENCY: sections synthesized at once (default: 1)
// - SPEECH_SPEED_SCALE: engine speed override, 0 keeps the engine value (default: 0)
// - SPEECH_TERM_MAP: reading dictionary JSON, empty to search term_map.<lang>.json
//   next to the article and its parent folders (default: "")
//
// Subtitle Configuration:
// - SUBTITLE_MAX_CHARS: characters per line (default: 20)
// - SUBTITLE_PLAYBACK_RATE: playback speed multiplier (default: 1.0)
// - SUBTITLE_SPLIT_PUNCTUATION: split at sentence punctuation (default: true)
//
// System Configuration:
// - DATA_DIR: artifacts and database directory (default: /app/data)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - HTTP_ADDR: API listen address (default: :8080)
// - JOB_WORKERS: concurrent narration jobs (default: 1)
// - WATCH_DIR: folder scanned for new .html articles, empty disables (default: "")
// - CRON_EXPR: watch schedule (default: */5 * * * *)
type Config struct {
	LLM      llm.Config     `json:"llm"`
	VoiceVox VoiceVoxConfig `json:"voicevox"`
	Script   ScriptConfig   `json:"script"`
	Speech   SpeechConfig   `json:"speech"`
	Subtitle SubtitleConfig `json:"subtitle"`
	System   SystemConfig   `json:"system"`
	HTTP     HTTPConfig     `json:"http"`
	Watch    WatchConfig    `json:"watch"`
}

type VoiceVoxConfig struct {
	URL       string `json:"url"`
	Timeout   int    `json:"timeout"`
	SpeakerID int    `json:"speaker_id"`
}

type ScriptConfig struct {
	BatchMaxChars int          `json:"batch_max_chars"`
	Concurrency   int          `json:"concurrency"`
	TemplateID    string       `json:"template_id"`
	Language      language.Tag `json:"language"`
}

type SpeechConfig struct {
	ChunkLimit  int           `json:"chunk_limit"`
	Delay       time.Duration `json:"delay"`
	Concurrency int           `json:"concurrency"`
	SpeedScale  float64       `json:"speed_scale"`
	TermMapFile string        `json:"term_map_file"`
}

type SubtitleConfig struct {
	MaxCharsPerLine    int     `json:"max_chars_per_line"`
	PlaybackRate       float64 `json:"playback_rate"`
	SplitByPunctuation bool    `json:"split_by_punctuation"`
}

type SystemConfig struct {
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`
	JobWorkers int    `json:"job_workers"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type WatchConfig struct {
	Dir      string `json:"dir"`
	CronExpr string `json:"cron_expr"`
}

// Enabled reports whether a watch folder is configured.
func (w WatchConfig) Enabled() bool {
	return strings.TrimSpace(w.Dir) != ""
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: llm.Config{
			Provider:    getEnvString("LLM_PROVIDER", llm.ProviderOpenRouter),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "google/gemini-2.5-flash"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			MaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),
			JSONMode:    getEnvBool("LLM_JSON_MODE", false),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "article-narrator"),
		},
		VoiceVox: VoiceVoxConfig{
			URL:       getEnvString("VOICEVOX_URL", "http://localhost:50021"),
			Timeout:   getEnvInt("VOICEVOX_TIMEOUT", 60),
			SpeakerID: getEnvInt("VOICEVOX_SPEAKER", 3),
		},
		Script: ScriptConfig{
			BatchMaxChars: getEnvInt("SCRIPT_BATCH_MAX_CHARS", 15000),
			Concurrency:   getEnvInt("SCRIPT_CONCURRENCY", 2),
			TemplateID:    getEnvString("SCRIPT_TEMPLATE", "default-narrator"),
			Language:      getEnvLanguage("SCRIPT_LANGUAGE", language.Und),
		},
		Speech: SpeechConfig{
			ChunkLimit:  getEnvInt("SPEECH_CHUNK_LIMIT", 500),
			Delay:       getEnvDuration("SPEECH_DELAY", 100*time.Millisecond),
			Concurrency: getEnvInt("SPEECH_CONCURRENCY", 1),
			SpeedScale:  getEnvFloat("SPEECH_SPEED_SCALE", 0),
			TermMapFile: getEnvString("SPEECH_TERM_MAP", ""),
		},
		Subtitle: SubtitleConfig{
			MaxCharsPerLine:    getEnvInt("SUBTITLE_MAX_CHARS", 20),
			PlaybackRate:       getEnvFloat("SUBTITLE_PLAYBACK_RATE", 1.0),
			SplitByPunctuation: getEnvBool("SUBTITLE_SPLIT_PUNCTUATION", true),
		},
		System: SystemConfig{
			DataDir:    getEnvString("DATA_DIR", "/app/data"),
			LogLevel:   getEnvString("LOG_LEVEL", "info"),
			JobWorkers: getEnvInt("JOB_WORKERS", 1),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Watch: WatchConfig{
			Dir:      getEnvString("WATCH_DIR", ""),
			CronExpr: getEnvString("CRON_EXPR", "*/5 * * * *"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: provider=%s model=%s voicevox=%s data=%s",
		config.LLM.Provider, config.LLM.Model, config.VoiceVox.URL, config.System.DataDir)

	return config, nil
}

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "narrator.db")
}

// RequireLLM checks the settings only commands that generate scripts need.
func (c *Config) RequireLLM() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	return nil
}

// validate checks the settings every command depends on
func (c *Config) validate() error {
	if strings.TrimSpace(c.VoiceVox.URL) == "" {
		return fmt.Errorf("VOICEVOX_URL is required")
	}
	if c.VoiceVox.Timeout < 1 {
		return fmt.Errorf("VOICEVOX_TIMEOUT must be greater than 0")
	}
	if c.VoiceVox.SpeakerID < 0 {
		return fmt.Errorf("VOICEVOX_SPEAKER must not be negative")
	}
	if c.Script.Concurrency < 1 {
		return fmt.Errorf("SCRIPT_CONCURRENCY must be greater than 0")
	}
	if c.Speech.ChunkLimit < 1 {
		return fmt.Errorf("SPEECH_CHUNK_LIMIT must be greater than 0")
	}
	if c.Speech.Concurrency < 1 {
		return fmt.Errorf("SPEECH_CONCURRENCY must be greater than 0")
	}
	if c.Speech.Delay < 0 {
		return fmt.Errorf("SPEECH_DELAY must not be negative")
	}
	if c.Subtitle.MaxCharsPerLine < 1 {
		return fmt.Errorf("SUBTITLE_MAX_CHARS must be greater than 0")
	}
	if c.Subtitle.PlaybackRate <= 0 {
		return fmt.Errorf("SUBTITLE_PLAYBACK_RATE must be greater than 0")
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.System.JobWorkers < 1 {
		return fmt.Errorf("JOB_WORKERS must be greater than 0")
	}
	if c.Watch.Enabled() {
		if _, err := icron.Parse(c.Watch.CronExpr); err != nil {
			return fmt.Errorf("CRON_EXPR: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}
