package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/MimeLyc/article-narrator/internal/llm"
	"github.com/MimeLyc/article-narrator/pkg/file"
	"github.com/MimeLyc/article-narrator/pkg/icron"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the values an operator may change while the server
// runs. They are persisted to a JSON file and applied to new jobs.
type RuntimeSettings struct {
	LLMProvider  string  `json:"llm_provider"`
	LLMAPIURL    string  `json:"llm_api_url"`
	LLMAPIKey    string  `json:"llm_api_key"`
	LLMModel     string  `json:"llm_model"`
	SpeakerID    int     `json:"speaker_id"`
	TemplateID   string  `json:"template_id"`
	PlaybackRate float64 `json:"playback_rate"`
	CronExpr     string  `json:"cron_expr"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	switch s.LLMProvider {
	case llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("llm_provider must be one of %s, %s, %s",
			llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderGemini)
	}
	if s.LLMProvider == llm.ProviderOpenRouter && strings.TrimSpace(s.LLMAPIURL) == "" {
		return fmt.Errorf("llm_api_url is required")
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if s.SpeakerID < 0 {
		return fmt.Errorf("speaker_id must not be negative")
	}
	if strings.TrimSpace(s.TemplateID) == "" {
		return fmt.Errorf("template_id is required")
	}
	if s.PlaybackRate <= 0 {
		return fmt.Errorf("playback_rate must be greater than 0")
	}
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := icron.Parse(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMProvider:  c.LLM.Provider,
		LLMAPIURL:    c.LLM.APIURL,
		LLMAPIKey:    c.LLM.APIKey,
		LLMModel:     c.LLM.Model,
		SpeakerID:    c.VoiceVox.SpeakerID,
		TemplateID:   c.Script.TemplateID,
		PlaybackRate: c.Subtitle.PlaybackRate,
		CronExpr:     c.Watch.CronExpr,
	}
}

// Apply copies the non-empty settings onto c.
func (s RuntimeSettings) Apply(c *Config) {
	if strings.TrimSpace(s.LLMProvider) != "" {
		c.LLM.Provider = s.LLMProvider
	}
	if strings.TrimSpace(s.LLMAPIURL) != "" {
		c.LLM.APIURL = s.LLMAPIURL
	}
	if strings.TrimSpace(s.LLMAPIKey) != "" {
		c.LLM.APIKey = s.LLMAPIKey
	}
	if strings.TrimSpace(s.LLMModel) != "" {
		c.LLM.Model = s.LLMModel
	}
	if s.SpeakerID > 0 {
		c.VoiceVox.SpeakerID = s.SpeakerID
	}
	if strings.TrimSpace(s.TemplateID) != "" {
		c.Script.TemplateID = s.TemplateID
	}
	if s.PlaybackRate > 0 {
		c.Subtitle.PlaybackRate = s.PlaybackRate
	}
	if strings.TrimSpace(s.CronExpr) != "" {
		c.Watch.CronExpr = s.CronExpr
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return settings.Apply
}

// Redacted hides the API key for display.
func (s RuntimeSettings) Redacted() RuntimeSettings {
	if s.LLMAPIKey != "" {
		s.LLMAPIKey = "********"
	}
	return s
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	return file.WriteAtomic(path, content, 0o600)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// UpdateRuntimeSettings validates, persists and then publishes next. An
// empty API key keeps the current one so redacted reads can be posted back.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(next.LLMAPIKey) == "" || next.LLMAPIKey == "********" {
		next.LLMAPIKey = s.current.LLMAPIKey
	}
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}
