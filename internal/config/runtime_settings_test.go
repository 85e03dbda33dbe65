package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMProvider:  "openrouter",
		LLMAPIURL:    "https://example.test/v1",
		LLMAPIKey:    "ak-test",
		LLMModel:     "model-test",
		SpeakerID:    3,
		TemplateID:   "default-narrator",
		PlaybackRate: 1.0,
		CronExpr:     "*/5 * * * *",
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	invalid := validSettings()
	invalid.CronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	invalidProvider := validSettings()
	invalidProvider.LLMProvider = "anthropic"
	require.Error(t, invalidProvider.Validate())

	noRate := validSettings()
	noRate.PlaybackRate = 0
	require.Error(t, noRate.Validate())

	gemini := validSettings()
	gemini.LLMProvider = "gemini"
	gemini.LLMAPIURL = ""
	require.NoError(t, gemini.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := validSettings()

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")
	t.Setenv("LLM_API_URL", "https://env.example/v1")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("CRON_EXPR", "0 1 * * *")

	override := validSettings()
	override.LLMAPIKey = "file-key"
	override.SpeakerID = 8
	override.TemplateID = "teacher"
	override.PlaybackRate = 1.25
	override.CronExpr = "*/30 * * * *"

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.LLMAPIURL, cfg.LLM.APIURL)
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, override.LLMModel, cfg.LLM.Model)
	assert.Equal(t, 8, cfg.VoiceVox.SpeakerID)
	assert.Equal(t, "teacher", cfg.Script.TemplateID)
	assert.Equal(t, 1.25, cfg.Subtitle.PlaybackRate)
	assert.Equal(t, override.CronExpr, cfg.Watch.CronExpr)

	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runtime-settings.json")
	initial := validSettings()
	initial.LLMAPIKey = "old-ak"

	store, err := NewRuntimeSettingsStore(filePath, initial)
	require.NoError(t, err)

	next := validSettings()
	next.LLMModel = "new-model"
	next.LLMAPIKey = "********"
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, "old-ak", got.LLMAPIKey, "redacted key keeps the stored one")
	assert.Equal(t, "new-model", got.LLMModel)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, got, loaded)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, got, current)
	assert.Equal(t, "********", current.Redacted().LLMAPIKey)

	bad := validSettings()
	bad.CronExpr = ""
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)
	current, _ = store.GetRuntimeSettings()
	assert.Equal(t, got, current)
}
