package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("LLM_API_KEY", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:50021", cfg.VoiceVox.URL)
	assert.Equal(t, 3, cfg.VoiceVox.SpeakerID)
	assert.Equal(t, 15000, cfg.Script.BatchMaxChars)
	assert.Equal(t, "default-narrator", cfg.Script.TemplateID)
	assert.Equal(t, language.Und, cfg.Script.Language)
	assert.Equal(t, 500, cfg.Speech.ChunkLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.Speech.Delay)
	assert.Equal(t, 1, cfg.Speech.Concurrency)
	assert.Equal(t, 20, cfg.Subtitle.MaxCharsPerLine)
	assert.Equal(t, 1.0, cfg.Subtitle.PlaybackRate)
	assert.True(t, cfg.Subtitle.SplitByPunctuation)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Watch.Enabled())
	assert.Equal(t, filepath.Join("/app/data", "narrator.db"), cfg.DBPath())

	require.Error(t, cfg.RequireLLM(), "no API key configured")
}

func TestNewFromEnv_FromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "/tmp/narrator-data")
	t.Setenv("SCRIPT_LANGUAGE", "ja")
	t.Setenv("SPEECH_DELAY", "250")
	t.Setenv("SUBTITLE_SPLIT_PUNCTUATION", "false")
	t.Setenv("SUBTITLE_PLAYBACK_RATE", "1.5")
	t.Setenv("WATCH_DIR", "/articles")
	t.Setenv("CRON_EXPR", "@every 10m")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/tmp/narrator-data", "narrator.db"), cfg.DBPath())
	assert.Equal(t, language.Japanese, cfg.Script.Language)
	assert.Equal(t, 250*time.Millisecond, cfg.Speech.Delay)
	assert.False(t, cfg.Subtitle.SplitByPunctuation)
	assert.Equal(t, 1.5, cfg.Subtitle.PlaybackRate)
	assert.True(t, cfg.Watch.Enabled())
	require.NoError(t, cfg.RequireLLM())
}

func TestNewFromEnv_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"SUBTITLE_PLAYBACK_RATE": "0",
		"SPEECH_CONCURRENCY":     "0",
		"SUBTITLE_MAX_CHARS":     "-1",
		"JOB_WORKERS":            "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := NewFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}

	t.Run("CRON_EXPR", func(t *testing.T) {
		t.Setenv("WATCH_DIR", "/articles")
		t.Setenv("CRON_EXPR", "every so often")
		_, err := NewFromEnv()
		require.Error(t, err)
	})
}

func TestGetEnvHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_LANG", "!!")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Equal(t, language.English, getEnvLanguage("X_LANG", language.English))
}
