package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_FiveField(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 10, 16, 10, 7, 30, 0, time.UTC)
	info, err := GetTriggerInfo("*/5 * * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 16, 10, 10, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 5, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 150*time.Second, info.TimeSinceLast)
	assert.Equal(t, 150*time.Second, info.TimeUntilNext)
}

func TestGetTriggerInfo_WithSecondsAndDaily(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)
	info, err := GetTriggerInfo("0 30 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 3, 30, 0, 0, time.UTC), info.Last)
	assert.Equal(t, time.Date(2026, 10, 16, 3, 30, 0, 0, time.UTC), info.Next)
}

func TestGetTriggerInfo_ExactMatchIsLast(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	info, err := GetTriggerInfo("@hourly", ref)
	require.NoError(t, err)
	assert.Equal(t, ref, info.Last)
	assert.Zero(t, info.TimeSinceLast)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	t.Parallel()

	_, err := GetTriggerInfo("not a cron", time.Now())
	require.Error(t, err)
}
