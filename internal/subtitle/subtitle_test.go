package subtitle

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeting = "こんにちは。今日は晴れです。"

func TestSplitLines_Terminators(t *testing.T) {
	t.Parallel()

	lines := SplitLines(greeting, DefaultSettings())
	assert.Equal(t, []string{"こんにちは。", "今日は晴れです。"}, lines)

	lines = SplitLines("Version 1.5 is out. Try it! Really?", DefaultSettings())
	assert.Equal(t, []string{"Version 1.5 is out.", "Try it!", "Really?"}, lines)
}

func TestSplitLines_LongClausePrefersCommas(t *testing.T) {
	t.Parallel()

	text := "今日はとても良い天気ですね、散歩に行きましょう、そして公園でお弁当を食べましょう。"
	lines := SplitLines(text, DefaultSettings())
	assert.Equal(t, []string{
		"今日はとても良い天気ですね、",
		"散歩に行きましょう、",
		"そして公園でお弁当を食べましょう。",
	}, lines)
}

func TestSplitLines_LongClauseWordWrap(t *testing.T) {
	t.Parallel()

	lines := SplitLines("The quick brown fox jumps over the lazy dog.", DefaultSettings())
	assert.Equal(t, []string{"The quick brown fox", "jumps over the lazy", "dog."}, lines)
	for _, line := range lines {
		assert.LessOrEqual(t, runeLen(line), DefaultMaxCharsPerLine)
	}
}

func TestSplitLines_ForceCut(t *testing.T) {
	t.Parallel()

	settings := Settings{MaxCharsPerLine: 5, PlaybackRate: 1, SplitByPunctuation: true}
	lines := SplitLines("あいうえおかきくけこさし", settings)
	assert.Equal(t, []string{"あいうえお", "かきくけこ", "さし"}, lines)
}

func TestSplitLines_FixedWidthMode(t *testing.T) {
	t.Parallel()

	settings := Settings{MaxCharsPerLine: 5, PlaybackRate: 1}
	lines := SplitLines("あいうえおかきくけこさしすせそ", settings)
	assert.Equal(t, []string{"あいうえお", "かきくけこ", "さしすせそ"}, lines)
}

func TestSplitLines_Blank(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SplitLines("   \n ", DefaultSettings()))
	assert.Empty(t, SplitLines("", Settings{MaxCharsPerLine: 3}))
}

func TestAllocate_GreetingScenario(t *testing.T) {
	t.Parallel()

	entries := Allocate(greeting, 6.0, "section-0", DefaultSettings())
	require.Len(t, entries, 2)

	assert.Equal(t, "section-0-sub-0", entries[0].ID)
	assert.Equal(t, "section-0-sub-1", entries[1].ID)
	assert.Equal(t, "section-0", entries[1].SectionID)

	// 6 of 14 characters
	assert.Equal(t, 0.0, entries[0].StartTime)
	assert.Equal(t, 2.57, entries[0].EndTime)
	assert.Equal(t, 2.57, entries[1].StartTime)
	assert.Equal(t, 6.0, entries[1].EndTime)
}

func TestAllocate_Monotonic(t *testing.T) {
	t.Parallel()

	scripts := []string{
		greeting,
		"今日はとても良い天気ですね、散歩に行きましょう、そして公園でお弁当を食べましょう。",
		"The quick brown fox jumps over the lazy dog. It was not amused. Nobody asked the dog.",
	}
	for _, script := range scripts {
		entries := Allocate(script, 12.5, "s", DefaultSettings())
		require.NotEmpty(t, entries)
		for i := 0; i+1 < len(entries); i++ {
			assert.LessOrEqual(t, entries[i].StartTime, entries[i].EndTime)
			assert.LessOrEqual(t, entries[i].EndTime, entries[i+1].StartTime+0.01)
		}
		assert.Equal(t, 12.5, entries[len(entries)-1].EndTime)
	}
}

func TestAllocate_PlaybackRateScaling(t *testing.T) {
	t.Parallel()

	normal := Allocate(greeting, 6.0, "s", DefaultSettings())
	fast := DefaultSettings()
	fast.PlaybackRate = 2.0
	double := Allocate(greeting, 6.0, "s", fast)

	require.Len(t, double, len(normal))
	assert.Equal(t, 3.0, double[len(double)-1].EndTime)
	for i := range normal {
		assert.InDelta(t, normal[i].EndTime/2, double[i].EndTime, 0.01)
	}
}

func TestAssignTimes_Degenerate(t *testing.T) {
	t.Parallel()

	settings := DefaultSettings()
	assert.Empty(t, AssignTimes(nil, 5, "s", settings))
	assert.Empty(t, AssignTimes([]string{"a"}, 0, "s", settings))
	assert.Empty(t, AssignTimes([]string{"a"}, -1, "s", settings))
	assert.Empty(t, AssignTimes([]string{"", ""}, 5, "s", settings))
	assert.Empty(t, Allocate("", 5, "s", settings))

	settings.PlaybackRate = 0
	assert.Empty(t, AssignTimes([]string{"a"}, 5, "s", settings))
}

func TestAssignTimes_MinimumWindow(t *testing.T) {
	t.Parallel()

	long := "あいうえおかきくけこさしすせそたちつてとなにぬねのはひふへほ"
	entries := AssignTimes([]string{"あ", long}, 3.1, "s", DefaultSettings())
	require.Len(t, entries, 2)
	assert.Equal(t, 0.3, entries[0].EndTime)
	assert.Equal(t, 3.1, entries[1].EndTime)
}

func TestAssignTimes_ShortAudioManyLines(t *testing.T) {
	t.Parallel()

	lines := []string{"あ。", "い。", "う。", "え。", "お。"}
	entries := AssignTimes(lines, 0.5, "s", DefaultSettings())
	require.Len(t, entries, 5)

	for i, e := range entries {
		assert.Less(t, e.StartTime, e.EndTime, e.ID)
		if i > 0 {
			assert.Equal(t, entries[i-1].EndTime, e.StartTime, e.ID)
		}
	}
	assert.Equal(t, 0.0, entries[0].StartTime)
	assert.Equal(t, 0.1, entries[0].EndTime)
	assert.Equal(t, 0.5, entries[4].EndTime)
}

func TestAssignTimes_FloorTakesTimeFromLongLines(t *testing.T) {
	t.Parallel()

	long := "あいうえおかきくけこさしすせそたちつてとなにぬねのはひふへほまみむめもやゆよらりるれ"
	entries := AssignTimes([]string{"あ。", "い。", long}, 2.0, "s", DefaultSettings())
	require.Len(t, entries, 3)

	assert.Equal(t, 0.3, entries[0].EndTime)
	assert.Equal(t, 0.3, entries[1].StartTime)
	assert.Equal(t, 0.6, entries[1].EndTime)
	assert.Equal(t, 0.6, entries[2].StartTime)
	assert.Equal(t, 2.0, entries[2].EndTime)
}

func TestCompose_MonotonicWithShortSections(t *testing.T) {
	t.Parallel()

	data := Compose([]Track{
		{SectionID: "a", Script: "あ。い。う。え。お。", Duration: 0.5},
		{SectionID: "b", Script: "か。き。", Duration: 1.0},
	}, DefaultSettings(), time.Now())
	require.Len(t, data.Entries, 7)

	for i, e := range data.Entries {
		assert.Less(t, e.StartTime, e.EndTime, e.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, e.StartTime, data.Entries[i-1].EndTime, e.ID)
		}
	}
	assert.Equal(t, 0.5, data.Entries[5].StartTime)
	assert.Equal(t, 1.5, data.Entries[6].EndTime)
}

func TestCompose_OffsetsAndSkips(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.FixedZone("JST", 9*3600))
	tracks := []Track{
		{SectionID: "section-0", Script: greeting, Duration: 6.0},
		{SectionID: "section-1", Script: "音声なし。", Duration: 0},
		{SectionID: "section-2", Script: "", Duration: 3.0},
		{SectionID: "section-3", Script: "さようなら。", Duration: 2.0},
	}

	data := Compose(tracks, DefaultSettings(), now)
	assert.Equal(t, Version, data.Version)
	assert.Equal(t, "2026-10-16T00:30:00Z", data.CreatedAt)
	assert.Equal(t, DefaultSettings(), data.Settings)

	require.Len(t, data.Entries, 3)
	last := data.Entries[2]
	assert.Equal(t, "section-3-sub-0", last.ID)
	assert.Equal(t, 6.0, last.StartTime)
	assert.Equal(t, 8.0, last.EndTime)
	assert.Equal(t, 8.0, data.Span())
}

func TestCompose_PlaybackRate(t *testing.T) {
	t.Parallel()

	settings := DefaultSettings()
	settings.PlaybackRate = 2.0
	data := Compose([]Track{
		{SectionID: "a", Script: greeting, Duration: 6.0},
		{SectionID: "b", Script: "さようなら。", Duration: 2.0},
	}, settings, time.Now())

	require.Len(t, data.Entries, 3)
	assert.Equal(t, 3.0, data.Entries[2].StartTime)
	assert.Equal(t, 4.0, data.Entries[2].EndTime)
}

func TestCompose_CustomLines(t *testing.T) {
	t.Parallel()

	data := Compose([]Track{{
		SectionID: "a",
		Script:    greeting,
		Duration:  4.0,
		Lines:     []string{"一行目", "  ", "二行目です"},
	}}, DefaultSettings(), time.Now())

	require.Len(t, data.Entries, 2)
	assert.Equal(t, "一行目", data.Entries[0].Text)
	assert.Equal(t, "二行目です", data.Entries[1].Text)
	assert.Equal(t, 1.5, data.Entries[0].EndTime)
	assert.Equal(t, 4.0, data.Entries[1].EndTime)
}

func TestCompose_Empty(t *testing.T) {
	t.Parallel()

	data := Compose(nil, DefaultSettings(), time.Now())
	assert.NotNil(t, data.Entries)
	assert.Empty(t, data.Entries)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entries":[]`)
}

func TestData_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	data := Compose([]Track{
		{SectionID: "section-0", Script: greeting, Duration: 6.123},
		{SectionID: "section-1", Script: "The quick brown fox jumps over the lazy dog.", Duration: 3.777},
	}, DefaultSettings(), time.Now())

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sectionId":"section-0"`)
	assert.Contains(t, string(raw), `"maxCharsPerLine":20`)

	var decoded Data
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, data, decoded)
}

func TestAdjustForPlaybackRate(t *testing.T) {
	t.Parallel()

	entries := Allocate(greeting, 6.0, "s", DefaultSettings())
	adjusted := AdjustForPlaybackRate(entries, 1.0, 1.5)

	require.Len(t, adjusted, 2)
	assert.Equal(t, 1.71, adjusted[0].EndTime)
	assert.Equal(t, 4.0, adjusted[1].EndTime)
	assert.Equal(t, 2.57, entries[0].EndTime, "input must not change")

	same := AdjustForPlaybackRate(entries, 0, 1)
	assert.Equal(t, entries, same)
}

func TestEntryAt(t *testing.T) {
	t.Parallel()

	entries := Allocate(greeting, 6.0, "s", DefaultSettings())

	e, ok := EntryAt(entries, 0)
	require.True(t, ok)
	assert.Equal(t, "s-sub-0", e.ID)

	e, ok = EntryAt(entries, 2.57)
	require.True(t, ok)
	assert.Equal(t, "s-sub-1", e.ID)

	_, ok = EntryAt(entries, 6.0)
	assert.False(t, ok)
}

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultSettings().Validate())
	assert.ErrorIs(t, Settings{MaxCharsPerLine: 0, PlaybackRate: 1}.Validate(), ErrInvalidSettings)
	assert.ErrorIs(t, Settings{MaxCharsPerLine: 10, PlaybackRate: 0}.Validate(), ErrInvalidSettings)
}

func TestWriteSRT(t *testing.T) {
	t.Parallel()

	entries := Allocate(greeting, 6.0, "s", DefaultSettings())
	entries = append(entries, Entry{StartTime: 3725.5, EndTime: 3726.04, Text: "late"})

	var buf bytes.Buffer
	require.NoError(t, WriteSRT(&buf, entries))

	want := "1\n00:00:00,000 --> 00:00:02,570\nこんにちは。\n\n" +
		"2\n00:00:02,570 --> 00:00:06,000\n今日は晴れです。\n\n" +
		"3\n01:02:05,500 --> 01:02:06,040\nlate\n\n"
	assert.Equal(t, want, buf.String())
}
