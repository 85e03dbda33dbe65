// Package subtitle splits narration scripts into display lines, allocates
// each line a window inside the section's audio and stitches sections into
// one document timeline.
package subtitle

import (
	"errors"
	"fmt"
)

// Version is written into every Data document.
const Version = "1.0"

// Default settings. Twenty characters per line is the usual broadcast width.
const (
	DefaultMaxCharsPerLine = 20
	DefaultPlaybackRate    = 1.0

	// MinDisplaySeconds floors each line's window so short lines stay readable.
	MinDisplaySeconds = 0.3
)

var ErrInvalidSettings = errors.New("invalid subtitle settings")

// Entry is one timed subtitle line. Times are seconds from the start of the
// timeline, rounded to two decimals.
type Entry struct {
	ID        string  `json:"id"`
	SectionID string  `json:"sectionId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
}

// Settings controls line splitting and timing.
type Settings struct {
	MaxCharsPerLine    int     `json:"maxCharsPerLine"`
	PlaybackRate       float64 `json:"playbackRate"`
	SplitByPunctuation bool    `json:"splitByPunctuation"`
}

// DefaultSettings returns 20 characters per line, normal speed and
// punctuation splitting.
func DefaultSettings() Settings {
	return Settings{
		MaxCharsPerLine:    DefaultMaxCharsPerLine,
		PlaybackRate:       DefaultPlaybackRate,
		SplitByPunctuation: true,
	}
}

func (s Settings) Validate() error {
	if s.MaxCharsPerLine <= 0 {
		return fmt.Errorf("%w: maxCharsPerLine must be positive, got %d", ErrInvalidSettings, s.MaxCharsPerLine)
	}
	if s.PlaybackRate <= 0 {
		return fmt.Errorf("%w: playbackRate must be positive, got %g", ErrInvalidSettings, s.PlaybackRate)
	}
	return nil
}

// Data is the serialized subtitle document of a project.
type Data struct {
	Version   string   `json:"version"`
	CreatedAt string   `json:"createdAt"`
	Settings  Settings `json:"settings"`
	Entries   []Entry  `json:"entries"`
}

// Track is the per-section input of Compose.
type Track struct {
	SectionID string
	Script    string
	// Duration is the raw audio length in seconds, before the playback rate.
	Duration float64
	// Lines, when set, replace automatic splitting of Script.
	Lines []string
}

// Span returns the end time of the last entry, or 0.
func (d Data) Span() float64 {
	if len(d.Entries) == 0 {
		return 0
	}
	return d.Entries[len(d.Entries)-1].EndTime
}
