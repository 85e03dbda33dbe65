package subtitle

import (
	"fmt"
	"math"
	"strings"
)

// round2 rounds to two decimals. Times are rounded when assigned so that
// stored and recomputed values agree after serialization.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// EntryID names the i-th line of a section.
func EntryID(sectionID string, i int) string {
	return fmt.Sprintf("%s-sub-%d", sectionID, i)
}

// AssignTimes gives each line a window proportional to its share of the
// total characters, within duration/PlaybackRate seconds. Windows are
// floored at MinDisplaySeconds, taking the time from the unfloored lines,
// and the last entry always ends exactly at the adjusted duration. When
// the floor cannot fit every line, all lines share the time equally.
//
// Empty lines, a non-positive duration or rate, or zero characters yield an
// empty slice.
func AssignTimes(lines []string, duration float64, sectionID string, settings Settings) []Entry {
	if len(lines) == 0 || duration <= 0 || settings.PlaybackRate <= 0 {
		return []Entry{}
	}

	adjusted := duration / settings.PlaybackRate

	chars := make([]int, len(lines))
	total := 0
	for i, line := range lines {
		chars[i] = runeLen(line)
		total += chars[i]
	}
	if total == 0 {
		return []Entry{}
	}

	entries := make([]Entry, 0, len(lines))
	current := 0.0
	for i, window := range windows(chars, adjusted) {
		entries = append(entries, Entry{
			ID:        EntryID(sectionID, i),
			SectionID: sectionID,
			StartTime: round2(current),
			EndTime:   round2(current + window),
			Text:      lines[i],
		})
		current += window
	}

	entries[len(entries)-1].EndTime = round2(adjusted)
	return entries
}

// windows splits adjusted seconds over lines by character share. Lines
// whose share falls below MinDisplaySeconds get the minimum and the rest is
// shared among the others, repeating until no new line needs the floor.
// The windows always sum to adjusted.
func windows(chars []int, adjusted float64) []float64 {
	n := len(chars)
	out := make([]float64, n)
	if float64(n)*MinDisplaySeconds >= adjusted {
		for i := range out {
			out[i] = adjusted / float64(n)
		}
		return out
	}

	floored := make([]bool, n)
	for {
		budget := adjusted
		free := 0
		for i, c := range chars {
			if floored[i] {
				budget -= MinDisplaySeconds
			} else {
				free += c
			}
		}

		changed := false
		for i, c := range chars {
			if floored[i] {
				out[i] = MinDisplaySeconds
				continue
			}
			share := 0.0
			if free > 0 {
				share = float64(c) / float64(free) * budget
			}
			if share < MinDisplaySeconds {
				floored[i] = true
				changed = true
			}
			out[i] = share
		}
		if !changed {
			return out
		}
	}
}

// Allocate splits a section script into lines and times them against the
// section's audio duration.
func Allocate(script string, duration float64, sectionID string, settings Settings) []Entry {
	if strings.TrimSpace(script) == "" {
		return []Entry{}
	}
	return AssignTimes(SplitLines(script, settings), duration, sectionID, settings)
}

// AdjustForPlaybackRate rescales entries timed for oldRate to newRate.
func AdjustForPlaybackRate(entries []Entry, oldRate, newRate float64) []Entry {
	out := make([]Entry, len(entries))
	if oldRate <= 0 || newRate <= 0 {
		copy(out, entries)
		return out
	}

	ratio := oldRate / newRate
	for i, e := range entries {
		e.StartTime = round2(e.StartTime * ratio)
		e.EndTime = round2(e.EndTime * ratio)
		out[i] = e
	}
	return out
}

// EntryAt returns the entry displayed at t seconds, where start <= t < end.
func EntryAt(entries []Entry, t float64) (Entry, bool) {
	for _, e := range entries {
		if t >= e.StartTime && t < e.EndTime {
			return e, true
		}
	}
	return Entry{}, false
}
