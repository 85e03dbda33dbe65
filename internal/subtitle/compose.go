package subtitle

import (
	"strings"
	"time"
)

// Compose lays out tracks in order on one timeline.
//
// Each track with a script and a positive duration is allocated, shifted by
// the running offset and appended; the offset then advances by the track's
// adjusted duration. Tracks without a script or audio add nothing and take
// no time.
func Compose(tracks []Track, settings Settings, now time.Time) Data {
	entries := []Entry{}
	offset := 0.0

	for _, track := range tracks {
		if strings.TrimSpace(track.Script) == "" || track.Duration <= 0 || settings.PlaybackRate <= 0 {
			continue
		}

		var section []Entry
		if lines := customLines(track.Lines); len(lines) > 0 {
			section = AssignTimes(lines, track.Duration, track.SectionID, settings)
		} else {
			section = Allocate(track.Script, track.Duration, track.SectionID, settings)
		}

		for _, e := range section {
			e.StartTime = round2(e.StartTime + offset)
			e.EndTime = round2(e.EndTime + offset)
			entries = append(entries, e)
		}
		offset += track.Duration / settings.PlaybackRate
	}

	return Data{
		Version:   Version,
		CreatedAt: now.UTC().Format(time.RFC3339),
		Settings:  settings,
		Entries:   entries,
	}
}

func customLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
