package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"time"
)

// WriteSRT writes entries as SubRip cues numbered from 1.
func WriteSRT(w io.Writer, entries []Entry) error {
	writer := bufio.NewWriter(w)

	for i, e := range entries {
		fmt.Fprintf(writer, "%d\n", i+1)
		fmt.Fprintf(writer, "%s --> %s\n", formatSeconds(e.StartTime), formatSeconds(e.EndTime))
		fmt.Fprintf(writer, "%s\n\n", e.Text)
	}

	return writer.Flush()
}

func formatSeconds(s float64) string {
	return formatDuration(time.Duration(math.Round(s*1000)) * time.Millisecond)
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
