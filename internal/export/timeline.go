package export

import (
	"fmt"
	"math"
	"strings"
)

const timelineFPS = 30

// TimelineEntry is one clip as it appears in the finished timelapse.
type TimelineEntry struct {
	ClipRef   string  `json:"clip_ref"`
	SourceSec float64 `json:"source_sec"`
	RecordIn  float64 `json:"record_in"`
	RecordOut float64 `json:"record_out"`
}

// BuildTimeline places clips back to back on the output timeline after
// dividing every duration by factor.
func BuildTimeline(clipRefs []string, durations []float64, factor float64) []TimelineEntry {
	if factor <= 0 {
		factor = 1
	}
	entries := make([]TimelineEntry, 0, len(clipRefs))
	offset := 0.0
	for i, ref := range clipRefs {
		d := 0.0
		if i < len(durations) {
			d = durations[i]
		}
		out := offset + d/factor
		entries = append(entries, TimelineEntry{ClipRef: ref, SourceSec: d, RecordIn: offset, RecordOut: out})
		offset = out
	}
	return entries
}

// GenerateEDL renders the timeline as a CMX3600 edit decision list so the
// export can be conformed in an editor. Source ranges are the full clips;
// record ranges are the retimed positions.
func GenerateEDL(entries []TimelineEntry, title string) string {
	lines := []string{
		fmt.Sprintf("TITLE: %s", title),
		"FCM: NON-DROP FRAME",
		"",
	}

	for i, e := range entries {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				secToTimecode(0), secToTimecode(e.SourceSec),
				secToTimecode(e.RecordIn), secToTimecode(e.RecordOut)),
			fmt.Sprintf("* FROM CLIP NAME:  clip %d", i+1),
			fmt.Sprintf("* MEDIA PATH:  %s", LocalPath(e.ClipRef)),
		)
		if e.SourceSec > 0 && e.RecordOut > e.RecordIn {
			lines = append(lines, fmt.Sprintf("M2   %-8s %s %s", "AX",
				formatSpeed(e.SourceSec/(e.RecordOut-e.RecordIn)), secToTimecode(e.RecordIn)))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secToTimecode(sec float64) string {
	totalFrames := int(math.Round(sec * timelineFPS))
	frames := totalFrames % timelineFPS
	totalSeconds := totalFrames / timelineFPS
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}

// formatSpeed is the M2 motion-effect frame rate: the playback speed
// multiplied by the timeline rate.
func formatSpeed(speed float64) string {
	return fmt.Sprintf("%05.1f", speed*timelineFPS)
}
