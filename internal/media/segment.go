package media

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"vidsum/internal/store"
)

// Segment is one timed span of transcript text. The merged segment list for a
// video is persisted as a JSON array, the shared artifact between the
// acquire/transcribe stages and the summarizer.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// WriteSegments persists the merged segment list atomically.
func WriteSegments(path string, segments []Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, data)
}

// ReadSegments loads a segment artifact.
func ReadSegments(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// fmtClock renders seconds as HH:MM:SS once the timestamp reaches an hour,
// MM:SS below that.
func fmtClock(timeSecs int64) string {
	timestamp := time.Duration(timeSecs) * time.Second

	if timestamp >= time.Hour {
		return fmt.Sprintf("%02d:%02d:%02d", int(timestamp.Hours()), int(timestamp.Minutes())%60, int(timestamp.Seconds())%60)
	}
	return fmt.Sprintf("%02d:%02d", int(timestamp.Minutes())%60, int(timestamp.Seconds())%60)
}

// formatSubtitle renders one segment as a timestamped transcript line.
func formatSubtitle(start, end float64, text string) string {
	return fmt.Sprintf("[%s-%s]: %s", fmtClock(int64(start)), fmtClock(int64(end)), text)
}

// overlapRunes returns the largest k such that the last k runes of a equal
// the first k runes of b.
func overlapRunes(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	max := len(ra)
	if len(rb) < max {
		max = len(rb)
	}
	for k := max; k > 0; k-- {
		if string(ra[len(ra)-k:]) == string(rb[:k]) {
			return k
		}
	}
	return 0
}
