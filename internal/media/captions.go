package media

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/asticode/go-astisub"
)

// parseSubtitleFile reads a subtitle file into deduplicated segments.
// YouTube's automatic captions frequently emit overlapping lines where the
// suffix of one segment repeats as the prefix of the next; each new segment
// trims (or wholly removes) its predecessor's overlap.
func parseSubtitleFile(path string) ([]Segment, error) {
	subs, err := astisub.OpenFile(path)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(subs.Items))

	for _, item := range subs.Items {
		start := item.StartAt.Seconds()
		end := item.EndAt.Seconds()
		text := item.String()
		if text == "" || int64(start) == int64(end) {
			continue
		}

		segments = dedupeAppend(segments, Segment{
			Start: start,
			End:   end,
			Text:  text,
		})
	}

	return segments, nil
}

// dedupeAppend appends next, first resolving any overlap with the previous
// segment: a full overlap drops the previous segment entirely, a partial one
// trims its tail.
func dedupeAppend(segments []Segment, next Segment) []Segment {
	if len(segments) > 0 {
		prev := len(segments) - 1
		k := overlapRunes(segments[prev].Text, next.Text)
		prevRunes := []rune(segments[prev].Text)

		if k == len(prevRunes) {
			segments = segments[:prev]
		} else if k > 0 {
			segments[prev].Text = string(prevRunes[:len(prevRunes)-k])
		}
	}

	return append(segments, next)
}

// findSubtitleFile locates a downloaded subtitle file for a video id,
// preferring the converted .vtt output.
func findSubtitleFile(dir, videoID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var fallback string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, videoID) || len(name) == len(videoID) || name[len(videoID)] != '.' {
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".info.json") {
			continue
		}
		p := filepath.Join(dir, name)
		if strings.HasSuffix(strings.ToLower(name), ".vtt") {
			return p, nil
		}
		if strings.HasSuffix(strings.ToLower(name), ".srt") && fallback == "" {
			fallback = p
		}
	}

	return fallback, nil
}
