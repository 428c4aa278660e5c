package media

import (
	"strings"
	"testing"
)

func TestBuildTranscriptChunksSingle(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 5, Text: "short one"},
		{Start: 5, End: 10, Text: "short two"},
	}

	chunks := buildTranscriptChunks(segments)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !strings.Contains(chunks[0], "[00:00-00:05]: short one\n") {
		t.Fatalf("chunk missing formatted line: %q", chunks[0])
	}
	if !strings.Contains(chunks[0], "[00:05-00:10]: short two\n") {
		t.Fatalf("chunk missing formatted line: %q", chunks[0])
	}
}

func TestBuildTranscriptChunksSplitsAtBudget(t *testing.T) {
	// Each segment renders to ~10k chars, so the 120k char budget splits a
	// long transcript into multiple chunks.
	line := strings.Repeat("w", 10_000)
	segments := make([]Segment, 0, 40)
	for i := 0; i < 40; i++ {
		segments = append(segments, Segment{
			Start: float64(i * 10),
			End:   float64(i*10 + 10),
			Text:  line,
		})
	}

	chunks := buildTranscriptChunks(segments)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want a split", len(chunks))
	}
	for i, chunk := range chunks[:len(chunks)-1] {
		if len(chunk) <= maxChunkTokens*4 {
			t.Fatalf("chunk %d closed below the budget: %d chars", i, len(chunk))
		}
	}
}

func TestBuildTranscriptChunksEmptyTranscript(t *testing.T) {
	chunks := buildTranscriptChunks(nil)
	if len(chunks) != 1 || chunks[0] != "" {
		t.Fatalf("chunks = %q, want one empty chunk", chunks)
	}
}
