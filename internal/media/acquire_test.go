package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"vidsum/internal/job"
)

func TestAcquireSkipsWhenTranscriptExists(t *testing.T) {
	downloads := t.TempDir()
	transcriptions := t.TempDir()

	if err := WriteSegments(filepath.Join(transcriptions, "abcdefghijk.json"), []Segment{{Text: "done"}}); err != nil {
		t.Fatalf("WriteSegments() error = %v", err)
	}

	a := NewAcquirer(AcquirerOptions{
		YTDLPBin:          "/nonexistent/yt-dlp",
		DownloadsDir:      downloads,
		TranscriptionsDir: transcriptions,
		Logger:            zerolog.Nop(),
	})

	var updates int
	hadCaptions, err := a.Acquire(context.Background(), "abcdefghijk", func(func(*job.Job)) {
		updates++
	})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !hadCaptions {
		t.Fatalf("Acquire() = false, want true when the transcript artifact exists")
	}
	if updates != 0 {
		t.Fatalf("Acquire() issued %d updates while skipping", updates)
	}
}

func TestAcquireSkipsWhenAudioExists(t *testing.T) {
	downloads := t.TempDir()
	transcriptions := t.TempDir()

	if err := os.WriteFile(filepath.Join(downloads, "abcdefghijk.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	a := NewAcquirer(AcquirerOptions{
		YTDLPBin:          "/nonexistent/yt-dlp",
		DownloadsDir:      downloads,
		TranscriptionsDir: transcriptions,
		Logger:            zerolog.Nop(),
	})

	hadCaptions, err := a.Acquire(context.Background(), "abcdefghijk", func(func(*job.Job)) {})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if hadCaptions {
		t.Fatalf("Acquire() = true, want false when only the audio artifact exists")
	}
}

func TestReadVideoMetaFromInfoJSON(t *testing.T) {
	dir := t.TempDir()

	info := `{
		"id": "abcdefghijk",
		"title": "A Video",
		"uploader": "A Creator",
		"duration": 212,
		"upload_date": "20091025",
		"thumbnails": [
			{"url": "https://example.com/low.jpg"},
			{"url": "https://example.com/high.jpg"}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "abcdefghijk.info.json"), []byte(info), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	meta, err := readVideoMetaFromInfoJSON(dir, "abcdefghijk")
	if err != nil {
		t.Fatalf("readVideoMetaFromInfoJSON() error = %v", err)
	}

	if meta.VideoID != "abcdefghijk" ||
		meta.VideoName != "A Video" ||
		meta.CreatorName != "A Creator" ||
		meta.Length != 212 ||
		meta.UploadDate != "2009-10-25" {
		t.Fatalf("meta = %+v", meta)
	}
	// No top-level thumbnail: the last thumbnails[] entry wins.
	if meta.VideoThumbnailURL != "https://example.com/high.jpg" {
		t.Fatalf("thumbnail = %q", meta.VideoThumbnailURL)
	}
}

func TestFormatYYYYMMDD(t *testing.T) {
	tests := []struct{ in, want string }{
		{"20091025", "2009-10-25"},
		{"2009", "2009"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := formatYYYYMMDD(tc.in); got != tc.want {
			t.Errorf("formatYYYYMMDD(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
