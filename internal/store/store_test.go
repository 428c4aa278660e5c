package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) (*MetaStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, path
}

func TestCreateReadRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	entry := VideoMetaEntry{
		VideoID:     "dQw4w9WgXcQ",
		VideoName:   "a video",
		CreatorName: "a creator",
		Length:      212,
		UploadDate:  "2009-10-25",
	}
	s.Create("dQw4w9WgXcQ", entry)

	if !s.Exists("dQw4w9WgXcQ") {
		t.Fatalf("Exists() = false after Create")
	}
	if got := s.Read("dQw4w9WgXcQ"); got != entry {
		t.Fatalf("Read() = %+v, want %+v", got, entry)
	}
	if got := len(s.ReadAll()); got != 1 {
		t.Fatalf("ReadAll() len = %d, want 1", got)
	}
}

func TestSetFailed(t *testing.T) {
	s, _ := openTestStore(t)
	s.Create("abcdefghijk", VideoMetaEntry{VideoID: "abcdefghijk"})

	s.SetFailed("abcdefghijk", true, "stage blew up")

	got := s.Read("abcdefghijk")
	if !got.JobFailed || got.LastError != "stage blew up" {
		t.Fatalf("Read() after SetFailed = %+v", got)
	}

	s.ClearFailed("abcdefghijk")
	got = s.Read("abcdefghijk")
	if got.JobFailed || got.LastError != "" {
		t.Fatalf("Read() after ClearFailed = %+v", got)
	}
}

func TestSetFailedUnknownVideoIsNoop(t *testing.T) {
	s, _ := openTestStore(t)

	s.SetFailed("unknownvid1", true, "boom")

	if s.Exists("unknownvid1") {
		t.Fatalf("SetFailed created an entry for an unknown video")
	}
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")

	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Create("abcdefghijk", VideoMetaEntry{VideoID: "abcdefghijk", VideoName: "kept"})
	s.SetFailed("abcdefghijk", true, "crashed")

	reopened, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}

	got := reopened.Read("abcdefghijk")
	if got.VideoName != "kept" || !got.JobFailed || got.LastError != "crashed" {
		t.Fatalf("reopened Read() = %+v", got)
	}
}

func TestDocumentShape(t *testing.T) {
	s, path := openTestStore(t)
	s.Create("abcdefghijk", VideoMetaEntry{VideoID: "abcdefghijk"})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var doc struct {
		Data map[string]VideoMetaEntry `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if _, ok := doc.Data["abcdefghijk"]; !ok {
		t.Fatalf("document missing entry, got %+v", doc)
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	s, path := openTestStore(t)
	for i := 0; i < 5; i++ {
		s.Create("abcdefghijk", VideoMetaEntry{VideoID: "abcdefghijk"})
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the store document, found %v", names)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "artifact.md")

	if err := WriteFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("ReadFile() = %q, want %q", got, "second")
	}
}
