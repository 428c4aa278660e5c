package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// VideoMetaEntry is the persisted metadata for one video, plus the failure
// state of its most recent pipeline run. It survives restarts and is the only
// job state recovered after a crash.
type VideoMetaEntry struct {
	VideoID           string  `json:"video_id"`
	VideoThumbnailURL string  `json:"video_thumbnail_url"`
	VideoName         string  `json:"video_name"`
	CreatorName       string  `json:"creator_name"`
	Length            float64 `json:"length"`
	UploadDate        string  `json:"upload_date"`

	JobFailed bool   `json:"job_failed"`
	LastError string `json:"last_error"`
}

// MetaStore maps video ids to VideoMetaEntry, backed by a single JSON
// document. Every mutation rewrites the file atomically (temp file + rename
// within the same directory), so readers never observe a partial document.
type MetaStore struct {
	mu   sync.RWMutex
	data map[string]VideoMetaEntry
	path string
	log  zerolog.Logger
}

type storeDocument struct {
	Data map[string]VideoMetaEntry `json:"data"`
}

// Open loads the store from disk, seeding an empty document if the file does
// not exist yet.
func Open(path string, log zerolog.Logger) (*MetaStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc storeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	if doc.Data == nil {
		doc.Data = make(map[string]VideoMetaEntry)
	}

	return &MetaStore{
		data: doc.Data,
		path: path,
		log:  log,
	}, nil
}

// Create inserts or replaces the entry for a video and persists the document.
func (s *MetaStore) Create(videoID string, entry VideoMetaEntry) {
	s.mu.Lock()
	s.data[videoID] = entry
	s.mu.Unlock()

	s.save()
}

// Read returns the entry for a video; the zero entry if absent.
func (s *MetaStore) Read(videoID string) VideoMetaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data[videoID]
}

// ReadAll returns a copy of every entry, keyed by video id.
func (s *MetaStore) ReadAll() map[string]VideoMetaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]VideoMetaEntry, len(s.data))
	for id, entry := range s.data {
		out[id] = entry
	}
	return out
}

// Exists reports whether an entry is present for a video.
func (s *MetaStore) Exists(videoID string) bool {
	s.mu.RLock()
	_, ok := s.data[videoID]
	s.mu.RUnlock()

	return ok
}

// Delete removes the entry for a video and persists the document.
func (s *MetaStore) Delete(videoID string) {
	s.mu.Lock()
	delete(s.data, videoID)
	s.mu.Unlock()

	s.save()
}

// SetFailed records or clears the failure state of a video's last run. A
// video with no entry yet is skipped: failure state only attaches to known
// metadata.
func (s *MetaStore) SetFailed(videoID string, failed bool, msg string) {
	s.mu.Lock()
	entry, ok := s.data[videoID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.JobFailed = failed
	entry.LastError = msg
	s.data[videoID] = entry
	s.mu.Unlock()

	s.save()
}

// ClearFailed resets the failure state for a video.
func (s *MetaStore) ClearFailed(videoID string) {
	s.SetFailed(videoID, false, "")
}

// save rewrites the backing document. Persistence failures are logged, not
// returned: the in-memory state stays authoritative for this process.
func (s *MetaStore) save() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".db-*.json")
	if err != nil {
		s.log.Error().Err(err).Msg("meta store: create temp")
		return
	}
	defer func() {
		_ = os.Remove(tmp.Name()) // no-op once renamed
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(storeDocument{Data: s.data}); err != nil {
		_ = tmp.Close()
		s.log.Error().Err(err).Msg("meta store: encode")
		return
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		s.log.Error().Err(err).Msg("meta store: fsync")
		return
	}
	if err := tmp.Close(); err != nil {
		s.log.Error().Err(err).Msg("meta store: close")
		return
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.log.Error().Err(err).Msg("meta store: rename")
	}
}
