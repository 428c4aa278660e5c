package job

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"vidsum/internal/store"
)

// Registry is the canonical mapping of video id to Job. It is a pure
// coordinator: it owns the per-job locks and pairs every mutation with a
// broadcast so subscribers never observe an update they were not notified of.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	hub  *Hub
	meta *store.MetaStore
	log  zerolog.Logger
}

// NewRegistry creates an empty registry bound to its hub and metadata store.
func NewRegistry(hub *Hub, meta *store.MetaStore, log zerolog.Logger) *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		hub:  hub,
		meta: meta,
		log:  log,
	}
}

// CreateOrRevive returns the live job for a video if one exists, otherwise
// creates a fresh pending job (replacing a failed one), clears any persisted
// failure flag and broadcasts a new event.
func (r *Registry) CreateOrRevive(videoID string) (existedAlive bool, j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[videoID]; ok && existing.GetStatus() != StatusFailed {
		return true, existing
	}

	// A retry starts from a clean slate, in memory and on disk.
	r.meta.ClearFailed(videoID)

	fresh := &Job{
		VideoID: videoID,
		Status:  StatusPending,
	}
	r.jobs[videoID] = fresh

	fresh.mu.RLock()
	payload := marshalJob(fresh)
	r.hub.Broadcast(EventNew, videoID, payload)
	fresh.mu.RUnlock()

	return false, fresh
}

// Get returns the job for a video, or nil.
func (r *Registry) Get(videoID string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.jobs[videoID]
}

// All returns a copy of the job map.
func (r *Registry) All() map[string]*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Job, len(r.jobs))
	for id, j := range r.jobs {
		out[id] = j
	}
	return out
}

// Delete removes a job from the registry and from future init snapshots.
func (r *Registry) Delete(videoID string) {
	r.mu.Lock()
	delete(r.jobs, videoID)
	r.mu.Unlock()

	r.hub.Forget(videoID)
}

// Mutate applies an arbitrary edit to the job under its write lock and, still
// under the lock, broadcasts the update. If video metadata appears for the
// first time during the edit, it is written through to the metadata store.
func (r *Registry) Mutate(j *Job, fn func(j *Job)) {
	j.mu.Lock()
	defer j.mu.Unlock()

	before := j.Status
	hadMeta := j.Progress.VideoMeta != nil

	fn(j)

	if j.Status != before && !ValidTransition(before, j.Status) {
		r.log.Warn().Str("video_id", j.VideoID).Str("from", before).Str("to", j.Status).
			Msg("unexpected status transition")
	}

	if !hadMeta && j.Progress.VideoMeta != nil && !r.meta.Exists(j.VideoID) {
		r.meta.Create(j.VideoID, *j.Progress.VideoMeta)
	}

	r.hub.Broadcast(EventUpdate, j.VideoID, marshalJob(j))
}

// SetStatus is a convenience wrapper for status-only mutations.
func (r *Registry) SetStatus(j *Job, status string) {
	r.Mutate(j, func(j *Job) {
		j.Status = status
	})
}

// Updater binds Mutate to one job, giving stage adapters a progress callback
// without a registry dependency.
func (r *Registry) Updater(j *Job) MutateFunc {
	return func(fn func(j *Job)) {
		r.Mutate(j, fn)
	}
}

// marshalJob serializes a job whose lock is held by the caller.
func marshalJob(j *Job) json.RawMessage {
	b, err := json.Marshal(j)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
