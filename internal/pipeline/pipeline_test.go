package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidsum/internal/job"
	"vidsum/internal/store"
)

type (
	acquireFunc    func(ctx context.Context, videoID string, update job.MutateFunc) (bool, error)
	transcribeFunc func(ctx context.Context, videoID string, update job.MutateFunc) error
	summarizeFunc  func(ctx context.Context, videoID string, update job.MutateFunc) error
)

func (f acquireFunc) Acquire(ctx context.Context, videoID string, update job.MutateFunc) (bool, error) {
	return f(ctx, videoID, update)
}

func (f transcribeFunc) Transcribe(ctx context.Context, videoID string, update job.MutateFunc) error {
	return f(ctx, videoID, update)
}

func (f summarizeFunc) Summarize(ctx context.Context, videoID string, update job.MutateFunc) error {
	return f(ctx, videoID, update)
}

func newTestPipeline(t *testing.T, adapters Adapters) (*Pipeline, *job.Registry, *store.MetaStore) {
	t.Helper()

	meta, err := store.Open(filepath.Join(t.TempDir(), "db.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}

	hub := job.NewHub(zerolog.Nop())
	reg := job.NewRegistry(hub, meta, zerolog.Nop())

	p := New(reg, meta, adapters, zerolog.Nop())
	p.Start()
	return p, reg, meta
}

func waitForStatus(t *testing.T, reg *job.Registry, videoID, want string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j := reg.Get(videoID); j != nil && j.GetStatus() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	j := reg.Get(videoID)
	if j == nil {
		t.Fatalf("job %q never appeared, want status %q", videoID, want)
	}
	t.Fatalf("job %q status = %q, want %q", videoID, j.GetStatus(), want)
}

// captionsAcquirer mimics the fast path: captions found, artifact written.
func captionsAcquirer(calls *int32) acquireFunc {
	return func(_ context.Context, _ string, update job.MutateFunc) (bool, error) {
		atomic.AddInt32(calls, 1)
		update(func(j *job.Job) {
			j.Status = job.StatusCheckingForCaptions
		})
		update(func(j *job.Job) {
			j.Status = job.StatusDownloadedCaptions
			j.Progress.HadCaptions = true
		})
		return true, nil
	}
}

// mediaAcquirer mimics the slow path: audio downloaded for transcription.
func mediaAcquirer() acquireFunc {
	return func(_ context.Context, _ string, update job.MutateFunc) (bool, error) {
		update(func(j *job.Job) {
			j.Status = job.StatusCheckingForCaptions
		})
		update(func(j *job.Job) {
			j.Status = job.StatusDownloadingAudio
		})
		update(func(j *job.Job) {
			j.Progress.PercentageString = "37.4%"
			j.Status = job.StatusExtractingAudio
		})
		return false, nil
	}
}

func chunkedTranscriber(calls *int32) transcribeFunc {
	return func(_ context.Context, _ string, update job.MutateFunc) error {
		atomic.AddInt32(calls, 1)
		update(func(j *job.Job) {
			j.Status = job.StatusChunking
		})
		update(func(j *job.Job) {
			j.Status = job.StatusTranscribing
			j.Progress.TranscriptionChunks = 2
		})
		for done := 1; done <= 2; done++ {
			d := done
			update(func(j *job.Job) {
				j.Progress.ChunksTranscribed = d
			})
		}
		return nil
	}
}

func chunkedSummarizer() summarizeFunc {
	return func(_ context.Context, _ string, update job.MutateFunc) error {
		update(func(j *job.Job) {
			j.Progress.SummaryChunks = 1
		})
		update(func(j *job.Job) {
			j.Progress.ChunksSummarized = 1
		})
		return nil
	}
}

func TestCaptionsFastPath(t *testing.T) {
	var acquires, transcribes int32

	p, reg, _ := newTestPipeline(t, Adapters{
		Acquire: captionsAcquirer(&acquires),
		Transcribe: transcribeFunc(func(context.Context, string, job.MutateFunc) error {
			atomic.AddInt32(&transcribes, 1)
			return nil
		}),
		Summarize: chunkedSummarizer(),
	})

	if !p.TryEnqueue("captionedvid") {
		t.Fatalf("TryEnqueue() = false on an empty queue")
	}
	waitForStatus(t, reg, "captionedvid", job.StatusFinished)

	snap := reg.Get("captionedvid").Snapshot()
	if !snap.Progress.HadCaptions {
		t.Fatalf("HadCaptions = false on the captions path")
	}
	if n := atomic.LoadInt32(&transcribes); n != 0 {
		t.Fatalf("transcriber invoked %d times on the captions path", n)
	}
}

func TestFullPipeline(t *testing.T) {
	var transcribes int32

	p, reg, _ := newTestPipeline(t, Adapters{
		Acquire:    mediaAcquirer(),
		Transcribe: chunkedTranscriber(&transcribes),
		Summarize:  chunkedSummarizer(),
	})

	p.TryEnqueue("plainoldvid")
	waitForStatus(t, reg, "plainoldvid", job.StatusFinished)

	snap := reg.Get("plainoldvid").Snapshot()
	if snap.Progress.HadCaptions {
		t.Fatalf("HadCaptions = true on the media path")
	}
	if snap.Progress.PercentageString != "37.4%" {
		t.Fatalf("PercentageString = %q", snap.Progress.PercentageString)
	}
	if snap.Progress.TranscriptionChunks != 2 || snap.Progress.ChunksTranscribed != 2 {
		t.Fatalf("transcription counters = %d/%d", snap.Progress.ChunksTranscribed, snap.Progress.TranscriptionChunks)
	}
	if n := atomic.LoadInt32(&transcribes); n != 1 {
		t.Fatalf("transcriber invoked %d times, want 1", n)
	}
}

func TestFailureAndRetry(t *testing.T) {
	var shouldFail atomic.Bool
	shouldFail.Store(true)

	p, reg, meta := newTestPipeline(t, Adapters{
		Acquire: mediaAcquirer(),
		Transcribe: transcribeFunc(func(_ context.Context, _ string, update job.MutateFunc) error {
			if shouldFail.Load() {
				return errors.New("segmenter exploded")
			}
			update(func(j *job.Job) {
				j.Status = job.StatusChunking
			})
			update(func(j *job.Job) {
				j.Status = job.StatusTranscribing
			})
			return nil
		}),
		Summarize: chunkedSummarizer(),
	})
	meta.Create("crashingvid", store.VideoMetaEntry{VideoID: "crashingvid"})

	p.TryEnqueue("crashingvid")
	waitForStatus(t, reg, "crashingvid", job.StatusFailed)

	snap := reg.Get("crashingvid").Snapshot()
	if snap.Error != "segmenter exploded" {
		t.Fatalf("job error = %q", snap.Error)
	}

	waitForPersistedFailure(t, meta, "crashingvid")

	// Retry: the job resets to pending and runs to completion.
	shouldFail.Store(false)
	p.TryEnqueue("crashingvid")
	waitForStatus(t, reg, "crashingvid", job.StatusFinished)

	if entry := meta.Read("crashingvid"); entry.JobFailed {
		t.Fatalf("persisted failure flag survived a successful retry")
	}
}

func waitForPersistedFailure(t *testing.T, meta *store.MetaStore, videoID string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if entry := meta.Read(videoID); entry.JobFailed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("failure for %q never persisted", videoID)
}

func TestPanicInStageIsCaptured(t *testing.T) {
	p, reg, _ := newTestPipeline(t, Adapters{
		Acquire: acquireFunc(func(context.Context, string, job.MutateFunc) (bool, error) {
			panic("downloader fell over")
		}),
		Transcribe: chunkedTranscriber(new(int32)),
		Summarize:  chunkedSummarizer(),
	})

	p.TryEnqueue("panickyvideo")
	waitForStatus(t, reg, "panickyvideo", job.StatusFailed)

	if got := reg.Get("panickyvideo").Snapshot().Error; got != "downloader fell over" {
		t.Fatalf("job error = %q", got)
	}
}

func TestFailedJobDoesNotBlockOthers(t *testing.T) {
	p, reg, _ := newTestPipeline(t, Adapters{
		Acquire: acquireFunc(func(_ context.Context, videoID string, update job.MutateFunc) (bool, error) {
			if videoID == "doomedvideo" {
				return false, errors.New("unavailable")
			}
			update(func(j *job.Job) {
				j.Status = job.StatusCheckingForCaptions
			})
			update(func(j *job.Job) {
				j.Status = job.StatusDownloadedCaptions
				j.Progress.HadCaptions = true
			})
			return true, nil
		}),
		Transcribe: chunkedTranscriber(new(int32)),
		Summarize:  chunkedSummarizer(),
	})

	p.TryEnqueue("doomedvideo")
	p.TryEnqueue("healthyvid1")

	waitForStatus(t, reg, "doomedvideo", job.StatusFailed)
	waitForStatus(t, reg, "healthyvid1", job.StatusFinished)
}

func TestLiveJobIgnoredOnReenqueue(t *testing.T) {
	release := make(chan struct{})
	var acquires int32

	p, reg, _ := newTestPipeline(t, Adapters{
		Acquire: acquireFunc(func(_ context.Context, _ string, update job.MutateFunc) (bool, error) {
			atomic.AddInt32(&acquires, 1)
			update(func(j *job.Job) {
				j.Status = job.StatusCheckingForCaptions
			})
			<-release
			update(func(j *job.Job) {
				j.Status = job.StatusDownloadedCaptions
				j.Progress.HadCaptions = true
			})
			return true, nil
		}),
		Transcribe: chunkedTranscriber(new(int32)),
		Summarize:  chunkedSummarizer(),
	})

	p.TryEnqueue("inflightvid1")
	waitForStatus(t, reg, "inflightvid1", job.StatusCheckingForCaptions)

	// A second intake for a live job must not spawn more work.
	p.TryEnqueue("inflightvid1")
	close(release)
	waitForStatus(t, reg, "inflightvid1", job.StatusFinished)

	if n := atomic.LoadInt32(&acquires); n != 1 {
		t.Fatalf("acquire ran %d times, want 1", n)
	}
}
