package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vidsum/internal/job"
	"vidsum/internal/store"
)

// Stage adapter contracts. The workers drive these; implementations live in
// the media package and are swapped for fakes in tests.
type (
	// Acquirer probes for automatic captions and, failing that, downloads the
	// audio. It reports true when the transcription artifact already exists
	// (captions were found, or an earlier run produced it), in which case the
	// transcriber is skipped.
	Acquirer interface {
		Acquire(ctx context.Context, videoID string, update job.MutateFunc) (hadCaptions bool, err error)
	}

	// Transcriber splits the audio artifact into fixed-duration chunks, sends
	// each to the speech-to-text service and writes the merged segment list.
	Transcriber interface {
		Transcribe(ctx context.Context, videoID string, update job.MutateFunc) error
	}

	// Summarizer reads the segment artifact and produces the rolling summary
	// Markdown.
	Summarizer interface {
		Summarize(ctx context.Context, videoID string, update job.MutateFunc) error
	}
)

// Adapters bundles the three stage implementations.
type Adapters struct {
	Acquire    Acquirer
	Transcribe Transcriber
	Summarize  Summarizer
}

// StageError is posted to the error channel when a stage's work terminates
// abnormally.
type StageError struct {
	Err   error
	Job   *job.Job
	Stage string
}

const queueCapacity = 1024

// Pipeline connects the stage workers with bounded queues. Intake, acquire
// and transcribe each keep a single item in flight; summarize dispatches a
// goroutine per item.
type Pipeline struct {
	reg      *job.Registry
	meta     *store.MetaStore
	adapters Adapters
	log      zerolog.Logger

	videoIDIn chan string
	pendingCh chan *job.Job
	// audio downloaded, awaiting transcription
	downloadedCh chan *job.Job
	// transcript artifact ready, awaiting summarization
	summarizableCh chan *job.Job
	doneCh         chan *job.Job

	errCh chan StageError
}

// New builds a pipeline; Start launches its workers.
func New(reg *job.Registry, meta *store.MetaStore, adapters Adapters, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		reg:      reg,
		meta:     meta,
		adapters: adapters,
		log:      log,

		videoIDIn:      make(chan string, queueCapacity),
		pendingCh:      make(chan *job.Job, queueCapacity),
		downloadedCh:   make(chan *job.Job, queueCapacity),
		summarizableCh: make(chan *job.Job, queueCapacity),
		doneCh:         make(chan *job.Job, queueCapacity),

		errCh: make(chan StageError, 10),
	}
}

// Start launches the workers and returns the intake queue.
func (p *Pipeline) Start() chan<- string {
	go p.intake()
	go p.acquireNext()
	go p.transcribeNext()
	go p.summarizeNext()
	go p.finalize()

	go p.handleErrors()

	return p.videoIDIn
}

// TryEnqueue deposits a video id without blocking. It returns false when the
// intake queue is full; the HTTP layer maps that to a retryable status.
func (p *Pipeline) TryEnqueue(videoID string) bool {
	select {
	case p.videoIDIn <- videoID:
		return true
	default:
		return false
	}
}

// ---

// recoverStage converts an abnormal stage termination into a StageError so
// the remaining jobs in the worker keep flowing.
func (p *Pipeline) recoverStage(stage string, failed *job.Job) {
	if r := recover(); r != nil {
		p.errCh <- StageError{
			Err:   fmt.Errorf("%v", r),
			Job:   failed,
			Stage: stage,
		}
	}
}

// handleErrors is the single consumer of the error channel: the job moves to
// failed, the cause is preserved, and the failure is persisted for recovery.
func (p *Pipeline) handleErrors() {
	for stageErr := range p.errCh {
		p.log.Error().Err(stageErr.Err).
			Str("video_id", stageErr.Job.VideoID).
			Str("stage", stageErr.Stage).
			Msg("job failed")

		p.reg.Mutate(stageErr.Job, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = stageErr.Err.Error()
		})

		p.meta.SetFailed(stageErr.Job.VideoID, true, stageErr.Err.Error())
	}
}

func (p *Pipeline) intake() {
	for videoID := range p.videoIDIn {
		existedAlive, j := p.reg.CreateOrRevive(videoID)

		if existedAlive {
			p.log.Debug().Str("video_id", videoID).Msg("job already live, intake ignored")
			continue
		}

		p.log.Info().Str("video_id", videoID).Msg("queued")
		p.pendingCh <- j
	}
}

func (p *Pipeline) acquireNext() {
	for pending := range p.pendingCh {
		func(j *job.Job) {
			defer p.recoverStage("acquire", j)

			p.log.Info().Str("video_id", j.VideoID).Msg("acquiring")

			hadCaptions, err := p.adapters.Acquire.Acquire(context.Background(), j.VideoID, p.reg.Updater(j))
			if err != nil {
				panic(err)
			}

			// Captions skip transcription entirely; the acquirer has already
			// written the segment artifact.
			if hadCaptions {
				p.summarizableCh <- j
			} else {
				p.downloadedCh <- j
			}
		}(pending)
	}
}

func (p *Pipeline) transcribeNext() {
	for downloaded := range p.downloadedCh {
		func(j *job.Job) {
			defer p.recoverStage("transcribe", j)

			p.log.Info().Str("video_id", j.VideoID).Msg("transcribing")

			if err := p.adapters.Transcribe.Transcribe(context.Background(), j.VideoID, p.reg.Updater(j)); err != nil {
				panic(err)
			}

			p.summarizableCh <- j
		}(downloaded)
	}
}

func (p *Pipeline) summarizeNext() {
	for summarizable := range p.summarizableCh {
		// Summaries run in parallel; the language-model service does not rate
		// limit this caller.
		go func(j *job.Job) {
			defer p.recoverStage("summarize", j)

			p.log.Info().Str("video_id", j.VideoID).Msg("summarizing")
			p.reg.SetStatus(j, job.StatusSummarizing)

			if err := p.adapters.Summarize.Summarize(context.Background(), j.VideoID, p.reg.Updater(j)); err != nil {
				panic(err)
			}

			p.doneCh <- j
		}(summarizable)
	}
}

func (p *Pipeline) finalize() {
	for j := range p.doneCh {
		p.log.Info().Str("video_id", j.VideoID).Msg("finished")

		p.reg.SetStatus(j, job.StatusFinished)
		p.meta.ClearFailed(j.VideoID)
	}
}
