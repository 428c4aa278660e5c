package media

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"vidsum/internal/groq"
	"vidsum/internal/job"
	"vidsum/internal/store"
)

// Max tokens to feed into the model in a single summarization step, estimated
// at 4 chars per token.
const maxChunkTokens = 30_000

const summarizerPrompt = "You are a summarizer agent. First, based on the content type, decide what method of organizing the data would be most helpful for the user. For example, if it's informative, summarize as a tutorial. If it's a funny video, describe what happens. If it's a course, create sections and summarize those sections etc. Use markdown, BUT DO NOT INCLUDE ```markdown```. Then, summarize the video in that way. DO NOT USE EMOJIS. If you are given a current summary, simply extend it to include the new data as instructed. Part of your input is [H:MM:SS] timestamps. Include those when referencing anything from the transcription"

// SummarizerOptions configures the summarization stage.
type SummarizerOptions struct {
	TranscriptionsDir string
	SummariesDir      string
	Client            *groq.Client
	Logger            zerolog.Logger
}

// RollingSummarizer folds the transcript into a single growing summary, one
// model call per chunk of timestamped lines.
type RollingSummarizer struct {
	transcriptionsDir string
	summariesDir      string
	client            *groq.Client
	log               zerolog.Logger
}

// NewSummarizer builds the Groq backed summarizer.
func NewSummarizer(opts SummarizerOptions) *RollingSummarizer {
	return &RollingSummarizer{
		transcriptionsDir: opts.TranscriptionsDir,
		summariesDir:      opts.SummariesDir,
		client:            opts.Client,
		log:               opts.Logger,
	}
}

// Summarize implements the summarization stage. There is no artifact caching
// here: every run re-summarizes.
func (s *RollingSummarizer) Summarize(ctx context.Context, videoID string, update job.MutateFunc) error {
	scribePath := filepath.Join(s.transcriptionsDir, videoID+".json")

	segments, err := ReadSegments(scribePath)
	if err != nil {
		return err
	}

	chunks := buildTranscriptChunks(segments)
	update(func(j *job.Job) {
		j.Progress.SummaryChunks = len(chunks)
	})

	currentSummary := ""
	for i, chunk := range chunks {
		newSummary, err := s.extendSummary(ctx, chunk, currentSummary)
		if err != nil {
			return err
		}

		update(func(j *job.Job) {
			j.Progress.ChunksSummarized = i + 1
		})

		currentSummary = newSummary
	}

	summaryPath := filepath.Join(s.summariesDir, videoID+".md")
	return store.WriteFileAtomic(summaryPath, []byte(currentSummary))
}

// buildTranscriptChunks renders the segments as timestamped lines and groups
// them into blocks of roughly maxChunkTokens.
func buildTranscriptChunks(segments []Segment) []string {
	current := ""
	out := make([]string, 0)

	for _, segment := range segments {
		current += formatSubtitle(segment.Start, segment.End, segment.Text) + "\n"

		if len(current) > maxChunkTokens*4 {
			out = append(out, current)
			current = ""
		}
	}

	// Whatever is left, append it.
	out = append(out, current)

	return out
}

// extendSummary asks the model to fold one transcript chunk into the current
// summary.
func (s *RollingSummarizer) extendSummary(ctx context.Context, section, currentSummary string) (string, error) {
	messages := []groq.ChatMessage{
		{
			Content: summarizerPrompt,
			Role:    "system",
		},
		{
			Content: fmt.Sprintf("Please summarize this: %s", section),
			Role:    "user",
		},
		{
			Content: fmt.Sprintf("Here is the current summary. Combine it with the transcription below to form a more complete summary. If there is no current summary, just write an initial one: %s", currentSummary),
			Role:    "user",
		},
	}

	return s.client.Complete(ctx, s.client.SummarizationModel(), messages)
}
