package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"vidsum/internal/groq"
	"vidsum/internal/job"
)

// Audio is split into fixed 20 minute chunks before transcription; the
// timestamp shift per chunk relies on this being exact.
const chunkSeconds = 1200

// TranscriberOptions configures the transcription stage.
type TranscriberOptions struct {
	FFmpegBin         string
	DownloadsDir      string
	TranscriptionsDir string
	Client            *groq.Client
	Logger            zerolog.Logger
}

// AudioTranscriber chunks the downloaded audio with ffmpeg, transcribes each
// chunk through the speech-to-text service, and merges the segments onto one
// contiguous timeline.
type AudioTranscriber struct {
	ffmpegBin         string
	downloadsDir      string
	transcriptionsDir string
	client            *groq.Client
	log               zerolog.Logger
}

// NewTranscriber builds the ffmpeg+Groq backed transcriber.
func NewTranscriber(opts TranscriberOptions) *AudioTranscriber {
	return &AudioTranscriber{
		ffmpegBin:         opts.FFmpegBin,
		downloadsDir:      opts.DownloadsDir,
		transcriptionsDir: opts.TranscriptionsDir,
		client:            opts.Client,
		log:               opts.Logger,
	}
}

// Transcribe implements the transcription stage.
func (t *AudioTranscriber) Transcribe(ctx context.Context, videoID string, update job.MutateFunc) error {
	scribePath := filepath.Join(t.transcriptionsDir, videoID+".json")
	if _, err := os.Stat(scribePath); err == nil {
		t.log.Info().Str("video_id", videoID).Msg("already transcribed, skipping")
		return nil
	}

	update(func(j *job.Job) {
		j.Status = job.StatusChunking
	})

	chunks, err := t.chunkAudio(videoID)
	defer t.cleanUpChunks(videoID)
	if err != nil {
		return err
	}

	update(func(j *job.Job) {
		j.Status = job.StatusTranscribing
		j.Progress.TranscriptionChunks = len(chunks)
	})

	segments := make([]Segment, 0)
	var offset float64

	for i, chunk := range chunks {
		transcribed, err := t.client.Transcribe(ctx, chunk, "")
		if err != nil {
			return err
		}

		// Shift this chunk's timestamps by the cumulative offset so the
		// merged timeline stays contiguous.
		for _, seg := range transcribed {
			segments = append(segments, Segment{
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}

		update(func(j *job.Job) {
			j.Progress.ChunksTranscribed = i + 1
		})

		// Every chunk but the last is exactly chunkSeconds long, so a fixed
		// increment is safe.
		offset += chunkSeconds
	}

	return WriteSegments(scribePath, segments)
}

// chunkAudio splits the downloaded audio into chunk files and returns their
// paths in playback order.
func (t *AudioTranscriber) chunkAudio(videoID string) ([]string, error) {
	audioPath := filepath.Join(t.downloadsDir, fmt.Sprintf("%s.%s", videoID, audioExt))
	chunkDir := filepath.Join(t.downloadsDir, videoID)

	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, err
	}

	cmd := exec.Command(t.ffmpegBin,
		"-y",
		"-i", audioPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "96k",
		"-f", "segment",
		"-segment_time", fmt.Sprint(chunkSeconds),
		"-reset_timestamps", "1",
		"-map", "0:a:0",
		filepath.Join(chunkDir, "%03d.mp3"),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.log.Error().Str("video_id", videoID).Msg(string(output))
		return nil, err
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(entries))
	for _, entry := range entries {
		chunks = append(chunks, filepath.Join(chunkDir, entry.Name()))
	}

	return chunks, nil
}

func (t *AudioTranscriber) cleanUpChunks(videoID string) {
	_ = os.RemoveAll(filepath.Join(t.downloadsDir, videoID))
}
