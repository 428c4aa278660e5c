package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"vidsum/internal/job"
	"vidsum/internal/store"
)

const audioExt = "mp3"

// AcquirerOptions configures the acquisition stage.
type AcquirerOptions struct {
	YTDLPBin          string
	DownloadsDir      string
	TranscriptionsDir string
	Logger            zerolog.Logger
}

// MediaAcquirer probes a video for automatic captions and falls back to
// downloading its audio. The external downloader is a scarce resource; the
// pipeline keeps a single acquisition in flight.
type MediaAcquirer struct {
	bin               string
	downloadsDir      string
	transcriptionsDir string
	log               zerolog.Logger
}

// NewAcquirer builds the yt-dlp backed acquirer.
func NewAcquirer(opts AcquirerOptions) *MediaAcquirer {
	return &MediaAcquirer{
		bin:               opts.YTDLPBin,
		downloadsDir:      opts.DownloadsDir,
		transcriptionsDir: opts.TranscriptionsDir,
		log:               opts.Logger,
	}
}

// Acquire implements the acquisition stage. It returns true when the segment
// artifact is ready without transcription: either captions were found and
// formatted now, or a previous run already produced the artifact.
func (a *MediaAcquirer) Acquire(ctx context.Context, videoID string, update job.MutateFunc) (bool, error) {
	scribePath := filepath.Join(a.transcriptionsDir, videoID+".json")
	if _, err := os.Stat(scribePath); err == nil {
		a.log.Info().Str("video_id", videoID).Msg("transcript artifact exists, skipping acquisition")
		return true, nil
	}

	audioPath := filepath.Join(a.downloadsDir, fmt.Sprintf("%s.%s", videoID, audioExt))
	if _, err := os.Stat(audioPath); err == nil {
		a.log.Info().Str("video_id", videoID).Msg("audio already downloaded, skipping fetch")
		return false, nil
	}

	if err := os.MkdirAll(a.downloadsDir, 0o755); err != nil {
		return false, err
	}

	update(func(j *job.Job) {
		j.Status = job.StatusCheckingForCaptions
	})

	// Probe for automatic captions and grab info.json, without touching the
	// media itself.
	probe := ytdlp.New().
		WriteAutoSubs().
		WriteSubs().
		SkipDownload().
		Output(filepath.Join(a.downloadsDir, videoID+".%(ext)s")).
		SubLangs("en,en.*").
		ConvertSubs("vtt").
		Quiet().
		WriteInfoJSON().
		LimitRate("1M").
		Impersonate("Chrome-100").
		SetExecutable(a.bin)

	if _, err := probe.Run(ctx, watchURL(videoID)); err != nil {
		return false, err
	}

	subPath, err := findSubtitleFile(a.downloadsDir, videoID)
	if err != nil {
		return false, err
	}

	if subPath != "" {
		update(func(j *job.Job) {
			j.Status = job.StatusDownloadedCaptions
			j.Progress.HadCaptions = true
		})

		if err := a.applyVideoMeta(videoID, update); err != nil {
			return false, err
		}

		if err := a.formatCaptions(subPath, scribePath); err != nil {
			return false, err
		}
		return true, nil
	}

	// No captions; download and extract the audio for transcription.
	update(func(j *job.Job) {
		j.Status = job.StatusDownloadingAudio
		j.Progress.HadCaptions = false
	})

	dl := ytdlp.New().
		Output(filepath.Join(a.downloadsDir, videoID+".%(ext)s")).
		ExtractAudio().
		AudioFormat(audioExt).
		ProgressFunc(250*time.Millisecond, func(up ytdlp.ProgressUpdate) {
			update(func(j *job.Job) {
				j.Progress.PercentageString = up.PercentString()

				if up.Status == "finished" {
					j.Status = job.StatusExtractingAudio
				}
			})
		}).
		Quiet().
		WriteInfoJSON().
		LimitRate("1M").
		SetExecutable(a.bin)

	if _, err := dl.Run(ctx, watchURL(videoID)); err != nil {
		return false, err
	}

	if err := a.applyVideoMeta(videoID, update); err != nil {
		return false, err
	}

	return false, nil
}

// formatCaptions converts the raw subtitle file into the segment artifact and
// removes the raw file.
func (a *MediaAcquirer) formatCaptions(subPath, scribePath string) error {
	segments, err := parseSubtitleFile(subPath)
	if err != nil {
		return err
	}

	if err := WriteSegments(scribePath, segments); err != nil {
		return err
	}

	return os.Remove(subPath)
}

// applyVideoMeta reads yt-dlp's info.json and publishes the video metadata
// onto the job.
func (a *MediaAcquirer) applyVideoMeta(videoID string, update job.MutateFunc) error {
	meta, err := readVideoMetaFromInfoJSON(a.downloadsDir, videoID)
	if err != nil {
		return fmt.Errorf("read info.json: %w", err)
	}

	update(func(j *job.Job) {
		j.Progress.VideoMeta = &meta
	})

	return nil
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// readVideoMetaFromInfoJSON loads <downloadsDir>/<videoID>.info.json produced
// by yt-dlp and maps the subset of fields we care about.
func readVideoMetaFromInfoJSON(baseDir, videoID string) (store.VideoMetaEntry, error) {
	path := filepath.Join(baseDir, videoID+".info.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return store.VideoMetaEntry{}, err
	}

	var info struct {
		ID         string  `json:"id"`
		Title      *string `json:"title"`
		Uploader   *string `json:"uploader"`
		Duration   *int64  `json:"duration"`
		UploadDate *string `json:"upload_date"` // "YYYYMMDD"
		Thumbnail  *string `json:"thumbnail"`
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	}

	if err := json.Unmarshal(data, &info); err != nil {
		return store.VideoMetaEntry{}, err
	}

	thumb := ""
	if info.Thumbnail != nil {
		thumb = *info.Thumbnail
	}
	if thumb == "" && len(info.Thumbnails) > 0 {
		thumb = info.Thumbnails[len(info.Thumbnails)-1].URL
	}

	upload := ""
	if info.UploadDate != nil {
		upload = formatYYYYMMDD(*info.UploadDate)
	}

	return store.VideoMetaEntry{
		VideoID:           info.ID,
		VideoThumbnailURL: thumb,
		VideoName:         deref(info.Title),
		CreatorName:       deref(info.Uploader),
		Length:            float64(derefInt(info.Duration)),
		UploadDate:        upload,
	}, nil
}

func formatYYYYMMDD(s string) string {
	if len(s) == 8 {
		return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
