package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"vidsum/internal/job"
)

// EnqueueSummarize deposits a video id into the pipeline's intake queue.
func (a *App) EnqueueSummarize(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	if !a.Pipeline.TryEnqueue(videoID) {
		a.error(w, http.StatusTooManyRequests, "busy", "intake queue full, retry later")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetJob returns the current job record for a video.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	j := a.Registry.Get(videoID)
	if j == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	a.json(w, http.StatusOK, j.Snapshot())
}

type summaryResponse struct {
	NoSummaryReason string `json:"no_summary_reason"`
	Summary         string `json:"summary"`
}

// GetSummary serves the finished summary Markdown, or the reason it is not
// available yet.
func (a *App) GetSummary(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	location := filepath.Join(a.Cfg.SummariesDir(), videoID+".md")

	if j := a.Registry.Get(videoID); j != nil && j.GetStatus() != job.StatusFinished {
		a.json(w, http.StatusOK, summaryResponse{NoSummaryReason: "in_progress"})
		return
	}

	if _, err := os.Stat(location); errors.Is(err, os.ErrNotExist) {
		a.json(w, http.StatusOK, summaryResponse{NoSummaryReason: "not_found"})
		return
	}

	b, err := os.ReadFile(location)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	a.json(w, http.StatusOK, summaryResponse{Summary: string(b)})
}
