package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListVideos returns every persisted video metadata entry.
func (a *App) ListVideos(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Meta.ReadAll())
}

// GetVideo returns the persisted metadata for one video.
func (a *App) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	if !a.Meta.Exists(videoID) {
		http.NotFound(w, r)
		return
	}

	a.json(w, http.StatusOK, a.Meta.Read(videoID))
}
