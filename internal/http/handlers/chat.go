package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidsum/internal/chat"
)

// GetChatHistory serves the persisted transcript for a video; [] if none.
func (a *App) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	data, err := a.Chat.Transcripts().Raw(videoID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load chat history")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type sendChatRequest struct {
	Message string `json:"message"`
}

// SendChat starts a streamed response in the video's room.
func (a *App) SendChat(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	var req sendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	if err := a.Chat.Send(videoID, req.Message); err != nil {
		if errors.Is(err, chat.ErrRoomBusy) || errors.Is(err, chat.ErrNoRoom) {
			a.error(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ChatSubscribe opens a long-lived event stream for one video's room.
func (a *App) ChatSubscribe(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	writeSSEHeaders(w)

	id, err := a.Chat.Subscribe(newSSESink(w), videoID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	defer func() {
		_ = a.Chat.Unsubscribe(id)
	}()

	<-r.Context().Done()
}
