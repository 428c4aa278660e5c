package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"vidsum/internal/chat"
	"vidsum/internal/infra"
	"vidsum/internal/job"
	"vidsum/internal/pipeline"
	"vidsum/internal/store"
)

// App carries the wired core components into the HTTP handlers.
type App struct {
	Cfg      *infra.Config
	Log      zerolog.Logger
	Registry *job.Registry
	Hub      *job.Hub
	Pipeline *pipeline.Pipeline
	Chat     *chat.Manager
	Meta     *store.MetaStore
}

// NewApp builds the handler container.
func NewApp(cfg *infra.Config, log zerolog.Logger, reg *job.Registry, hub *job.Hub, pipe *pipeline.Pipeline, chatMgr *chat.Manager, meta *store.MetaStore) *App {
	return &App{
		Cfg:      cfg,
		Log:      log,
		Registry: reg,
		Hub:      hub,
		Pipeline: pipe,
		Chat:     chatMgr,
		Meta:     meta,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
