package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vidsum/internal/http/handlers"
	"vidsum/internal/middleware"
)

func NewRouter(app *handlers.App, log zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS([]string{"*"}))

	// One shared limiter for the mutating endpoints; the read and stream
	// endpoints stay unthrottled.
	perMin := 60
	if app.Cfg != nil && app.Cfg.RateLimitPerMin > 0 {
		perMin = app.Cfg.RateLimitPerMin
	}
	limit := middleware.Throttle(perMin)

	r.Get("/healthz", app.Health)

	r.Route("/summarize", func(r chi.Router) {
		// Static path wins over the id parameter below.
		r.Get("/jobs/subscribe", app.JobsSubscribe)

		r.With(limit).Post("/{videoID}", app.EnqueueSummarize)
		r.Get("/{videoID}", app.GetJob)
	})

	r.Get("/summaries/{videoID}", app.GetSummary)

	r.Get("/videos", app.ListVideos)
	r.Get("/videos/{videoID}", app.GetVideo)

	r.Route("/chat/{videoID}", func(r chi.Router) {
		r.Get("/", app.GetChatHistory)
		r.With(limit).Post("/send", app.SendChat)
		r.Get("/subscribe", app.ChatSubscribe)
	})

	return r
}
