package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidsum/internal/chat"
	"vidsum/internal/groq"
	"vidsum/internal/http/handlers"
	"vidsum/internal/http/httpapi"
	"vidsum/internal/infra"
	"vidsum/internal/job"
	"vidsum/internal/media"
	"vidsum/internal/pipeline"
	"vidsum/internal/store"
)

func main() {
	// .env is optional outside development.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	for _, dir := range []string{cfg.DownloadsDir(), cfg.TranscriptionsDir(), cfg.SummariesDir(), cfg.ChatsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("failed to create content dir")
		}
	}

	meta, err := store.Open(cfg.MetaStorePath(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open metadata store")
	}

	groqClient, err := groq.New(groq.Options{
		APIKey:             cfg.GroqAPIKey,
		BaseURL:            cfg.GroqBaseURL,
		TranscriptionModel: cfg.TranscriptionModel,
		SummarizationModel: cfg.SummarizationModel,
		ChatModel:          cfg.ChatModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build groq client")
	}

	hub := job.NewHub(logger)
	registry := job.NewRegistry(hub, meta, logger)

	pipe := pipeline.New(registry, meta, pipeline.Adapters{
		Acquire: media.NewAcquirer(media.AcquirerOptions{
			YTDLPBin:          cfg.YTDLPBin,
			DownloadsDir:      cfg.DownloadsDir(),
			TranscriptionsDir: cfg.TranscriptionsDir(),
			Logger:            logger,
		}),
		Transcribe: media.NewTranscriber(media.TranscriberOptions{
			FFmpegBin:         cfg.FFmpegBin,
			DownloadsDir:      cfg.DownloadsDir(),
			TranscriptionsDir: cfg.TranscriptionsDir(),
			Client:            groqClient,
			Logger:            logger,
		}),
		Summarize: media.NewSummarizer(media.SummarizerOptions{
			TranscriptionsDir: cfg.TranscriptionsDir(),
			SummariesDir:      cfg.SummariesDir(),
			Client:            groqClient,
			Logger:            logger,
		}),
	}, logger)
	pipe.Start()

	chatMgr := chat.NewManager(chat.ManagerOptions{
		Completer:     groqClient,
		Transcripts:   chat.NewTranscriptStore(cfg.ChatsDir()),
		SummariesDir:  cfg.SummariesDir(),
		PersistErrors: cfg.ChatPersistErrors,
		Logger:        logger,
	})

	app := handlers.NewApp(cfg, logger, registry, hub, pipe, chatMgr, meta)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
