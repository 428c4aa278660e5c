package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv     string
	Port       string
	ContentDir string

	YTDLPBin  string
	FFmpegBin string

	GroqAPIKey         string
	GroqBaseURL        string
	TranscriptionModel string
	SummarizationModel string
	ChatModel          string

	// When false, a chat response produced only by an upstream error is not
	// appended to the persistent transcript.
	ChatPersistErrors bool

	HTTPReadTimeout time.Duration
	HTTPIdleTimeout time.Duration
	RateLimitPerMin int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8010"),
		ContentDir:         getEnv("CONTENT_DIR", "./content"),
		YTDLPBin:           os.Getenv("YTDLP_BIN"),
		FFmpegBin:          getEnv("FFMPEG_BIN", "ffmpeg"),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-large-v3-turbo"),
		SummarizationModel: getEnv("SUMMARIZATION_MODEL", "openai/gpt-oss-120b"),
		ChatModel:          getEnv("CHAT_MODEL", "moonshotai/kimi-k2-instruct"),
		ChatPersistErrors:  getEnvBool("CHAT_PERSIST_ERRORS", true),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.YTDLPBin == "" {
		return nil, fmt.Errorf("YTDLP_BIN is required")
	}

	if cfg.GroqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY is required")
	}

	return cfg, nil
}

// MetaStorePath is the location of the video metadata document.
func (c *Config) MetaStorePath() string {
	return filepath.Join(c.ContentDir, "db.json")
}

// DownloadsDir holds audio files, subtitle files and yt-dlp info.json output.
func (c *Config) DownloadsDir() string {
	return filepath.Join(c.ContentDir, "downloads")
}

// TranscriptionsDir holds merged segment lists, one JSON file per video.
func (c *Config) TranscriptionsDir() string {
	return filepath.Join(c.ContentDir, "transcriptions")
}

// SummariesDir holds finished Markdown summaries.
func (c *Config) SummariesDir() string {
	return filepath.Join(c.ContentDir, "summaries")
}

// ChatsDir holds per-video chat transcripts.
func (c *Config) ChatsDir() string {
	return filepath.Join(c.ContentDir, "chats")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
