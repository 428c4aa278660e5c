package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures the Groq API client.
type Options struct {
	APIKey  string
	BaseURL string

	TranscriptionModel string
	SummarizationModel string
	ChatModel          string

	// HTTPClient overrides the default client; streaming calls require one
	// without a global timeout.
	HTTPClient *http.Client
}

// Client talks to the Groq OpenAI-compatible API: audio transcription, chat
// completions, and streamed chat completions.
type Client struct {
	apiKey  string
	baseURL string

	transcriptionModel string
	summarizationModel string
	chatModel          string

	client *http.Client
}

const defaultBaseURL = "https://api.groq.com/openai/v1"

// ChatMessage is one turn of a chat-completions conversation.
type ChatMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// TranscriptionSegment is one timed span of transcribed speech.
type TranscriptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriptionResponse struct {
	Segments []TranscriptionSegment `json:"segments"`
}

type chatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Model    string        `json:"model"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// New validates the options and builds a client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("groq api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{
		apiKey:             strings.TrimSpace(opts.APIKey),
		baseURL:            baseURL,
		transcriptionModel: opts.TranscriptionModel,
		summarizationModel: opts.SummarizationModel,
		chatModel:          opts.ChatModel,
		client:             client,
	}, nil
}

// Transcribe uploads one audio file and returns its timed segments. The
// prompt carries prior context into the decoder and may be empty.
func (c *Client) Transcribe(ctx context.Context, filePath, prompt string) ([]TranscriptionSegment, error) {
	audioFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer audioFile.Close()

	reqBody := &bytes.Buffer{}
	writer := multipart.NewWriter(reqBody)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return nil, err
	}

	fields := []struct{ key, value string }{
		{"model", c.transcriptionModel},
		{"language", "en"},
		{"response_format", "verbose_json"},
		{"prompt", prompt},
		{"timestamp_granularities[]", "segment"},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/audio/transcriptions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("groq transcription status %d", resp.StatusCode)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// Complete performs a non-streaming chat completion and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	if model == "" {
		model = c.summarizationModel
	}
	payload := chatRequest{
		Messages: messages,
		Model:    model,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("groq chat status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// SummarizationModel exposes the configured summarization model name.
func (c *Client) SummarizationModel() string { return c.summarizationModel }

// StreamChat performs a streaming chat completion with the configured chat
// model, invoking onToken for every content delta as it arrives.
func (c *Client) StreamChat(ctx context.Context, messages []ChatMessage, onToken func(token string)) error {
	payload := chatRequest{
		Messages: messages,
		Model:    c.chatModel,
		Stream:   true,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("groq chat status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if strings.Contains(line, "[DONE]") {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			// Malformed chunks are skipped; the stream self-heals at the
			// next frame boundary.
			continue
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onToken(chunk.Choices[0].Delta.Content)
		}
	}

	return scanner.Err()
}
