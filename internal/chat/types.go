package chat

import (
	"context"
	"sync"

	"vidsum/internal/groq"
	"vidsum/internal/job"
)

// Message is one transcript turn. It shares the wire shape of the upstream
// chat API, so transcripts replay directly as prior turns.
type Message = groq.ChatMessage

// Room coordinates the chat for one video: at most one request in flight,
// with the partial response visible to every listener.
type Room struct {
	VideoID string `json:"video_id"`
	IsBusy  bool   `json:"is_busy"`

	InProgressRequest  string `json:"request"`
	InProgressResponse string `json:"response"`

	// Guarded by the manager's lock, not the room's.
	NumListeners int `json:"-"`

	mu sync.Mutex
}

// snapshot copies the room for lock-free transmission.
func (r *Room) snapshot() Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Room{
		VideoID:            r.VideoID,
		IsBusy:             r.IsBusy,
		InProgressRequest:  r.InProgressRequest,
		InProgressResponse: r.InProgressResponse,
	}
}

// Client is a subscriber of one room's event stream.
type Client struct {
	ListeningTo string
	Sink        job.Sink
}

// Completer streams a chat completion, invoking onToken per content delta.
// Satisfied by the Groq client.
type Completer interface {
	StreamChat(ctx context.Context, messages []Message, onToken func(token string)) error
}
