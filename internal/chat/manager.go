package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidsum/internal/job"
)

// Rejection reasons for Send.
var (
	ErrRoomBusy = errors.New("chat is busy processing another message")
	ErrNoRoom   = errors.New("chat room not found")
)

const personaPrompt = "You are a smart and chill person answering questions about the video. By default your response should be super short and concise UNLESS EXPLICITLY ASKED to do something that requires a lot more text"

// ManagerOptions configures the chat manager.
type ManagerOptions struct {
	Completer   Completer
	Transcripts *TranscriptStore
	// SummariesDir locates the summary Markdown fed to the model as context.
	SummariesDir string
	// PersistErrors controls whether a response produced only by an upstream
	// error is still appended to the transcript.
	PersistErrors bool
	Logger        zerolog.Logger
}

// Manager owns the chat rooms and their subscribers. Rooms are created
// lazily on the first subscriber and removed once the last subscriber leaves
// and no response is in flight.
type Manager struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	clients map[string]*Client

	completer     Completer
	transcripts   *TranscriptStore
	summariesDir  string
	persistErrors bool
	log           zerolog.Logger
}

// NewManager builds an empty chat manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		rooms:         make(map[string]*Room),
		clients:       make(map[string]*Client),
		completer:     opts.Completer,
		transcripts:   opts.Transcripts,
		summariesDir:  opts.SummariesDir,
		persistErrors: opts.PersistErrors,
		log:           opts.Logger,
	}
}

// Transcripts exposes the transcript store for the read-only history
// endpoint.
func (m *Manager) Transcripts() *TranscriptStore {
	return m.transcripts
}

// Subscribe registers a sink for a video's room, creating the room if needed,
// and writes the init event carrying a snapshot of the room.
func (m *Manager) Subscribe(sink job.Sink, videoID string) (string, error) {
	m.mu.Lock()

	id := uuid.NewString()
	m.clients[id] = &Client{
		ListeningTo: videoID,
		Sink:        sink,
	}

	room, ok := m.rooms[videoID]
	if !ok {
		room = &Room{VideoID: videoID}
		m.rooms[videoID] = room
	}
	room.NumListeners++

	snapshot := room.snapshot()
	m.mu.Unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	if _, err := fmt.Fprintf(sink, "event: init\ndata: %s\n\n", payload); err != nil {
		return "", err
	}
	sink.Flush()

	return id, nil
}

// Unsubscribe removes a client. The room goes away once it has no listeners
// and no in-flight response; a busy room lingers until its worker completes.
func (m *Manager) Unsubscribe(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return fmt.Errorf("client %q could not be found", clientID)
	}

	videoID := c.ListeningTo
	delete(m.clients, clientID)

	room, ok := m.rooms[videoID]
	if !ok {
		return nil
	}

	if room.NumListeners > 0 {
		room.NumListeners--
	}
	if room.NumListeners == 0 {
		room.mu.Lock()
		busy := room.IsBusy
		room.mu.Unlock()
		if !busy {
			delete(m.rooms, videoID)
		}
	}

	return nil
}

// Send starts a response for a video's room. The busy test-and-set is atomic
// with respect to concurrent Send calls on the same room: exactly one caller
// wins, the rest get ErrRoomBusy.
func (m *Manager) Send(videoID, message string) error {
	m.mu.Lock()
	room, ok := m.rooms[videoID]
	if !ok {
		m.mu.Unlock()
		return ErrNoRoom
	}

	room.mu.Lock()
	if room.IsBusy {
		room.mu.Unlock()
		m.mu.Unlock()
		return ErrRoomBusy
	}
	room.IsBusy = true
	room.InProgressRequest = message
	room.InProgressResponse = ""
	room.mu.Unlock()
	m.mu.Unlock()

	m.broadcastUpdate(videoID)

	go m.respond(room, videoID, message)

	return nil
}

// respond drives one language-model request to completion. Subscriber
// disconnects never abort it: the transcript must reflect every accepted
// message.
func (m *Manager) respond(room *Room, videoID, message string) {
	streamErr := m.stream(room, videoID, message)

	// Completion is observable only after the final token's update.
	m.broadcastComplete(videoID)

	room.mu.Lock()
	finalResponse := room.InProgressResponse
	room.mu.Unlock()

	if finalResponse != "" && (streamErr == nil || m.persistErrors) {
		if err := m.transcripts.Append(videoID, message, finalResponse); err != nil {
			m.log.Error().Err(err).Str("video_id", videoID).Msg("transcript append failed")
		}
	}

	room.mu.Lock()
	room.IsBusy = false
	room.InProgressRequest = ""
	room.InProgressResponse = ""
	room.mu.Unlock()

	m.broadcastUpdate(videoID)

	// The last listener may have left mid-response; the room was kept alive
	// for the transcript and can go now.
	m.mu.Lock()
	if current, ok := m.rooms[videoID]; ok && current == room && room.NumListeners == 0 {
		delete(m.rooms, videoID)
	}
	m.mu.Unlock()
}

func (m *Manager) stream(room *Room, videoID, message string) error {
	messages, err := m.buildMessages(videoID, message)
	if err == nil {
		onToken := func(token string) {
			room.mu.Lock()
			room.InProgressResponse += token
			room.mu.Unlock()
			m.broadcastUpdate(videoID)
		}
		err = m.completer.StreamChat(context.Background(), messages, onToken)
	}

	if err != nil {
		m.log.Error().Err(err).Str("video_id", videoID).Msg("chat upstream failed")
		room.mu.Lock()
		room.InProgressResponse = fmt.Sprintf("Error: %s", err.Error())
		room.mu.Unlock()
		m.broadcastUpdate(videoID)
	}

	return err
}

// buildMessages assembles the model request: persona, the video summary when
// one exists, the persisted transcript as prior turns, then the new message.
func (m *Manager) buildMessages(videoID, message string) ([]Message, error) {
	history, err := m.transcripts.Load(videoID)
	if err != nil {
		return nil, err
	}

	summary, err := m.loadSummary(videoID)
	if err != nil {
		return nil, err
	}

	messages := []Message{
		{
			Content: personaPrompt,
			Role:    "system",
		},
	}

	if summary != "" {
		messages = append(messages, Message{
			Content: "Here is the summary of the video:\n\n" + summary,
			Role:    "system",
		})
	}

	messages = append(messages, history...)
	messages = append(messages, Message{
		Content: message,
		Role:    "user",
	})

	return messages, nil
}

func (m *Manager) loadSummary(videoID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.summariesDir, videoID+".md"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Manager) broadcastUpdate(videoID string) {
	m.mu.Lock()
	room, ok := m.rooms[videoID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := room.snapshot()
	m.mu.Unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}

	m.writeToListeners(videoID, fmt.Sprintf("event: update\ndata: %s\n\n", payload))
}

func (m *Manager) broadcastComplete(videoID string) {
	m.writeToListeners(videoID, "event: complete\ndata: {}\n\n")
}

func (m *Manager) writeToListeners(videoID, frame string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		if client.ListeningTo != videoID {
			continue
		}
		if _, err := fmt.Fprint(client.Sink, frame); err != nil {
			m.log.Warn().Err(err).Str("subscriber", id).Msg("dropped chat event write")
			continue
		}
		client.Sink.Flush()
	}
}
