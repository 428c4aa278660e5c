package job

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types carried on the jobs stream.
const (
	EventInit   = "init"
	EventNew    = "new"
	EventUpdate = "update"
)

// Sink is where a subscriber's frames go. Subscribers are sinks, nothing
// more; delivery is best-effort within a live connection.
type Sink interface {
	Write(p []byte) (n int, err error)
	Flush()
}

type hubCommand struct {
	kind string // "subscribe" | "unsubscribe" | "broadcast" | "forget"

	id   string
	sink Sink
	done chan struct{}

	event   string
	videoID string
	payload json.RawMessage
}

// Hub fans job events out to every subscriber. A single dispatcher goroutine
// owns the subscriber set and a materialized last-payload view per job, so
// the init snapshot and all later frames form one totally ordered sequence
// per subscriber.
type Hub struct {
	commands chan hubCommand
	log      zerolog.Logger
}

// NewHub creates the hub and starts its dispatcher.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		commands: make(chan hubCommand, 1024),
		log:      log,
	}
	go h.run()
	return h
}

// Subscribe registers a sink and writes the init event carrying a snapshot of
// every known job. It returns once the init frame has been written.
func (h *Hub) Subscribe(sink Sink) string {
	id := uuid.NewString()
	done := make(chan struct{})
	h.commands <- hubCommand{kind: "subscribe", id: id, sink: sink, done: done}
	<-done
	return id
}

// Unsubscribe removes a subscriber. It returns only after the dispatcher has
// dropped the sink, so the caller's connection can be released safely. Safe
// to call for an already-removed id.
func (h *Hub) Unsubscribe(id string) {
	done := make(chan struct{})
	h.commands <- hubCommand{kind: "unsubscribe", id: id, done: done}
	<-done
}

// Broadcast queues one framed event for every subscriber. Callers invoke this
// while holding the job's lock; the dispatcher preserves arrival order, so
// per-job event order equals mutation order.
func (h *Hub) Broadcast(event, videoID string, payload json.RawMessage) {
	h.commands <- hubCommand{kind: "broadcast", event: event, videoID: videoID, payload: payload}
}

// Forget drops a job from the init snapshot after registry deletion. No frame
// is emitted.
func (h *Hub) Forget(videoID string) {
	h.commands <- hubCommand{kind: "forget", videoID: videoID}
}

func (h *Hub) run() {
	sinks := make(map[string]Sink)
	latest := make(map[string]json.RawMessage)

	for cmd := range h.commands {
		switch cmd.kind {
		case "subscribe":
			sinks[cmd.id] = cmd.sink
			h.writeEvent(cmd.id, cmd.sink, EventInit, marshalSnapshot(latest))
			close(cmd.done)

		case "unsubscribe":
			delete(sinks, cmd.id)
			close(cmd.done)

		case "broadcast":
			latest[cmd.videoID] = cmd.payload
			for id, sink := range sinks {
				h.writeEvent(id, sink, cmd.event, cmd.payload)
			}

		case "forget":
			delete(latest, cmd.videoID)
		}
	}
}

// writeEvent writes one framed event and flushes. A failed write is logged;
// the subscriber stays registered until its unsubscribe arrives.
func (h *Hub) writeEvent(id string, sink Sink, event string, payload []byte) {
	frame := fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)
	if _, err := fmt.Fprint(sink, frame); err != nil {
		h.log.Warn().Err(err).Str("subscriber", id).Msg("dropped event write")
		return
	}
	sink.Flush()
}

func marshalSnapshot(latest map[string]json.RawMessage) []byte {
	b, err := json.Marshal(latest)
	if err != nil {
		return []byte("{}")
	}
	return b
}
