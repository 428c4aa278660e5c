package handlers

import "net/http"

// sseSink adapts a ResponseWriter to the subscriber sink contract.
type sseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s *sseSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *sseSink) Flush() {
	if s.f != nil {
		s.f.Flush()
	}
}

func newSSESink(w http.ResponseWriter) *sseSink {
	f, _ := w.(http.Flusher)
	return &sseSink{w: w, f: f}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// JobsSubscribe opens a long-lived event stream of job updates. The first
// frame is an init snapshot of every job.
func (a *App) JobsSubscribe(w http.ResponseWriter, r *http.Request) {
	writeSSEHeaders(w)

	id := a.Hub.Subscribe(newSSESink(w))
	defer a.Hub.Unsubscribe(id)

	// Keep the connection open until the client disconnects.
	<-r.Context().Done()
}
