package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventStream writes Server-Sent Events. Headers go out with the first event
// so that errors raised before any output can still use a plain status code.
type eventStream struct {
	w       http.ResponseWriter
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w}
}

func (s *eventStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
