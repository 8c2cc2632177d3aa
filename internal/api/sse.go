package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter streams Server-Sent Events with JSON payloads.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares w for SSE streaming and returns a writer, or an
// error if the ResponseWriter cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &sseWriter{w: w, flusher: flusher}, nil
}

// writeEvent sends one named event with a JSON payload. JSON contains
// no raw newlines, so a single data line is always well-formed.
func (s *sseWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("writing %s event: %w", event, err)
	}
	s.flusher.Flush()
	return nil
}

// writeError sends an error event. Write failures are ignored since
// they almost always mean the client is gone.
func (s *sseWriter) writeError(code, message string) {
	_ = s.writeEvent("error", errorBody{Code: code, Message: message})
}
