package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter serializes named server-sent events onto one response. The
// caller must have set the event-stream headers before the first write.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return sseWriter{}, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return sseWriter{w: w, flusher: flusher}, true
}

func (s sseWriter) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
