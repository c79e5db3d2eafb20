package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseSink writes records as Server-Sent Events.
type sseSink struct {
	w http.ResponseWriter
}

func newSSESink(w http.ResponseWriter) sseSink {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return sseSink{w: w}
}

// Send writes one JSON encoded data event. The event id is the record
// position so clients can resume with a seek.
func (s sseSink) Send(rec recordResp) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d:%d\ndata: %s\n\n", rec.Partition, rec.Offset, b); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (s sseSink) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
