package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

/*
Data stream framing, one frame per line:

	0:"token text"          text part
	2:[{"context":{...}}]   data part
	3:"error message"       error part

Browser chat clients built on the AI SDK read this format directly.
*/

const (
	frameText  = "0"
	frameData  = "2"
	frameError = "3"
)

// DataStreamWriter writes a chat turn to an HTTP response as data stream frames
type DataStreamWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

// NewDataStreamWriter wraps a response writer
func NewDataStreamWriter(w http.ResponseWriter) *DataStreamWriter {
	flusher, _ := w.(http.Flusher)
	return &DataStreamWriter{w: w, flusher: flusher}
}

func (s *DataStreamWriter) Token(token string) error {
	return s.frame(frameText, token)
}

func (s *DataStreamWriter) Data(payload any) error {
	return s.frame(frameData, []any{payload})
}

func (s *DataStreamWriter) Error(err error) error {
	return s.frame(frameError, err.Error())
}

// Close flushes the response; later writes fail
func (s *DataStreamWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.start()
	s.closed = true
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *DataStreamWriter) frame(kind string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode stream frame: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "%s:%s\n", kind, body); err != nil {
		return fmt.Errorf("failed to write stream frame: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *DataStreamWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	h.Set("Cache-Control", "no-cache")
	s.w.WriteHeader(http.StatusOK)
}
