package gateway

import (
	"net/http"

	"github.com/llmwire/llmwire/internal/convert"
)

// sseWriter renders frames as server-sent events, flushing after each one
// so the client sees tokens as they arrive.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) WriteFrame(f convert.Frame) error {
	if f.Done {
		if _, err := s.w.Write([]byte("data: [DONE]\n\n")); err != nil {
			return err
		}
		s.flusher.Flush()
		return nil
	}
	if f.Event != "" {
		if _, err := s.w.Write([]byte("event: " + f.Event + "\n")); err != nil {
			return err
		}
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(f.Data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
