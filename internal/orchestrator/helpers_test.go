package orchestrator

import (
	"context"
	"sync"

	"github.com/llmwire/llmwire/internal/convert"
	"github.com/llmwire/llmwire/internal/metrics"
)

// recordingSink captures every finalization for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []metrics.Record
}

func (s *recordingSink) Finalize(_ context.Context, rec metrics.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// collectingWriter gathers relayed frames.
type collectingWriter struct {
	frames []convert.Frame
}

func (w *collectingWriter) WriteFrame(f convert.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}
