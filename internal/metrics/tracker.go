// Package metrics records the single finalization event of each request:
// a structured log line and, when a store is attached, a durable usage row.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/storage/sqlite"
)

// Record is the closing summary of one request.
type Record struct {
	RequestID      string
	Provider       string
	Model          string
	RequestedModel string
	Outcome        domain.Outcome
	ErrorKind      string
	Streamed       bool
	Usage          domain.Usage
	Duration       time.Duration
}

// Sink accepts finalization records.
type Sink interface {
	Finalize(ctx context.Context, rec Record)
}

// Option configures the tracker.
type Option func(*Tracker)

// WithStore attaches a durable usage store.
func WithStore(store *sqlite.Store) Option {
	return func(t *Tracker) { t.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// Tracker is the standard Sink. It also counts in-flight requests.
type Tracker struct {
	store    *sqlite.Store
	logger   *slog.Logger
	inflight atomic.Int64
}

// New creates a tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin marks a request as in flight and returns its release function.
func (t *Tracker) Begin() func() {
	t.inflight.Add(1)
	return func() { t.inflight.Add(-1) }
}

// InFlight reports the number of requests currently being served.
func (t *Tracker) InFlight() int64 { return t.inflight.Load() }

// Finalize records the request's closing summary. Storage failures are
// logged, not propagated: the response already went out.
func (t *Tracker) Finalize(ctx context.Context, rec Record) {
	t.logger.Info("request finalized",
		slog.String("request_id", rec.RequestID),
		slog.String("provider", rec.Provider),
		slog.String("model", rec.Model),
		slog.String("outcome", string(rec.Outcome)),
		slog.String("error_kind", rec.ErrorKind),
		slog.Bool("streamed", rec.Streamed),
		slog.Int("input_tokens", rec.Usage.InputTokens),
		slog.Int("output_tokens", rec.Usage.OutputTokens),
		slog.Duration("duration", rec.Duration),
	)

	if t.store == nil {
		return
	}
	err := t.store.Insert(ctx, sqlite.UsageRecord{
		RequestID:                rec.RequestID,
		Provider:                 rec.Provider,
		Model:                    rec.Model,
		RequestedModel:           rec.RequestedModel,
		Outcome:                  string(rec.Outcome),
		ErrorKind:                rec.ErrorKind,
		Streamed:                 rec.Streamed,
		InputTokens:              rec.Usage.InputTokens,
		OutputTokens:             rec.Usage.OutputTokens,
		CacheReadInputTokens:     rec.Usage.CacheReadInputTokens,
		CacheCreationInputTokens: rec.Usage.CacheCreationInputTokens,
		Duration:                 rec.Duration,
	})
	if err != nil {
		t.logger.Error("failed to persist usage record",
			slog.String("request_id", rec.RequestID),
			slog.String("error", err.Error()))
	}
}

// Nop discards every record. Used in tests.
type Nop struct{}

// Finalize does nothing.
func (Nop) Finalize(context.Context, Record) {}
