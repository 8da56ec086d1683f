// Package relay pumps an upstream event stream through a protocol converter
// to the client, guaranteeing that the stream is finalized exactly once no
// matter how it ends: clean termination, upstream failure, decode failure,
// or client disconnect. Finalization is where usage accounting is recorded,
// so double-counting or dropping it corrupts the books.
package relay

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/llmwire/llmwire/internal/convert"
	"github.com/llmwire/llmwire/internal/domain"
)

// scanner buffer sizing: single SSE lines can carry whole tool arguments.
const (
	initialBufSize = 64 * 1024
	maxBufSize     = 1024 * 1024
)

// FrameWriter delivers converted frames to the client. A returned error
// means the client is gone.
type FrameWriter interface {
	WriteFrame(f convert.Frame) error
}

// Finalizer receives the stream's single closing record.
type Finalizer func(outcome domain.Outcome, usage domain.Usage, finishReason string, err error)

// Option configures a relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithOutputEstimator supplies a token estimator used when the upstream
// stream ends without reporting output usage.
func WithOutputEstimator(estimate func(text string) int) Option {
	return func(r *Relay) { r.estimate = estimate }
}

// Relay drives one streaming response.
type Relay struct {
	conv     convert.StreamConverter
	finalize Finalizer
	estimate func(text string) int
	logger   *slog.Logger

	once sync.Once
}

// New creates a relay around a converter. finalizer must not be nil.
func New(conv convert.StreamConverter, finalizer Finalizer, opts ...Option) *Relay {
	r := &Relay{
		conv:     conv,
		finalize: finalizer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads the upstream stream until it ends, converting and forwarding
// every event. It always closes the upstream body and always finalizes,
// exactly once. The returned error describes why the relay stopped early;
// a clean stream returns nil.
func (r *Relay) Run(ctx context.Context, upstream io.ReadCloser, w FrameWriter) error {
	defer upstream.Close()

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, initialBufSize), maxBufSize)

	var currentEvent string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			currentEvent = name
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		// The openai protocol closes with a sentinel rather than a typed
		// terminal event.
		if data == "[DONE]" {
			break
		}

		frames, err := r.conv.ApplyDelta(currentEvent, []byte(data))
		if err != nil {
			r.logger.Warn("stream conversion failed", slog.String("error", err.Error()))
			r.writeFrames(w, r.conv.Finish())
			r.done(domain.OutcomeError, err)
			return err
		}
		if werr := r.writeFrames(w, frames); werr != nil {
			r.done(domain.OutcomeDisconnected, werr)
			return werr
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			// The read failed because the client went away and its context
			// tore down the upstream request.
			r.done(domain.OutcomeDisconnected, ctx.Err())
			return ctx.Err()
		}
		// Abrupt upstream end. The client still gets a well-formed
		// termination from Finish, and usage falls back to estimation.
		r.logger.Warn("upstream stream ended abruptly", slog.String("error", err.Error()))
	}

	if werr := r.writeFrames(w, r.conv.Finish()); werr != nil {
		r.done(domain.OutcomeDisconnected, werr)
		return werr
	}
	r.done(domain.OutcomeSuccess, nil)
	return nil
}

func (r *Relay) writeFrames(w FrameWriter, frames []convert.Frame) error {
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) done(outcome domain.Outcome, err error) {
	r.once.Do(func() {
		usage := r.conv.Usage()
		if usage.OutputTokens == 0 && r.estimate != nil {
			if text := r.conv.AccumulatedText(); text != "" {
				usage.OutputTokens = r.estimate(text)
			}
		}
		r.finalize(outcome, usage, r.conv.FinishReason(), err)
	})
}
