package orchestrator

import (
	"context"
	"io"
	"time"

	"github.com/llmwire/llmwire/internal/convert"
	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/metrics"
	"github.com/llmwire/llmwire/internal/relay"
	"github.com/llmwire/llmwire/internal/upstream"
)

// StreamSession is an accepted streaming request: the upstream connection is
// open and the first byte has not yet been relayed. The caller must invoke
// Run exactly once; finalization from then on is the relay's responsibility.
type StreamSession struct {
	Model domain.ResolvedModel

	relay    *relay.Relay
	upstream io.ReadCloser
}

// Run relays the stream to the client.
func (s *StreamSession) Run(ctx context.Context, w relay.FrameWriter) error {
	return s.relay.Run(ctx, s.upstream, w)
}

// ExecuteStream serves a streaming request up to the point where the
// upstream stream is open. Errors before that point are finalized here;
// everything after is finalized by the returned session's relay.
func (o *Orchestrator) ExecuteStream(ctx context.Context, req *Request) (*StreamSession, error) {
	start := time.Now()

	rm, provider, upstreamBody, err := o.prepare(req, true)
	if err != nil {
		o.finalizeStreamSetupError(ctx, req, rm, start, err)
		return nil, err
	}

	var stream io.ReadCloser
	err = o.withKeys(ctx, provider, req.ClientKey, func(key string) error {
		s, aerr := o.client.Stream(ctx, &upstream.Attempt{
			Provider:  provider,
			APIKey:    key,
			Body:      upstreamBody,
			UserAgent: req.UserAgent,
		})
		if aerr != nil {
			return aerr
		}
		stream = s
		return nil
	})
	if err != nil {
		err = o.surface(provider, err)
		o.finalizeStreamSetupError(ctx, req, rm, start, err)
		return nil, err
	}

	conv := convert.NewStreamConverter(provider.WireFormat, req.Format, requestedModel(req), req.ID)

	finalizer := func(outcome domain.Outcome, usage domain.Usage, finishReason string, rerr error) {
		rec := metrics.Record{
			RequestID:      req.ID,
			Provider:       rm.Provider,
			Model:          rm.Model,
			RequestedModel: requestedModel(req),
			Outcome:        outcome,
			Streamed:       true,
			Usage:          usage,
			Duration:       time.Since(start),
		}
		if rerr != nil && outcome == domain.OutcomeError {
			apiErr := domain.AsAPIError(rerr)
			rec.ErrorKind = string(apiErr.Code)
			if rec.ErrorKind == "" {
				rec.ErrorKind = string(apiErr.Type)
			}
		}
		o.sink.Finalize(context.WithoutCancel(ctx), rec)
	}

	opts := []relay.Option{relay.WithLogger(o.logger)}
	if o.estimator != nil {
		model := rm.Model
		opts = append(opts, relay.WithOutputEstimator(func(text string) int {
			return o.estimator.Count(model, text)
		}))
	}

	return &StreamSession{
		Model:    rm,
		relay:    relay.New(conv, finalizer, opts...),
		upstream: stream,
	}, nil
}

func (o *Orchestrator) finalizeStreamSetupError(ctx context.Context, req *Request, rm domain.ResolvedModel, start time.Time, err error) {
	rec := metrics.Record{
		RequestID: req.ID,
		Provider:  rm.Provider,
		Model:     rm.Model,
		Streamed:  true,
	}
	o.fail(&rec, req, rm, err)
	rec.Duration = time.Since(start)
	o.sink.Finalize(context.WithoutCancel(ctx), rec)
}
