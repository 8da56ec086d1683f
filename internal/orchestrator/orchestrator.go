// Package orchestrator drives a request through its lifecycle: resolve the
// model, select the provider and key, dispatch upstream with retry and key
// rotation, convert the response, and finalize accounting exactly once.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/convert"
	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/keyring"
	"github.com/llmwire/llmwire/internal/metrics"
	"github.com/llmwire/llmwire/internal/registry"
	"github.com/llmwire/llmwire/internal/resolver"
	"github.com/llmwire/llmwire/internal/tokens"
	"github.com/llmwire/llmwire/internal/upstream"
)

// Request is one inbound completion request, already read off the wire.
type Request struct {
	// ID is the gateway-assigned request identifier.
	ID string

	// Format is the protocol the client spoke.
	Format domain.WireFormat

	// Body is the raw request JSON.
	Body []byte

	// ClientKey is the credential the client presented, used for
	// passthrough providers.
	ClientKey string

	// UserAgent is forwarded upstream when set.
	UserAgent string
}

// Completion is a finished non-streaming response in the client's protocol.
type Completion struct {
	Body  []byte
	Model domain.ResolvedModel
	Usage domain.Usage
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithSink sets the finalization sink.
func WithSink(sink metrics.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithEstimator sets the token estimator used when streams end without
// usage.
func WithEstimator(est *tokens.Estimator) Option {
	return func(o *Orchestrator) { o.estimator = est }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// Orchestrator coordinates one request end to end.
type Orchestrator struct {
	registry  *registry.Registry
	resolver  *resolver.Resolver
	ring      *keyring.Ring
	client    *upstream.Client
	sink      metrics.Sink
	estimator *tokens.Estimator
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(reg *registry.Registry, res *resolver.Resolver, client *upstream.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		resolver: res,
		ring:     keyring.New(),
		client:   client,
		sink:     metrics.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute serves a non-streaming request. Finalization happens exactly once
// before it returns, on success and on every error path.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Completion, error) {
	start := time.Now()

	rec := metrics.Record{RequestID: req.ID}
	defer func() {
		rec.Duration = time.Since(start)
		o.sink.Finalize(context.WithoutCancel(ctx), rec)
	}()

	rm, provider, upstreamBody, err := o.prepare(req, false)
	if err != nil {
		o.fail(&rec, req, rm, err)
		return nil, err
	}
	rec.Provider = rm.Provider
	rec.Model = rm.Model

	var raw []byte
	err = o.withKeys(ctx, provider, req.ClientKey, func(key string) error {
		body, aerr := o.client.Complete(ctx, &upstream.Attempt{
			Provider:  provider,
			APIKey:    key,
			Body:      upstreamBody,
			UserAgent: req.UserAgent,
		})
		if aerr != nil {
			return aerr
		}
		raw = body
		return nil
	})
	if err != nil {
		err = o.surface(provider, err)
		o.fail(&rec, req, rm, err)
		return nil, err
	}

	clientBody, usage, err := o.convertResponse(provider.WireFormat, req.Format, raw, requestedModel(req))
	if err != nil {
		o.fail(&rec, req, rm, err)
		return nil, err
	}

	rec.Outcome = domain.OutcomeSuccess
	rec.Usage = usage
	rec.RequestedModel = requestedModel(req)

	return &Completion{Body: clientBody, Model: rm, Usage: usage}, nil
}

func (o *Orchestrator) fail(rec *metrics.Record, req *Request, rm domain.ResolvedModel, err error) {
	apiErr := domain.AsAPIError(err)
	rec.Outcome = domain.OutcomeError
	rec.ErrorKind = string(apiErr.Code)
	if rec.ErrorKind == "" {
		rec.ErrorKind = string(apiErr.Type)
	}
	rec.RequestedModel = requestedModel(req)
	o.logger.Warn("request failed",
		slog.String("request_id", req.ID),
		slog.String("model", rm.String()),
		slog.String("error", apiErr.Error()))
}

// prepare resolves the model and builds the upstream request body.
func (o *Orchestrator) prepare(req *Request, stream bool) (domain.ResolvedModel, *registry.ProviderConfig, []byte, error) {
	var probe struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(req.Body, &probe); err != nil {
		return domain.ResolvedModel{}, nil, nil,
			domain.NewAPIError(domain.ErrorTypeInvalidRequest, "request body is not valid JSON")
	}

	rm, err := o.resolver.Resolve(probe.Model)
	if err != nil {
		return domain.ResolvedModel{}, nil, nil, err
	}

	provider, err := o.registry.Get(rm.Provider)
	if err != nil {
		return rm, nil, nil, err
	}

	body, err := o.buildUpstreamBody(req.Format, provider.WireFormat, req.Body, rm.Model, stream)
	if err != nil {
		return rm, provider, nil, err
	}
	return rm, provider, body, nil
}

func (o *Orchestrator) buildUpstreamBody(source, target domain.WireFormat, body []byte, model string, stream bool) ([]byte, error) {
	switch source {
	case domain.WireFormatAnthropic:
		var req anthropic.MessagesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest, err.Error())
		}
		req.Stream = stream
		if target == domain.WireFormatAnthropic {
			req.Model = model
			return json.Marshal(&req)
		}
		converted, err := convert.AnthropicRequestToOpenAI(&req, model)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converted)

	default:
		var req openai.ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest, err.Error())
		}
		req.Stream = stream
		if target == domain.WireFormatOpenAI {
			req.Model = model
			if stream {
				req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
			}
			return json.Marshal(&req)
		}
		converted, err := convert.OpenAIRequestToAnthropic(&req, model)
		if err != nil {
			return nil, err
		}
		return json.Marshal(converted)
	}
}

// convertResponse translates the upstream response body to the client's
// protocol and extracts usage for accounting. Same-format responses pass
// through unmodified.
func (o *Orchestrator) convertResponse(source, target domain.WireFormat, raw []byte, clientModel string) ([]byte, domain.Usage, error) {
	switch {
	case source == domain.WireFormatAnthropic && target == domain.WireFormatAnthropic:
		var resp anthropic.MessagesResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, domain.Usage{}, domain.ErrConversion("", "upstream response is not valid JSON: "+err.Error())
		}
		return raw, resp.Usage.ToCanonical(), nil

	case source == domain.WireFormatOpenAI && target == domain.WireFormatOpenAI:
		var resp openai.ChatCompletionResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, domain.Usage{}, domain.ErrConversion("", "upstream response is not valid JSON: "+err.Error())
		}
		return raw, resp.Usage.ToCanonical(), nil

	case source == domain.WireFormatAnthropic:
		var resp anthropic.MessagesResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, domain.Usage{}, domain.ErrConversion("", "upstream response is not valid JSON: "+err.Error())
		}
		converted, err := convert.AnthropicResponseToOpenAI(&resp, clientModel)
		if err != nil {
			return nil, domain.Usage{}, err
		}
		body, err := json.Marshal(converted)
		return body, resp.Usage.ToCanonical(), err

	default:
		var resp openai.ChatCompletionResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, domain.Usage{}, domain.ErrConversion("", "upstream response is not valid JSON: "+err.Error())
		}
		converted, err := convert.OpenAIResponseToAnthropic(&resp, clientModel)
		if err != nil {
			return nil, domain.Usage{}, err
		}
		body, err := json.Marshal(converted)
		return body, resp.Usage.ToCanonical(), err
	}
}

// withKeys runs attempt with keys from the ring, rotating away from keys
// the upstream rejects. Exhausting every key surfaces as a rate-limit error.
func (o *Orchestrator) withKeys(ctx context.Context, p *registry.ProviderConfig, clientKey string, attempt func(key string) error) error {
	if p.UsesPassthrough() {
		if clientKey == "" {
			return domain.ErrPassthroughKeyRequired(p.Name)
		}
		// There is nothing to rotate to: the client's own key either works
		// or the upstream's verdict goes straight back.
		return o.tryWithRetries(ctx, p, clientKey, attempt)
	}

	excluded := make(map[string]struct{})
	for {
		key, err := o.ring.NextKey(p.Name, p.Keys, excluded)
		if err != nil {
			if errors.Is(err, keyring.ErrExhausted) {
				return domain.ErrAllKeysExhausted(p.Name)
			}
			return err
		}

		err = o.tryWithRetries(ctx, p, key, attempt)
		if err == nil {
			return nil
		}

		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) && statusErr.KeyFault() {
			excluded[key] = struct{}{}
			o.logger.Warn("upstream rejected api key, rotating",
				slog.String("provider", p.Name),
				slog.Int("status", statusErr.StatusCode),
				slog.Int("keys_excluded", len(excluded)))
			continue
		}
		return err
	}
}

// tryWithRetries retries transport-level failures (timeouts, connection
// errors) on the same key up to the provider's retry budget. HTTP-level
// responses are never retried here.
func (o *Orchestrator) tryWithRetries(ctx context.Context, p *registry.ProviderConfig, key string, attempt func(key string) error) error {
	var lastErr error
	for i := 0; i <= p.MaxRetries; i++ {
		err := attempt(key)
		if err == nil {
			return nil
		}
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			return err
		}
		if ctx.Err() != nil {
			// The client went away; retrying would serve nobody.
			return err
		}
		lastErr = err
		o.logger.Warn("upstream attempt failed",
			slog.String("provider", p.Name),
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
	}
	return domain.ErrUpstreamUnavailable(p.Name, lastErr)
}

// surface maps a dispatch error to the canonical error the client sees.
func (o *Orchestrator) surface(p *registry.ProviderConfig, err error) error {
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	message := upstreamErrorMessage(p.WireFormat, statusErr.Body)
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		if message == "" {
			message = "upstream rejected the API key"
		}
		return domain.NewAPIError(domain.ErrorTypeAuthentication, message).
			WithCode(domain.ErrorCodeInvalidAPIKey)
	case http.StatusForbidden:
		if message == "" {
			message = "upstream denied access"
		}
		return domain.NewAPIError(domain.ErrorTypePermission, message)
	case http.StatusTooManyRequests:
		if message == "" {
			message = "upstream rate limit exceeded"
		}
		return domain.NewAPIError(domain.ErrorTypeRateLimit, message).
			WithCode(domain.ErrorCodeRateLimitExceeded)
	default:
		if message == "" {
			message = statusErr.Error()
		}
		apiErr := domain.NewAPIError(domain.ErrorTypeUpstream, message)
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			// Client-caused upstream rejections keep their original status.
			apiErr = apiErr.WithStatusCode(statusErr.StatusCode)
		}
		return apiErr
	}
}

// upstreamErrorMessage extracts the human-readable message from an upstream
// error body, whichever protocol it is in.
func upstreamErrorMessage(format domain.WireFormat, body []byte) string {
	if format == domain.WireFormatAnthropic {
		if apiErr, err := anthropic.ParseErrorResponse(body); err == nil && apiErr != nil {
			return apiErr.Message
		}
		return ""
	}
	if apiErr, err := openai.ParseErrorResponse(body); err == nil && apiErr != nil {
		return apiErr.Message
	}
	return ""
}

func requestedModel(req *Request) string {
	var probe struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(req.Body, &probe)
	return probe.Model
}
