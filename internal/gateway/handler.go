// Package gateway implements the HTTP frontdoors: the two completion
// endpoints (one per client protocol) plus the introspection endpoints.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/metrics"
	"github.com/llmwire/llmwire/internal/orchestrator"
	"github.com/llmwire/llmwire/internal/registry"
	"github.com/llmwire/llmwire/internal/resolver"
	"github.com/llmwire/llmwire/internal/server"
	"github.com/llmwire/llmwire/internal/storage/sqlite"
	"github.com/llmwire/llmwire/internal/tokens"
)

// maxBodyBytes caps inbound request bodies. Vision requests with inline
// images are the largest legitimate payloads.
const maxBodyBytes = 32 << 20

// Option configures the handler.
type Option func(*Handler)

// WithStore attaches the usage store backing the usage endpoint.
func WithStore(store *sqlite.Store) Option {
	return func(h *Handler) { h.store = store }
}

// WithTracker attaches the in-flight tracker surfaced by the health
// endpoint.
func WithTracker(tracker *metrics.Tracker) Option {
	return func(h *Handler) { h.tracker = tracker }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// Handler serves the gateway's HTTP API.
type Handler struct {
	orch      *orchestrator.Orchestrator
	registry  *registry.Registry
	resolver  *resolver.Resolver
	estimator *tokens.Estimator
	tracker   *metrics.Tracker
	store     *sqlite.Store
	logger    *slog.Logger
}

// New creates the handler.
func New(orch *orchestrator.Orchestrator, reg *registry.Registry, res *resolver.Resolver, est *tokens.Estimator, opts ...Option) *Handler {
	h := &Handler{
		orch:      orch,
		registry:  reg,
		resolver:  res,
		estimator: est,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts every endpoint on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/chat/completions", h.handleChatCompletions)
	r.Post("/v1/messages", h.handleMessages)
	r.Post("/v1/messages/count_tokens", h.handleCountTokens)
	r.Get("/v1/models", h.handleModels)
	r.Get("/v1/aliases", h.handleAliases)
	r.Get("/v1/usage", h.handleUsage)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.handleCompletion(w, r, domain.WireFormatOpenAI)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	h.handleCompletion(w, r, domain.WireFormatAnthropic)
}

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request, format domain.WireFormat) {
	if h.tracker != nil {
		defer h.tracker.Begin()()
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, format, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "failed to read request body"))
		return
	}

	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, format, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "request body is not valid JSON"))
		return
	}

	req := &orchestrator.Request{
		ID:        server.GetRequestID(r.Context()),
		Format:    format,
		Body:      body,
		ClientKey: server.ClientKey(r.Context()),
		UserAgent: r.UserAgent(),
	}

	if probe.Stream {
		h.serveStream(w, r, req)
		return
	}

	comp, err := h.orch.Execute(r.Context(), req)
	if err != nil {
		writeError(w, format, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(comp.Body)
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, req *orchestrator.Request) {
	sess, err := h.orch.ExecuteStream(r.Context(), req)
	if err != nil {
		// The stream never opened, so a plain error response is still
		// possible.
		writeError(w, req.Format, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, req.Format, domain.NewAPIError(domain.ErrorTypeServer, "streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := sess.Run(r.Context(), newSSEWriter(w, flusher)); err != nil {
		// Too late for an error envelope; the relay already finalized.
		h.logger.Debug("stream ended early",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, domain.WireFormatAnthropic, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "failed to read request body"))
		return
	}

	var req anthropic.CountTokensRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, domain.WireFormatAnthropic, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "request body is not valid JSON"))
		return
	}

	rm, err := h.resolver.Resolve(req.Model)
	if err != nil {
		writeError(w, domain.WireFormatAnthropic, err)
		return
	}

	texts := make([]string, 0, len(req.Messages)+len(req.System))
	for _, block := range req.System {
		texts = append(texts, block.Text)
	}
	for _, msg := range req.Messages {
		texts = append(texts, msg.Content.PlainText())
	}

	writeJSON(w, http.StatusOK, anthropic.CountTokensResponse{
		InputTokens: h.estimator.CountMessages(rm.Model, texts),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
