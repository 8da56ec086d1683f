// Package upstream dispatches single attempts to provider endpoints. Retry
// and key-rotation policy live in the orchestrator; this package only knows
// how to shape one HTTP exchange per wire format and classify its outcome.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/registry"
)

const defaultUserAgent = "llmwire/1.0"

// Attempt carries everything needed for one dispatch to one provider with
// one key.
type Attempt struct {
	Provider  *registry.ProviderConfig
	APIKey    string
	Body      []byte
	UserAgent string
}

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s returned status %d", e.Provider, e.StatusCode)
}

// KeyFault reports whether the status indicts the API key rather than the
// request: such failures are handled by rotating to the next key.
func (e *StatusError) KeyFault() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client, used by tests to splice in a
// VCR transport.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client speaks both upstream wire formats.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an upstream client. The transport is instrumented so each
// provider call shows up as a span.
func New(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete performs one non-streaming attempt and returns the raw response
// body on 200. The provider's timeout bounds the whole exchange.
func (c *Client) Complete(ctx context.Context, att *Attempt) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, att.Provider.Timeout)
	defer cancel()

	resp, err := c.send(ctx, att)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", att.Provider.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: att.Provider.Name, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// Stream performs one streaming attempt and returns the response body on
// 200. The provider's timeout bounds connection and response headers only;
// the body is read for as long as the stream lasts. Closing the returned
// reader releases the connection.
func (c *Client) Stream(ctx context.Context, att *Attempt) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	timer := time.AfterFunc(att.Provider.Timeout, cancel)
	resp, err := c.send(ctx, att)
	timer.Stop()
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Provider: att.Provider.Name, StatusCode: resp.StatusCode, Body: body}
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) send(ctx context.Context, att *Attempt) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(att.Provider), bytes.NewReader(att.Body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", att.Provider.Name, err)
	}
	c.setHeaders(req, att)

	c.logger.Debug("dispatching upstream request",
		slog.String("provider", att.Provider.Name),
		slog.String("url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", att.Provider.Name, err)
	}
	return resp, nil
}

func (c *Client) endpoint(p *registry.ProviderConfig) string {
	switch p.WireFormat {
	case domain.WireFormatAnthropic:
		return p.BaseURL + "/messages"
	default:
		return p.BaseURL + "/chat/completions"
	}
}

func (c *Client) setHeaders(req *http.Request, att *Attempt) {
	req.Header.Set("Content-Type", "application/json")

	switch att.Provider.WireFormat {
	case domain.WireFormatAnthropic:
		req.Header.Set("x-api-key", att.APIKey)
		req.Header.Set("anthropic-version", anthropic.Version)
	default:
		req.Header.Set("Authorization", "Bearer "+att.APIKey)
	}

	if att.UserAgent != "" {
		req.Header.Set("User-Agent", att.UserAgent)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	// Custom headers win over the computed defaults.
	for k, v := range att.Provider.CustomHeaders {
		req.Header.Set(k, v)
	}
}
