package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/registry"
	"github.com/llmwire/llmwire/internal/testutil"
)

func provider(name, baseURL string, format domain.WireFormat) *registry.ProviderConfig {
	return &registry.ProviderConfig{
		Name:       name,
		BaseURL:    baseURL,
		WireFormat: format,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}
}

func TestCompleteSetsWireFormatHeaders(t *testing.T) {
	tests := []struct {
		name     string
		format   domain.WireFormat
		path     string
		checkKey func(t *testing.T, h http.Header)
	}{
		{
			name:   "openai",
			format: domain.WireFormatOpenAI,
			path:   "/v1/chat/completions",
			checkKey: func(t *testing.T, h http.Header) {
				if got := h.Get("Authorization"); got != "Bearer sk-test" {
					t.Errorf("Authorization = %q", got)
				}
			},
		},
		{
			name:   "anthropic",
			format: domain.WireFormatAnthropic,
			path:   "/v1/messages",
			checkKey: func(t *testing.T, h http.Header) {
				if got := h.Get("x-api-key"); got != "sk-test" {
					t.Errorf("x-api-key = %q", got)
				}
				if got := h.Get("anthropic-version"); got == "" {
					t.Error("anthropic-version header missing")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("path = %q, want %q", r.URL.Path, tt.path)
				}
				if got := r.Header.Get("X-Custom"); got != "yes" {
					t.Errorf("custom header = %q", got)
				}
				tt.checkKey(t, r.Header)
				w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			p := provider("test", srv.URL+"/v1", tt.format)
			p.CustomHeaders = map[string]string{"X-Custom": "yes"}

			c := New(WithHTTPClient(srv.Client()))
			body, err := c.Complete(context.Background(), &Attempt{
				Provider: p,
				APIKey:   "sk-test",
				Body:     []byte(`{}`),
			})
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if string(body) != `{"ok":true}` {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestCompleteStatusError(t *testing.T) {
	tests := []struct {
		status   int
		keyFault bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		c := New(WithHTTPClient(srv.Client()))
		_, err := c.Complete(context.Background(), &Attempt{
			Provider: provider("p", srv.URL, domain.WireFormatOpenAI),
			APIKey:   "k",
			Body:     []byte(`{}`),
		})
		srv.Close()

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("status %d: error = %v, want StatusError", tt.status, err)
		}
		if statusErr.StatusCode != tt.status {
			t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.status)
		}
		if statusErr.KeyFault() != tt.keyFault {
			t.Errorf("status %d: KeyFault() = %v, want %v", tt.status, statusErr.KeyFault(), tt.keyFault)
		}
	}
}

func TestCompleteTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := provider("slow", srv.URL, domain.WireFormatOpenAI)
	p.Timeout = 20 * time.Millisecond

	c := New(WithHTTPClient(srv.Client()))
	_, err := c.Complete(context.Background(), &Attempt{Provider: p, APIKey: "k", Body: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("timeout should not be a StatusError: %v", err)
	}
}

func TestStreamReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"hello\":1}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()))
	body, err := c.Stream(context.Background(), &Attempt{
		Provider: provider("p", srv.URL, domain.WireFormatOpenAI),
		APIKey:   "k",
		Body:     []byte(`{"stream":true}`),
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.Contains(string(raw), "[DONE]") {
		t.Errorf("stream body = %q", raw)
	}
}

func TestCompleteReplayedFromCassette(t *testing.T) {
	rec := testutil.NewRecorder(t, "openai_complete")

	c := New(WithHTTPClient(testutil.HTTPClient(rec)))
	body, err := c.Complete(context.Background(), &Attempt{
		Provider: provider("openai", "https://api.openai.example/v1", domain.WireFormatOpenAI),
		APIKey:   "sk-cassette",
		Body:     []byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode replayed body: %v", err)
	}
	if resp.ID != "chatcmpl-cassette" {
		t.Errorf("id = %q", resp.ID)
	}
}
