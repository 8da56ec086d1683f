package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/llmwire/llmwire/internal/domain"
)

func validConfig() ProviderConfig {
	return ProviderConfig{
		Name:       "OpenAI",
		BaseURL:    "https://api.openai.com/v1/",
		WireFormat: domain.WireFormatOpenAI,
		Keys:       []string{"sk-1"},
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProviderConfig)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(c *ProviderConfig) { c.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "missing base url",
			mutate:  func(c *ProviderConfig) { c.BaseURL = "" },
			wantErr: "base_url is required",
		},
		{
			name:    "bad wire format",
			mutate:  func(c *ProviderConfig) { c.WireFormat = "grpc" },
			wantErr: "unsupported wire format",
		},
		{
			name: "passthrough with static keys",
			mutate: func(c *ProviderConfig) {
				c.Passthrough = true
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "no keys and no passthrough",
			mutate:  func(c *ProviderConfig) { c.Keys = nil },
			wantErr: "either api_keys or passthrough",
		},
		{
			name:    "empty key",
			mutate:  func(c *ProviderConfig) { c.Keys = []string{"sk-1", ""} },
			wantErr: "api_keys[1] is empty",
		},
		{
			name:    "negative retries",
			mutate:  func(c *ProviderConfig) { c.MaxRetries = -1 },
			wantErr: "max_retries must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			_, err := New([]ProviderConfig{cfg}, "")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	reg, err := New([]ProviderConfig{validConfig()}, "")
	if err != nil {
		t.Fatal(err)
	}

	p, err := reg.Get("openai")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "openai" {
		t.Errorf("name = %q, want lowercased", p.Name)
	}
	if p.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url = %q, trailing slash must be trimmed", p.BaseURL)
	}
	if p.Timeout != 90*time.Second {
		t.Errorf("timeout = %v", p.Timeout)
	}
	if p.MaxRetries != 2 {
		t.Errorf("max retries = %d", p.MaxRetries)
	}
}

func TestNewRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Error("empty config list must fail")
	}

	a := validConfig()
	b := validConfig()
	b.Name = "openai" // same after lowercasing
	if _, err := New([]ProviderConfig{a, b}, ""); err == nil || !strings.Contains(err.Error(), "twice") {
		t.Errorf("duplicate providers: err = %v", err)
	}
}

func TestDefaultProvider(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Name = "anthropic"
	b.WireFormat = domain.WireFormatAnthropic

	reg, err := New([]ProviderConfig{a, b}, "")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Default() != "openai" {
		t.Errorf("default = %q, want first configured provider", reg.Default())
	}

	reg, err = New([]ProviderConfig{a, b}, "Anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Default() != "anthropic" {
		t.Errorf("default = %q", reg.Default())
	}

	if _, err := New([]ProviderConfig{a}, "missing"); err == nil {
		t.Error("unknown default provider must fail")
	}
}

func TestGetUnknownProvider(t *testing.T) {
	reg, err := New([]ProviderConfig{validConfig()}, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = reg.Get("mistral")
	apiErr := domain.AsAPIError(err)
	if apiErr.Code != domain.ErrorCodeProviderNotFound {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "openai") {
		t.Errorf("message should list available providers: %q", apiErr.Message)
	}
}

func TestAliasesLowercased(t *testing.T) {
	cfg := validConfig()
	cfg.Aliases = map[string]string{"Fast": "gpt-4o-mini"}

	reg, err := New([]ProviderConfig{cfg}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Aliases()["openai"]["fast"]; got != "gpt-4o-mini" {
		t.Errorf("alias lookup = %q", got)
	}
}
