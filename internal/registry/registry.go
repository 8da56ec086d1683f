// Package registry holds the validated, immutable per-provider
// configuration. Construction fails fast: a provider that cannot be
// validated stops the process at startup instead of failing per-request.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/llmwire/llmwire/internal/domain"
)

const (
	defaultTimeout    = 90 * time.Second
	defaultMaxRetries = 2
)

// ProviderConfig is the immutable configuration of one upstream provider.
// Exactly one of Keys / Passthrough is set.
type ProviderConfig struct {
	Name          string
	BaseURL       string
	WireFormat    domain.WireFormat
	Timeout       time.Duration
	MaxRetries    int
	CustomHeaders map[string]string
	Keys          []string
	Passthrough   bool
	Aliases       map[string]string
}

// UsesPassthrough reports whether the provider expects the client to supply
// the upstream credential per request.
func (p *ProviderConfig) UsesPassthrough() bool { return p.Passthrough }

// Registry maps provider names to their validated configuration.
type Registry struct {
	providers       map[string]*ProviderConfig
	order           []string
	defaultProvider string
}

// New validates the given provider configurations and builds a registry.
// defaultProvider may be empty, in which case the first provider is used.
func New(configs []ProviderConfig, defaultProvider string) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}

	r := &Registry{providers: make(map[string]*ProviderConfig, len(configs))}
	for i := range configs {
		cfg := configs[i]
		if err := validate(&cfg); err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
		}
		name := strings.ToLower(cfg.Name)
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("provider %q configured twice", name)
		}
		cfg.Name = name
		r.providers[name] = &cfg
		r.order = append(r.order, name)
	}

	if defaultProvider == "" {
		r.defaultProvider = r.order[0]
	} else {
		name := strings.ToLower(defaultProvider)
		if _, ok := r.providers[name]; !ok {
			return nil, fmt.Errorf("default provider %q is not configured", defaultProvider)
		}
		r.defaultProvider = name
	}

	return r, nil
}

func validate(cfg *ProviderConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if _, err := domain.ParseWireFormat(string(cfg.WireFormat)); err != nil {
		return err
	}
	if cfg.Passthrough && len(cfg.Keys) > 0 {
		return fmt.Errorf("passthrough and static api_keys are mutually exclusive")
	}
	if !cfg.Passthrough && len(cfg.Keys) == 0 {
		return fmt.Errorf("either api_keys or passthrough must be set")
	}
	for i, k := range cfg.Keys {
		if k == "" {
			return fmt.Errorf("api_keys[%d] is empty", i)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return nil
}

// Get returns the configuration for a provider.
func (r *Registry) Get(name string) (*ProviderConfig, error) {
	cfg, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, domain.ErrProviderNotFound(name, r.Names())
	}
	return cfg, nil
}

// Has reports whether a provider with the given name is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[strings.ToLower(name)]
	return ok
}

// Default returns the name of the default provider.
func (r *Registry) Default() string { return r.defaultProvider }

// Names returns the configured provider names in configuration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Aliases returns every provider's alias table, keyed by provider name.
func (r *Registry) Aliases() map[string]map[string]string {
	out := make(map[string]map[string]string, len(r.providers))
	for name, cfg := range r.providers {
		table := make(map[string]string, len(cfg.Aliases))
		for alias, target := range cfg.Aliases {
			table[strings.ToLower(alias)] = target
		}
		out[name] = table
	}
	return out
}
