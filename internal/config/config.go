// Package config loads gateway configuration from a YAML file and
// LLMWIRE_-prefixed environment variables, with ${VAR} substitution for
// secrets so API keys stay out of config files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/registry"
)

type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Storage   StorageConfig    `koanf:"storage"`
	Routing   RoutingConfig    `koanf:"routing"`
	Providers []ProviderConfig `koanf:"providers"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// APIKey, when set, is the shared secret clients must present.
	APIKey string `koanf:"api_key"`
}

type StorageConfig struct {
	// Path is the SQLite usage database location. Empty disables
	// persistence; usage is still logged.
	Path string `koanf:"path"`
}

type RoutingConfig struct {
	DefaultProvider string `koanf:"default_provider"`
	MaxAliasChain   int    `koanf:"max_alias_chain"`
}

type ProviderConfig struct {
	Name          string            `koanf:"name"`
	BaseURL       string            `koanf:"base_url"`
	WireFormat    string            `koanf:"wire_format"`
	APIKeys       []string          `koanf:"api_keys"`
	Passthrough   bool              `koanf:"passthrough"`
	TimeoutSecs   int               `koanf:"timeout_seconds"`
	MaxRetries    int               `koanf:"max_retries"`
	CustomHeaders map[string]string `koanf:"custom_headers"`
	Aliases       map[string]string `koanf:"aliases"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (when it exists) and the environment.
// Environment variables override file values: LLMWIRE_SERVER__PORT=9000 sets
// server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("LLMWIRE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LLMWIRE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Secrets are referenced as ${VAR} in config files.
	cfg.Server.APIKey = substituteEnvVars(cfg.Server.APIKey)
	for i := range cfg.Providers {
		for j := range cfg.Providers[i].APIKeys {
			cfg.Providers[i].APIKeys[j] = substituteEnvVars(cfg.Providers[i].APIKeys[j])
		}
	}

	return &cfg, nil
}

// ProviderConfigs translates the file-level provider entries into the
// registry's validated form.
func (c *Config) ProviderConfigs() []registry.ProviderConfig {
	out := make([]registry.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, registry.ProviderConfig{
			Name:          p.Name,
			BaseURL:       p.BaseURL,
			WireFormat:    domain.WireFormat(p.WireFormat),
			Timeout:       time.Duration(p.TimeoutSecs) * time.Second,
			MaxRetries:    p.MaxRetries,
			CustomHeaders: p.CustomHeaders,
			Keys:          p.APIKeys,
			Passthrough:   p.Passthrough,
			Aliases:       p.Aliases,
		})
	}
	return out
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
