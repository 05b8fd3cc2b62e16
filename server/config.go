package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/remoting/dispatch"
	"github.com/tailored-agentic-units/remoting/session"
)

// Config holds initialization parameters for the server and the
// subsystems it composes. Each subsystem section delegates to that
// subsystem's Merge.
type Config struct {
	Addr           string          `json:"addr,omitempty" yaml:"addr,omitempty" env:"REMOTING_ADDR"`
	Path           string          `json:"path,omitempty" yaml:"path,omitempty" env:"REMOTING_PATH"`
	MetricsPath    string          `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty" env:"REMOTING_METRICS_PATH"`
	ClientIDHeader string          `json:"client_id_header,omitempty" yaml:"client_id_header,omitempty" env:"REMOTING_CLIENT_ID_HEADER"`
	Observer       string          `json:"observer,omitempty" yaml:"observer,omitempty" env:"REMOTING_OBSERVER"`
	ServiceName    string          `json:"service_name,omitempty" yaml:"service_name,omitempty" env:"REMOTING_SERVICE_NAME"`
	OTelEndpoint   string          `json:"otel_endpoint,omitempty" yaml:"otel_endpoint,omitempty" env:"REMOTING_OTEL_ENDPOINT"`
	RateLimit      RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Dispatch       dispatch.Config `json:"dispatch" yaml:"dispatch"`
	Session        session.Config  `json:"session" yaml:"session"`
}

// RateLimitConfig configures the per-client token bucket. A zero RPS
// disables limiting.
type RateLimitConfig struct {
	RPS   float64 `json:"rps,omitempty" yaml:"rps,omitempty" env:"REMOTING_RATE_LIMIT_RPS"`
	Burst int     `json:"burst,omitempty" yaml:"burst,omitempty" env:"REMOTING_RATE_LIMIT_BURST"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Path:           "/remoting",
		MetricsPath:    "/metrics",
		ClientIDHeader: "X-Remoting-Client-Id",
		Observer:       "slog",
		ServiceName:    "remoting",
		Dispatch:       dispatch.DefaultConfig(),
		Session:        session.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Dispatch.Merge(&source.Dispatch)
	c.Session.Merge(&source.Session)

	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.MetricsPath != "" {
		c.MetricsPath = source.MetricsPath
	}
	if source.ClientIDHeader != "" {
		c.ClientIDHeader = source.ClientIDHeader
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.ServiceName != "" {
		c.ServiceName = source.ServiceName
	}
	if source.OTelEndpoint != "" {
		c.OTelEndpoint = source.OTelEndpoint
	}
	if source.RateLimit.RPS > 0 {
		c.RateLimit.RPS = source.RateLimit.RPS
	}
	if source.RateLimit.Burst > 0 {
		c.RateLimit.Burst = source.RateLimit.Burst
	}
}

// LoadConfig reads a JSON or YAML config file (by extension), merges it
// with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// LoadEnv merges REMOTING_* environment overrides into cfg.
func LoadEnv(cfg *Config) error {
	var overrides Config
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Merge(&overrides)
	return nil
}
