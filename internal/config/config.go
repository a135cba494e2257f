// Package config loads and validates vectord configuration.
package config

import (
	"fmt"
	"time"

	"github.com/veridianlabs/vectord/internal/embedding"
	"github.com/veridianlabs/vectord/internal/logging"
	"github.com/veridianlabs/vectord/internal/resource"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

// Config is the complete vectord configuration.
type Config struct {
	Server        ServerConfig          `koanf:"server"`
	Logging       logging.Config        `koanf:"logging"`
	Telemetry     TelemetryConfig       `koanf:"telemetry"`
	Providers     []ProviderConfig      `koanf:"providers"`
	Chain         embedding.ChainConfig `koanf:"chain"`
	Resource      resource.Config       `koanf:"resource"`
	VectorStore   vectorstore.Config    `koanf:"vectorstore"`
	DefaultTenant string                `koanf:"default_tenant"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (default ":9632").
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// ReadTimeout bounds request reads (default 30s).
	ReadTimeout time.Duration `koanf:"read_timeout"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	// Enabled turns on OTLP export. Off by default; instruments still
	// record into a no-op provider.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (default "localhost:4317").
	Endpoint string `koanf:"endpoint"`

	// ServiceName identifies this process in traces and metrics.
	ServiceName string `koanf:"service_name"`

	// Insecure disables TLS to the collector, for local collectors.
	Insecure bool `koanf:"insecure"`
}

// ProviderConfig mirrors embedding.ProviderConfig with a redacted credential
// so rendered config never leaks keys.
type ProviderConfig struct {
	ID                string         `koanf:"id"`
	Type              string         `koanf:"type"`
	Model             string         `koanf:"model"`
	BaseURL           string         `koanf:"base_url"`
	APIKey            logging.Secret `koanf:"api_key"`
	CacheDir          string         `koanf:"cache_dir"`
	CostPerCall       float64        `koanf:"cost_per_call"`
	RequestsPerMinute int            `koanf:"requests_per_minute"`
}

// ToEmbedding converts to the embedding package's config, revealing the
// credential at this single point.
func (p ProviderConfig) ToEmbedding() embedding.ProviderConfig {
	return embedding.ProviderConfig{
		ID:                p.ID,
		Type:              p.Type,
		Model:             p.Model,
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey.Reveal(),
		CacheDir:          p.CacheDir,
		CostPerCall:       p.CostPerCall,
		RequestsPerMinute: p.RequestsPerMinute,
	}
}

// ApplyDefaults sets default values for unset fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":9632"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "vectord"
	}
	if len(c.Providers) == 0 {
		c.Providers = []ProviderConfig{{ID: "fastembed", Type: "fastembed"}}
	}
	c.Logging.ApplyDefaults()
	c.Chain.ApplyDefaults()
	c.Resource.ApplyDefaults()
	c.VectorStore.ApplyDefaults()
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		switch p.Type {
		case "", "fastembed", "tei", "openai":
		default:
			return fmt.Errorf("providers[%d]: unknown type %q", i, p.Type)
		}
		if p.Type == "tei" && p.BaseURL == "" {
			return fmt.Errorf("providers[%d]: tei provider requires base_url", i)
		}
		if p.Type == "openai" && !p.APIKey.IsSet() {
			return fmt.Errorf("providers[%d]: openai provider requires api_key", i)
		}
	}
	for _, id := range c.Chain.Providers {
		if !seen[id] {
			return fmt.Errorf("chain: provider %q is not configured", id)
		}
	}
	return nil
}
