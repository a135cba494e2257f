package embedding

import (
	"context"
	"fmt"
)

// Capability names an operation a provider supports.
type Capability string

const (
	// CapabilityEmbed is single-text embedding.
	CapabilityEmbed Capability = "embed"
	// CapabilityEmbedBatch is multi-text embedding in one call.
	CapabilityEmbedBatch Capability = "embed_batch"
)

// Descriptor is the static description of one embedding provider, loaded
// once at startup and read-only afterwards.
type Descriptor struct {
	// ID is the unique provider identifier.
	ID string `json:"id"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"display_name"`

	// Local reports whether the provider runs in-process (no network, no cost).
	Local bool `json:"local"`

	// RequiresCredential reports whether the provider needs an API key.
	RequiresCredential bool `json:"requires_credential"`

	// Dimensions is the embedding vector size.
	Dimensions int `json:"dimensions"`

	// CostPerCall is the estimated cost per call in USD. Zero for local
	// providers.
	CostPerCall float64 `json:"cost_per_call"`

	// Capabilities lists the supported operations.
	Capabilities []Capability `json:"capabilities"`
}

// Validate checks the descriptor for configuration errors.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return NewError(KindConfiguration, "", "provider id is required")
	}
	if d.Dimensions <= 0 {
		return NewError(KindConfiguration, d.ID, "dimensions must be positive")
	}
	if len(d.Capabilities) == 0 {
		return NewError(KindConfiguration, d.ID, "at least one capability is required")
	}
	return nil
}

// Supports reports whether the descriptor lists the given capability.
func (d Descriptor) Supports(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Provider is the fixed capability interface every embedding provider
// implements. Implementations are selected at registration time, never
// inferred at call time.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Info returns the static descriptor.
	Info() Descriptor

	// HealthCheck performs a cheap liveness probe.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig configures one provider at load time.
type ProviderConfig struct {
	// ID is the unique provider identifier.
	ID string `koanf:"id"`

	// Type selects the implementation: "fastembed", "tei", or "openai".
	Type string `koanf:"type"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL is the endpoint for HTTP providers (TEI).
	BaseURL string `koanf:"base_url"`

	// APIKey is the credential for metered providers.
	APIKey string `koanf:"api_key"`

	// CacheDir is the model cache directory for local providers.
	CacheDir string `koanf:"cache_dir"`

	// CostPerCall overrides the estimated cost per call in USD.
	CostPerCall float64 `koanf:"cost_per_call"`

	// RequestsPerMinute rate-limits metered providers (0 = unlimited).
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// NewProvider builds a provider from configuration. This is the single
// factory; providers are constructed up front at configuration load, giving
// each a typed Descriptor + implementation pair.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			ID:       cfg.ID,
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		return NewTEIProvider(TEIConfig{
			ID:      cfg.ID,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			ID:                cfg.ID,
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			CostPerCall:       cfg.CostPerCall,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
	default:
		return nil, NewError(KindConfiguration, cfg.ID,
			fmt.Sprintf("unknown provider type %q (supported: fastembed, tei, openai)", cfg.Type))
	}
}
