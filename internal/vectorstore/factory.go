package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a storage backend.
type Config struct {
	// Backend is "chromem" (embedded, default) or "qdrant".
	Backend string `koanf:"backend"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "chromem"
	}
	c.Chromem.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// NewStore builds the configured backend.
func NewStore(cfg Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	cfg.ApplyDefaults()

	switch cfg.Backend {
	case "chromem":
		return NewChromemStore(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.Backend)
	}
}
