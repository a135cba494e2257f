//go:build !cgo

package embedding

import "context"

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	ID        string
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-CGO builds; the ONNX runtime binding
// needs CGO.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns a configuration error when CGO is unavailable.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	id := cfg.ID
	if id == "" {
		id = "fastembed"
	}
	return nil, NewError(KindConfiguration, id,
		"fastembed requires a CGO build; configure a tei or openai provider instead")
}

// Embed returns a configuration error when CGO is unavailable.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, NewError(KindConfiguration, "fastembed", "not available without CGO")
}

// EmbedBatch returns a configuration error when CGO is unavailable.
func (p *FastEmbedProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, NewError(KindConfiguration, "fastembed", "not available without CGO")
}

// Info returns an empty descriptor.
func (p *FastEmbedProvider) Info() Descriptor {
	return Descriptor{ID: "fastembed", Local: true}
}

// HealthCheck returns a configuration error when CGO is unavailable.
func (p *FastEmbedProvider) HealthCheck(_ context.Context) error {
	return NewError(KindConfiguration, "fastembed", "not available without CGO")
}

// Close is a no-op.
func (p *FastEmbedProvider) Close() error {
	return nil
}
