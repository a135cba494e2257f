//go:build cgo

package embedding

import (
	"context"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// ID is the provider identifier (defaults to "fastembed").
	ID string

	// Model is the embedding model. Supported: BAAI/bge-small-en-v1.5
	// (default), BAAI/bge-base-en-v1.5, sentence-transformers/all-MiniLM-L6-v2.
	Model string

	// CacheDir is the model file cache directory.
	CacheDir string

	// MaxLength is the maximum input sequence length (default 512).
	MaxLength int
}

// fastEmbedModels maps friendly model names to fastembed constants.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// fastEmbedDimensions maps fastembed models to their vector sizes.
var fastEmbedDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

// FastEmbedProvider generates embeddings with local ONNX models. No network,
// no per-call cost; memory-heavy, so it respects the resource gate via its
// Local descriptor flag.
type FastEmbedProvider struct {
	model *fastembed.FlagEmbedding
	desc  Descriptor
	mu    sync.RWMutex
}

// NewFastEmbedProvider creates the local provider, downloading the model on
// first use into CacheDir.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	id := cfg.ID
	if id == "" {
		id = "fastembed"
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "BAAI/bge-small-en-v1.5"
	}

	model, ok := fastEmbedModels[modelName]
	if !ok {
		model = fastembed.EmbeddingModel(modelName)
		if _, known := fastEmbedDimensions[model]; !known {
			return nil, NewError(KindConfiguration, id,
				"unsupported model "+modelName)
		}
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, NewError(KindConfiguration, id,
			"initializing fastembed: "+err.Error())
	}

	return &FastEmbedProvider{
		model: flagEmbed,
		desc: Descriptor{
			ID:           id,
			DisplayName:  "FastEmbed (" + modelName + ")",
			Local:        true,
			Dimensions:   fastEmbedDimensions[model],
			Capabilities: []Capability{CapabilityEmbed, CapabilityEmbedBatch},
		},
	}, nil
}

// Embed generates a query embedding. QueryEmbed adds the "query: " prefix
// the BGE models expect.
func (p *FastEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, NewError(KindProvider, p.desc.ID, err.Error())
	}
	return vec, nil
}

// EmbedBatch generates document embeddings. PassageEmbed adds the "passage: "
// prefix the BGE models expect.
func (p *FastEmbedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vecs, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, NewError(KindProvider, p.desc.ID, err.Error())
	}
	return vecs, nil
}

// Info returns the static descriptor.
func (p *FastEmbedProvider) Info() Descriptor {
	return p.desc
}

// HealthCheck embeds a short probe string to verify the model is loaded.
func (p *FastEmbedProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Embed(ctx, "ping")
	return err
}

// Close releases the ONNX runtime resources.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}
