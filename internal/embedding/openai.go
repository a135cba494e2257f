package embedding

import (
	"context"
	"errors"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures the metered OpenAI provider.
type OpenAIConfig struct {
	// ID is the provider identifier (defaults to "openai").
	ID string

	// APIKey is the OpenAI credential.
	APIKey string

	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string

	// Model is the embedding model (default text-embedding-3-small).
	Model string

	// CostPerCall is the estimated cost per call in USD.
	CostPerCall float64

	// RequestsPerMinute rate-limits outgoing calls (0 = unlimited).
	RequestsPerMinute int
}

// openAIModelDimensions maps supported models to vector sizes.
var openAIModelDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// OpenAIProvider generates embeddings through the OpenAI API. Calls are
// metered; a client-side rate limiter keeps bursts under the account quota
// before the server has to say 429.
type OpenAIProvider struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
	desc    Descriptor
	tokens  atomic.Int64
}

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	id := cfg.ID
	if id == "" {
		id = "openai"
	}
	if cfg.APIKey == "" {
		return nil, NewError(KindConfiguration, id, "API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dims, ok := openAIModelDimensions[model]
	if !ok {
		return nil, NewError(KindConfiguration, id, "unsupported model "+model)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute)
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   openai.EmbeddingModel(model),
		limiter: limiter,
		desc: Descriptor{
			ID:                 id,
			DisplayName:        "OpenAI (" + model + ")",
			RequiresCredential: true,
			Dimensions:         dims,
			CostPerCall:        cfg.CostPerCall,
			Capabilities:       []Capability{CapabilityEmbed, CapabilityEmbedBatch},
		},
	}, nil
}

// embed performs one embeddings request under the rate limiter.
func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}
	p.tokens.Add(int64(resp.Usage.TotalTokens))

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// normalizeOpenAIError converts the client's typed API error into a
// StatusError so classification sees the HTTP status.
func normalizeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{
			Code: apiErr.HTTPStatusCode,
			Body: apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{
			Code: reqErr.HTTPStatusCode,
			Body: reqErr.Error(),
		}
	}
	return err
}

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewError(KindProvider, p.desc.ID, "empty response")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts)
}

// Info returns the static descriptor.
func (p *OpenAIProvider) Info() Descriptor {
	return p.desc
}

// TakeTokenUsage drains the token count accumulated since the last call.
func (p *OpenAIProvider) TakeTokenUsage() int64 {
	return p.tokens.Swap(0)
}

// HealthCheck embeds a short probe string. Costs one metered call; only the
// admin probe endpoint triggers it.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Embed(ctx, "ping")
	return err
}

// Close is a no-op; the client holds no persistent connections beyond the
// standard transport pool.
func (p *OpenAIProvider) Close() error {
	return nil
}
