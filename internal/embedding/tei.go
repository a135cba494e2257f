package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// TEIConfig configures a Text Embeddings Inference provider.
type TEIConfig struct {
	// ID is the provider identifier (defaults to "tei").
	ID string

	// BaseURL is the TEI server endpoint.
	BaseURL string

	// Model is the served model name, informational only; TEI serves one
	// model per instance.
	Model string

	// Dimensions is the vector size (default 384, matching
	// BAAI/bge-small-en-v1.5).
	Dimensions int

	// Client overrides the HTTP client. Nil uses a default client; the
	// chain applies per-call timeouts through the request context.
	Client *http.Client
}

// TEIProvider talks to a Text Embeddings Inference server over HTTP.
type TEIProvider struct {
	cfg    TEIConfig
	client *http.Client
	desc   Descriptor
}

// NewTEIProvider creates the TEI provider.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	id := cfg.ID
	if id == "" {
		id = "tei"
	}
	if cfg.BaseURL == "" {
		return nil, NewError(KindConfiguration, id, "base URL is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &TEIProvider{
		cfg:    cfg,
		client: client,
		desc: Descriptor{
			ID:           id,
			DisplayName:  "TEI (" + cfg.BaseURL + ")",
			Dimensions:   cfg.Dimensions,
			Capabilities: []Capability{CapabilityEmbed, CapabilityEmbedBatch},
		},
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// embed posts inputs to /embed and decodes the vector list.
func (p *TEIProvider) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			Code:       resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// Embed generates an embedding for a single text.
func (p *TEIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewError(KindProvider, p.desc.ID, "empty response")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (p *TEIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, NewError(KindProvider, p.desc.ID,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

// Info returns the static descriptor.
func (p *TEIProvider) Info() Descriptor {
	return p.desc
}

// HealthCheck probes the TEI /health endpoint.
func (p *TEIProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close releases idle connections.
func (p *TEIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP-date
// values are ignored; providers in practice send seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
