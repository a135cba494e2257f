// Package vectorstore provides namespace-scoped vector storage backends.
//
// Every operation takes an explicit tenant.Namespace; there is no default
// namespace and no way to query across namespaces. Callers obtain one from
// the tenant resolver, which is the only constructor.
package vectorstore

import (
	"context"
	"errors"

	"github.com/veridianlabs/vectord/internal/tenant"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates an empty document batch.
	ErrEmptyDocuments = errors.New("empty documents")

	// ErrEmbeddingFailed indicates the embedder could not produce vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrReservedMetadataKey indicates a caller tried to set or filter on a
	// key the store manages itself.
	ErrReservedMetadataKey = errors.New("reserved metadata key")
)

// Document is a unit of ingested content.
type Document struct {
	// ID uniquely identifies the document within its namespace.
	ID string `json:"id"`

	// Content is the raw text.
	Content string `json:"content"`

	// Metadata holds caller-supplied key/values. Reserved keys are rejected.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Embedding is the precomputed vector. Empty means the store embeds
	// Content itself.
	Embedding []float32 `json:"-"`
}

// SearchResult is one similarity match.
type SearchResult struct {
	Document Document `json:"document"`

	// Score is the similarity score, higher is closer.
	Score float32 `json:"score"`
}

// Embedder generates embeddings for storage and search. Satisfied by the
// embedding chain.
type Embedder interface {
	// EmbedQuery generates an embedding for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for documents to store.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the namespace-scoped vector storage interface.
type Store interface {
	// EnsureNamespace creates the namespace if it does not exist. Idempotent.
	EnsureNamespace(ctx context.Context, ns tenant.Namespace) error

	// Add stores documents in the namespace and returns their ids.
	Add(ctx context.Context, ns tenant.Namespace, docs []Document) ([]string, error)

	// Search finds the closest documents to query within the namespace.
	// filter narrows matches by metadata equality.
	Search(ctx context.Context, ns tenant.Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error)

	// Delete removes documents by id from the namespace.
	Delete(ctx context.Context, ns tenant.Namespace, ids []string) error

	// DeleteNamespace removes the namespace and everything in it.
	DeleteNamespace(ctx context.Context, ns tenant.Namespace) error

	// Count returns the number of documents in the namespace.
	Count(ctx context.Context, ns tenant.Namespace) (int, error)

	// SearchAllNamespaces searches across every tenant namespace. Requires
	// an audited admin scope; there is no identity-derived path to it.
	SearchAllNamespaces(ctx context.Context, scope tenant.AdminScope, query string, limit int) ([]SearchResult, error)

	// Healthy probes the backend.
	Healthy(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
