package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/tenant"
)

var chromemTracer = otel.Tracer("vectord.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory
	// only, which tests use.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension. Default 384.
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store on chromem-go, an embeddable pure-Go vector
// database. Each tenant namespace maps to its own collection, so isolation
// holds at the storage layout level rather than by query filtering.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a ChromemStore. A non-empty Path persists
// collections to gob files under it.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize))

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder to chromem's callback.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// collection returns the namespace's collection, creating it if needed.
func (s *ChromemStore) collection(ns tenant.Namespace) (*chromem.Collection, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	col, err := s.db.GetOrCreateCollection(ns.String(), nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", ns, err)
	}
	return col, nil
}

// EnsureNamespace creates the namespace's collection if missing.
func (s *ChromemStore) EnsureNamespace(ctx context.Context, ns tenant.Namespace) error {
	_, err := s.collection(ns)
	return err
}

// Add stores documents in the namespace and returns their ids.
func (s *ChromemStore) Add(ctx context.Context, ns tenant.Namespace, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", ns.String()),
		attribute.Int("document_count", len(docs)),
	)

	if err := validateBatch(docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	col, err := s.collection(ns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := make([]string, len(docs))
	texts := make([]string, 0, len(docs))
	needEmbedding := make([]int, 0, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		if len(doc.Embedding) == 0 {
			texts = append(texts, doc.Content)
			needEmbedding = append(needEmbedding, i)
		}
	}

	embeddings := make(map[int][]float32, len(needEmbedding))
	if len(texts) > 0 {
		vecs, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		for j, idx := range needEmbedding {
			embeddings[idx] = vecs[j]
		}
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		embedding := doc.Embedding
		if len(embedding) == 0 {
			embedding = embeddings[i]
		}
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  auditMetadata(doc.Metadata, ns),
			Embedding: embedding,
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("documents added",
		zap.String("namespace", ns.String()),
		zap.Int("count", len(docs)))
	return ids, nil
}

// Search finds the closest documents to query within the namespace.
func (s *ChromemStore) Search(ctx context.Context, ns tenant.Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", ns.String()),
		attribute.Int("limit", limit),
	)

	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = 10
	}
	if err := validateFilter(filter); err != nil {
		span.RecordError(err)
		return nil, err
	}

	col, err := s.collection(ns)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// chromem errors when asking for more results than stored.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	matches, err := col.QueryEmbedding(ctx, vector, limit, filter, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", ns, err)
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			Document: Document{
				ID:       m.ID,
				Content:  m.Content,
				Metadata: stripAuditMetadata(m.Metadata),
			},
			Score: m.Similarity,
		}
	}
	return results, nil
}

// SearchAllNamespaces searches every tenant namespace for an audited
// operator. Results keep the namespace tag so the operator can tell tenants
// apart.
func (s *ChromemStore) SearchAllNamespaces(ctx context.Context, scope tenant.AdminScope, query string, limit int) ([]SearchResult, error) {
	if scope.Operator() == "" {
		return nil, fmt.Errorf("%w: admin scope requires an operator", ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = 10
	}

	s.logger.Warn("cross-namespace search",
		zap.String("operator", scope.Operator()),
		zap.String("reason", scope.Reason()))

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var results []SearchResult
	for name, col := range s.db.ListCollections() {
		if !strings.HasPrefix(name, tenant.NamespacePrefix) {
			continue
		}
		count := col.Count()
		if count == 0 {
			continue
		}
		n := limit
		if n > count {
			n = count
		}
		matches, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("querying collection %s: %w", name, err)
		}
		for _, m := range matches {
			results = append(results, SearchResult{
				Document: Document{ID: m.ID, Content: m.Content, Metadata: cloneMetadata(m.Metadata)},
				Score:    m.Similarity,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes documents by id from the namespace.
func (s *ChromemStore) Delete(ctx context.Context, ns tenant.Namespace, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(ns)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// DeleteNamespace removes the namespace's collection entirely.
func (s *ChromemStore) DeleteNamespace(ctx context.Context, ns tenant.Namespace) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := s.db.DeleteCollection(ns.String()); err != nil {
		return fmt.Errorf("deleting collection %s: %w", ns, err)
	}
	s.logger.Info("namespace deleted", zap.String("namespace", ns.String()))
	return nil
}

// Count returns the number of documents in the namespace.
func (s *ChromemStore) Count(ctx context.Context, ns tenant.Namespace) (int, error) {
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	col := s.db.GetCollection(ns.String(), s.embeddingFunc())
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Healthy reports backend liveness. The embedded database is healthy as long
// as the process is.
func (s *ChromemStore) Healthy(ctx context.Context) error {
	return nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}
