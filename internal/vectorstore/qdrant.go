package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/veridianlabs/vectord/internal/tenant"
)

var qdrantTracer = otel.Tracer("vectord.vectorstore.qdrant")

// contentPayloadKey holds the document text in a point payload. Caller
// metadata lives beside it, which is why the key is reserved.
const contentPayloadKey = "content"

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default "localhost").
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port, 6334 by default. Not the 6333 REST port.
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// APIKey authenticates against managed Qdrant. Empty for local.
	APIKey string `koanf:"api_key"`

	// VectorSize is the embedding dimension for new collections (default 384).
	VectorSize uint64 `koanf:"vector_size"`

	// MaxMessageSize bounds gRPC messages in bytes (default 50MB).
	MaxMessageSize int `koanf:"max_message_size"`

	// RequestTimeout bounds individual requests (default 30s).
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore implements Store on a Qdrant server over gRPC. Each tenant
// namespace maps to its own collection.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant and verifies the connection.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
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

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	defer cancel()
	if err := store.Healthy(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}

	logger.Info("qdrant store connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port))
	return store, nil
}

// EnsureNamespace creates the namespace's collection if it does not exist.
func (s *QdrantStore) EnsureNamespace(ctx context.Context, ns tenant.Namespace) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, ns.String())
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", ns, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ns.String(),
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", ns, err)
	}
	s.logger.Info("namespace created", zap.String("namespace", ns.String()))
	return nil
}

// Add stores documents in the namespace and returns their ids.
func (s *QdrantStore) Add(ctx context.Context, ns tenant.Namespace, docs []Document) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", ns.String()),
		attribute.Int("document_count", len(docs)),
	)

	if err := validateBatch(docs); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.EnsureNamespace(ctx, ns); err != nil {
		span.RecordError(err)
		return nil, err
	}

	texts := make([]string, 0, len(docs))
	needEmbedding := make([]int, 0, len(docs))
	for i, doc := range docs {
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

	ids := make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
		embedding := doc.Embedding
		if len(embedding) == 0 {
			embedding = embeddings[i]
		}

		payload := map[string]any{contentPayloadKey: doc.Content}
		for k, v := range auditMetadata(doc.Metadata, ns) {
			payload[k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ids[i]),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if _, err := s.client.Upsert(reqCtx, &qdrant.UpsertPoints{
		CollectionName: ns.String(),
		Points:         points,
	}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upserting points: %w", err)
	}
	return ids, nil
}

// buildFilter converts a metadata equality filter to a qdrant filter.
func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

// Search finds the closest documents to query within the namespace.
func (s *QdrantStore) Search(ctx context.Context, ns tenant.Namespace, query string, limit int, filter map[string]string) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		span.RecordError(err)
		return nil, err
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	matches, err := s.client.Query(reqCtx, &qdrant.QueryPoints{
		CollectionName: ns.String(),
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(filter),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying collection %s: %w", ns, err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		doc := scoredDocument(m)
		doc.Metadata = stripAuditMetadata(doc.Metadata)
		if len(doc.Metadata) == 0 {
			doc.Metadata = nil
		}
		results = append(results, SearchResult{Document: doc, Score: m.Score})
	}
	return results, nil
}

// scoredDocument converts a qdrant point into a Document.
func scoredDocument(m *qdrant.ScoredPoint) Document {
	doc := Document{ID: pointID(m.Id)}
	meta := make(map[string]string)
	for k, v := range m.Payload {
		if k == contentPayloadKey {
			doc.Content = v.GetStringValue()
			continue
		}
		meta[k] = v.GetStringValue()
	}
	if len(meta) > 0 {
		doc.Metadata = meta
	}
	return doc
}

// SearchAllNamespaces searches every tenant namespace for an audited
// operator.
func (s *QdrantStore) SearchAllNamespaces(ctx context.Context, scope tenant.AdminScope, query string, limit int) ([]SearchResult, error) {
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

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	collections, err := s.client.ListCollections(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	var results []SearchResult
	for _, name := range collections {
		if !strings.HasPrefix(name, tenant.NamespacePrefix) {
			continue
		}
		matches, err := s.client.Query(reqCtx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("querying collection %s: %w", name, err)
		}
		for _, m := range matches {
			results = append(results, SearchResult{Document: scoredDocument(m), Score: m.Score})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// pointID renders a qdrant point id as a string.
func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// Delete removes documents by id from the namespace.
func (s *QdrantStore) Delete(ctx context.Context, ns tenant.Namespace, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := validateNamespace(ns); err != nil {
		return err
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	_, err := s.client.Delete(reqCtx, &qdrant.DeletePoints{
		CollectionName: ns.String(),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// DeleteNamespace removes the namespace's collection entirely.
func (s *QdrantStore) DeleteNamespace(ctx context.Context, ns tenant.Namespace) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if err := s.client.DeleteCollection(reqCtx, ns.String()); err != nil {
		return fmt.Errorf("deleting collection %s: %w", ns, err)
	}
	s.logger.Info("namespace deleted", zap.String("namespace", ns.String()))
	return nil
}

// Count returns the number of documents in the namespace.
func (s *QdrantStore) Count(ctx context.Context, ns tenant.Namespace) (int, error) {
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	exists, err := s.client.CollectionExists(reqCtx, ns.String())
	if err != nil {
		return 0, fmt.Errorf("checking collection %s: %w", ns, err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(reqCtx, &qdrant.CountPoints{
		CollectionName: ns.String(),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(count), nil
}

// Healthy probes the Qdrant server.
func (s *QdrantStore) Healthy(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
