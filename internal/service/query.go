package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/logging"
	"github.com/veridianlabs/vectord/internal/tenant"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

// Querier runs similarity searches scoped to the caller's namespace.
type Querier struct {
	store  vectorstore.Store
	logger *zap.Logger
}

// NewQuerier creates a querier.
func NewQuerier(store vectorstore.Store, logger *zap.Logger) *Querier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Querier{store: store, logger: logger}
}

// QueryRequest is one similarity search.
type QueryRequest struct {
	// Text is the query text.
	Text string `json:"text"`

	// Limit is the maximum number of results (default 10).
	Limit int `json:"limit"`

	// Filter narrows matches by metadata equality. Tenant keys are rejected.
	Filter map[string]string `json:"filter,omitempty"`
}

// Query searches the caller's namespace. A missing identity is rejected
// before any store call and logged as a security event.
func (s *Querier) Query(ctx context.Context, req QueryRequest) ([]vectorstore.SearchResult, error) {
	ns, err := tenant.NamespaceFromContext(ctx)
	if err != nil {
		logging.For(ctx, s.logger).Warn("query rejected without identity", zap.Error(err))
		return nil, err
	}
	if req.Text == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	results, err := s.store.Search(ctx, ns, req.Text, req.Limit, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("searching namespace: %w", err)
	}

	logging.For(ctx, s.logger).Debug("query served",
		zap.String("namespace", ns.String()),
		zap.Int("results", len(results)))
	return results, nil
}

// QueryAllNamespaces runs an audited cross-tenant search. The admin scope
// must come from operator tooling; request identities never carry one.
func (s *Querier) QueryAllNamespaces(ctx context.Context, req QueryRequest) ([]vectorstore.SearchResult, error) {
	scope, ok := tenant.AdminScopeFromContext(ctx)
	if !ok {
		logging.For(ctx, s.logger).Warn("cross-tenant query rejected without admin scope")
		return nil, fmt.Errorf("cross-tenant search requires an admin scope")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	return s.store.SearchAllNamespaces(ctx, scope, req.Text, req.Limit)
}
