package tenant

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrAnonymousAdminScope rejects admin scope grants with no named operator.
var ErrAnonymousAdminScope = errors.New("tenant: admin scope requires an operator")

// AdminScope authorizes cross-tenant operations. It is never derived from a
// request identity; the zero value is unusable and only NewAdminScope
// constructs a valid one, so every grant names an accountable operator.
type AdminScope struct {
	operator string
	reason   string
}

// NewAdminScope grants cross-tenant access to a named operator. Every grant
// is logged at Warn as a security event.
func NewAdminScope(operator, reason string, logger *zap.Logger) (AdminScope, error) {
	if operator == "" {
		return AdminScope{}, ErrAnonymousAdminScope
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("cross-tenant admin scope granted",
		zap.String("operator", operator),
		zap.String("reason", reason))
	return AdminScope{operator: operator, reason: reason}, nil
}

// Operator identifies who was granted the scope.
func (s AdminScope) Operator() string { return s.operator }

// Reason records why cross-tenant access was needed.
func (s AdminScope) Reason() string { return s.reason }

// adminContextKey is the context key for AdminScope.
type adminContextKey struct{}

// ContextWithAdminScope attaches an audited admin scope to a context.
func ContextWithAdminScope(ctx context.Context, scope AdminScope) context.Context {
	return context.WithValue(ctx, adminContextKey{}, scope)
}

// AdminScopeFromContext extracts the admin scope, if present.
func AdminScopeFromContext(ctx context.Context) (AdminScope, bool) {
	scope, ok := ctx.Value(adminContextKey{}).(AdminScope)
	return scope, ok
}
