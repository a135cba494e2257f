package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeterministic(t *testing.T) {
	id := Identity{TenantID: "acme"}

	ns1, err := Resolve(id)
	require.NoError(t, err)
	ns2, err := Resolve(id)
	require.NoError(t, err)

	assert.Equal(t, ns1, ns2, "same identity always yields the same namespace")
	assert.Equal(t, "tn_acme", ns1.String())
}

func TestResolveDistinctTenantsDiverge(t *testing.T) {
	acme, err := Resolve(Identity{TenantID: "acme"})
	require.NoError(t, err)
	globex, err := Resolve(Identity{TenantID: "globex"})
	require.NoError(t, err)

	assert.NotEqual(t, acme, globex)
}

func TestResolveWithProject(t *testing.T) {
	ns, err := Resolve(Identity{TenantID: "acme", ProjectID: "search"})
	require.NoError(t, err)
	assert.Equal(t, "tn_acme_search", ns.String())

	bare, err := Resolve(Identity{TenantID: "acme"})
	require.NoError(t, err)
	assert.NotEqual(t, bare, ns, "project scope gets its own namespace")
}

func TestResolveRejectsInvalidIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
	}{
		{"empty tenant", Identity{}},
		{"uppercase", Identity{TenantID: "Acme"}},
		{"spaces", Identity{TenantID: "acme corp"}},
		{"path traversal", Identity{TenantID: "../other"}},
		{"leading dash", Identity{TenantID: "-acme"}},
		{"leading underscore", Identity{TenantID: "_acme"}},
		{"too long", Identity{TenantID: strings.Repeat("a", 65)}},
		{"bad project", Identity{TenantID: "acme", ProjectID: "My Project"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTenant)
		})
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{TenantID: "acme"})

	id, err := IdentityFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", id.TenantID)
	assert.True(t, HasIdentity(ctx))
}

func TestIdentityMissingFailsClosed(t *testing.T) {
	_, err := IdentityFromContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingIdentity)

	_, err = NamespaceFromContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingIdentity, "no identity means an error, never a default namespace")

	assert.False(t, HasIdentity(context.Background()))
}

func TestNamespaceFromContext(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{TenantID: "globex"})

	ns, err := NamespaceFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tn_globex", ns.String())
}

func TestNamespaceFromContextValidatesIdentity(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{TenantID: "Bad Tenant"})

	_, err := NamespaceFromContext(ctx)
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestAdminScopeContext(t *testing.T) {
	_, ok := AdminScopeFromContext(context.Background())
	assert.False(t, ok)

	scope, err := NewAdminScope("oncall", "tenant migration", nil)
	require.NoError(t, err)
	ctx := ContextWithAdminScope(context.Background(), scope)

	got, ok := AdminScopeFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "oncall", got.Operator())
	assert.Equal(t, "tenant migration", got.Reason())
}

func TestNewAdminScopeRejectsAnonymousOperator(t *testing.T) {
	_, err := NewAdminScope("", "no one to hold accountable", nil)
	assert.ErrorIs(t, err, ErrAnonymousAdminScope)
}
