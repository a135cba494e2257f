// Package tenant resolves caller identity into physical storage namespaces.
//
// Isolation is fail closed: operations without a verified identity error out
// rather than returning empty results, and namespaces derive purely from the
// identity so two tenants can never compute the same name.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Fail-closed error types.
var (
	// ErrMissingIdentity is returned when no identity is present in context.
	// No empty results, just errors.
	ErrMissingIdentity = errors.New("tenant identity missing from context")

	// ErrInvalidTenant is returned when a tenant identifier fails validation.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// NamespacePrefix separates tenant namespaces from any other collection a
// shared vector store might hold.
const NamespacePrefix = "tn_"

// tenantIDPattern constrains identifiers to names every supported vector
// store accepts as a collection name.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

const maxTenantIDLength = 64

// Identity is the verified caller identity attached to a request.
type Identity struct {
	// TenantID is the organization identifier (required).
	TenantID string

	// ProjectID is an optional project scope within the tenant.
	ProjectID string
}

// Validate checks that the identity can safely derive a namespace.
func (id *Identity) Validate() error {
	if err := ValidateTenantID(id.TenantID); err != nil {
		return err
	}
	if id.ProjectID != "" {
		if err := ValidateTenantID(id.ProjectID); err != nil {
			return fmt.Errorf("project: %w", err)
		}
	}
	return nil
}

// ValidateTenantID checks a single identifier segment.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTenant)
	}
	if len(id) > maxTenantIDLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidTenant, id, maxTenantIDLength)
	}
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (allowed: lowercase letters, digits, '_', '-')", ErrInvalidTenant, id)
	}
	return nil
}

// Namespace is a validated physical storage namespace. Constructed only by
// Resolve; everything accepting a Namespace can rely on the derivation.
type Namespace string

// String returns the namespace as a collection name.
func (n Namespace) String() string { return string(n) }

// Resolve derives the storage namespace for an identity. Pure and
// deterministic: the same identity always yields the same namespace, and the
// namespace embeds the tenant id so distinct tenants always diverge.
func Resolve(id Identity) (Namespace, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	name := NamespacePrefix + id.TenantID
	if id.ProjectID != "" {
		name += "_" + id.ProjectID
	}
	return Namespace(name), nil
}

// identityContextKey is the context key for Identity.
type identityContextKey struct{}

// ContextWithIdentity attaches a verified identity to a context. Only
// authentication middleware should call this.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from a context. Returns
// ErrMissingIdentity if absent - fail closed.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Identity{}, ErrMissingIdentity
	}
	return id, nil
}

// NamespaceFromContext resolves the namespace for the identity in ctx.
// The single entry point request handlers use; it inherits both the
// fail-closed lookup and the validation in Resolve.
func NamespaceFromContext(ctx context.Context) (Namespace, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return Resolve(id)
}

// HasIdentity reports whether an identity is present without erroring.
func HasIdentity(ctx context.Context) bool {
	_, err := IdentityFromContext(ctx)
	return err == nil
}
