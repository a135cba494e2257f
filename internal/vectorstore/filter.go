package vectorstore

import (
	"fmt"

	"github.com/veridianlabs/vectord/internal/tenant"
)

// reservedMetadataKeys are managed by the store. Callers may neither set nor
// filter on them; allowing that would let a crafted filter reach into another
// tenant's scope.
var reservedMetadataKeys = map[string]bool{
	"namespace": true,
	"tenant_id": true,
	"content":   true, // qdrant payload slot for document text
}

// validateMetadata rejects caller metadata using reserved keys.
func validateMetadata(meta map[string]string) error {
	for k := range meta {
		if reservedMetadataKeys[k] {
			return fmt.Errorf("%w: %q", ErrReservedMetadataKey, k)
		}
	}
	return nil
}

// validateFilter rejects caller filters using reserved keys.
func validateFilter(filter map[string]string) error {
	for k := range filter {
		if reservedMetadataKeys[k] {
			return fmt.Errorf("%w: %q in filter", ErrReservedMetadataKey, k)
		}
	}
	return nil
}

// validateBatch checks a document batch before storage.
func validateBatch(docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	for i, doc := range docs {
		if doc.Content == "" {
			return fmt.Errorf("document at index %d has empty content", i)
		}
		if err := validateMetadata(doc.Metadata); err != nil {
			return fmt.Errorf("document at index %d: %w", i, err)
		}
	}
	return nil
}

// auditMetadata returns the document metadata plus the store-managed
// namespace tag, leaving the caller's map untouched.
func auditMetadata(meta map[string]string, ns tenant.Namespace) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["namespace"] = ns.String()
	return out
}

// stripAuditMetadata returns the document metadata without store-managed
// keys. The input map is never mutated: chromem hands out its live metadata
// map by reference, so deleting in place would erase the stored audit tag.
func stripAuditMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if k == "namespace" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// cloneMetadata copies a store-owned metadata map so callers cannot reach
// back into the store's state.
func cloneMetadata(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// validateNamespace rejects anything not produced by the tenant resolver.
// Defense in depth: the Namespace type already implies this, but a store is
// the last line before the backend.
func validateNamespace(ns tenant.Namespace) error {
	name := ns.String()
	if len(name) <= len(tenant.NamespacePrefix) || name[:len(tenant.NamespacePrefix)] != tenant.NamespacePrefix {
		return fmt.Errorf("%w: namespace %q lacks the %q prefix", ErrInvalidConfig, name, tenant.NamespacePrefix)
	}
	return nil
}
