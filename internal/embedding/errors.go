package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// Kind classifies an embedding failure. Every error that crosses a package
// boundary inside this subsystem carries exactly one Kind.
type Kind string

const (
	// KindNetwork covers connection-refused, unreachable-host, DNS failure,
	// and 5xx responses (treated as transient).
	KindNetwork Kind = "network"
	// KindRateLimit covers 429 responses and provider-side throttling.
	KindRateLimit Kind = "rate_limit"
	// KindTimeout covers deadline expiry on a provider call.
	KindTimeout Kind = "timeout"
	// KindProviderNotFound indicates the requested provider id is not registered.
	KindProviderNotFound Kind = "provider_not_found"
	// KindCircuitOpen indicates the provider's breaker rejected the call
	// without a network attempt.
	KindCircuitOpen Kind = "circuit_open"
	// KindAuthentication covers 401/403 responses. Never retried.
	KindAuthentication Kind = "authentication"
	// KindModelNotFound covers 404 responses for a missing model.
	KindModelNotFound Kind = "model_not_found"
	// KindConfiguration indicates invalid provider or chain configuration.
	KindConfiguration Kind = "configuration"
	// KindInvalidInput indicates caller-supplied input that can never succeed.
	KindInvalidInput Kind = "invalid_input"
	// KindAllProvidersFailed is the terminal aggregate after the whole chain
	// is exhausted.
	KindAllProvidersFailed Kind = "all_providers_failed"
	// KindProvider is the generic fallback for unclassified provider failures.
	KindProvider Kind = "provider"
)

// kindRecoverable maps each kind to whether the retry engine may re-attempt it.
var kindRecoverable = map[Kind]bool{
	KindNetwork:            true,
	KindRateLimit:          true,
	KindTimeout:            true,
	KindProviderNotFound:   true,
	KindCircuitOpen:        true,
	KindAuthentication:     false,
	KindModelNotFound:      false,
	KindConfiguration:      false,
	KindInvalidInput:       false,
	KindAllProvidersFailed: false,
	KindProvider:           true,
}

// Error is a classified embedding failure. Treat values as immutable once
// constructed; retry and fallback logic only ever reads them.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind Kind

	// Provider is the id of the provider that produced the failure.
	// Empty for failures not attributable to a single provider.
	Provider string

	// Message is a human-readable description.
	Message string

	// Recoverable reports whether a retry may succeed.
	Recoverable bool

	// RetryAfter is a provider-supplied backoff hint (zero when absent).
	RetryAfter time.Duration

	// Context carries arbitrary diagnostic key/values.
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("embedding: %s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("embedding: %s: %s", e.Kind, e.Message)
}

// NewError constructs a classified error with recoverability derived from kind.
func NewError(kind Kind, provider, message string) *Error {
	return &Error{
		Kind:        kind,
		Provider:    provider,
		Message:     message,
		Recoverable: kindRecoverable[kind],
	}
}

// withContext returns e with a diagnostic key set. Helper for constructors;
// not part of the immutable surface.
func (e *Error) withContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the taxonomy kind of err, or KindProvider for foreign errors.
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindProvider
}

// IsRecoverable reports whether the retry engine may re-attempt err.
// Foreign (unclassified) errors are considered recoverable; they are
// normalized before this matters on any retry path.
func IsRecoverable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Recoverable
	}
	return true
}

// StatusError is an HTTP-shaped provider failure. Remote providers return it
// so Classify can map status codes onto the taxonomy.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (s *StatusError) Error() string {
	body := s.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("status %d: %s", s.Code, body)
}

// Classify normalizes any raw failure into a classified *Error.
//
// Classification priority:
//  1. already-classified errors pass through unchanged
//  2. connection-refused / unreachable / DNS failures -> KindNetwork
//  3. HTTP status 401/403 -> KindAuthentication, 429 -> KindRateLimit,
//     404 -> KindModelNotFound, >=500 -> KindNetwork
//  4. deadline expiry / net timeouts -> KindTimeout
//  5. anything else -> KindProvider, preserving the original message
//
// Classify is pure: no logging, no state.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}

	if isConnectionError(err) {
		return NewError(KindNetwork, provider, err.Error())
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(provider, se)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, provider, err.Error())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewError(KindTimeout, provider, err.Error())
	}

	// Remaining net-level failures without a more specific cause are transient.
	var oe *net.OpError
	if errors.As(err, &oe) {
		return NewError(KindNetwork, provider, err.Error())
	}

	return NewError(KindProvider, provider, err.Error()).
		withContext("cause", err.Error())
}

// classifyStatus maps an HTTP status onto the taxonomy.
func classifyStatus(provider string, se *StatusError) *Error {
	switch {
	case se.Code == 401 || se.Code == 403:
		return NewError(KindAuthentication, provider, se.Error()).
			withContext("status", se.Code)
	case se.Code == 429:
		e := NewError(KindRateLimit, provider, se.Error()).
			withContext("status", se.Code)
		e.RetryAfter = se.RetryAfter
		return e
	case se.Code == 404:
		return NewError(KindModelNotFound, provider, se.Error()).
			withContext("status", se.Code)
	case se.Code >= 500:
		return NewError(KindNetwork, provider, se.Error()).
			withContext("status", se.Code)
	default:
		return NewError(KindProvider, provider, se.Error()).
			withContext("status", se.Code)
	}
}

// isConnectionError detects connection-level failures that can never be an
// application response: refused, unreachable, reset, DNS.
func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return true
	}
	// Some HTTP clients flatten dial errors into strings.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host")
}
