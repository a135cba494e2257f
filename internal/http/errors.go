package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/embedding"
	"github.com/veridianlabs/vectord/internal/tenant"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// apiError maps service errors onto HTTP statuses. Identity failures become
// 401, classification kinds keep their semantics (429 for rate limits, 503
// when the whole chain is exhausted), everything unmapped is a 500.
func (s *Server) apiError(err error) error {
	status := http.StatusInternalServerError

	// Only classified embedding errors carry a kind; store and identity
	// errors do not.
	var kind embedding.Kind
	var classified *embedding.Error
	if errors.As(err, &classified) {
		kind = classified.Kind
	}

	switch {
	case errors.Is(err, tenant.ErrMissingIdentity):
		status = http.StatusUnauthorized
	case errors.Is(err, tenant.ErrInvalidTenant):
		status = http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrEmptyDocuments),
		errors.Is(err, vectorstore.ErrReservedMetadataKey):
		status = http.StatusBadRequest
	default:
		switch kind {
		case embedding.KindInvalidInput:
			status = http.StatusBadRequest
		case embedding.KindProviderNotFound, embedding.KindModelNotFound:
			status = http.StatusNotFound
		case embedding.KindAuthentication:
			status = http.StatusBadGateway
		case embedding.KindRateLimit:
			status = http.StatusTooManyRequests
		case embedding.KindTimeout:
			status = http.StatusGatewayTimeout
		case embedding.KindAllProvidersFailed, embedding.KindCircuitOpen, embedding.KindNetwork:
			status = http.StatusServiceUnavailable
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("unhandled api error", zap.Error(err))
	}

	resp := ErrorResponse{Error: err.Error()}
	if kind != "" {
		resp.Kind = string(kind)
	}
	return echo.NewHTTPError(status, resp)
}
