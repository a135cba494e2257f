// Package http exposes the vectord HTTP API: tenant-scoped ingestion and
// query endpoints plus operator endpoints for provider management.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/logging"
	"github.com/veridianlabs/vectord/internal/resource"
	"github.com/veridianlabs/vectord/internal/service"
	"github.com/veridianlabs/vectord/internal/tenant"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

// Tenant identity and admin scope travel as request headers. Identity is
// resolved per request and never cached across requests.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderProjectID     = "X-Project-ID"
	HeaderAdminOperator = "X-Admin-Operator"
	HeaderAdminReason   = "X-Admin-Reason"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr        string
	ReadTimeout time.Duration

	// DefaultTenant, when set, scopes requests without an X-Tenant-ID header
	// to this tenant (single-tenant deployments). Empty keeps multi-tenant
	// fail-closed behavior.
	DefaultTenant string
}

// Deps are the services the server fronts.
type Deps struct {
	Ingestor *service.Ingestor
	Querier  *service.Querier
	Admin    *service.Admin
	Recorder *service.MemoryStatusRecorder
	Monitor  *resource.Monitor
	Store    vectorstore.Store
}

// Server provides the HTTP endpoints for vectord.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Ingestor == nil || deps.Querier == nil || deps.Admin == nil {
		return nil, fmt.Errorf("ingestor, querier, and admin services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Addr: ":9632"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if cfg.ReadTimeout > 0 {
		e.Server.ReadTimeout = cfg.ReadTimeout
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(identityMiddleware(logger, cfg.DefaultTenant))

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// identityMiddleware copies the request id and tenant headers into the
// request context. An invalid tenant id is rejected here; a missing one is
// not, so unscoped endpoints like /health still work and scoped handlers
// fail closed on their own.
func identityMiddleware(logger *zap.Logger, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))

			tenantID := req.Header.Get(HeaderTenantID)
			if tenantID == "" {
				tenantID = defaultTenant
			}
			if tenantID != "" {
				id := tenant.Identity{
					TenantID:  tenantID,
					ProjectID: req.Header.Get(HeaderProjectID),
				}
				if _, err := tenant.Resolve(id); err != nil {
					logger.Warn("rejected invalid tenant identity",
						zap.String("tenant_id", tenantID),
						zap.Error(err))
					return echo.NewHTTPError(http.StatusBadRequest, err.Error())
				}
				ctx = tenant.ContextWithIdentity(ctx, id)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/documents", s.handleIngest)
	v1.POST("/documents/async", s.handleSubmit)
	v1.DELETE("/documents", s.handleDelete)
	v1.POST("/query", s.handleQuery)
	v1.GET("/jobs", s.handleListJobs)
	v1.GET("/jobs/:id", s.handleJobStatus)
	v1.GET("/resource", s.handleResource)

	v1.GET("/providers", s.handleListProviders)
	v1.POST("/providers/:id/probe", s.handleProbe)
	v1.POST("/providers/:id/breaker/reset", s.handleResetBreaker)
	v1.PUT("/providers/active", s.handleSetActive)
	v1.PUT("/providers/order", s.handleSetOrder)
	v1.POST("/benchmark", s.handleBenchmark)

	v1.POST("/admin/query", s.handleAdminQuery)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string             `json:"status"`
	Store    string             `json:"store"`
	Resource *resource.Snapshot `json:"resource,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Store: "ok"}

	if s.deps.Store != nil {
		if err := s.deps.Store.Healthy(c.Request().Context()); err != nil {
			resp.Status = "degraded"
			resp.Store = err.Error()
		}
	}
	if s.deps.Monitor != nil {
		snap := s.deps.Monitor.Check(c.Request().Context())
		resp.Resource = &snap
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// IngestRequest is the request body for POST /api/v1/documents.
type IngestRequest struct {
	Documents []vectorstore.Document `json:"documents"`
}

// IngestResponse is the response body for a synchronous ingest.
type IngestResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	ids, err := s.deps.Ingestor.Ingest(c.Request().Context(), req.Documents)
	if err != nil {
		return s.apiError(err)
	}
	return c.JSON(http.StatusCreated, IngestResponse{IDs: ids})
}

// SubmitResponse is the response body for POST /api/v1/documents/async.
type SubmitResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	// The job outlives the request, so detach from the request context but
	// keep its identity and request id.
	ctx := context.WithoutCancel(c.Request().Context())
	jobID, _, err := s.deps.Ingestor.Submit(ctx, req.Documents)
	if err != nil {
		return s.apiError(err)
	}
	return c.JSON(http.StatusAccepted, SubmitResponse{JobID: jobID, State: string(service.JobRunning)})
}

// DeleteRequest is the request body for DELETE /api/v1/documents.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDelete(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids field is required")
	}
	if err := s.deps.Ingestor.Delete(c.Request().Context(), req.IDs); err != nil {
		return s.apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Results []vectorstore.SearchResult `json:"results"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req service.QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	results, err := s.deps.Querier.Query(c.Request().Context(), req)
	if err != nil {
		return s.apiError(err)
	}
	return c.JSON(http.StatusOK, QueryResponse{Results: results})
}

func (s *Server) handleListJobs(c echo.Context) error {
	if s.deps.Recorder == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job tracking is not enabled")
	}
	return c.JSON(http.StatusOK, s.deps.Recorder.List())
}

func (s *Server) handleJobStatus(c echo.Context) error {
	if s.deps.Recorder == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job tracking is not enabled")
	}
	status, ok := s.deps.Recorder.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job id")
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleResource(c echo.Context) error {
	if s.deps.Monitor == nil {
		return echo.NewHTTPError(http.StatusNotFound, "resource monitoring is not enabled")
	}
	return c.JSON(http.StatusOK, s.deps.Monitor.Check(c.Request().Context()))
}

func (s *Server) handleListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Admin.ListProviders())
}

func (s *Server) handleProbe(c echo.Context) error {
	result := s.deps.Admin.Probe(c.Request().Context(), c.Param("id"))
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadGateway
	}
	return c.JSON(status, result)
}

func (s *Server) handleResetBreaker(c echo.Context) error {
	s.deps.Admin.ResetBreaker(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// SetActiveRequest is the request body for PUT /api/v1/providers/active.
type SetActiveRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleSetActive(c echo.Context) error {
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Admin.SetActive(req.Provider); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// SetOrderRequest is the request body for PUT /api/v1/providers/order.
type SetOrderRequest struct {
	Providers []string `json:"providers"`
}

func (s *Server) handleSetOrder(c echo.Context) error {
	var req SetOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Admin.SetOrder(req.Providers); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// BenchmarkRequest is the request body for POST /api/v1/benchmark.
type BenchmarkRequest struct {
	Provider   string `json:"provider"`
	Text       string `json:"text"`
	Iterations int    `json:"iterations"`
}

func (s *Server) handleBenchmark(c echo.Context) error {
	var req BenchmarkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.deps.Admin.Benchmark(c.Request().Context(), req.Provider, req.Text, req.Iterations)
	if err != nil {
		return s.apiError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleAdminQuery runs an audited cross-tenant search. The operator header
// is mandatory; the scope it builds is logged before any store access.
func (s *Server) handleAdminQuery(c echo.Context) error {
	operator := c.Request().Header.Get(HeaderAdminOperator)
	if operator == "" {
		return echo.NewHTTPError(http.StatusForbidden, "cross-tenant queries require the X-Admin-Operator header")
	}

	var req service.QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	scope, err := tenant.NewAdminScope(operator, c.Request().Header.Get(HeaderAdminReason), s.logger)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	ctx := tenant.ContextWithAdminScope(c.Request().Context(), scope)

	results, err := s.deps.Querier.QueryAllNamespaces(ctx, req)
	if err != nil {
		return s.apiError(err)
	}
	return c.JSON(http.StatusOK, QueryResponse{Results: results})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
