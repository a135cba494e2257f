package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/config"
	"github.com/veridianlabs/vectord/internal/embedding"
	"github.com/veridianlabs/vectord/internal/http"
	"github.com/veridianlabs/vectord/internal/logging"
	"github.com/veridianlabs/vectord/internal/resource"
	"github.com/veridianlabs/vectord/internal/service"
	"github.com/veridianlabs/vectord/internal/telemetry"
	"github.com/veridianlabs/vectord/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vectord daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return run(ctx)
	},
}

// run initializes every subsystem, starts the HTTP server, and blocks until
// the context is cancelled. Initialization order: config, logger, telemetry,
// resource monitor, providers, chain, store, services, server.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting vectord",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.Int("providers", len(cfg.Providers)))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     1.0,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	monitor, err := resource.NewMonitor(cfg.Resource, logger)
	if err != nil {
		return fmt.Errorf("initializing resource monitor: %w", err)
	}

	registry := embedding.NewRegistry(monitor, logger)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("closing providers", zap.Error(err))
		}
	}()

	for _, pc := range cfg.Providers {
		provider, err := embedding.NewProvider(pc.ToEmbedding())
		if err != nil {
			return fmt.Errorf("building provider %q: %w", pc.ID, err)
		}
		if err := registry.Register(provider); err != nil {
			return fmt.Errorf("registering provider %q: %w", pc.ID, err)
		}
	}

	metrics, err := embedding.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing embedding metrics: %w", err)
	}
	chain := embedding.NewChain(registry, cfg.Chain, metrics, logger)

	store, err := vectorstore.NewStore(cfg.VectorStore, chain, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing vector store", zap.Error(err))
		}
	}()

	recorder := service.NewMemoryStatusRecorder()
	deps := http.Deps{
		Ingestor: service.NewIngestor(store, recorder, logger),
		Querier:  service.NewQuerier(store, logger),
		Admin:    service.NewAdmin(registry, chain, logger),
		Recorder: recorder,
		Monitor:  monitor,
		Store:    store,
	}
	server, err := http.NewServer(deps, logger, &http.Config{
		Addr:          cfg.Server.Addr,
		ReadTimeout:   cfg.Server.ReadTimeout,
		DefaultTenant: cfg.DefaultTenant,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
