package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veridianlabs/vectord/internal/embedding"
)

// Admin exposes provider management operations to operator tooling.
type Admin struct {
	registry *embedding.Registry
	chain    *embedding.Chain
	logger   *zap.Logger

	now func() time.Time
}

// NewAdmin creates the admin service.
func NewAdmin(registry *embedding.Registry, chain *embedding.Chain, logger *zap.Logger) *Admin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{
		registry: registry,
		chain:    chain,
		logger:   logger,
		now:      time.Now,
	}
}

// ProviderStatus combines a provider's descriptor with its live state.
type ProviderStatus struct {
	embedding.Descriptor

	Active  bool                    `json:"active"`
	Breaker string                  `json:"breaker,omitempty"`
	Stats   embedding.StatsSnapshot `json:"stats"`
}

// ListProviders returns every provider with breaker state and stats.
func (a *Admin) ListProviders() []ProviderStatus {
	active := a.registry.ActiveID()
	descs := a.registry.List()

	out := make([]ProviderStatus, 0, len(descs))
	for _, d := range descs {
		status := ProviderStatus{
			Descriptor: d,
			Active:     d.ID == active,
		}
		if stats, ok := a.registry.Stats(d.ID); ok {
			status.Stats = stats
		}
		if breakers := a.chain.Breakers(); breakers != nil {
			status.Breaker = breakers.Health(d.ID).State.String()
		}
		out = append(out, status)
	}
	return out
}

// ProbeResult is the outcome of one manual provider probe.
type ProbeResult struct {
	Provider string        `json:"provider"`
	OK       bool          `json:"ok"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
	Kind     string        `json:"kind,omitempty"`
}

// Probe runs a single embedding against one provider, bypassing the chain.
// It reports latency and the classified failure kind on error.
func (a *Admin) Probe(ctx context.Context, providerID string) ProbeResult {
	result := ProbeResult{Provider: providerID}

	provider, ok := a.registry.Get(providerID)
	if !ok {
		err := embedding.NewError(embedding.KindProviderNotFound, providerID, "provider not registered")
		result.Error = err.Error()
		result.Kind = string(err.Kind)
		return result
	}

	start := a.now()
	_, err := provider.Embed(ctx, "probe")
	result.Latency = a.now().Sub(start)

	if err != nil {
		classified := embedding.Classify(providerID, err)
		result.Error = classified.Error()
		result.Kind = string(classified.Kind)
		a.logger.Warn("provider probe failed",
			zap.String("provider", providerID),
			zap.String("kind", string(classified.Kind)),
			zap.Duration("latency", result.Latency))
		return result
	}

	result.OK = true
	return result
}

// SetActive switches the default provider.
func (a *Admin) SetActive(id string) error {
	return a.registry.SetActive(id)
}

// SetOrder replaces the chain's fallback order.
func (a *Admin) SetOrder(ids []string) error {
	return a.chain.SetOrder(ids)
}

// ResetBreaker closes a provider's circuit breaker.
func (a *Admin) ResetBreaker(id string) {
	if breakers := a.chain.Breakers(); breakers != nil {
		breakers.Reset(id)
	}
}

// BenchmarkResult summarizes a provider benchmark run.
type BenchmarkResult struct {
	Provider   string        `json:"provider"`
	Iterations int           `json:"iterations"`
	Failures   int           `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
	MinLatency time.Duration `json:"min_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	Throughput float64       `json:"throughput_per_sec"`
}

// Benchmark embeds text n times against one provider and reports latency
// distribution and throughput. Sequential on purpose: concurrent probes
// would measure contention, not the provider.
func (a *Admin) Benchmark(ctx context.Context, providerID, text string, n int) (BenchmarkResult, error) {
	if n <= 0 {
		n = 10
	}
	if text == "" {
		text = "benchmark probe text"
	}
	result := BenchmarkResult{Provider: providerID, Iterations: n}

	provider, ok := a.registry.Get(providerID)
	if !ok {
		return result, embedding.NewError(embedding.KindProviderNotFound, providerID, "provider not registered")
	}

	var successTotal time.Duration
	runStart := a.now()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		start := a.now()
		_, err := provider.Embed(ctx, text)
		latency := a.now().Sub(start)

		if err != nil {
			result.Failures++
			continue
		}
		successTotal += latency
		if result.MinLatency == 0 || latency < result.MinLatency {
			result.MinLatency = latency
		}
		if latency > result.MaxLatency {
			result.MaxLatency = latency
		}
	}
	elapsed := a.now().Sub(runStart)

	completed := n - result.Failures
	if completed > 0 {
		result.AvgLatency = successTotal / time.Duration(completed)
	}
	if elapsed > 0 {
		result.Throughput = float64(completed) / elapsed.Seconds()
	}

	a.logger.Info("provider benchmark finished",
		zap.String("provider", providerID),
		zap.Int("iterations", n),
		zap.Int("failures", result.Failures),
		zap.Duration("avg_latency", result.AvgLatency))
	return result, nil
}
