package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChainConfig configures the fallback chain.
type ChainConfig struct {
	// Providers is the ordered list of provider ids to try. Empty means
	// the registry's default order (locals first, then by ascending cost).
	Providers []string `koanf:"providers"`

	// Retry is the per-provider retry policy.
	Retry Policy `koanf:"retry"`

	// MaxTotal bounds the whole chain execution, retries and waits included.
	MaxTotal time.Duration `koanf:"max_total"`

	// PerCallTimeout bounds each individual provider attempt.
	PerCallTimeout time.Duration `koanf:"per_call_timeout"`

	// BreakerEnabled turns per-provider circuit breaking on.
	BreakerEnabled bool `koanf:"breaker_enabled"`

	// Breaker tunes the circuit breakers when enabled.
	Breaker BreakerConfig `koanf:"breaker"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChainConfig) ApplyDefaults() {
	c.Retry.ApplyDefaults()
	c.Breaker.ApplyDefaults()
	if c.MaxTotal == 0 {
		c.MaxTotal = 30 * time.Second
	}
	if c.PerCallTimeout == 0 {
		c.PerCallTimeout = 10 * time.Second
	}
}

// AttemptFailure records why one provider in the chain did not produce a
// result: either its attempts failed or it was skipped before any attempt.
type AttemptFailure struct {
	// Provider is the provider id.
	Provider string `json:"provider"`

	// Kind is the classified failure kind.
	Kind Kind `json:"kind"`

	// Err is the final classified error for this provider.
	Err *Error `json:"-"`

	// Skipped reports that no network attempt was made (circuit open,
	// unknown id, resource gate).
	Skipped bool `json:"skipped"`
}

// ChainResult summarizes one chain execution.
type ChainResult struct {
	// Provider is the id that ultimately served the request, or "" when the
	// chain failed.
	Provider string `json:"provider"`

	// Attempted is the number of providers actually invoked. Skipped
	// providers do not count.
	Attempted int `json:"attempted"`

	// Elapsed is the total wall time for the chain execution.
	Elapsed time.Duration `json:"elapsed"`

	// Failures lists every provider that failed or was skipped, in order.
	Failures []AttemptFailure `json:"failures"`
}

// AllProvidersFailed constructs the terminal aggregate error for an exhausted
// chain. The per-provider failures ride along under the "chain_result" key.
func AllProvidersFailed(result ChainResult) *Error {
	parts := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Kind))
	}
	e := NewError(KindAllProvidersFailed, "",
		fmt.Sprintf("all providers failed (%s)", strings.Join(parts, "; ")))
	return e.withContext("chain_result", result)
}

// ChainResultFrom extracts the ChainResult from an aggregate error, if present.
func ChainResultFrom(err error) (ChainResult, bool) {
	ee := Classify("", err)
	if ee == nil || ee.Kind != KindAllProvidersFailed {
		return ChainResult{}, false
	}
	result, ok := ee.Context["chain_result"].(ChainResult)
	return result, ok
}

// Chain executes embedding requests against an ordered list of providers,
// trying each in turn with retries until one succeeds or the list, or the
// time budget, is exhausted.
//
// A Chain is an explicit object built at startup from a Registry; it holds no
// package-level state and is safe for concurrent use.
type Chain struct {
	registry *Registry
	cfg      ChainConfig
	breakers *BreakerSet
	metrics  *Metrics
	logger   *zap.Logger

	orderMu sync.RWMutex
	order   []string

	// now is injectable for tests.
	now func() time.Time
}

// NewChain builds a chain over registry. metrics may be nil.
func NewChain(registry *Registry, cfg ChainConfig, metrics *Metrics, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var breakers *BreakerSet
	if cfg.BreakerEnabled {
		breakers = NewBreakerSet(cfg.Breaker, logger)
	}
	return &Chain{
		registry: registry,
		cfg:      cfg,
		breakers: breakers,
		metrics:  metrics,
		logger:   logger,
		order:    cfg.Providers,
		now:      time.Now,
	}
}

// Breakers exposes the breaker set for health reporting. Nil when breaking
// is disabled.
func (c *Chain) Breakers() *BreakerSet {
	return c.breakers
}

// Order returns the current fallback order. Empty means the registry's
// default order applies.
func (c *Chain) Order() []string {
	c.orderMu.RLock()
	defer c.orderMu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// SetOrder replaces the fallback order at runtime. Every id must be
// registered; in-flight executions keep the order they started with.
func (c *Chain) SetOrder(ids []string) error {
	if len(ids) == 0 {
		return NewError(KindConfiguration, "", "fallback order cannot be empty")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.registry.Get(id); !ok {
			return NewError(KindProviderNotFound, id, "provider not registered")
		}
		if seen[id] {
			return NewError(KindConfiguration, id, "provider listed twice")
		}
		seen[id] = true
	}

	c.orderMu.Lock()
	c.order = append([]string(nil), ids...)
	c.orderMu.Unlock()

	c.logger.Info("fallback order updated", zap.Strings("order", ids))
	return nil
}

// Embed generates an embedding for a single text through the chain.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, ChainResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ChainResult{}, NewError(KindInvalidInput, "", "text is empty")
	}
	var out []float32
	result, err := c.run(ctx, func(ctx context.Context, p Provider) error {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return err
		}
		out = vec
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	return out, result, nil
}

// EmbedBatch generates embeddings for multiple texts through the chain.
// The whole batch goes to one provider; a mid-batch fallback would mix
// vector spaces.
func (c *Chain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, ChainResult, error) {
	if len(texts) == 0 {
		return nil, ChainResult{}, NewError(KindInvalidInput, "", "texts is empty")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ChainResult{}, NewError(KindInvalidInput, "",
				fmt.Sprintf("texts[%d] is empty", i))
		}
	}
	var out [][]float32
	result, err := c.run(ctx, func(ctx context.Context, p Provider) error {
		vecs, err := p.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, result, err
	}
	return out, result, nil
}

// run walks the provider order, applying the breaker, retry policy, and time
// budget to each candidate.
func (c *Chain) run(ctx context.Context, op func(ctx context.Context, p Provider) error) (ChainResult, error) {
	start := c.now()
	deadline := start.Add(c.cfg.MaxTotal)

	order := c.Order()
	if len(order) == 0 {
		order = c.registry.DefaultOrder()
	}
	if len(order) == 0 {
		return ChainResult{}, NewError(KindConfiguration, "", "no providers configured")
	}

	result := ChainResult{}
	for _, id := range order {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			result.Failures = append(result.Failures, AttemptFailure{
				Provider: id,
				Kind:     KindTimeout,
				Err:      NewError(KindTimeout, id, "chain time budget exhausted"),
				Skipped:  true,
			})
			c.logger.Warn("chain budget exhausted before provider",
				zap.String("provider", id),
				zap.Duration("budget", c.cfg.MaxTotal))
			continue
		}

		provider, ok := c.registry.Get(id)
		if !ok {
			result.Failures = append(result.Failures, AttemptFailure{
				Provider: id,
				Kind:     KindProviderNotFound,
				Err:      NewError(KindProviderNotFound, id, "provider not registered"),
				Skipped:  true,
			})
			continue
		}

		if provider.Info().Local && !c.registry.LocalAllowed() {
			result.Failures = append(result.Failures, AttemptFailure{
				Provider: id,
				Kind:     KindProvider,
				Err:      NewError(KindProvider, id, "local provider blocked by resource pressure"),
				Skipped:  true,
			})
			c.logger.Warn("local provider skipped under resource pressure",
				zap.String("provider", id))
			continue
		}

		if c.breakers != nil && !c.breakers.Allow(id) {
			result.Failures = append(result.Failures, AttemptFailure{
				Provider: id,
				Kind:     KindCircuitOpen,
				Err:      NewError(KindCircuitOpen, id, "circuit breaker open"),
				Skipped:  true,
			})
			if c.metrics != nil {
				c.metrics.RecordCircuitRejection(ctx, id)
			}
			continue
		}

		err := c.attempt(ctx, id, provider, remaining, op)
		result.Attempted++
		if err == nil {
			result.Provider = id
			result.Elapsed = c.now().Sub(start)
			if c.metrics != nil {
				c.metrics.RecordChain(ctx, id, result.Attempted, result.Elapsed, true)
			}
			return result, nil
		}

		classified := Classify(id, err)
		result.Failures = append(result.Failures, AttemptFailure{
			Provider: id,
			Kind:     classified.Kind,
			Err:      classified,
		})
		c.logger.Warn("provider failed, falling through",
			zap.String("provider", id),
			zap.String("kind", string(classified.Kind)),
			zap.Error(classified))

		// Caller cancellation ends the chain; the next provider would see
		// the same dead context.
		if ctx.Err() != nil {
			break
		}
	}

	result.Elapsed = c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.RecordChain(ctx, "", result.Attempted, result.Elapsed, false)
	}
	return result, AllProvidersFailed(result)
}

// attempt runs the retry loop for one provider under the per-call timeout,
// capped by the remaining chain budget. The breaker counts every attempt, so
// a provider that keeps failing through its retries trips sooner rather than
// once per chain execution, and once it trips the remaining attempts are
// rejected without a network call.
func (c *Chain) attempt(ctx context.Context, id string, provider Provider, remaining time.Duration, op func(ctx context.Context, p Provider) error) error {
	first := true
	return Retry(ctx, id, c.cfg.Retry, func(ctx context.Context) error {
		// run consumed the breaker's admission for the first attempt; a
		// breaker that opens mid-loop rejects the rest. Re-checking Allow on
		// the first attempt would burn the half-open trial before it runs.
		if !first && c.breakers != nil && !c.breakers.Allow(id) {
			if c.metrics != nil {
				c.metrics.RecordCircuitRejection(ctx, id)
			}
			return NewError(KindCircuitOpen, id, "circuit breaker open")
		}
		first = false

		timeout := c.cfg.PerCallTimeout
		if remaining < timeout {
			timeout = remaining
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := c.now()
		err := op(callCtx, provider)
		latency := c.now().Sub(start)

		c.registry.recordAttempt(id, latency, err)
		if c.breakers != nil {
			if err != nil {
				c.breakers.RecordFailure(id)
			} else {
				c.breakers.RecordSuccess(id)
			}
		}
		if c.metrics != nil {
			c.metrics.RecordAttempt(ctx, id, latency, err)
		}
		return err
	})
}

// EmbedQuery generates a query embedding. Satisfies the vector store's
// Embedder interface.
func (c *Chain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := c.Embed(ctx, text)
	return vec, err
}

// EmbedDocuments generates document embeddings. Satisfies the vector store's
// Embedder interface.
func (c *Chain) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := c.EmbedBatch(ctx, texts)
	return vecs, err
}
