package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable in-memory provider for chain tests.
type fakeProvider struct {
	desc    Descriptor
	embedFn func(ctx context.Context) error
	calls   int
	closed  bool
}

func newFakeProvider(id string, embedFn func(ctx context.Context) error) *fakeProvider {
	return &fakeProvider{
		desc: Descriptor{
			ID:           id,
			Dimensions:   4,
			Capabilities: []Capability{CapabilityEmbed, CapabilityEmbedBatch},
		},
		embedFn: embedFn,
	}
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.embedFn != nil {
		if err := p.embedFn(ctx); err != nil {
			return nil, err
		}
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	if p.embedFn != nil {
		if err := p.embedFn(ctx); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func (p *fakeProvider) Info() Descriptor { return p.desc }

func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) Close() error { p.closed = true; return nil }

func alwaysFail(code int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return &StatusError{Code: code}
	}
}

// fastRetry keeps chain tests quick while preserving the retry structure.
var fastRetry = Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2}

func newTestChain(t *testing.T, cfg ChainConfig, providers ...*fakeProvider) (*Chain, *Registry) {
	t.Helper()
	reg := NewRegistry(nil, nil)
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry
	}
	return NewChain(reg, cfg, nil, nil), reg
}

func TestChainFirstProviderWins(t *testing.T) {
	p1 := newFakeProvider("p1", nil)
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1", "p2"}}, p1, p2)

	vec, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, "p1", result.Provider)
	assert.Equal(t, 1, result.Attempted)
	assert.Empty(t, result.Failures)
	assert.Zero(t, p2.calls, "later providers are never touched on success")
}

func TestChainOrderedFallback(t *testing.T) {
	p1 := newFakeProvider("p1", alwaysFail(503))
	p2 := newFakeProvider("p2", nil)
	p3 := newFakeProvider("p3", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1", "p2", "p3"}}, p1, p2, p3)

	vec, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, 2, result.Attempted)
	assert.Zero(t, p3.calls, "providers after the winner are never called")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "p1", result.Failures[0].Provider)
	assert.Equal(t, KindNetwork, result.Failures[0].Kind)
}

func TestChainAllProvidersFailed(t *testing.T) {
	p1 := newFakeProvider("p1", alwaysFail(503))
	p2 := newFakeProvider("p2", alwaysFail(500))
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1", "p2"}}, p1, p2)

	_, result, err := chain.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, KindAllProvidersFailed, KindOf(err))
	assert.Equal(t, 2, result.Attempted)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "p1", result.Failures[0].Provider)
	assert.Equal(t, "p2", result.Failures[1].Provider)

	extracted, ok := ChainResultFrom(err)
	require.True(t, ok, "aggregate error carries the per-provider failures")
	assert.Len(t, extracted.Failures, 2)
}

func TestChainNonRecoverableSkipsRetriesButFallsThrough(t *testing.T) {
	p1 := newFakeProvider("p1", alwaysFail(401))
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1", "p2"}}, p1, p2)

	_, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, 1, p1.calls, "authentication failure is not re-attempted")
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, KindAuthentication, result.Failures[0].Kind)
}

func TestChainCircuitOpenSkipsProvider(t *testing.T) {
	p1 := newFakeProvider("p1", alwaysFail(503))
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{
		Providers:      []string{"p1", "p2"},
		BreakerEnabled: true,
		Breaker:        BreakerConfig{Threshold: 2},
	}, p1, p2)

	// One chain execution makes two failed attempts against p1, reaching
	// the threshold.
	_, _, err := chain.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, StateOpen, chain.Breakers().Health("p1").State)

	callsBefore := p1.calls
	_, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, callsBefore, p1.calls, "open breaker prevents the network attempt")
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, 1, result.Attempted, "skipped providers do not count as attempted")
	require.NotEmpty(t, result.Failures)
	assert.Equal(t, KindCircuitOpen, result.Failures[0].Kind)
	assert.True(t, result.Failures[0].Skipped)
}

func TestChainBreakerOpeningMidRetryStopsAttempts(t *testing.T) {
	p1 := newFakeProvider("p1", alwaysFail(503))
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{
		Providers:      []string{"p1", "p2"},
		Retry:          Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
		BreakerEnabled: true,
		Breaker:        BreakerConfig{Threshold: 2},
	}, p1, p2)

	_, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, 2, p1.calls, "the retry after the breaker trips is rejected before the provider")
	assert.Equal(t, StateOpen, chain.Breakers().Health("p1").State)
	assert.Equal(t, "p2", result.Provider)
	require.NotEmpty(t, result.Failures)
	assert.Equal(t, "p1", result.Failures[0].Provider)
	assert.Equal(t, KindCircuitOpen, result.Failures[0].Kind)
}

func TestChainBreakerRecoversAfterSuccess(t *testing.T) {
	failing := true
	p1 := newFakeProvider("p1", func(ctx context.Context) error {
		if failing {
			return &StatusError{Code: 503}
		}
		return nil
	})
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{
		Providers:      []string{"p1", "p2"},
		BreakerEnabled: true,
		Breaker:        BreakerConfig{Threshold: 2, CoolDown: 10 * time.Millisecond},
	}, p1, p2)

	_, _, _ = chain.Embed(context.Background(), "hello")
	require.Equal(t, StateOpen, chain.Breakers().Health("p1").State)

	failing = false
	time.Sleep(15 * time.Millisecond)

	_, result, err := chain.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "p1", result.Provider, "half-open trial succeeds and restores the provider")
	assert.Equal(t, StateClosed, chain.Breakers().Health("p1").State)
}

func TestChainUnknownProviderSkipped(t *testing.T) {
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"ghost", "p2"}}, p2)

	_, result, err := chain.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider)
	assert.Equal(t, 1, result.Attempted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, KindProviderNotFound, result.Failures[0].Kind)
	assert.True(t, result.Failures[0].Skipped)
}

func TestChainBudgetEnforced(t *testing.T) {
	slow := newFakeProvider("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{
		Providers: []string{"slow", "p2"},
		Retry:     Policy{MaxAttempts: 1, InitialDelay: time.Millisecond},
		MaxTotal:  50 * time.Millisecond,
	}, slow, p2)

	start := time.Now()
	_, result, err := chain.Embed(context.Background(), "hello")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "p2", result.Provider, "slow provider times out and the chain falls through")
	assert.Less(t, elapsed, 500*time.Millisecond, "per-call timeout is capped by the remaining budget")
	assert.Equal(t, KindTimeout, result.Failures[0].Kind)
}

func TestChainBudgetExhaustedSkipsRemaining(t *testing.T) {
	slow := newFakeProvider("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	never := newFakeProvider("never", alwaysFail(503))
	chain, _ := newTestChain(t, ChainConfig{
		Providers: []string{"slow", "never"},
		Retry:     Policy{MaxAttempts: 1, InitialDelay: time.Millisecond},
		MaxTotal:  20 * time.Millisecond,
	}, slow, never)

	_, result, err := chain.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Zero(t, never.calls, "no provider starts after the budget is spent")
	require.Len(t, result.Failures, 2)
	assert.True(t, result.Failures[1].Skipped)
	assert.Equal(t, KindTimeout, result.Failures[1].Kind)
}

func TestChainRejectsEmptyInput(t *testing.T) {
	p1 := newFakeProvider("p1", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1"}}, p1)

	_, _, err := chain.Embed(context.Background(), "   ")
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, _, err = chain.EmbedBatch(context.Background(), nil)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, _, err = chain.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.Equal(t, KindInvalidInput, KindOf(err))

	assert.Zero(t, p1.calls, "invalid input never reaches a provider")
}

func TestChainBatchStaysOnOneProvider(t *testing.T) {
	p1 := newFakeProvider("p1", nil)
	p2 := newFakeProvider("p2", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1", "p2"}}, p1, p2)

	vecs, result, err := chain.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, "p1", result.Provider)
	assert.Equal(t, 1, p1.calls, "the whole batch goes to a single provider call")
	assert.Zero(t, p2.calls)
}

func TestChainDefaultOrderFromRegistry(t *testing.T) {
	remote := newFakeProvider("remote", nil)
	remote.desc.CostPerCall = 0.01
	local := newFakeProvider("local", nil)
	local.desc.Local = true

	chain, _ := newTestChain(t, ChainConfig{}, remote, local)

	_, result, err := chain.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "local", result.Provider, "empty order falls back to locals-first registry order")
}

func TestChainEmbedderInterface(t *testing.T) {
	p1 := newFakeProvider("p1", nil)
	chain, _ := newTestChain(t, ChainConfig{Providers: []string{"p1"}}, p1)

	vec, err := chain.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	vecs, err := chain.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}
