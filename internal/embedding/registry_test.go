package embedding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil, nil)

	p1 := newFakeProvider("p1", nil)
	require.NoError(t, reg.Register(p1))

	got, ok := reg.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "p1", got.Info().ID)

	_, ok = reg.Get("ghost")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(nil, nil)

	require.NoError(t, reg.Register(newFakeProvider("p1", nil)))
	err := reg.Register(newFakeProvider("p1", nil))
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestRegistryRejectsInvalidDescriptor(t *testing.T) {
	reg := NewRegistry(nil, nil)

	bad := newFakeProvider("", nil)
	err := reg.Register(bad)
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestRegistryFirstProviderBecomesActive(t *testing.T) {
	reg := NewRegistry(nil, nil)

	require.NoError(t, reg.Register(newFakeProvider("p1", nil)))
	require.NoError(t, reg.Register(newFakeProvider("p2", nil)))

	assert.Equal(t, "p1", reg.ActiveID())
}

func TestRegistrySetActive(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Register(newFakeProvider("p1", nil)))
	require.NoError(t, reg.Register(newFakeProvider("p2", nil)))

	require.NoError(t, reg.SetActive("p2"))
	assert.Equal(t, "p2", reg.ActiveID())

	active, ok := reg.Active()
	require.True(t, ok)
	assert.Equal(t, "p2", active.Info().ID)

	err := reg.SetActive("ghost")
	require.Error(t, err)
	assert.Equal(t, KindProviderNotFound, KindOf(err))
	assert.Equal(t, "p2", reg.ActiveID(), "failed switch leaves the active provider untouched")
}

func TestRegistryActiveSwapIsAtomic(t *testing.T) {
	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Register(newFakeProvider("p1", nil)))
	require.NoError(t, reg.Register(newFakeProvider("p2", nil)))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			id := reg.ActiveID()
			assert.Contains(t, []string{"p1", "p2"}, id,
				"readers only ever see a fully registered provider")
		}
	}()

	for i := 0; i < 200; i++ {
		target := "p1"
		if i%2 == 0 {
			target = "p2"
		}
		require.NoError(t, reg.SetActive(target))
	}
	close(stop)
	wg.Wait()
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(nil, nil)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(newFakeProvider(id, nil)))
	}

	descs := reg.List()
	require.Len(t, descs, 3)
	assert.Equal(t, "c", descs[0].ID)
	assert.Equal(t, "a", descs[1].ID)
	assert.Equal(t, "b", descs[2].ID)
}

func TestRegistryDefaultOrder(t *testing.T) {
	reg := NewRegistry(nil, nil)

	expensive := newFakeProvider("expensive", nil)
	expensive.desc.CostPerCall = 0.05
	cheap := newFakeProvider("cheap", nil)
	cheap.desc.CostPerCall = 0.001
	local := newFakeProvider("local", nil)
	local.desc.Local = true

	require.NoError(t, reg.Register(expensive))
	require.NoError(t, reg.Register(cheap))
	require.NoError(t, reg.Register(local))

	assert.Equal(t, []string{"local", "cheap", "expensive"}, reg.DefaultOrder())
}

func TestRegistryStats(t *testing.T) {
	reg := NewRegistry(nil, nil)
	p := newFakeProvider("p1", nil)
	p.desc.CostPerCall = 0.01
	require.NoError(t, reg.Register(p))

	reg.recordAttempt("p1", 20*time.Millisecond, nil)
	reg.recordAttempt("p1", 40*time.Millisecond, assert.AnError)

	snap, ok := reg.Stats("p1")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Equal(t, 60*time.Millisecond, snap.TotalLatency)
	assert.Equal(t, 30*time.Millisecond, snap.AverageLatency)
	assert.InDelta(t, 0.02, snap.TotalCost, 1e-9)

	_, ok = reg.Stats("ghost")
	assert.False(t, ok)
}

// meteredProvider is a fake that reports token usage like the OpenAI client.
type meteredProvider struct {
	fakeProvider
	pending int64
}

func (p *meteredProvider) TakeTokenUsage() int64 {
	tokens := p.pending
	p.pending = 0
	return tokens
}

func TestRegistryStatsDrainTokenUsage(t *testing.T) {
	reg := NewRegistry(nil, nil)
	p := &meteredProvider{fakeProvider: *newFakeProvider("metered", nil)}
	require.NoError(t, reg.Register(p))

	p.pending = 42
	reg.recordAttempt("metered", 10*time.Millisecond, nil)
	p.pending = 8
	reg.recordAttempt("metered", 10*time.Millisecond, nil)

	snap, ok := reg.Stats("metered")
	require.True(t, ok)
	assert.Equal(t, int64(50), snap.TotalTokens)
	assert.Zero(t, p.pending, "usage is drained, not re-counted")
}

type fakeGate struct {
	allowed bool
}

func (g *fakeGate) LocalAllowed() bool { return g.allowed }

func TestRegistryResourceGate(t *testing.T) {
	gate := &fakeGate{allowed: true}
	reg := NewRegistry(gate, nil)
	assert.True(t, reg.LocalAllowed())

	gate.allowed = false
	assert.False(t, reg.LocalAllowed())

	noGate := NewRegistry(nil, nil)
	assert.True(t, noGate.LocalAllowed(), "nil gate allows everything")
}

func TestChainSkipsLocalUnderResourcePressure(t *testing.T) {
	gate := &fakeGate{allowed: false}
	reg := NewRegistry(gate, nil)

	local := newFakeProvider("local", nil)
	local.desc.Local = true
	remote := newFakeProvider("remote", nil)
	require.NoError(t, reg.Register(local))
	require.NoError(t, reg.Register(remote))

	chain := NewChain(reg, ChainConfig{Providers: []string{"local", "remote"}, Retry: fastRetry}, nil, nil)

	_, result, err := chain.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "remote", result.Provider)
	assert.Zero(t, local.calls, "gated local provider is never invoked")
	assert.True(t, result.Failures[0].Skipped)
}

func TestRegistryClose(t *testing.T) {
	reg := NewRegistry(nil, nil)
	p1 := newFakeProvider("p1", nil)
	p2 := newFakeProvider("p2", nil)
	require.NoError(t, reg.Register(p1))
	require.NoError(t, reg.Register(p2))

	require.NoError(t, reg.Close())
	assert.True(t, p1.closed)
	assert.True(t, p2.closed)
}
