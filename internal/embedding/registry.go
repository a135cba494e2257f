package embedding

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResourceGate reports whether resource-heavy local providers may run.
// Implemented by resource.Monitor; a nil gate allows everything.
type ResourceGate interface {
	// LocalAllowed returns false when host memory is below the hard floor.
	LocalAllowed() bool
}

// TokenUsageReporter is implemented by providers whose API responses carry
// token counts. TakeTokenUsage drains the tokens accumulated since the last
// call, so stats attribution works without threading usage through every
// return path.
type TokenUsageReporter interface {
	TakeTokenUsage() int64
}

// Stats holds running counters for one provider. Updated after every
// attempt, success or failure; used for observability, never control flow.
type Stats struct {
	mu           sync.Mutex
	totalCalls   int64
	totalFailure int64
	totalLatency time.Duration
	totalTokens  int64
	totalCost    float64
}

// Record updates the counters for one attempt.
func (s *Stats) Record(latency time.Duration, tokens int64, cost float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalCalls++
	s.totalLatency += latency
	s.totalTokens += tokens
	s.totalCost += cost
	if err != nil {
		s.totalFailure++
	}
}

// StatsSnapshot is a point-in-time copy of a provider's counters.
type StatsSnapshot struct {
	TotalCalls     int64         `json:"total_calls"`
	TotalFailures  int64         `json:"total_failures"`
	TotalLatency   time.Duration `json:"total_latency"`
	TotalTokens    int64         `json:"total_tokens"`
	TotalCost      float64       `json:"total_cost"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalCalls:    s.totalCalls,
		TotalFailures: s.totalFailure,
		TotalLatency:  s.totalLatency,
		TotalTokens:   s.totalTokens,
		TotalCost:     s.totalCost,
	}
	if s.totalCalls > 0 {
		snap.AverageLatency = s.totalLatency / time.Duration(s.totalCalls)
	}
	return snap
}

// Reset zeroes the counters. Administrative action only.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalCalls = 0
	s.totalFailure = 0
	s.totalLatency = 0
	s.totalTokens = 0
	s.totalCost = 0
}

// entry pairs a provider implementation with its lazily created stats.
type entry struct {
	impl  Provider
	desc  Descriptor
	stats *Stats
}

// Registry holds the configured providers and their capability metadata.
//
// It is an explicit object constructed at startup and passed by injection;
// there is no package-level instance. The provider set is effectively
// immutable after startup; switching the active provider is a single atomic
// reference swap visible consistently to concurrent readers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // registration order, for stable listing

	activeMu sync.RWMutex
	active   *entry

	gate   ResourceGate
	logger *zap.Logger
}

// NewRegistry creates an empty registry. gate may be nil to disable
// resource gating of local providers.
func NewRegistry(gate ResourceGate, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		gate:    gate,
		logger:  logger,
	}
}

// Register adds a provider. The first registered provider becomes active.
// Registration happens at startup, before concurrent use.
func (r *Registry) Register(p Provider) error {
	desc := p.Info()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return NewError(KindConfiguration, desc.ID, "provider already registered")
	}

	e := &entry{impl: p, desc: desc, stats: &Stats{}}
	r.entries[desc.ID] = e
	r.order = append(r.order, desc.ID)

	r.activeMu.Lock()
	if r.active == nil {
		r.active = e
	}
	r.activeMu.Unlock()

	r.logger.Info("provider registered",
		zap.String("provider", desc.ID),
		zap.Bool("local", desc.Local),
		zap.Int("dimensions", desc.Dimensions))
	return nil
}

// Get returns the provider for id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.impl, true
}

// Descriptor returns the static descriptor for id.
func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Stats returns the stats snapshot for id.
func (r *Registry) Stats(id string) (StatsSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return StatsSnapshot{}, false
	}
	return e.stats.Snapshot(), true
}

// recordAttempt updates stats for one provider attempt.
func (r *Registry) recordAttempt(id string, latency time.Duration, err error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	var tokens int64
	if reporter, ok := e.impl.(TokenUsageReporter); ok {
		tokens = reporter.TakeTokenUsage()
	}
	e.stats.Record(latency, tokens, e.desc.CostPerCall, err)
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// SetActive switches the active default provider. The swap is atomic with
// respect to concurrent Active readers; no partial state is ever visible.
func (r *Registry) SetActive(id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return NewError(KindProviderNotFound, id, "provider not registered")
	}

	r.activeMu.Lock()
	r.active = e
	r.activeMu.Unlock()

	r.logger.Info("active provider switched", zap.String("provider", id))
	return nil
}

// Active returns the current default provider.
func (r *Registry) Active() (Provider, bool) {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()

	if r.active == nil {
		return nil, false
	}
	return r.active.impl, true
}

// ActiveID returns the id of the current default provider, or "".
func (r *Registry) ActiveID() string {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()

	if r.active == nil {
		return ""
	}
	return r.active.desc.ID
}

// LocalAllowed reports whether local providers may run right now. Cheap:
// delegates to the resource gate without any network call.
func (r *Registry) LocalAllowed() bool {
	if r.gate == nil {
		return true
	}
	return r.gate.LocalAllowed()
}

// DefaultOrder returns the recommended fallback ordering: local providers
// first (no cost), then remote providers by ascending estimated cost. Ties
// keep registration order.
func (r *Registry) DefaultOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)

	sort.SliceStable(ids, func(i, j int) bool {
		a, b := r.entries[ids[i]].desc, r.entries[ids[j]].desc
		if a.Local != b.Local {
			return a.Local
		}
		return a.CostPerCall < b.CostPerCall
	})
	return ids
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, id := range r.order {
		if err := r.entries[id].impl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
