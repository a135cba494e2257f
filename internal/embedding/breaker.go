package embedding

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a circuit breaker state.
type State int32

const (
	// StateClosed passes requests through (initial state).
	StateClosed State = iota
	// StateOpen rejects requests without a network attempt.
	StateOpen
	// StateHalfOpen admits exactly one trial request.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	Threshold int

	// CoolDown is the initial open duration before a trial is allowed.
	CoolDown time.Duration

	// MaxCoolDown bounds the exponential cool-down growth.
	MaxCoolDown time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 5
	}
	if c.CoolDown == 0 {
		c.CoolDown = 30 * time.Second
	}
	if c.MaxCoolDown == 0 {
		c.MaxCoolDown = 5 * time.Minute
	}
}

// Health is a point-in-time snapshot of one provider's breaker state.
type Health struct {
	State               State
	ConsecutiveFailures int
	LastFailureAt       time.Time
	OpenedUntil         time.Time
}

// breaker is the per-provider state machine. One instance exists per provider
// id, shared by every concurrent chain execution; all mutation happens under
// mu so concurrent failures cannot under-count and transitions are never lost.
type breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	openedUntil         time.Time
	coolDown            time.Duration

	cfg BreakerConfig
}

// allow reports whether a request may proceed now. An Open breaker whose
// cool-down has elapsed transitions to HalfOpen and admits the caller as the
// single trial; later callers are rejected until the trial resolves.
func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if now.Before(b.openedUntil) {
			return false
		}
		b.state = StateHalfOpen
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// recordSuccess closes the breaker and resets the failure count and cool-down.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.state = StateClosed
	b.coolDown = b.cfg.CoolDown
}

// recordFailure counts a failure and opens the breaker when the threshold is
// reached. A failed half-open trial re-opens with a doubled cool-down,
// bounded by MaxCoolDown.
func (b *breaker) recordFailure(now time.Time) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureAt = now

	switch b.state {
	case StateHalfOpen:
		b.coolDown *= 2
		if b.coolDown > b.cfg.MaxCoolDown {
			b.coolDown = b.cfg.MaxCoolDown
		}
		b.state = StateOpen
		b.openedUntil = now.Add(b.coolDown)
		return true
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedUntil = now.Add(b.coolDown)
			return true
		}
	}
	return false
}

// health returns a snapshot under the lock.
func (b *breaker) health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Health{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureAt:       b.lastFailureAt,
		OpenedUntil:         b.openedUntil,
	}
}

// reset returns the breaker to its initial state. Administrative action only.
func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFailures = 0
	b.lastFailureAt = time.Time{}
	b.openedUntil = time.Time{}
	b.coolDown = b.cfg.CoolDown
}

// BreakerSet owns one breaker per provider id, created lazily on first use.
// No cross-provider lock exists; providers trip and recover independently.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      BreakerConfig
	logger   *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewBreakerSet creates a BreakerSet with the given configuration.
func NewBreakerSet(cfg BreakerConfig, logger *zap.Logger) *BreakerSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &BreakerSet{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// get returns the breaker for id, creating it if needed.
func (s *BreakerSet) get(id string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[id]
	if !ok {
		b = &breaker{cfg: s.cfg, coolDown: s.cfg.CoolDown}
		s.breakers[id] = b
	}
	return b
}

// Allow reports whether a request to provider id may proceed.
func (s *BreakerSet) Allow(id string) bool {
	return s.get(id).allow(s.now())
}

// RecordSuccess records a successful call against provider id.
func (s *BreakerSet) RecordSuccess(id string) {
	s.get(id).recordSuccess()
}

// RecordFailure records a failed call against provider id.
func (s *BreakerSet) RecordFailure(id string) {
	b := s.get(id)
	if b.recordFailure(s.now()) {
		h := b.health()
		s.logger.Warn("circuit breaker opened",
			zap.String("provider", id),
			zap.Int("consecutive_failures", h.ConsecutiveFailures),
			zap.Time("opened_until", h.OpenedUntil))
	}
}

// Health returns the breaker snapshot for provider id.
func (s *BreakerSet) Health(id string) Health {
	return s.get(id).health()
}

// Reset returns provider id's breaker to closed. Administrative action only.
func (s *BreakerSet) Reset(id string) {
	s.get(id).reset()
	s.logger.Info("circuit breaker reset", zap.String("provider", id))
}
