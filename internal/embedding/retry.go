package embedding

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy controls re-attempts of a single operation against a single provider.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration

	// Multiplier grows the delay between successive attempts.
	Multiplier float64

	// Jitter randomizes each delay by up to +-50% to avoid synchronized
	// retries from concurrent callers.
	Jitter bool
}

// DefaultPolicy returns the standard retry policy: 3 attempts with
// 500ms/1000ms waits between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.Multiplier == 0 {
		p.Multiplier = 2
	}
}

// delay returns the backoff before attempt+1, where attempt is 1-based.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.Jitter {
		// +-50%
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Retry executes op, normalizing failures and re-attempting recoverable ones
// with exponential backoff. Non-recoverable errors fail fast on any attempt,
// including the first. A provider-supplied RetryAfter hint extends the
// computed delay when larger.
//
// The wrapped operation must be safe to repeat; embedding calls are
// idempotent by nature.
func Retry(ctx context.Context, provider string, policy Policy, op func(ctx context.Context) error) error {
	policy.ApplyDefaults()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		classified := Classify(provider, err)
		// An open breaker outlives any backoff window; further attempts
		// against this provider are pointless even though the condition is
		// transient at chain level.
		if classified.Kind == KindCircuitOpen {
			return classified
		}
		if !classified.Recoverable || attempt >= policy.MaxAttempts {
			return classified
		}

		wait := policy.delay(attempt)
		if classified.RetryAfter > wait {
			wait = classified.RetryAfter
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return Classify(provider, err)
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
