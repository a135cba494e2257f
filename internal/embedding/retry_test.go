package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDelaySchedule(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 500*time.Millisecond, p.delay(1), "wait after first failure")
	assert.Equal(t, 1000*time.Millisecond, p.delay(2), "wait after second failure")
	assert.Equal(t, 2000*time.Millisecond, p.delay(3))
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	p := Policy{InitialDelay: 100 * time.Millisecond, Multiplier: 2, Jitter: true}

	for i := 0; i < 50; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		calls++
		return &StatusError{Code: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestRetryFailsFastOnAuthentication(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		calls++
		return &StatusError{Code: 401, Body: "invalid api key"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-recoverable failures are not re-attempted")
	assert.Equal(t, KindAuthentication, KindOf(err))
}

func TestRetryFailsFastOnInvalidInput(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "p1", DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return NewError(KindInvalidInput, "p1", "text is empty")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffTiming(t *testing.T) {
	// Scaled-down schedule keeping the 1x/2x shape: 20ms then 40ms.
	policy := Policy{MaxAttempts: 3, InitialDelay: 20 * time.Millisecond, Multiplier: 2}

	start := time.Now()
	_ = Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		return &StatusError{Code: 503}
	})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond, "waits 20ms then 40ms between attempts")
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	policy := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2}

	start := time.Now()
	_ = Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		return &StatusError{Code: 429, RetryAfter: 50 * time.Millisecond}
	})

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"provider hint extends the computed delay")
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, "p1", policy, func(ctx context.Context) error {
			calls++
			return &StatusError{Code: 503}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "cancellation interrupts the backoff wait")
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}

func TestRetryClassifiesForeignErrors(t *testing.T) {
	policy := Policy{MaxAttempts: 1}

	err := Retry(context.Background(), "p1", policy, func(ctx context.Context) error {
		return errors.New("tokenizer panic")
	})

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindProvider, ee.Kind)
	assert.Equal(t, "p1", ee.Provider)
}
