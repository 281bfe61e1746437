package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// testConfig returns a config with deterministic jitter and recorded sleeps.
func testConfig(t *testing.T, sleeps *[]time.Duration) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.rand = func() float64 { return 0.5 } // jitter factor 1.0
	cfg.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return cfg
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	t.Helper()

	var sleeps []time.Duration
	cfg := testConfig(t, &sleeps)

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
	if len(sleeps) != 0 {
		t.Errorf("sleeps: got %d, want 0", len(sleeps))
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	t.Helper()

	var sleeps []time.Duration
	cfg := testConfig(t, &sleeps)
	cfg.IsRetryable = func(error) bool { return true }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("sleeps: got %d, want 2", len(sleeps))
	}
}

func TestDo_FatalNotRetried(t *testing.T) {
	t.Helper()

	var sleeps []time.Duration
	cfg := testConfig(t, &sleeps)
	fatal := errors.New("bad request")
	cfg.IsRetryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestDo_MaxAttemptsExceeded(t *testing.T) {
	t.Helper()

	var sleeps []time.Duration
	cfg := testConfig(t, &sleeps)
	cfg.MaxAttempts = 4
	cfg.IsRetryable = func(error) bool { return true }

	last := errors.New("still down")
	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return last
	})
	if calls != 4 {
		t.Errorf("calls: got %d, want 4", calls)
	}
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Errorf("expected ErrMaxAttemptsExceeded, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("expected last failure to be wrapped, got %v", err)
	}
	// No sleep after the final attempt.
	if len(sleeps) != 3 {
		t.Errorf("sleeps: got %d, want 3", len(sleeps))
	}
}

func TestDelay_MonotonicAndCapped(t *testing.T) {
	t.Helper()

	cfg := Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}

	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.Delay(attempt)
		if d < prev {
			t.Errorf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > cfg.MaxDelay {
			t.Errorf("delay exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	if got := cfg.Delay(1); got != 500*time.Millisecond {
		t.Errorf("delay(1): got %v, want 500ms", got)
	}
	if got := cfg.Delay(2); got != time.Second {
		t.Errorf("delay(2): got %v, want 1s", got)
	}
	if got := cfg.Delay(10); got != 8*time.Second {
		t.Errorf("delay(10): got %v, want 8s (capped)", got)
	}
}

func TestDo_JitterBounds(t *testing.T) {
	t.Helper()

	nominal := time.Second

	low := jittered(nominal, func() float64 { return 0 })
	if low != 800*time.Millisecond {
		t.Errorf("jitter floor: got %v, want 800ms", low)
	}

	high := jittered(nominal, func() float64 { return 0.9999 })
	if high < 800*time.Millisecond || high >= 1200*time.Millisecond {
		t.Errorf("jitter ceiling: got %v, want below 1.2s", high)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	t.Helper()

	var sleeps []time.Duration
	cfg := testConfig(t, &sleeps)
	cfg.IsRetryable = func(error) bool { return true }

	var attempts []int
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	_ = Do(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("OnRetry attempts: got %v, want [1]", attempts)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	cfg := DefaultConfig()
	cfg.IsRetryable = func(error) bool { return true }
	cfg.rand = func() float64 { return 0.5 }
	cfg.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := Do(ctx, cfg, func() error { return errors.New("transient") })
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("expected ErrContextCancelled, got %v", err)
	}
}
