package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "broken", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected wrapped errFlaky, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "conflict", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})
	if err != errFlaky {
		t.Fatalf("expected unwrapped errFlaky, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func(ctx context.Context) error {
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})
	clock := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errFlaky })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	clock = clock.Add(time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", cb.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCall(t *testing.T) {
	_, err := Call(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	v, err := Call(context.Background(), time.Second, "fast", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q %v", v, err)
	}

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Call(parent, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	v, err = Call(context.Background(), 0, "unbounded", func(ctx context.Context) (string, error) {
		return "direct", nil
	})
	if err != nil || v != "direct" {
		t.Fatalf("expected direct call, got %q %v", v, err)
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errMiss := errors.New("miss")
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errMiss) },
	})

	for i := 0; i < 5; i++ {
		if _, err := Do(cb, func() (string, error) { return "", errMiss }); !errors.Is(err, errMiss) {
			t.Fatalf("expected errMiss passed through, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("misses must not open the breaker, got %s", cb.State())
	}

	if _, err := Do(cb, func() (string, error) { return "", errFlaky }); !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	v, err := Do(cb, func() (string, error) { return "unreachable", nil })
	if !errors.Is(err, ErrCircuitOpen) || v != "" {
		t.Fatalf("expected rejection with zero value, got %q %v", v, err)
	}
	if c := cb.Counts(); c.State != StateOpen || c.Rejected != 1 || c.ConsecutiveFailures != 1 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	clock := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return clock }

	_ = cb.Execute(func() error { return errFlaky })
	clock = clock.Add(time.Second)
	if err := cb.Execute(func() error { return errFlaky }); !errors.Is(err, errFlaky) {
		t.Fatalf("probe should run and fail, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected re-opened breaker, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection right after re-open, got %v", err)
	}

	cb.Reset()
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected call after Reset, got %v", err)
	}
}

func TestRetryAttemptTimeout(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "slow", RetryConfig{
		MaxAttempts:    2,
		InitialDelay:   time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if calls != 2 {
		t.Errorf("each attempt should get its own deadline, got %d calls", calls)
	}
}

func TestBackoffIsBounded(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFraction: 0.1}
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.Backoff(attempt)
		if d <= 0 || d > time.Second {
			t.Errorf("attempt %d: delay %v out of range", attempt, d)
		}
	}
	if d := cfg.Backoff(1); d < 90*time.Millisecond || d > 110*time.Millisecond {
		t.Errorf("first delay %v outside jitter band", d)
	}
}
