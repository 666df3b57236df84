package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayForCapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  5 * time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
	for attempt := 0; attempt < 64; attempt++ {
		d := cfg.DelayFor(attempt)
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, cfg.MaxDelay)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
	}
}

func TestDelayForGrows(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  5 * time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
	if d := cfg.DelayFor(0); d != 5*time.Second {
		t.Errorf("attempt 0 delay = %v, want 5s", d)
	}
	if d := cfg.DelayFor(3); d != 40*time.Second {
		t.Errorf("attempt 3 delay = %v, want 40s", d)
	}
}

func TestRetryWithBackoffStopsOnAuthError(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return errors.New("LOGIN failed: invalid credentials")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("auth error retried %d times, want 1 attempt", calls)
	}
}

func TestRetryWithBackoffRetriesTransient(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2.0}
	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2.0}
	err := RetryWithBackoff(ctx, cfg, func() error {
		return errors.New("i/o timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"auth", errors.New("IMAP login failed: NO [AUTHENTICATIONFAILED]"), ErrorAuthentication},
		{"network", errors.New("dial tcp: connection refused"), ErrorNetwork},
		{"timeout", errors.New("read: i/o timeout"), ErrorTimeout},
		{"permanent", errors.New("NO mailbox does not exist"), ErrorPermanent},
		{"unknown", errors.New("something odd"), ErrorTemporary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCircuitBreakerOpensAndProbes(t *testing.T) {
	cb, err := NewCircuitBreaker(2, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCircuitBreaker() error = %v", err)
	}
	fail := func() error { return errors.New("connection reset") }

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state after %d failures = %v, want open", cb.Failures(), cb.State())
	}
	if err := cb.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker admitted a call: %v", err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe after cooldown failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", cb.State())
	}
}
