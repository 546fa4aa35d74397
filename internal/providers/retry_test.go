package providers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{Attempts: attempts, InitialBackoff: time.Millisecond}
}

func TestRetryDoStopsOnSuccess(t *testing.T) {
	calls := 0
	got, err := RetryDo(context.Background(), fastRetry(3), func(int) (string, error) {
		calls++
		if calls < 2 {
			return "", &HTTPError{Status: http.StatusBadGateway}
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("RetryDo = %q, %v", got, err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryDoExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetry(3), func(int) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly 3", calls)
	}
}

func TestRetryDoNoRetryOnAuth(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), fastRetry(3), func(int) (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusUnauthorized}
	})
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryDo(ctx, RetryConfig{Attempts: 5, InitialBackoff: time.Hour}, func(int) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffDoubles(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second}
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := cfg.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	if got := cfg.Backoff(4); got != 3*time.Second {
		t.Errorf("Backoff(4) = %v, want cap 3s", got)
	}
	if got := (RetryConfig{InitialBackoff: time.Minute}).Backoff(1); got != DefaultMaxBackoff {
		t.Errorf("unset cap: Backoff(1) = %v, want %v", got, DefaultMaxBackoff)
	}
}

// TestRetryDoCapsRetryAfter: an hour-long Retry-After must not hold the caller.
func TestRetryDoCapsRetryAfter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := RetryConfig{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	calls := 0
	start := time.Now()
	_, err := RetryDo(ctx, cfg, func(int) (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusTooManyRequests, RetryAfter: time.Hour}
	})
	elapsed := time.Since(start)

	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want the upstream 429", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if elapsed > time.Second {
		t.Errorf("elapsed = %v, Retry-After was not capped", elapsed)
	}
}

func TestRetryWaitHonorsShortRetryAfter(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	err := &HTTPError{Status: http.StatusTooManyRequests, RetryAfter: 200 * time.Millisecond}
	if got := cfg.wait(1, err); got != 200*time.Millisecond {
		t.Errorf("wait = %v, want Retry-After 200ms", got)
	}
	if got := cfg.wait(1, errors.New("x")); got != time.Millisecond {
		t.Errorf("wait = %v, want base backoff", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("5"); got != 5*time.Second {
		t.Errorf("ParseRetryAfter(5) = %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("ParseRetryAfter(\"\") = %v", got)
	}
	if got := ParseRetryAfter("garbage"); got != 0 {
		t.Errorf("ParseRetryAfter(garbage) = %v", got)
	}
}
