package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ErrUnknownProvider is returned when a request names a provider that is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// HTTPError is a non-2xx response from an upstream API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
	Auth       bool // rejected credentials reported under another status
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// IsAuthError reports whether err is an authentication failure (HTTP 401 or
// an upstream equivalent). Auth failures are configuration faults and are
// never retried.
func IsAuthError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && (he.Status == http.StatusUnauthorized || he.Auth)
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// DefaultMaxBackoff caps a single wait when RetryConfig.MaxBackoff is unset.
const DefaultMaxBackoff = 10 * time.Second

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	Attempts       int           // total attempts, including the first
	InitialBackoff time.Duration // delay after the first failure; doubles each attempt
	MaxBackoff     time.Duration // ceiling for any single wait, Retry-After included
}

// DefaultRetryConfig is 3 attempts with a 1s doubling backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, InitialBackoff: time.Second, MaxBackoff: DefaultMaxBackoff}
}

func (c RetryConfig) maxBackoff() time.Duration {
	if c.MaxBackoff > 0 {
		return c.MaxBackoff
	}
	return DefaultMaxBackoff
}

// Backoff returns the delay after failed attempt n (1-based), capped at MaxBackoff.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	return min(c.InitialBackoff*time.Duration(1<<(attempt-1)), c.maxBackoff())
}

// wait picks the delay after a failed attempt. An upstream Retry-After may
// lengthen it but never past MaxBackoff.
func (c RetryConfig) wait(attempt int, err error) time.Duration {
	d := c.Backoff(attempt)
	var he *HTTPError
	if errors.As(err, &he) && he.RetryAfter > d {
		d = min(he.RetryAfter, c.maxBackoff())
	}
	return d
}

// RetryDo calls fn until it succeeds, returns an auth error, the context ends,
// or the attempt budget is spent. The last error is returned on failure.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsAuthError(err) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := cfg.wait(attempt, err)
		slog.Warn("upstream call failed, retrying",
			"attempt", attempt, "max_attempts", attempts, "backoff", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
