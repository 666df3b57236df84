package reliability

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig holds backoff parameters for retried operations.
type RetryConfig struct {
	MaxAttempts   int // <= 0 means unbounded
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// ReconnectConfig returns the backoff schedule for mailbox reconnection:
// capped exponential starting at 5s, capped at 5 minutes, with jitter.
// Attempts are unbounded; a session retries for the life of the process.
func ReconnectConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   0,
		InitialDelay:  5 * time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// DefaultRetryConfig returns sensible defaults for short-lived operations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// DelayFor returns the backoff delay for the given zero-based attempt number.
func (c RetryConfig) DelayFor(attempt int) time.Duration {
	initial := c.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := c.MaxDelay
	if maxDelay < initial {
		maxDelay = initial
	}
	factor := c.BackoffFactor
	if factor <= 1.0 {
		factor = 2.0
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt))
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if c.Jitter {
		// +/-20% to desynchronize concurrent reconnect loops.
		delay += delay * (rand.Float64()*0.4 - 0.2)
		if delay > float64(maxDelay) {
			delay = float64(maxDelay)
		}
		if delay < 0 {
			delay = float64(initial)
		}
	}
	return time.Duration(delay)
}

// RetryWithBackoff retries fn with exponential backoff until it succeeds, the
// attempts run out, the error is non-retryable, or ctx is done.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; config.MaxAttempts <= 0 || attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.MaxAttempts > 0 && attempt == config.MaxAttempts-1 {
			break
		}
		if !ShouldRetry(err) {
			return err
		}

		select {
		case <-time.After(config.DelayFor(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// ErrorCategory classifies errors for retry decisions.
type ErrorCategory int

const (
	ErrorTemporary ErrorCategory = iota
	ErrorPermanent
	ErrorAuthentication
	ErrorNetwork
	ErrorTimeout
)

var authPatterns = []string{
	"authentication failed",
	"authenticationfailed",
	"login failed",
	"invalid credentials",
	"bad credentials",
	"access denied",
	"unauthorized",
}

var networkPatterns = []string{
	"connection refused",
	"connection reset",
	"network unreachable",
	"host unreachable",
	"no such host",
	"broken pipe",
	"use of closed network connection",
	"unexpected eof",
	"eof",
}

var timeoutPatterns = []string{
	"timeout",
	"i/o timeout",
	"deadline exceeded",
}

var permanentPatterns = []string{
	"mailbox does not exist",
	"no mailbox",
	"permission denied",
	"quota exceeded",
}

// CategorizeError determines the handling category of an error. Matching is
// on error text because the IMAP client surfaces server responses as opaque
// wrapped errors.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorTemporary
	}
	s := strings.ToLower(err.Error())
	for _, p := range authPatterns {
		if strings.Contains(s, p) {
			return ErrorAuthentication
		}
	}
	for _, p := range permanentPatterns {
		if strings.Contains(s, p) {
			return ErrorPermanent
		}
	}
	for _, p := range timeoutPatterns {
		if strings.Contains(s, p) {
			return ErrorTimeout
		}
	}
	for _, p := range networkPatterns {
		if strings.Contains(s, p) {
			return ErrorNetwork
		}
	}
	return ErrorTemporary
}

// ShouldRetry reports whether an error is worth retrying.
func ShouldRetry(err error) bool {
	switch CategorizeError(err) {
	case ErrorTemporary, ErrorNetwork, ErrorTimeout:
		return true
	default:
		return false
	}
}

// IsAuthError reports whether the error text indicates rejected credentials.
func IsAuthError(err error) bool {
	return CategorizeError(err) == ErrorAuthentication
}
