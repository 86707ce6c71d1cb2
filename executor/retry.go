package executor

import (
	"context"
	"math"
	"net/http"
	"time"
)

// maxShift bounds the exponent so BaseDelay << attempt cannot overflow.
const maxShift = 30

// RetryPolicy controls backoff and status classification.
type RetryPolicy struct {
	// BaseDelay is the wait after the first failed attempt; attempt i waits BaseDelay * 2^i.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Retryable decides whether a non-2xx status is worth another attempt.
	// Nil retries every status.
	Retryable func(statusCode int) bool
}

// Delay returns the wait that follows the failed attempt with the given 0-based index.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	d := time.Duration(math.MaxInt64)
	if p.BaseDelay <= d>>attempt {
		d = p.BaseDelay << attempt
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) retryable(statusCode int) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(statusCode)
}

// RetryTransientOnly retries request timeouts, rate limiting and server errors.
func RetryTransientOnly(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500 && statusCode < 600:
		return true
	default:
		return false
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
