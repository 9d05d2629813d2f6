package upload

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for transient upload failures.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig matches the API section defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// Delay returns the wait after the given failed attempt (1-based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}

	// Calculate delay with exponential backoff
	raw := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))

	// Cap at max delay
	var delay time.Duration
	switch {
	case c.MaxDelay > 0 && raw > float64(c.MaxDelay):
		delay = c.MaxDelay
	case raw > math.MaxInt64:
		delay = time.Duration(math.MaxInt64)
	default:
		delay = time.Duration(raw)
	}

	// Add up to ±10% jitter if enabled
	if c.Jitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.1 * (rand.Float64()*2 - 1))
	}

	return delay
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
