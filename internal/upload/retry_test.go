package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_Delay(t *testing.T) {
	c := RetryConfig{
		InitialDelay:      time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	}
	assert.Equal(t, time.Second, c.Delay(1))
	assert.Equal(t, 2*time.Second, c.Delay(2))
	assert.Equal(t, 4*time.Second, c.Delay(3))
	assert.Equal(t, 5*time.Second, c.Delay(4))
	assert.Equal(t, 5*time.Second, c.Delay(60))
}

func TestRetryConfig_Jitter(t *testing.T) {
	c := RetryConfig{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2, Jitter: true}
	for i := 0; i < 50; i++ {
		d := c.Delay(2)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
