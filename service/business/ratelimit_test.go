package business_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wardenhq/service-identity/service/business"
)

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	ctx := t.Context()
	limiter := business.NewRateLimiter()

	for i := 0; i < 3; i++ {
		result := limiter.Check(ctx, "key", 3, time.Minute)
		assert.True(t, result.Allowed)
		assert.Equal(t, i+1, result.AttemptsUsed)
	}

	result := limiter.Check(ctx, "key", 3, time.Minute)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.AttemptsLeft)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	ctx := t.Context()
	limiter := business.NewRateLimiter()

	for i := 0; i < 5; i++ {
		limiter.Check(ctx, "busy", 2, time.Minute)
	}

	result := limiter.Check(ctx, "idle", 2, time.Minute)
	assert.True(t, result.Allowed)
}

func TestRateLimiterPeekDoesNotConsume(t *testing.T) {
	ctx := t.Context()
	limiter := business.NewRateLimiter()

	limiter.Check(ctx, "key", 3, time.Minute)

	for i := 0; i < 10; i++ {
		result := limiter.Peek(ctx, "key", 3, time.Minute)
		assert.True(t, result.Allowed)
		assert.Equal(t, 1, result.AttemptsUsed)
	}
}

func TestRateLimiterReset(t *testing.T) {
	ctx := t.Context()
	limiter := business.NewRateLimiter()

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "key", 2, time.Minute)
	}
	assert.False(t, limiter.Peek(ctx, "key", 2, time.Minute).Allowed)

	limiter.Reset(ctx, "key")
	assert.True(t, limiter.Check(ctx, "key", 2, time.Minute).Allowed)
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	ctx := t.Context()
	limiter := business.NewRateLimiter()

	limiter.Check(ctx, "key", 1, 20*time.Millisecond)
	assert.False(t, limiter.Check(ctx, "key", 1, 20*time.Millisecond).Allowed)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, limiter.Check(ctx, "key", 1, 20*time.Millisecond).Allowed)
}
