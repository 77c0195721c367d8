package business

import (
	"context"
	"sync"
	"time"
)

// RateWindow is the counter store consulted by the login orchestrator and
// the API key validator. The default implementation is in process; a shared
// store can replace it behind this interface.
type RateWindow interface {
	// Check records an attempt against the key and reports whether it fit
	// inside the window.
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) RateLimitResult
	// Peek inspects the current state without recording an attempt.
	Peek(ctx context.Context, key string, maxAttempts int, window time.Duration) RateLimitResult
	// Reset forgets the key, e.g. after a successful login.
	Reset(ctx context.Context, key string)
}

// RateLimitResult contains the outcome of a rate limit check
type RateLimitResult struct {
	Allowed       bool
	AttemptsUsed  int
	AttemptsLeft  int
	RetryAfter    time.Duration
	RetryAfterSec int
}

type rateLimitEntry struct {
	attempts  int
	firstAt   time.Time
	expiresAt time.Time
}

// RateLimiter is a fixed window in-memory RateWindow.
type RateLimiter struct {
	mu    sync.RWMutex
	store map[string]*rateLimitEntry
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		store: make(map[string]*rateLimitEntry),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, entry := range rl.store {
			if now.After(entry.expiresAt) {
				delete(rl.store, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.store[key]

	// Missing or expired entries open a fresh window
	if !exists || now.After(entry.expiresAt) {
		rl.store[key] = &rateLimitEntry{
			attempts:  1,
			firstAt:   now,
			expiresAt: now.Add(window),
		}
		return RateLimitResult{
			Allowed:      true,
			AttemptsUsed: 1,
			AttemptsLeft: maxAttempts - 1,
		}
	}

	if entry.attempts >= maxAttempts {
		retryAfter := entry.expiresAt.Sub(now)
		return RateLimitResult{
			Allowed:       false,
			AttemptsUsed:  entry.attempts,
			AttemptsLeft:  0,
			RetryAfter:    retryAfter,
			RetryAfterSec: int(retryAfter.Seconds()),
		}
	}

	entry.attempts++
	return RateLimitResult{
		Allowed:      true,
		AttemptsUsed: entry.attempts,
		AttemptsLeft: maxAttempts - entry.attempts,
	}
}

func (rl *RateLimiter) Peek(ctx context.Context, key string, maxAttempts int, window time.Duration) RateLimitResult {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := time.Now()
	entry, exists := rl.store[key]

	if !exists || now.After(entry.expiresAt) {
		return RateLimitResult{
			Allowed:      true,
			AttemptsUsed: 0,
			AttemptsLeft: maxAttempts,
		}
	}

	if entry.attempts >= maxAttempts {
		retryAfter := entry.expiresAt.Sub(now)
		return RateLimitResult{
			Allowed:       false,
			AttemptsUsed:  entry.attempts,
			AttemptsLeft:  0,
			RetryAfter:    retryAfter,
			RetryAfterSec: int(retryAfter.Seconds()),
		}
	}

	return RateLimitResult{
		Allowed:      true,
		AttemptsUsed: entry.attempts,
		AttemptsLeft: maxAttempts - entry.attempts,
	}
}

func (rl *RateLimiter) Reset(ctx context.Context, key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.store, key)
}

// ResetAll clears all rate limit entries (useful for testing)
func (rl *RateLimiter) ResetAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.store = make(map[string]*rateLimitEntry)
}
