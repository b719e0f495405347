package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled lazily on acquisition, sized in
// requests per minute.
type rateLimiter struct {
	lastRefill time.Time
	tokens     float64
	perMinute  float64
	mu         sync.Mutex
}

// newRateLimiter creates a rate limiter allowing requestsPerMinute calls.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		tokens:     float64(requestsPerMinute),
		perMinute:  float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		ok, retryIn := rl.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire refills the bucket from elapsed time and takes a token if one
// is available, otherwise reports how long until the next token.
func (rl *rateLimiter) tryAcquire() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	rl.lastRefill = now

	rl.tokens += elapsed.Minutes() * rl.perMinute
	if rl.tokens > rl.perMinute {
		rl.tokens = rl.perMinute
	}

	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}

	deficit := 1 - rl.tokens
	return false, time.Duration(deficit / rl.perMinute * float64(time.Minute))
}
