package llmclient

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter bounding completion calls per hour,
// adapted from the agent loop's per-provider throttle.
type RateLimiter struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64
	interval   time.Duration

	tokens    float64
	lastTime  time.Time
	waitCount int
}

// NewRateLimiter creates a limiter allowing perHour requests per hour, with
// a small burst allowance. perHour <= 0 falls back to 1000 requests per hour.
func NewRateLimiter(perHour int) *RateLimiter {
	if perHour <= 0 {
		perHour = 1000
	}

	capacity := float64(perHour) / 10
	if capacity < 1 {
		capacity = 1
	}

	return &RateLimiter{
		capacity:   capacity,
		refillRate: float64(perHour) / 3600.0,
		interval:   time.Second,
		tokens:     capacity,
		lastTime:   time.Now(),
	}
}

// Wait blocks until a request may proceed or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		deficit := 1 - rl.tokens
		waitDuration := time.Duration(deficit/rl.refillRate*1000) * time.Millisecond
		if waitDuration < rl.interval {
			waitDuration = rl.interval
		}
		rl.waitCount++
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
		}
	}
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastTime).Seconds()
	if elapsed > 0 {
		rl.tokens += elapsed * rl.refillRate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
		rl.lastTime = now
	}
}

// WaitCount returns how many times a caller has had to block.
func (rl *RateLimiter) WaitCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.waitCount
}
