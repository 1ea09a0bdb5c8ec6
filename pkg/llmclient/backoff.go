package llmclient

import (
	"context"
	"math/rand"
	"time"
)

// backoffSchedule returns the attempt sleep for a jittered exponential
// backoff: base * 2^attempt, capped at max, with +/-50% jitter. Rate-limit
// errors use a flat 1-5s sleep per spec instead of the exponential curve.
func backoffSchedule(attempt int, base, max time.Duration) time.Duration {
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d))) - d/2
	d += jitter
	if d < 0 {
		d = base
	}
	return d
}

func rateLimitSleep() time.Duration {
	return time.Duration(1000+rand.Intn(4000)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
