package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(3600)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := rl.Wait(ctx)
	assert.NoError(t, err)
}

func TestRateLimiter_Wait_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1)

	for i := 0; i < 20; i++ {
		rl.mu.Lock()
		rl.tokens = 0
		rl.mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.Wait(ctx)
	assert.Error(t, err)
}

func TestRateLimiter_WaitCount_IncrementsUnderContention(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.mu.Lock()
	rl.tokens = 0
	rl.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = rl.Wait(ctx)

	assert.GreaterOrEqual(t, rl.WaitCount(), 1)
}
