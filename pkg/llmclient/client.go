package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	defaultMaxRetries      = 4
	defaultBackoffBase     = 250 * time.Millisecond
	defaultBackoffMax      = 15 * time.Second
	defaultMaxContinuation = 8
)

// Client is the single entrypoint spec.md §4.B names "completion": it wraps
// a Provider (directly, or via a Router) with caching, retries, rate
// limiting, and transparent max_tokens continuation.
type Client struct {
	provider Provider
	cache    *Cache
	limiter  *RateLimiter
	logger   arbor.ILogger

	maxRetries      int
	backoffBase     time.Duration
	backoffMax      time.Duration
	maxContinuation int
}

// ClientOption customises a Client at construction.
type ClientOption func(*Client)

// WithCache attaches an on-disk completion cache.
func WithCache(cache *Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithRateLimiter bounds calls per hour.
func WithRateLimiter(limiter *RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

// WithLogger attaches a logger; without it the Client logs nothing.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient wraps provider (typically a *Router) as a completion client.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:        provider,
		maxRetries:      defaultMaxRetries,
		backoffBase:     defaultBackoffBase,
		backoffMax:      defaultBackoffMax,
		maxContinuation: defaultMaxContinuation,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache, _ = NewCache(CacheOff, "", 0)
	}
	return c
}

// Complete implements the neutral completion() protocol: it checks the
// cache, retries transient provider errors with jittered backoff, and
// transparently continues generation across max_tokens boundaries, merging
// the assistant's text back into one logical turn.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	key := c.cache.CanonicalKey(req)
	if cached, ok, err := c.cache.Get(key); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	result, err := c.completeWithContinuation(ctx, req)
	if err != nil {
		return nil, err
	}

	if putErr := c.cache.Put(key, result); putErr != nil && c.logger != nil {
		c.logger.Warn().Err(putErr).Msg("llmclient: cache write failed")
	}
	return result, nil
}

func (c *Client) completeWithContinuation(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	working := *req
	working.Messages = append([]Message(nil), req.Messages...)

	var merged *Completion
	for round := 0; round < c.maxContinuation; round++ {
		comp, err := c.completeWithRetry(ctx, &working)
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = comp
		} else {
			merged.Content = MergeAdjacentText(append(merged.Content, comp.Content...))
			merged.InputTokens += comp.InputTokens
			merged.OutputTokens += comp.OutputTokens
			merged.StopReason = comp.StopReason
		}

		if comp.StopReason != StopMaxTokens {
			return merged, nil
		}

		working.Messages = append(working.Messages, Message{Role: RoleAssistant, Content: comp.Content})
	}

	return nil, &ProtocolError{Provider: c.provider.Name(), Detail: fmt.Sprintf("exceeded %d continuation rounds without a terminal stop reason", c.maxContinuation)}
}

func (c *Client) completeWithRetry(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		comp, err := c.provider.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		var sleep time.Duration
		var te *TransientError
		if asErr, ok := err.(*TransientError); ok {
			te = asErr
		}
		if te != nil && te.RetryAfter != "" {
			sleep = rateLimitSleep()
		} else {
			sleep = backoffSchedule(attempt, c.backoffBase, c.backoffMax)
		}

		if c.logger != nil {
			c.logger.Warn().Str("attempt", fmt.Sprintf("%d/%d", attempt+1, c.maxRetries)).
				Str("sleep", sleep.String()).Err(err).Msg("llmclient: retrying after transient error")
		}
		if err := sleepContext(ctx, sleep); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("llmclient: exhausted retries: %w", lastErr)
}
