package llmclient

import (
	"context"
	"errors"
	"fmt"
)

// Provider is a single LLM backend capable of producing a Completion.
type Provider interface {
	Name() string
	Models() []string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// TransientError marks a provider failure worth retrying: rate limits,
// timeouts, and 5xx responses.
type TransientError struct {
	Provider   string
	RetryAfter string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("llmclient: %s: transient error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed request/response that retrying will not
// fix: an unparseable payload, an unknown content block type, a schema
// mismatch between the neutral request and the provider's wire format.
type ProtocolError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llmclient: %s: protocol error: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("llmclient: %s: protocol error: %s", e.Provider, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or something it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
