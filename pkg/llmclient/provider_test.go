package llmclient

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	transient := &TransientError{Provider: "anthropic", Err: errors.New("503")}
	wrapped := fmt.Errorf("completing: %w", transient)
	protocol := &ProtocolError{Provider: "anthropic", Detail: "bad schema"}

	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsTransient(protocol))
	assert.False(t, IsTransient(errors.New("plain")))
}

func TestTransientError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &TransientError{Provider: "anthropic", Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestProtocolError_MessageIncludesDetail(t *testing.T) {
	err := &ProtocolError{Provider: "gemini", Detail: "unknown content block"}
	assert.Contains(t, err.Error(), "unknown content block")
	assert.Contains(t, err.Error(), "gemini")
}
