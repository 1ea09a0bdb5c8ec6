package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []*Completion
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Models() []string { return []string{"scripted-model"} }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	return p.responses[idx], nil
}

func TestClient_Complete_MergesContinuation(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*Completion{
			{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "part one "}}, StopReason: StopMaxTokens, OutputTokens: 10},
			{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "part two"}}, StopReason: StopEndTurn, OutputTokens: 5},
		},
		errs: make([]error, 2),
	}
	client := NewClient(provider)

	result, err := client.Complete(context.Background(), &CompletionRequest{Model: "scripted-model"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, TextRaw{Text: "part one part two"}, result.Content[0])
	assert.Equal(t, StopEndTurn, result.StopReason)
	assert.Equal(t, 15, result.OutputTokens)
	assert.Equal(t, 2, provider.calls)
}

func TestClient_Complete_RetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*Completion{
			nil,
			{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "recovered"}}, StopReason: StopEndTurn},
		},
		errs: []error{&TransientError{Provider: "scripted", Err: errors.New("503")}, nil},
	}
	client := NewClient(provider)
	client.backoffBase = time.Millisecond
	client.backoffMax = 5 * time.Millisecond

	result, err := client.Complete(context.Background(), &CompletionRequest{Model: "scripted-model"})
	require.NoError(t, err)
	assert.Equal(t, TextRaw{Text: "recovered"}, result.Content[0])
	assert.Equal(t, 2, provider.calls)
}

func TestClient_Complete_DoesNotRetryProtocolErrors(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*Completion{nil},
		errs:      []error{&ProtocolError{Provider: "scripted", Detail: "bad schema"}},
	}
	client := NewClient(provider)

	_, err := client.Complete(context.Background(), &CompletionRequest{Model: "scripted-model"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestClient_Complete_UsesCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(CacheLRU, dir, 10)
	require.NoError(t, err)

	provider := &scriptedProvider{
		responses: []*Completion{{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "cached"}}, StopReason: StopEndTurn}},
		errs:      make([]error, 1),
	}
	client := NewClient(provider, WithCache(cache))

	req := &CompletionRequest{Model: "scripted-model", Messages: []Message{{Role: RoleUser, Content: []ContentBlock{TextRaw{Text: "hi"}}}}}

	first, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	second, err := client.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, provider.calls, "second call should be served from cache")
}
