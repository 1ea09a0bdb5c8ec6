package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	name   string
	models []string
	resp   *Completion
	err    error
	calls  []*CompletionRequest
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Models() []string { return m.models }

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &Completion{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "ok"}}, StopReason: StopEndTurn}, nil
}

func TestRouter_DefaultsToFirstModel(t *testing.T) {
	provider := &mockProvider{name: "test", models: []string{"model-a", "model-b"}}
	router := NewRouter(provider)

	_, err := router.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	require.Len(t, provider.calls, 1)
	assert.Equal(t, "model-a", provider.calls[0].Model)
}

func TestRouter_ForPlanningPinsModel(t *testing.T) {
	provider := &mockProvider{name: "test", models: []string{"model-a"}}
	router := NewRouter(provider).SetPlanningModel("planning-model")

	planner := router.ForPlanning()
	_, err := planner.Complete(context.Background(), &CompletionRequest{Model: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, "planning-model", provider.calls[0].Model)
}

func TestRouter_StagesAreIndependent(t *testing.T) {
	provider := &mockProvider{name: "test", models: []string{"default"}}
	router := NewRouter(provider).
		SetPlanningModel("plan").
		SetExecutionModel("exec").
		SetValidationModel("validate")

	_, _ = router.ForPlanning().Complete(context.Background(), &CompletionRequest{})
	_, _ = router.ForExecution().Complete(context.Background(), &CompletionRequest{})
	_, _ = router.ForValidation().Complete(context.Background(), &CompletionRequest{})

	require.Len(t, provider.calls, 3)
	assert.Equal(t, "plan", provider.calls[0].Model)
	assert.Equal(t, "exec", provider.calls[1].Model)
	assert.Equal(t, "validate", provider.calls[2].Model)
}
