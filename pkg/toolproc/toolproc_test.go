package toolproc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/forge/pkg/appfsm"
	"github.com/ternarybob/forge/pkg/hsm"
	"github.com/ternarybob/forge/pkg/llmclient"
)

// fakeStageActor stands in for pkg/appfsm's real StageActor (which spins up
// a container workspace on Execute) so these tests exercise the session and
// tool-dispatch logic without a container engine.
type fakeStageActor struct {
	files map[string]string
}

func (a *fakeStageActor) Execute(ctx context.Context, input any) (any, error) {
	return &fakeSolution{Files: a.files}, nil
}
func (a *fakeStageActor) Dump() (any, error)             { return a.files, nil }
func (a *fakeStageActor) Load(data json.RawMessage) error { return json.Unmarshal(data, &a.files) }

type fakeSolution struct {
	Files map[string]string
}

// fakeBuild wires a trimmed version of appfsm.Build's state graph (Draft
// and Handlers stages only, with ReviewHandlers confirming straight to
// Complete), with fakeStageActor invokes in place of real beam-search stage
// actors.
func fakeBuild() *hsm.Machine[appfsm.ApplicationContext] {
	merge := func(_ context.Context, c *appfsm.ApplicationContext, _ hsm.Event, result any) {
		sol, ok := result.(*fakeSolution)
		if !ok {
			return
		}
		if c.ServerFiles == nil {
			c.ServerFiles = map[string]string{}
		}
		for p, content := range sol.Files {
			c.ServerFiles[p] = content
		}
	}

	invoke := func() *hsm.Invoke[appfsm.ApplicationContext] {
		return &hsm.Invoke[appfsm.ApplicationContext]{
			Actor:  &fakeStageActor{files: map[string]string{"src/schema.ts": "ok"}},
			OnDone: hsm.Transition[appfsm.ApplicationContext]{Actions: []hsm.Action[appfsm.ApplicationContext]{merge}},
		}
	}

	applyFeedback := func(_ context.Context, c *appfsm.ApplicationContext, ev hsm.Event, _ any) {
		fp, ok := ev.Payload.(appfsm.FeedbackPayload)
		if !ok {
			return
		}
		c.FeedbackData = fp.Text
		c.FeedbackComponent = fp.Component
	}

	root := &hsm.State[appfsm.ApplicationContext]{
		Name:    "root",
		Initial: "Draft",
		States: map[string]*hsm.State[appfsm.ApplicationContext]{
			"Draft": {Name: "Draft", Invoke: withTarget(invoke(), "ReviewDraft")},
			"ReviewDraft": {
				Name: "ReviewDraft",
				On: map[string]hsm.Transition[appfsm.ApplicationContext]{
					appfsm.EventConfirm:  {Target: "Handlers"},
					appfsm.EventFeedback: {Target: "Draft", Actions: []hsm.Action[appfsm.ApplicationContext]{applyFeedback}},
				},
			},
			"Handlers": {Name: "Handlers", Invoke: withTarget(invoke(), "ReviewHandlers")},
			"ReviewHandlers": {
				Name: "ReviewHandlers",
				On: map[string]hsm.Transition[appfsm.ApplicationContext]{
					appfsm.EventConfirm:  {Target: "Complete"},
					appfsm.EventFeedback: {Target: "Handlers", Actions: []hsm.Action[appfsm.ApplicationContext]{applyFeedback}},
				},
			},
			"Complete": {Name: "Complete"},
			"Failure":  {Name: "Failure"},
		},
	}
	return hsm.NewMachine(root, appfsm.NewApplicationContext(""))
}

func withTarget(inv *hsm.Invoke[appfsm.ApplicationContext], target string) *hsm.Invoke[appfsm.ApplicationContext] {
	inv.OnDone.Target = target
	return inv
}

func fakeSession(appID, traceID string) *Session {
	return &Session{ApplicationID: appID, TraceID: traceID, machine: fakeBuild()}
}

func noopActors() appfsm.Actors { return appfsm.Actors{} }

// scriptedProvider returns each queued completion in order, one per call.
type scriptedProvider struct {
	completions []*llmclient.Completion
	calls       int
}

func (p *scriptedProvider) Name() string     { return "scripted" }
func (p *scriptedProvider) Models() []string { return []string{"scripted-1"} }

func (p *scriptedProvider) Complete(ctx context.Context, req *llmclient.CompletionRequest) (*llmclient.Completion, error) {
	c := p.completions[p.calls]
	p.calls++
	return c, nil
}

func textCompletion(text string) *llmclient.Completion {
	return &llmclient.Completion{
		Role:       llmclient.RoleAssistant,
		Content:    []llmclient.ContentBlock{llmclient.TextRaw{Text: text}},
		StopReason: llmclient.StopEndTurn,
	}
}

func toolCallCompletion(id, name string, input map[string]any) *llmclient.Completion {
	return &llmclient.Completion{
		Role:       llmclient.RoleAssistant,
		Content:    []llmclient.ContentBlock{llmclient.ToolUse{ID: id, Name: name, Input: input}},
		StopReason: llmclient.StopToolUse,
	}
}

func TestSessionLifecycleGetOrCreateAndDiscard(t *testing.T) {
	reg := NewRegistry(noopActors)

	sess := reg.GetOrCreate("app-1", "trace-1")
	require.Equal(t, "app-1", sess.ApplicationID)

	same := reg.GetOrCreate("app-1", "trace-1")
	assert.Same(t, sess, same)

	reg.Discard("app-1", "trace-1")
	_, ok := reg.Get("app-1", "trace-1")
	assert.False(t, ok)
}

func TestExecToolStartApplicationRequiresPrompt(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")

	text, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "start_application", Input: map[string]any{}})
	assert.True(t, isErr)
	assert.Contains(t, text, "prompt")
}

func TestExecToolStartApplicationAdvancesToReview(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")

	text, isErr := execTool(context.Background(), sess, llmclient.ToolUse{
		Name:  "start_application",
		Input: map[string]any{"prompt": "build a todo app"},
	})
	require.False(t, isErr)
	assert.Contains(t, text, "ReviewDraft")
	assert.Equal(t, "ReviewDraft", sess.leaf())

	// a second start_application on an already-started session is a no-op
	text, isErr = execTool(context.Background(), sess, llmclient.ToolUse{
		Name:  "start_application",
		Input: map[string]any{"prompt": "ignored"},
	})
	require.False(t, isErr)
	assert.Equal(t, "ReviewDraft", sess.leaf())
	assert.Contains(t, text, "ReviewDraft")
}

func TestExecToolConfirmAndFeedback(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")
	_, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "start_application", Input: map[string]any{"prompt": "x"}})
	require.False(t, isErr)

	text, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "confirm_state"})
	require.False(t, isErr)
	assert.Contains(t, text, "ReviewHandlers")

	text, isErr = execTool(context.Background(), sess, llmclient.ToolUse{
		Name:  "provide_feedback",
		Input: map[string]any{"text": "rename the handler"},
	})
	require.False(t, isErr)
	assert.Contains(t, text, "Handlers")
	assert.Equal(t, "rename the handler", sess.context().FeedbackData)
}

func TestAvailableActionsByState(t *testing.T) {
	assert.Equal(t, []string{"start_application", "get_state", "get_available_actions", "get_state_output"}, availableActions(""))

	actions := availableActions("ReviewDraft")
	assert.Contains(t, actions, "confirm_state")
	assert.Contains(t, actions, "provide_feedback")
	assert.Contains(t, actions, "complete")

	assert.Equal(t, []string{"get_state", "get_available_actions", "get_state_output"}, availableActions("Complete"))
}

func TestRunToCompleteDrivesToComplete(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")
	_, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "start_application", Input: map[string]any{"prompt": "x"}})
	require.False(t, isErr)

	text, isErr := runToComplete(context.Background(), sess)
	require.False(t, isErr)
	assert.Contains(t, text, "Complete")
	assert.Equal(t, "Complete", sess.leaf())
}

func TestRunToCompleteStopsOnNonReviewState(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")
	text, isErr := runToComplete(context.Background(), sess)
	assert.True(t, isErr)
	assert.Contains(t, text, "not a review state")
}

func TestGetStateOutputReflectsContext(t *testing.T) {
	sess := fakeSession("app-1", "trace-1")
	_, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "start_application", Input: map[string]any{"prompt": "x"}})
	require.False(t, isErr)

	text, isErr := execTool(context.Background(), sess, llmclient.ToolUse{Name: "get_state_output"})
	require.False(t, isErr)

	var view stateOutputView
	require.NoError(t, json.Unmarshal([]byte(text), &view))
	assert.Equal(t, "ReviewDraft", view.State)
	assert.Equal(t, "ok", view.ServerFiles["src/schema.ts"])
}

func TestProcessorStepSingleRound(t *testing.T) {
	provider := &scriptedProvider{completions: []*llmclient.Completion{
		toolCallCompletion("call-1", "start_application", map[string]any{"prompt": "build a todo app"}),
	}}
	client := llmclient.NewClient(provider)
	sess := fakeSession("app-1", "trace-1")

	proc := &Processor{Client: client}
	produced, status, err := proc.Step(context.Background(), sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusWIP, status)
	require.Len(t, produced, 2)

	assistant := produced[0]
	assert.Equal(t, llmclient.RoleAssistant, assistant.Role)

	toolResults := produced[1]
	assert.Equal(t, llmclient.RoleUser, toolResults.Role)
	require.Len(t, toolResults.Content, 1)
	result, ok := toolResults.Content[0].(llmclient.ToolUseResult)
	require.True(t, ok)
	assert.Equal(t, "call-1", result.ToolUseID)
	assert.False(t, result.IsError)

	assert.Equal(t, "ReviewDraft", sess.leaf())
}

func TestProcessorStepEndTurnIsIdle(t *testing.T) {
	provider := &scriptedProvider{completions: []*llmclient.Completion{
		textCompletion("all done for now"),
	}}
	client := llmclient.NewClient(provider)
	sess := fakeSession("app-1", "trace-1")

	proc := &Processor{Client: client}
	produced, status, err := proc.Step(context.Background(), sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
	assert.Len(t, produced, 1)
}
