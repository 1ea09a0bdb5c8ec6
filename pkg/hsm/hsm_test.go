package hsm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testContext struct {
	Log []string `json:"log"`
}

type recordingActor struct {
	fail bool
	data string
}

func (a *recordingActor) Execute(ctx context.Context, input any) (any, error) {
	if a.fail {
		return nil, assertErr("boom")
	}
	return "done", nil
}

func (a *recordingActor) Dump() (any, error) { return a.data, nil }

func (a *recordingActor) Load(data json.RawMessage) error {
	return json.Unmarshal(data, &a.data)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func buildMachine(t *testing.T, draftActor *recordingActor) *Machine[testContext] {
	t.Helper()

	root := &State[testContext]{
		Name:    "root",
		Initial: "Draft",
		States: map[string]*State[testContext]{
			"Draft": {
				Name: "Draft",
				Entry: []Action[testContext]{
					func(ctx context.Context, c *testContext, ev Event, result any) {
						c.Log = append(c.Log, "enter:Draft")
					},
				},
				Invoke: &Invoke[testContext]{
					Actor: draftActor,
					OnDone: Transition[testContext]{
						Target: "ReviewDraft",
						Actions: []Action[testContext]{
							func(ctx context.Context, c *testContext, ev Event, result any) {
								c.Log = append(c.Log, "done:"+result.(string))
							},
						},
					},
					OnError: Transition[testContext]{
						Target: "Failure",
					},
				},
			},
			"ReviewDraft": {
				Name: "ReviewDraft",
				On: map[string]Transition[testContext]{
					"CONFIRM": {Target: "Complete"},
					"FEEDBACK": {Target: "Draft"},
				},
			},
			"Complete": {Name: "Complete"},
			"Failure":  {Name: "Failure"},
		},
	}

	return NewMachine(root, &testContext{})
}

func TestMachine_StartInvokeAndReview(t *testing.T) {
	m := buildMachine(t, &recordingActor{})
	require.NoError(t, m.Start(context.Background()))

	assert.Equal(t, "ReviewDraft", m.Leaf())
	assert.Equal(t, []string{"enter:Draft", "done:done"}, m.Context().Log)
}

func TestMachine_ConfirmAdvancesToComplete(t *testing.T) {
	m := buildMachine(t, &recordingActor{})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Send(context.Background(), Event{Name: "CONFIRM"}))
	assert.Equal(t, "Complete", m.Leaf())
}

func TestMachine_FeedbackReturnsToDraftAndReruns(t *testing.T) {
	m := buildMachine(t, &recordingActor{})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Send(context.Background(), Event{Name: "FEEDBACK"}))
	assert.Equal(t, "ReviewDraft", m.Leaf())
	assert.Equal(t, []string{"enter:Draft", "done:done", "enter:Draft", "done:done"}, m.Context().Log)
}

func TestMachine_ActorErrorRoutesToFailure(t *testing.T) {
	m := buildMachine(t, &recordingActor{fail: true})
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, "Failure", m.Leaf())
}

func TestMachine_InvalidEventErrors(t *testing.T) {
	m := buildMachine(t, &recordingActor{})
	require.NoError(t, m.Start(context.Background()))
	err := m.Send(context.Background(), Event{Name: "NOPE"})
	var invalid *InvalidEventError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "NOPE", invalid.Event)
}

func TestMachine_DumpLoadRoundTrip(t *testing.T) {
	actor := &recordingActor{data: "actor-state"}
	m := buildMachine(t, actor)
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Send(context.Background(), Event{Name: "CONFIRM"}))

	cp, err := m.Dump()
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "Complete"}, cp.StackPath)

	restoredActor := &recordingActor{}
	restored := buildMachine(t, restoredActor)
	require.NoError(t, restored.Load(cp, func() *testContext { return &testContext{} }))

	redumped, err := restored.Dump()
	require.NoError(t, err)
	assert.Equal(t, cp.StackPath, redumped.StackPath)
	assert.JSONEq(t, string(cp.Context), string(redumped.Context))
}

func TestMachine_ZeroDepthRootOnlyStart(t *testing.T) {
	root := &State[testContext]{Name: "Solo"}
	m := NewMachine(root, &testContext{})
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, "Solo", m.Leaf())
}
