package appfsm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/forge/pkg/beam"
	"github.com/ternarybob/forge/pkg/hsm"
)

// Event names the Application FSM's review states react to, sent by
// pkg/toolproc on behalf of confirm_state/provide_feedback.
const (
	EventConfirm  = "CONFIRM"
	EventFeedback = "FEEDBACK"
)

// FeedbackPayload is the hsm.Event payload carried by a FEEDBACK event.
type FeedbackPayload struct {
	Text      string
	Component string
}

// Actors bundles the four concrete stage actors the Application FSM
// invokes, one per spec.md §4.F stage.
type Actors struct {
	Draft    *StageActor
	Handlers *StageActor
	Index    *StageActor
	Frontend *StageActor
}

// Build assembles the root state exactly per spec.md §4.F's graph:
// Draft→ReviewDraft→Handlers→ReviewHandlers→Index→ReviewIndex→Frontend→
// ReviewFrontend→Complete, with every invoke's on_error routing to the
// terminal Failure state.
func Build(actors Actors) *hsm.Machine[ApplicationContext] {
	root := &hsm.State[ApplicationContext]{
		Name:    "root",
		Initial: "Draft",
		States: map[string]*hsm.State[ApplicationContext]{
			"Draft": {
				Name: "Draft",
				Invoke: &hsm.Invoke[ApplicationContext]{
					Actor: actors.Draft,
					Input: func(c *ApplicationContext) any {
						return &StageInput{Prompt: c.draftInput()}
					},
					OnDone:  hsm.Transition[ApplicationContext]{Target: "ReviewDraft", Actions: []hsm.Action[ApplicationContext]{onServerStageDone}},
					OnError: hsm.Transition[ApplicationContext]{Target: "Failure", Actions: []hsm.Action[ApplicationContext]{setError}},
				},
			},
			"ReviewDraft": {
				Name: "ReviewDraft",
				On: map[string]hsm.Transition[ApplicationContext]{
					EventConfirm:  {Target: "Handlers"},
					EventFeedback: {Target: "Draft", Actions: []hsm.Action[ApplicationContext]{setFeedback}},
				},
			},
			"Handlers": {
				Name: "Handlers",
				Invoke: &hsm.Invoke[ApplicationContext]{
					Actor: actors.Handlers,
					Input: func(c *ApplicationContext) any {
						return &StageInput{Prompt: c.draftInput(), Files: c.ServerFiles}
					},
					OnDone:  hsm.Transition[ApplicationContext]{Target: "ReviewHandlers", Actions: []hsm.Action[ApplicationContext]{onServerStageDone}},
					OnError: hsm.Transition[ApplicationContext]{Target: "Failure", Actions: []hsm.Action[ApplicationContext]{setError}},
				},
			},
			"ReviewHandlers": {
				Name: "ReviewHandlers",
				On: map[string]hsm.Transition[ApplicationContext]{
					EventConfirm:  {Target: "Index"},
					EventFeedback: {Target: "Handlers", Actions: []hsm.Action[ApplicationContext]{setFeedback}},
				},
			},
			"Index": {
				Name: "Index",
				Invoke: &hsm.Invoke[ApplicationContext]{
					Actor: actors.Index,
					Input: func(c *ApplicationContext) any {
						return &StageInput{Prompt: c.draftInput(), Files: c.ServerFiles}
					},
					OnDone:  hsm.Transition[ApplicationContext]{Target: "ReviewIndex", Actions: []hsm.Action[ApplicationContext]{onServerStageDone}},
					OnError: hsm.Transition[ApplicationContext]{Target: "Failure", Actions: []hsm.Action[ApplicationContext]{setError}},
				},
			},
			"ReviewIndex": {
				Name: "ReviewIndex",
				On: map[string]hsm.Transition[ApplicationContext]{
					EventConfirm:  {Target: "Frontend"},
					EventFeedback: {Target: "Index", Actions: []hsm.Action[ApplicationContext]{setFeedback}},
				},
			},
			"Frontend": {
				Name: "Frontend",
				Invoke: &hsm.Invoke[ApplicationContext]{
					Actor: actors.Frontend,
					Input: func(c *ApplicationContext) any {
						return &StageInput{
							Prompt: c.UserPrompt + "\n\n" + renderServerFiles(c.ServerFiles),
							Files:  c.FrontendFiles,
						}
					},
					OnDone:  hsm.Transition[ApplicationContext]{Target: "ReviewFrontend", Actions: []hsm.Action[ApplicationContext]{onFrontendStageDone}},
					OnError: hsm.Transition[ApplicationContext]{Target: "Failure", Actions: []hsm.Action[ApplicationContext]{setError}},
				},
			},
			"ReviewFrontend": {
				Name: "ReviewFrontend",
				On: map[string]hsm.Transition[ApplicationContext]{
					EventConfirm:  {Target: "Complete"},
					EventFeedback: {Target: "Frontend", Actions: []hsm.Action[ApplicationContext]{setFeedback}},
				},
			},
			"Complete": {Name: "Complete"},
			"Failure":  {Name: "Failure"},
		},
	}

	return hsm.NewMachine(root, NewApplicationContext(""))
}

func onServerStageDone(_ context.Context, c *ApplicationContext, _ hsm.Event, result any) {
	sol, ok := result.(*beam.Solution)
	if !ok {
		return
	}
	c.mergeServerFiles(sol.Files)
	c.FeedbackData = ""
	c.FeedbackComponent = ""
}

func onFrontendStageDone(_ context.Context, c *ApplicationContext, _ hsm.Event, result any) {
	sol, ok := result.(*beam.Solution)
	if !ok {
		return
	}
	c.mergeFrontendFiles(sol.Files)
	c.FeedbackData = ""
	c.FeedbackComponent = ""
}

func setError(_ context.Context, c *ApplicationContext, _ hsm.Event, result any) {
	if err, ok := result.(error); ok {
		c.Error = err.Error()
	}
}

func setFeedback(_ context.Context, c *ApplicationContext, ev hsm.Event, _ any) {
	fp, ok := ev.Payload.(FeedbackPayload)
	if !ok {
		return
	}
	c.FeedbackData = fp.Text
	c.FeedbackComponent = fp.Component
}

// renderServerFiles gives the Frontend stage's first turn a deterministic
// view of the server files it builds a UI against.
func renderServerFiles(files map[string]string) string {
	if len(files) == 0 {
		return ""
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("Existing server files:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", p, files[p])
	}
	return b.String()
}
