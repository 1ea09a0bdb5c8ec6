package toolproc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/forge/pkg/appfsm"
	"github.com/ternarybob/forge/pkg/hsm"
	"github.com/ternarybob/forge/pkg/llmclient"
)

// Tools returns the seven tool definitions spec.md §4.G exposes to the
// model, in the same shape pkg/appfsm's StageToolset builds for its own tools.
func Tools() []llmclient.Tool {
	return []llmclient.Tool{
		{
			Name:        "start_application",
			Description: "Create the application build (if one does not already exist) from a natural-language prompt and advance to the first review state.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"prompt": map[string]any{"type": "string"}},
				"required":   []string{"prompt"},
			},
		},
		{
			Name:        "confirm_state",
			Description: "Confirm the current stage's output and advance to the next stage. Blocks until the next stage completes or fails.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "provide_feedback",
			Description: "Reject the current stage's output with feedback text, optionally scoped to a named component, and re-run the stage.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":      map[string]any{"type": "string"},
					"component": map[string]any{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "complete",
			Description: "Confirm every remaining review state until the build reaches Complete or Failure.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "get_state",
			Description: "Return the FSM's current state name.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "get_available_actions",
			Description: "Return the tool names that are valid to call from the current state.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "get_state_output",
			Description: "Return the current application context: produced files, pending feedback, and any error.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

// toolUseFor builds a synthetic ToolUse so the MCP handlers can share
// execTool's dispatch with the native completion tool-call loop.
func toolUseFor(name string, input map[string]any) llmclient.ToolUse {
	if input == nil {
		input = map[string]any{}
	}
	return llmclient.ToolUse{Name: name, Input: input}
}

// execTool dispatches one ToolUse against sess, returning the text to carry
// back in the matching ToolUseResult and whether it represents an error.
func execTool(ctx context.Context, sess *Session, call llmclient.ToolUse) (string, bool) {
	switch call.Name {
	case "start_application":
		prompt, _ := call.Input["prompt"].(string)
		if prompt == "" {
			return "start_application requires a non-empty prompt", true
		}
		if err := sess.start(ctx, prompt); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("application started, now at %s", sess.leaf()), false

	case "confirm_state":
		if err := sess.send(ctx, hsm.Event{Name: appfsm.EventConfirm}); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("confirmed, now at %s", sess.leaf()), false

	case "provide_feedback":
		text, _ := call.Input["text"].(string)
		if text == "" {
			return "provide_feedback requires non-empty text", true
		}
		component, _ := call.Input["component"].(string)
		err := sess.send(ctx, hsm.Event{
			Name:    appfsm.EventFeedback,
			Payload: appfsm.FeedbackPayload{Text: text, Component: component},
		})
		if err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("feedback applied, now at %s", sess.leaf()), false

	case "complete":
		return runToComplete(ctx, sess)

	case "get_state":
		return sess.leaf(), false

	case "get_available_actions":
		actions, err := json.Marshal(availableActions(sess.leaf()))
		if err != nil {
			return err.Error(), true
		}
		return string(actions), false

	case "get_state_output":
		out, err := stateOutput(sess)
		if err != nil {
			return err.Error(), true
		}
		return out, false

	default:
		return fmt.Sprintf("unknown tool %q", call.Name), true
	}
}

// runToComplete drives confirm_state repeatedly per spec.md §4.G's
// complete(): "Drives the FSM through remaining CONFIRMs until
// Complete/Failure." It stops the moment the leaf is not a review state,
// since that is the only state CONFIRM has a handler in.
func runToComplete(ctx context.Context, sess *Session) (string, bool) {
	for {
		leaf := sess.leaf()
		if terminalStates[leaf] {
			return fmt.Sprintf("reached %s", leaf), false
		}
		if !reviewStates[leaf] {
			return fmt.Sprintf("cannot auto-complete from %s: not a review state", leaf), true
		}
		if err := sess.send(ctx, hsm.Event{Name: appfsm.EventConfirm}); err != nil {
			return err.Error(), true
		}
	}
}

// availableActions mirrors the FSM graph in pkg/appfsm/fsm.go: review states
// accept confirm_state/provide_feedback/complete; generative and terminal
// states accept only the reflection tools.
func availableActions(leaf string) []string {
	reflection := []string{"get_state", "get_available_actions", "get_state_output"}
	switch {
	case leaf == "":
		return append([]string{"start_application"}, reflection...)
	case reviewStates[leaf]:
		return append([]string{"confirm_state", "provide_feedback", "complete"}, reflection...)
	case terminalStates[leaf]:
		return reflection
	default:
		return reflection
	}
}

type stateOutputView struct {
	State             string            `json:"state"`
	ServerFiles       map[string]string `json:"server_files"`
	FrontendFiles     map[string]string `json:"frontend_files"`
	FeedbackData      string            `json:"feedback_data,omitempty"`
	FeedbackComponent string            `json:"feedback_component,omitempty"`
	Error             string            `json:"error,omitempty"`
}

func stateOutput(sess *Session) (string, error) {
	c := sess.context()
	view := stateOutputView{
		State:             sess.leaf(),
		ServerFiles:       c.ServerFiles,
		FrontendFiles:     c.FrontendFiles,
		FeedbackData:      c.FeedbackData,
		FeedbackComponent: c.FeedbackComponent,
		Error:             c.Error,
	}
	out, err := json.Marshal(view)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
