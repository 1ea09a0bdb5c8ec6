package toolproc

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/forge/pkg/llmclient"
)

// Processor drives the native tool-call loop spec.md §4.G describes: invoke
// the model with the running conversation and the seven-tool surface, append
// its message, execute every ToolUse synchronously against the session's
// FSM, and append the matching ToolUseResult.
type Processor struct {
	Client       *llmclient.Client
	Registry     *Registry
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Logger       arbor.ILogger
}

// Step runs exactly one round: one completion call, one assistant message
// appended, every resulting tool use executed in order. The returned
// messages are only the ones appended this round (assistant turn plus the
// tool-result turn, if any), so callers append them onto their own history.
func (p *Processor) Step(ctx context.Context, sess *Session, history []llmclient.Message) ([]llmclient.Message, Status, error) {
	req := &llmclient.CompletionRequest{
		Messages:     history,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
		Tools:        Tools(),
		SystemPrompt: p.SystemPrompt,
	}

	comp, err := p.Client.Complete(ctx, req)
	if err != nil {
		return nil, StatusIdle, fmt.Errorf("toolproc: completion: %w", err)
	}

	assistantMsg := llmclient.Message{Role: llmclient.RoleAssistant, Content: comp.Content}
	produced := []llmclient.Message{assistantMsg}

	var results []llmclient.ContentBlock
	for _, block := range comp.Content {
		call, ok := block.(llmclient.ToolUse)
		if !ok {
			continue
		}
		text, isErr := execTool(ctx, sess, call)
		if p.Logger != nil {
			p.Logger.Debug().Str("tool", call.Name).Bool("error", isErr).Msg("toolproc: executed tool call")
		}
		results = append(results, llmclient.ToolUseResult{ToolUseID: call.ID, Content: text, IsError: isErr})
	}

	if len(results) > 0 {
		produced = append(produced, llmclient.Message{Role: llmclient.RoleUser, Content: results})
	}

	status := StatusIdle
	if comp.StopReason == llmclient.StopToolUse {
		status = StatusWIP
	}

	return produced, status, nil
}
