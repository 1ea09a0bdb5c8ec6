// Package llmclient provides a provider-agnostic completion protocol over
// multiple LLM backends, with request routing, retries, and caching.
package llmclient

import (
	"encoding/json"
	"fmt"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason explains why a provider stopped generating.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopSequenceHit  StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
	StopReasonUnknown StopReason = "unknown"
)

// ContentBlock is one tagged variant of a Message's content.
// Concrete types: TextRaw, ToolUse, ToolUseResult, ThinkingBlock.
type ContentBlock interface {
	blockType() string
}

// TextRaw is a plain text block.
type TextRaw struct {
	Text string
}

func (TextRaw) blockType() string { return "text" }

// ToolUse is a model-issued tool invocation.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUse) blockType() string { return "tool_use" }

// ToolUseResult carries the outcome of executing a ToolUse back to the model.
type ToolUseResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (ToolUseResult) blockType() string { return "tool_use_result" }

// ThinkingBlock carries extended-thinking text, when the provider emits it.
type ThinkingBlock struct {
	Text string
}

func (ThinkingBlock) blockType() string { return "thinking" }

// Message is one turn of a conversation: a role plus an ordered list of
// tagged content blocks.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// wireBlock is the discriminated-union envelope used for JSON round-trips.
type wireBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    Role        `json:"role"`
	Content []wireBlock `json:"content"`
}

// MarshalJSON implements the stable discriminator encoding for Message.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, Content: make([]wireBlock, 0, len(m.Content))}
	for _, b := range m.Content {
		switch v := b.(type) {
		case TextRaw:
			w.Content = append(w.Content, wireBlock{Type: "text", Text: v.Text})
		case ToolUse:
			w.Content = append(w.Content, wireBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
		case ToolUseResult:
			w.Content = append(w.Content, wireBlock{Type: "tool_use_result", ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError})
		case ThinkingBlock:
			w.Content = append(w.Content, wireBlock{Type: "thinking", Text: v.Text})
		default:
			return nil, fmt.Errorf("llmclient: marshal message: unknown content block %T", b)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a Message from its discriminated-union encoding,
// merging adjacent TextRaw blocks on read-back.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	m.Role = w.Role
	m.Content = nil
	for _, wb := range w.Content {
		switch wb.Type {
		case "text":
			if last, ok := lastText(m.Content); ok {
				m.Content[len(m.Content)-1] = TextRaw{Text: last.Text + wb.Text}
				continue
			}
			m.Content = append(m.Content, TextRaw{Text: wb.Text})
		case "tool_use":
			m.Content = append(m.Content, ToolUse{ID: wb.ID, Name: wb.Name, Input: wb.Input})
		case "tool_use_result":
			m.Content = append(m.Content, ToolUseResult{ToolUseID: wb.ToolUseID, Content: wb.Content, IsError: wb.IsError})
		case "thinking":
			m.Content = append(m.Content, ThinkingBlock{Text: wb.Text})
		default:
			return fmt.Errorf("llmclient: unmarshal message: unknown content type %q", wb.Type)
		}
	}
	return nil
}

func lastText(blocks []ContentBlock) (TextRaw, bool) {
	if len(blocks) == 0 {
		return TextRaw{}, false
	}
	t, ok := blocks[len(blocks)-1].(TextRaw)
	return t, ok
}

// MergeAdjacentText collapses consecutive TextRaw blocks into one, used
// after a transparent max_tokens continuation appends a fresh assistant
// turn onto the tail of a prior one.
func MergeAdjacentText(blocks []ContentBlock) []ContentBlock {
	merged := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if t, ok := b.(TextRaw); ok {
			if len(merged) > 0 {
				if last, ok := merged[len(merged)-1].(TextRaw); ok {
					merged[len(merged)-1] = TextRaw{Text: last.Text + t.Text}
					continue
				}
			}
		}
		merged = append(merged, b)
	}
	return merged
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TokenUsage tracks prompt/completion token counts for a single call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionRequest is the neutral request shape passed to completion().
type CompletionRequest struct {
	Messages     []Message
	MaxTokens    int
	Model        string
	Temperature  float64
	Tools        []Tool
	ToolChoice   string
	SystemPrompt string
}

// Completion is the neutral response shape returned by completion().
type Completion struct {
	Role         Role
	Content      []ContentBlock
	InputTokens  int
	OutputTokens int
	StopReason   StopReason
}
