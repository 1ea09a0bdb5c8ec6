package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicProvider implements Provider against Claude's Messages API.
type AnthropicProvider struct {
	apiKey     string
	httpClient *http.Client
	models     []string
}

// NewAnthropicProvider creates a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		models: []string{
			"claude-sonnet-4-5",
			"claude-opus-4-1",
			"claude-3-5-haiku-20241022",
		},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []string { return p.models }

// Complete sends req to the Messages API and decodes the response into the
// neutral Completion shape.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	wire := p.toWireRequest(req)

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &ProtocolError{Provider: p.Name(), Detail: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Provider: p.Name(), Detail: "build request", Err: err}
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: p.Name(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.parseError(resp.StatusCode, respBody)
	}

	var wireResp anthropicResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, &ProtocolError{Provider: p.Name(), Detail: "decode response", Err: err}
	}

	return p.fromWireResponse(&wireResp)
}

func (p *AnthropicProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

type anthropicRequest struct {
	Model       string                  `json:"model"`
	Messages    []anthropicWireMessage  `json:"messages"`
	System      string                  `json:"system,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Temperature float64                 `json:"temperature,omitempty"`
	Stop        []string                `json:"stop_sequences,omitempty"`
	Tools       []anthropicTool         `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice    `json:"tool_choice,omitempty"`
}

type anthropicWireMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toWireRequest translates the neutral Message/ContentBlock schema to
// Anthropic's content-block array, preserving tool_use_id linkage on
// ToolUseResult blocks.
func (p *AnthropicProvider) toWireRequest(req *CompletionRequest) *anthropicRequest {
	messages := make([]anthropicWireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		wm := anthropicWireMessage{Role: string(msg.Role)}
		for _, b := range msg.Content {
			switch v := b.(type) {
			case TextRaw:
				wm.Content = append(wm.Content, anthropicContentBlock{Type: "text", Text: v.Text})
			case ToolUse:
				wm.Content = append(wm.Content, anthropicContentBlock{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
			case ToolUseResult:
				wm.Content = append(wm.Content, anthropicContentBlock{
					Type:      "tool_result",
					ToolUseID: v.ToolUseID,
					Content:   v.Content,
					IsError:   v.IsError,
				})
			case ThinkingBlock:
				wm.Content = append(wm.Content, anthropicContentBlock{Type: "text", Text: v.Text})
			}
		}
		messages = append(messages, wm)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	wire := &anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      req.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	if len(req.Tools) > 0 {
		wire.Tools = make([]anthropicTool, len(req.Tools))
		for i, t := range req.Tools {
			schema := t.Parameters
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			wire.Tools[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema}
		}
	}

	switch req.ToolChoice {
	case "":
	case "auto":
		wire.ToolChoice = &anthropicToolChoice{Type: "auto"}
	case "none":
		wire.Tools = nil
	default:
		wire.ToolChoice = &anthropicToolChoice{Type: "tool", Name: req.ToolChoice}
	}

	return wire
}

func (p *AnthropicProvider) fromWireResponse(resp *anthropicResponse) (*Completion, error) {
	comp := &Completion{
		Role:         RoleAssistant,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		StopReason:   mapAnthropicStopReason(resp.StopReason),
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			comp.Content = append(comp.Content, TextRaw{Text: block.Text})
		case "tool_use":
			input, _ := block.Input.(map[string]any)
			comp.Content = append(comp.Content, ToolUse{ID: block.ID, Name: block.Name, Input: input})
		case "thinking":
			comp.Content = append(comp.Content, ThinkingBlock{Text: block.Text})
		default:
			return nil, &ProtocolError{Provider: p.Name(), Detail: fmt.Sprintf("unknown content block type %q", block.Type)}
		}
	}

	comp.Content = MergeAdjacentText(comp.Content)
	return comp, nil
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopEndTurn
	case "max_tokens":
		return StopMaxTokens
	case "stop_sequence":
		return StopSequenceHit
	case "tool_use":
		return StopToolUse
	default:
		return StopReasonUnknown
	}
}

func (p *AnthropicProvider) parseError(statusCode int, body []byte) error {
	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &TransientError{Provider: p.Name(), Err: fmt.Errorf("http %d: %s", statusCode, string(body))}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &TransientError{Provider: p.Name(), RetryAfter: "1-5s", Err: fmt.Errorf("%s", errResp.Error.Message)}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &TransientError{Provider: p.Name(), Err: fmt.Errorf("%s", errResp.Error.Message)}
	case http.StatusUnauthorized, http.StatusBadRequest:
		return &ProtocolError{Provider: p.Name(), Detail: errResp.Error.Type, Err: fmt.Errorf("%s", errResp.Error.Message)}
	default:
		if statusCode >= 500 {
			return &TransientError{Provider: p.Name(), Err: fmt.Errorf("%s", errResp.Error.Message)}
		}
		return &ProtocolError{Provider: p.Name(), Detail: fmt.Sprintf("http_%d", statusCode), Err: fmt.Errorf("%s", errResp.Error.Message)}
	}
}
