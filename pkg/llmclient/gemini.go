package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider against the Gemini API via the
// official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	models []string
}

// NewGeminiProvider creates a provider authenticated with apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmclient: gemini: new client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		models: []string{"gemini-3-pro-preview", "gemini-3-flash-preview"},
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Models() []string { return p.models }

// Complete sends req to GenerateContent and decodes the response into the
// neutral Completion shape.
func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	contents := p.toContents(req.Messages)

	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{p.toGenaiTool(req.Tools)}
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, &TransientError{Provider: p.Name(), Err: err}
	}
	if result == nil || len(result.Candidates) == 0 {
		return nil, &ProtocolError{Provider: p.Name(), Detail: "empty response"}
	}

	return p.fromCandidate(result)
}

func (p *GeminiProvider) toContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, b := range msg.Content {
			switch v := b.(type) {
			case TextRaw:
				parts = append(parts, genai.NewPartFromText(v.Text))
			case ToolUse:
				parts = append(parts, genai.NewPartFromFunctionCall(v.Name, v.Input))
			case ToolUseResult:
				parts = append(parts, genai.NewPartFromFunctionResponse(v.ToolUseID, map[string]any{"content": v.Content, "is_error": v.IsError}))
			case ThinkingBlock:
				parts = append(parts, genai.NewPartFromText(v.Text))
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func (p *GeminiProvider) toGenaiTool(tools []Tool) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func toSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	var schema genai.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return &schema
}

func (p *GeminiProvider) fromCandidate(result *genai.GenerateContentResponse) (*Completion, error) {
	candidate := result.Candidates[0]

	comp := &Completion{
		Role:       RoleAssistant,
		StopReason: mapGeminiFinishReason(candidate.FinishReason),
	}
	if result.UsageMetadata != nil {
		comp.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		comp.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.Text != "":
				comp.Content = append(comp.Content, TextRaw{Text: part.Text})
			case part.FunctionCall != nil:
				comp.Content = append(comp.Content, ToolUse{
					ID:    part.FunctionCall.ID,
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				})
			}
		}
	}

	comp.Content = MergeAdjacentText(comp.Content)
	return comp, nil
}

func mapGeminiFinishReason(reason genai.FinishReason) StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return StopEndTurn
	case genai.FinishReasonMaxTokens:
		return StopMaxTokens
	default:
		if reason == "" {
			return StopEndTurn
		}
		return StopReasonUnknown
	}
}
