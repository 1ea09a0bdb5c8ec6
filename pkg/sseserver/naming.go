package sseserver

import (
	"context"
	"strings"

	"github.com/ternarybob/forge/pkg/llmclient"
)

const namingSystemPrompt = "Given a short description of an application to build, reply with exactly two lines:\n" +
	"APP_NAME: <a short kebab-case application name>\n" +
	"COMMIT_MESSAGE: <a one-line git commit message for scaffolding it>\n" +
	"No other text."

// nameApplication asks the model for a short app name and commit message
// for the initial scaffolding event, per spec.md §4.H: "model-generated
// app_name + commit_message." A nil client (no LLM configured yet, or a
// restored session) falls back to fixed placeholders rather than failing
// the stream.
func nameApplication(ctx context.Context, client *llmclient.Client, prompt string) (appName, commitMessage string) {
	if client == nil {
		return "application", "Initial scaffold"
	}

	comp, err := client.Complete(ctx, &llmclient.CompletionRequest{
		Messages: []llmclient.Message{{
			Role:    llmclient.RoleUser,
			Content: []llmclient.ContentBlock{llmclient.TextRaw{Text: prompt}},
		}},
		MaxTokens:    200,
		SystemPrompt: namingSystemPrompt,
	})
	if err != nil {
		return "application", "Initial scaffold"
	}

	var text string
	for _, b := range comp.Content {
		if t, ok := b.(llmclient.TextRaw); ok {
			text += t.Text
		}
	}

	appName, commitMessage = "application", "Initial scaffold"
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "APP_NAME:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "APP_NAME:")); v != "" {
				appName = v
			}
		case strings.HasPrefix(line, "COMMIT_MESSAGE:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "COMMIT_MESSAGE:")); v != "" {
				commitMessage = v
			}
		}
	}
	return appName, commitMessage
}
