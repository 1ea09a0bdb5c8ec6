package llmclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextRaw{Text: "let me check that"},
			ToolUse{ID: "call_1", Name: "read_file", Input: map[string]any{"path": "src/a.ts"}},
			ThinkingBlock{Text: "reasoning about it"},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var restored Message
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, msg.Role, restored.Role)
	require.Len(t, restored.Content, 3)
	assert.Equal(t, TextRaw{Text: "let me check that"}, restored.Content[0])
	assert.Equal(t, ToolUse{ID: "call_1", Name: "read_file", Input: map[string]any{"path": "src/a.ts"}}, restored.Content[1])
	assert.Equal(t, ThinkingBlock{Text: "reasoning about it"}, restored.Content[2])
}

func TestMessage_UnmarshalMergesAdjacentText(t *testing.T) {
	raw := `{"role":"assistant","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}]}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	require.Len(t, msg.Content, 1)
	assert.Equal(t, TextRaw{Text: "hello"}, msg.Content[0])
}

func TestToolUseResult_CarriesToolUseID(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Content: []ContentBlock{
			ToolUseResult{ToolUseID: "call_1", Content: "file contents", IsError: false},
		},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tool_use_id":"call_1"`)
}

func TestMergeAdjacentText(t *testing.T) {
	blocks := []ContentBlock{
		TextRaw{Text: "a"},
		TextRaw{Text: "b"},
		ToolUse{Name: "x"},
		TextRaw{Text: "c"},
		TextRaw{Text: "d"},
	}
	merged := MergeAdjacentText(blocks)
	require.Len(t, merged, 3)
	assert.Equal(t, TextRaw{Text: "ab"}, merged[0])
	assert.Equal(t, ToolUse{Name: "x"}, merged[1])
	assert.Equal(t, TextRaw{Text: "cd"}, merged[2])
}
