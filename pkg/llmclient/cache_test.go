package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *CompletionRequest {
	return &CompletionRequest{
		Model:     "model-a",
		MaxTokens: 100,
		Messages: []Message{
			{Role: RoleUser, Content: []ContentBlock{TextRaw{Text: "hello"}}},
		},
	}
}

func TestCache_CanonicalKey_StableAcrossToolUseIDs(t *testing.T) {
	c := &Cache{mode: CacheLRU}

	a := sampleRequest()
	a.Messages = append(a.Messages, Message{Role: RoleAssistant, Content: []ContentBlock{ToolUse{ID: "call_1", Name: "read_file", Input: map[string]any{"path": "x"}}}})

	b := sampleRequest()
	b.Messages = append(b.Messages, Message{Role: RoleAssistant, Content: []ContentBlock{ToolUse{ID: "call_999", Name: "read_file", Input: map[string]any{"path": "x"}}}})

	assert.Equal(t, c.CanonicalKey(a), c.CanonicalKey(b))
}

func TestCache_CanonicalKey_DiffersOnContent(t *testing.T) {
	c := &Cache{mode: CacheLRU}
	a := sampleRequest()
	b := sampleRequest()
	b.Messages[0].Content[0] = TextRaw{Text: "goodbye"}

	assert.NotEqual(t, c.CanonicalKey(a), c.CanonicalKey(b))
}

func TestCache_RecordThenReplay(t *testing.T) {
	dir := t.TempDir()

	recorder, err := NewCache(CacheRecord, dir, 0)
	require.NoError(t, err)

	req := sampleRequest()
	key := recorder.CanonicalKey(req)
	resp := &Completion{Role: RoleAssistant, Content: []ContentBlock{TextRaw{Text: "answer"}}, StopReason: StopEndTurn, InputTokens: 3, OutputTokens: 1}
	require.NoError(t, recorder.Put(key, resp))

	replayer, err := NewCache(CacheReplay, dir, 0)
	require.NoError(t, err)

	got, ok, err := replayer.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resp.Content, got.Content)
}

func TestCache_ReplayMissErrors(t *testing.T) {
	dir := t.TempDir()
	replayer, err := NewCache(CacheReplay, dir, 0)
	require.NoError(t, err)

	_, _, err = replayer.Get("does-not-exist")
	require.Error(t, err)
	var missErr *CacheMissError
	assert.ErrorAs(t, err, &missErr)
}

func TestCache_LRUEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(CacheLRU, dir, 2)
	require.NoError(t, err)

	resp := &Completion{Role: RoleAssistant, StopReason: StopEndTurn}
	require.NoError(t, cache.Put("a", resp))
	require.NoError(t, cache.Put("b", resp))
	require.NoError(t, cache.Put("c", resp))

	_, ok, err := cache.Get("a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok, err = cache.Get("c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_OffModeNeverStores(t *testing.T) {
	cache, err := NewCache(CacheOff, "", 0)
	require.NoError(t, err)

	resp := &Completion{Role: RoleAssistant, StopReason: StopEndTurn}
	require.NoError(t, cache.Put("a", resp))

	_, ok, err := cache.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}
