package llmclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"
)

// CacheMode selects the on-disk completion cache's behaviour.
type CacheMode string

const (
	CacheOff     CacheMode = "off"
	CacheRecord  CacheMode = "record"
	CacheReplay  CacheMode = "replay"
	CacheLRU     CacheMode = "lru"
	nearDupMatch           = 0.97
)

// CacheMissError is returned by Get in replay mode when no recording exists.
type CacheMissError struct {
	Key string
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("llmclient: cache: replay miss for key %s", e.Key)
}

// Cache stores completions on disk keyed by a canonicalised request hash,
// and keeps a chromem-go vector collection alongside it that NearDuplicate
// queries for prompts close to, but not byte-identical with, an earlier one.
// Client.Complete serves completions from the exact-hash lookup only; it
// does not call NearDuplicate.
type Cache struct {
	mode       CacheMode
	dir        string
	maxEntries int

	mu         sync.Mutex
	order      []string
	collection *chromem.Collection
}

// NewCache constructs a Cache rooted at dir. mode=off short-circuits to a
// no-op cache; other modes ensure dir exists and load the LRU ordering.
func NewCache(mode CacheMode, dir string, maxEntries int) (*Cache, error) {
	if mode == "" {
		mode = CacheOff
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	c := &Cache{mode: mode, dir: dir, maxEntries: maxEntries}
	if mode == CacheOff {
		return c, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("llmclient: cache: create dir: %w", err)
	}

	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("completion-prompts", nil, chromem.NewEmbeddingFuncDefault())
	if err != nil {
		return nil, fmt.Errorf("llmclient: cache: create vector collection: %w", err)
	}
	c.collection = collection

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("llmclient: cache: list dir: %w", err)
	}
	var withTime []os.DirEntry
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			withTime = append(withTime, e)
		}
	}
	sort.Slice(withTime, func(i, j int) bool {
		ii, _ := withTime[i].Info()
		jj, _ := withTime[j].Info()
		if ii == nil || jj == nil {
			return false
		}
		return ii.ModTime().Before(jj.ModTime())
	})
	for _, e := range withTime {
		c.order = append(c.order, strippedExt(e.Name()))
	}

	return c, nil
}

// CanonicalKey hashes req after replacing id-like and cache-control fields
// with stable placeholders, so two requests that differ only by tool_use id
// or a cache-control hint still share a cache entry.
func (c *Cache) CanonicalKey(req *CompletionRequest) string {
	type canonBlock struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	}
	type canonMessage struct {
		Role    Role         `json:"role"`
		Content []canonBlock `json:"content"`
	}

	canon := struct {
		Model       string
		MaxTokens   int
		Temperature float64
		ToolChoice  string
		System      string
		ToolNames   []string
		Messages    []canonMessage
	}{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ToolChoice:  req.ToolChoice,
		System:      req.SystemPrompt,
	}
	for _, t := range req.Tools {
		canon.ToolNames = append(canon.ToolNames, t.Name+":"+t.Description)
	}
	for _, m := range req.Messages {
		cm := canonMessage{Role: m.Role}
		for _, b := range m.Content {
			switch v := b.(type) {
			case TextRaw:
				cm.Content = append(cm.Content, canonBlock{Type: "text", Text: v.Text})
			case ToolUse:
				cm.Content = append(cm.Content, canonBlock{Type: "tool_use", Name: v.Name, Input: v.Input})
			case ToolUseResult:
				cm.Content = append(cm.Content, canonBlock{Type: "tool_use_result", Text: v.Content})
			case ThinkingBlock:
				cm.Content = append(cm.Content, canonBlock{Type: "thinking", Text: v.Text})
			}
		}
		canon.Messages = append(canon.Messages, cm)
	}

	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached completion for key, if any. In replay mode a miss
// is a *CacheMissError rather than ok=false, since replaying against an
// incomplete recording is a test-authoring mistake worth failing loudly on.
func (c *Cache) Get(key string) (*Completion, bool, error) {
	if c.mode == CacheOff || c.mode == CacheRecord {
		if c.mode == CacheRecord {
			comp, ok, err := c.read(key)
			return comp, ok, err
		}
		return nil, false, nil
	}

	comp, ok, err := c.read(key)
	if err != nil {
		return nil, false, err
	}
	if !ok && c.mode == CacheReplay {
		return nil, false, &CacheMissError{Key: key}
	}
	return comp, ok, nil
}

func (c *Cache) read(key string) (*Completion, bool, error) {
	path := filepath.Join(c.dir, key+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("llmclient: cache: read %s: %w", key, err)
	}

	var wire cachedCompletion
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, false, fmt.Errorf("llmclient: cache: decode %s: %w", key, err)
	}
	return wire.toCompletion(), true, nil
}

// Put stores resp under key. In lru mode, entries beyond maxEntries are
// evicted oldest-first.
func (c *Cache) Put(key string, resp *Completion) error {
	if c.mode == CacheOff || c.mode == CacheReplay {
		return nil
	}

	wire := fromCompletion(resp)
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("llmclient: cache: encode %s: %w", key, err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, key+".json"), data, 0644); err != nil {
		return fmt.Errorf("llmclient: cache: write %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, key)
	if c.mode == CacheLRU {
		for len(c.order) > c.maxEntries {
			evict := c.order[0]
			c.order = c.order[1:]
			_ = os.Remove(filepath.Join(c.dir, evict+".json"))
		}
	}
	return nil
}

// NearDuplicate reports whether prompt is a near-duplicate of a previously
// seen prompt, returning the matching cache key when true.
func (c *Cache) NearDuplicate(ctx context.Context, prompt, key string) (string, bool) {
	if c.collection == nil {
		return "", false
	}

	count := c.collection.Count()
	if count > 0 {
		n := 1
		results, err := c.collection.Query(ctx, prompt, n, nil, nil)
		if err == nil && len(results) > 0 && results[0].Similarity >= nearDupMatch {
			return results[0].ID, true
		}
	}

	_ = c.collection.AddDocument(ctx, chromem.Document{ID: key, Content: prompt})
	return "", false
}

func strippedExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// cachedCompletion is the on-disk JSON shape for a Completion, since
// ContentBlock is an unexported-method interface that needs the same
// discriminated-union handling as Message.
type cachedCompletion struct {
	Role         Role        `json:"role"`
	Content      []wireBlock `json:"content"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	StopReason   StopReason  `json:"stop_reason"`
}

func fromCompletion(c *Completion) cachedCompletion {
	msg := Message{Role: c.Role, Content: c.Content}
	data, _ := msg.MarshalJSON()
	var wm wireMessage
	_ = json.Unmarshal(data, &wm)
	return cachedCompletion{
		Role:         c.Role,
		Content:      wm.Content,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		StopReason:   c.StopReason,
	}
}

func (wc cachedCompletion) toCompletion() *Completion {
	wm := wireMessage{Role: wc.Role, Content: wc.Content}
	data, _ := json.Marshal(wm)
	var msg Message
	_ = msg.UnmarshalJSON(data)
	return &Completion{
		Role:         msg.Role,
		Content:      msg.Content,
		InputTokens:  wc.InputTokens,
		OutputTokens: wc.OutputTokens,
		StopReason:   wc.StopReason,
	}
}
