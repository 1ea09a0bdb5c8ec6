package beam

import (
	"regexp"
	"strings"
)

// FileWrite is a parsed `<file path="...">...</file>` block: a plain
// full-file replacement.
type FileWrite struct {
	Path    string
	Content string
}

// DiffEdit is a parsed SEARCH/REPLACE block targeting an existing file.
type DiffEdit struct {
	Path   string
	Search string
	Replace string
}

// ToolCall is a parsed tool invocation appearing in assistant text, in the
// order it was written.
type ToolCall struct {
	Name string
	Path string
}

var (
	fileBlockRe = regexp.MustCompile(`(?s)<file path="([^"]+)">\s*\n(.*?)\n?</file>`)
	diffBlockRe = regexp.MustCompile(`(?s)<file path="([^"]+)">\s*\n<<<<<<< SEARCH\s*\n(.*?)\n=======\s*\n(.*?)\n>>>>>>> REPLACE\s*\n?</file>`)
	toolCallRe  = regexp.MustCompile(`(?s)<(read_file|delete_file|complete)(?:\s+path="([^"]*)")?\s*/?>`)
)

// ParseFileWrites extracts plain `<file path="...">` blocks (ones that are
// not SEARCH/REPLACE edits) from assistant text.
func ParseFileWrites(text string) []FileWrite {
	var writes []FileWrite
	for _, m := range fileBlockRe.FindAllStringSubmatch(text, -1) {
		body := m[2]
		if strings.Contains(body, "<<<<<<< SEARCH") {
			continue
		}
		writes = append(writes, FileWrite{Path: m[1], Content: body})
	}
	return writes
}

// ParseDiffEdits extracts SEARCH/REPLACE blocks from assistant text.
func ParseDiffEdits(text string) []DiffEdit {
	var edits []DiffEdit
	for _, m := range diffBlockRe.FindAllStringSubmatch(text, -1) {
		edits = append(edits, DiffEdit{Path: m[1], Search: m[2], Replace: m[3]})
	}
	return edits
}

// ParseToolCalls extracts read_file/delete_file/complete invocations from
// assistant text, in source order.
func ParseToolCalls(text string) []ToolCall {
	var calls []ToolCall
	for _, m := range toolCallRe.FindAllStringSubmatch(text, -1) {
		calls = append(calls, ToolCall{Name: m[1], Path: m[2]})
	}
	return calls
}

// ApplyDiff substitutes the single occurrence of edit.Search in current with
// edit.Replace. It errors if Search occurs zero or more than once.
func ApplyDiff(path, current string, edit DiffEdit) (string, error) {
	count := strings.Count(current, edit.Search)
	if count != 1 {
		return "", &DiffMismatchError{Path: path, Count: count}
	}
	return strings.Replace(current, edit.Search, edit.Replace, 1), nil
}
