package sseserver

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ternarybob/forge/pkg/diffstat"
)

// unifiedDiffFiles computes a best-effort unified diff between two file
// snapshots, per path, using diffmatchpatch's line-mode diff. This is the
// same technique pkg/workspace.diffFallback uses against a container's
// extracted tree; here both sides are already in-memory file maps (a
// client-supplied snapshot or a template tree, versus produced files), so
// there is no container to extract from.
func unifiedDiffFiles(before, after map[string]string) string {
	dmp := diffmatchpatch.New()

	paths := make(map[string]bool, len(before)+len(after))
	for p := range before {
		paths[p] = true
	}
	for p := range after {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var out string
	for _, p := range sorted {
		b, a := before[p], after[p]
		if b == a {
			continue
		}
		out += renderFileDiff(dmp, p, b, a)
	}
	return out
}

func renderFileDiff(dmp *diffmatchpatch.DiffMatchPatch, path, before, after string) string {
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	dmp.DiffCleanupSemantic(diffs)

	header := "diff --git a/" + path + " b/" + path + "\n--- a/" + path + "\n+++ b/" + path + "\n"
	var body string
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			body += addPrefix("+", d.Text)
		case diffmatchpatch.DiffDelete:
			body += addPrefix("-", d.Text)
		}
	}
	return header + body
}

func addPrefix(prefix, text string) string {
	var out string
	for _, line := range splitLinesKeepEmpty(text) {
		out += prefix + line + "\n"
	}
	return out
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// diffStat runs pkg/diffstat over a unified diff and adapts it to the SSE
// wire shape.
func diffStat(unifiedDiff string) []FileStat {
	stats := diffstat.Parse(unifiedDiff)
	out := make([]FileStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, FileStat{Path: s.Path, Insertions: s.Insertions, Deletions: s.Deletions})
	}
	return out
}
