package workspace

import (
	"path"
	"strings"
)

// cleanPath normalises a workspace-relative path for prefix comparison:
// strips a leading "./", collapses "..", and drops any leading slash so
// "/app/src/x.ts" and "src/x.ts" compare identically against prefix sets
// rooted at the workspace cwd.
func cleanPath(p string) string {
	p = strings.TrimPrefix(p, "/app/")
	p = strings.TrimPrefix(p, "/")
	return path.Clean(p)
}

// matchesAny reports whether p falls under any of the given path prefixes.
// A prefix matches p when p equals the prefix or begins with "prefix/".
func matchesAny(p string, prefixes []string) bool {
	p = cleanPath(p)
	for _, prefix := range prefixes {
		prefix = cleanPath(prefix)
		if prefix == "" || prefix == "." {
			continue
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
