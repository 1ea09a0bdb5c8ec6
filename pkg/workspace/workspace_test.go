package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("node_modules/x.js", []string{"node_modules"}))
	assert.True(t, matchesAny("/app/node_modules/x.js", []string{"node_modules"}))
	assert.False(t, matchesAny("src/x.ts", []string{"node_modules"}))
	assert.True(t, matchesAny("src/x.ts", []string{"src"}))
	assert.False(t, matchesAny("srcfoo/x.ts", []string{"src"}))
}

func TestWorkspace_CheckWritable_AllowedWinsTies(t *testing.T) {
	w := &Workspace{
		protected: []string{"src"},
		allowed:   []string{"src/generated"},
	}

	err := w.checkWritable("src/generated/schema.ts", "write")
	assert.NoError(t, err)

	err = w.checkWritable("src/handlers.ts", "write")
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "write", permErr.Op)
}

func TestWorkspace_CheckWritable_NonEmptyAllowedRestrictsEverythingElse(t *testing.T) {
	w := &Workspace{
		allowed: []string{"src/components"},
	}

	assert.NoError(t, w.checkWritable("src/components/App.tsx", "write"))

	err := w.checkWritable("package.json", "write")
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
}

func TestWorkspace_Remove_AlwaysBlocksProtected(t *testing.T) {
	w := &Workspace{protected: []string{"node_modules"}, allowed: []string{"node_modules"}}
	assert.True(t, matchesAny("node_modules/pkg/index.js", w.protected))

	err := w.Remove(context.Background(), "node_modules/pkg/index.js")
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "rm", permErr.Op)
}

func TestContainerDirAndBase(t *testing.T) {
	assert.Equal(t, "/app/src", containerDir("/app", "src/schema.ts"))
	assert.Equal(t, "schema.ts", containerBase("src/schema.ts"))
	assert.Equal(t, "/app", containerDir("/app", "README.md"))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
}

func TestSplitLinesKeepEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLinesKeepEmpty("a\nb"))
	assert.Nil(t, splitLinesKeepEmpty(""))
}

func TestTrimTarRoot(t *testing.T) {
	assert.Equal(t, "src/index.ts", trimTarRoot("app/src/index.ts", "app"))
	assert.Equal(t, "app", trimTarRoot("app", "app"))
}
