package diffstat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/src/App.tsx b/src/App.tsx
index 1111111..2222222 100644
--- a/src/App.tsx
+++ b/src/App.tsx
@@ -1,3 +1,4 @@
+import { useState } from "react"
 export function App() {
-  return <div/>
+  return <div>hello</div>
 }
diff --git a/src/new.ts b/src/new.ts
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/src/new.ts
+export const x = 1
`

func TestParse_MultipleFiles(t *testing.T) {
	stats := Parse(sampleDiff)
	require.Len(t, stats, 2)

	assert.Equal(t, "src/App.tsx", stats[0].Path)
	assert.Equal(t, 2, stats[0].Insertions)
	assert.Equal(t, 1, stats[0].Deletions)

	assert.Equal(t, "src/new.ts", stats[1].Path)
	assert.Equal(t, 1, stats[1].Insertions)
	assert.Equal(t, 0, stats[1].Deletions)
}

func TestParse_Empty(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("   \n  "))
}

func TestParse_NoFileHeaderIgnoresStrayLines(t *testing.T) {
	stats := Parse("+stray line with no diff --git header\n")
	assert.Empty(t, stats)
}
