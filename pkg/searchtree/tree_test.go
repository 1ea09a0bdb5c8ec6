package searchtree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Files   map[string]string `json:"files"`
	Branch  bool               `json:"branch"`
}

func (p payload) ShouldBranch() bool { return p.Branch }

func TestTree_TrajectoryAndChildren(t *testing.T) {
	tree := NewTree(payload{Files: map[string]string{"a.ts": "root"}})
	root := tree.Root()
	assert.Equal(t, 0, root.Depth())
	assert.True(t, root.IsLeaf())

	child1 := tree.AddChild(root, payload{Files: map[string]string{"b.ts": "1"}})
	child2 := tree.AddChild(root, payload{Files: map[string]string{"c.ts": "2"}, Branch: true})

	assert.False(t, root.IsLeaf())
	assert.True(t, child1.IsLeaf())
	assert.False(t, child1.ShouldBranch())
	assert.True(t, child2.ShouldBranch())

	grandchild := tree.AddChild(child1, payload{Files: map[string]string{"d.ts": "3"}})

	traj := grandchild.Trajectory()
	require.Len(t, traj, 3)
	assert.Equal(t, root.ID(), traj[0].ID())
	assert.Equal(t, child1.ID(), traj[1].ID())
	assert.Equal(t, grandchild.ID(), traj[2].ID())

	all := root.AllChildren()
	assert.Len(t, all, 3)
}

func TestTree_DumpLoadRoundTrip(t *testing.T) {
	tree := NewTree(payload{Files: map[string]string{"a.ts": "root"}})
	root := tree.Root()
	child := tree.AddChild(root, payload{Files: map[string]string{"b.ts": "1"}})
	tree.AddChild(child, payload{Files: map[string]string{"c.ts": "2"}, Branch: true})

	dumped := tree.Dump()
	require.Len(t, dumped, 3)

	restored, err := Load(dumped)
	require.NoError(t, err)

	redumped := restored.Dump()
	if diff := cmp.Diff(dumped, redumped); diff != "" {
		t.Fatalf("dump/load round-trip mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 0, restored.Root().Depth())
	leaf := restored.Root().Children()[0].Children()[0]
	assert.Equal(t, 2, leaf.Depth())
	assert.True(t, leaf.ShouldBranch())
}

func TestLoad_EmptyRecordsErrors(t *testing.T) {
	_, err := Load[payload](nil)
	assert.Error(t, err)
}

func TestLoad_UnknownParentErrors(t *testing.T) {
	_, err := Load([]Record[payload]{
		{ID: "root"},
		{ID: "orphan", Parent: "missing"},
	})
	assert.Error(t, err)
}
