package snapshot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/forge/pkg/hsm"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	cp := &hsm.Checkpoint{
		StackPath: []string{"root", "Draft"},
		Context:   json.RawMessage(`{"user_prompt":"build a todo app"}`),
		Actors: []hsm.ActorCheckpoint{
			{Path: []string{"root", "Draft"}, Data: json.RawMessage(`{"foo":"bar"}`)},
		},
	}

	require.NoError(t, store.Save(context.Background(), "trace-1", PhaseEnter, cp))

	got, err := store.Load(context.Background(), "trace-1", PhaseEnter)
	require.NoError(t, err)
	assert.Equal(t, cp.StackPath, got.StackPath)
	assert.JSONEq(t, string(cp.Context), string(got.Context))
	require.Len(t, got.Actors, 1)
	assert.Equal(t, cp.Actors[0].Path, got.Actors[0].Path)
}

func TestSavePlacesBlobAtKeyedPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	cp := &hsm.Checkpoint{StackPath: []string{"root"}, Context: json.RawMessage(`{}`)}
	require.NoError(t, store.Save(context.Background(), "trace-2", PhaseExit, cp))

	assert.FileExists(t, filepath.Join(dir, "trace-2", "fsm_exit.json"))
}

func TestLoadMissingReturnsError(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "does-not-exist", PhaseEnter)
	assert.Error(t, err)
}
