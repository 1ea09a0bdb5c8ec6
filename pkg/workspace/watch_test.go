package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForFile_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ready.json"), []byte("{}"), 0644))

	w := &Workspace{baseDir: dir}
	err := w.WaitForFile(context.Background(), "ready.json", time.Second)
	assert.NoError(t, err)
}

func TestWaitForFile_CreatedLater(t *testing.T) {
	dir := t.TempDir()
	w := &Workspace{baseDir: dir}

	done := make(chan error, 1)
	go func() {
		done <- w.WaitForFile(context.Background(), "dist/manifest.json", 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "manifest.json"), []byte("{}"), 0644))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for WaitForFile to observe file creation")
	}
}

func TestWaitForFile_TimesOut(t *testing.T) {
	dir := t.TempDir()
	w := &Workspace{baseDir: dir}

	err := w.WaitForFile(context.Background(), "never.json", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForFile_NoBaseDir(t *testing.T) {
	w := &Workspace{}
	err := w.WaitForFile(context.Background(), "x.json", 10*time.Millisecond)
	assert.Error(t, err)
}
