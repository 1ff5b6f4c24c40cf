package prune

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 7, 23, 12, 0, 0, 0, time.UTC)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("block data"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func age(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func newMockWorker() (*Worker, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(epoch)
	return NewWorker(mock, nil), mock
}

func TestPruneOnce(t *testing.T) {
	root := t.TempDir()
	old := epoch.Add(-5 * time.Hour)
	recent := epoch.Add(-time.Hour)

	touch(t, filepath.Join(root, "replica_cmds", "20250722", "1"), old)
	touch(t, filepath.Join(root, "replica_cmds", "20250722", "2"), old)
	touch(t, filepath.Join(root, "replica_cmds", "20250723", "1"), recent)
	touch(t, filepath.Join(root, "periodic_abci_states", "old.rmp"), old)
	touch(t, filepath.Join(root, "top.log"), old)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fresh_empty"), 0755))

	age(t, filepath.Join(root, "replica_cmds", "20250722"), old)
	age(t, filepath.Join(root, "replica_cmds", "20250723"), recent)
	age(t, filepath.Join(root, "replica_cmds"), old)
	age(t, filepath.Join(root, "periodic_abci_states"), recent)

	w, _ := newMockWorker()
	stats, err := w.PruneOnce(root, 4*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Files)
	assert.Equal(t, int64(4*len("block data")), stats.Bytes)
	assert.Equal(t, 1, stats.Dirs)

	assert.False(t, exists(filepath.Join(root, "replica_cmds", "20250722")))
	assert.True(t, exists(filepath.Join(root, "replica_cmds", "20250723", "1")))
	assert.False(t, exists(filepath.Join(root, "periodic_abci_states", "old.rmp")))
	assert.True(t, exists(filepath.Join(root, "periodic_abci_states")), "recently modified directory is kept")
	assert.True(t, exists(filepath.Join(root, "fresh_empty")))
	assert.False(t, exists(filepath.Join(root, "top.log")))
	assert.True(t, exists(root))
}

func TestPruneOnceRemovesNestedEmptyDirs(t *testing.T) {
	root := t.TempDir()
	old := epoch.Add(-10 * time.Hour)

	touch(t, filepath.Join(root, "a", "b", "c", "file"), old)
	age(t, filepath.Join(root, "a", "b", "c"), old)
	age(t, filepath.Join(root, "a", "b"), old)
	age(t, filepath.Join(root, "a"), old)

	w, _ := newMockWorker()
	stats, err := w.PruneOnce(root, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 3, stats.Dirs)
	assert.False(t, exists(filepath.Join(root, "a")))
}

func TestRunRejectsInvalidArguments(t *testing.T) {
	w, _ := newMockWorker()
	err := w.Run(context.Background(), t.TempDir(), 0, time.Hour)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	touch(t, file, epoch)
	err = w.Run(context.Background(), file, time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestRunWaitsForDirectoryToAppear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "hl", "data")
	w, mock := newMockWorker()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, dir, time.Minute, time.Hour)
	}()

	select {
	case err := <-done:
		t.Fatalf("worker exited before the directory existed: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.MkdirAll(dir, 0755))
	stale := filepath.Join(dir, "stale")
	touch(t, stale, epoch.Add(-5*time.Hour))

	assert.Eventually(t, func() bool {
		mock.Add(10 * time.Minute)
		return !exists(stale)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRunPrunesOnEveryTick(t *testing.T) {
	root := t.TempDir()
	w, mock := newMockWorker()

	first := filepath.Join(root, "first")
	touch(t, first, epoch.Add(-2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, root, time.Minute, time.Hour)
	}()

	assert.Eventually(t, func() bool { return !exists(first) }, 2*time.Second, 10*time.Millisecond)

	// Aged relative to the mock clock; only a later tick can remove it.
	second := filepath.Join(root, "second")
	touch(t, second, epoch.Add(-30*time.Minute))
	assert.True(t, exists(second))

	assert.Eventually(t, func() bool {
		mock.Add(10 * time.Minute)
		return !exists(second)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
