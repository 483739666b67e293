// SPDX-License-Identifier: Apache-2.0

package backup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/backup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAndRestoreFile(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "blacklist.conf")
	require.NoError(t, os.WriteFile(target, []byte("blacklist snd_soc_skl\n"), 0644))

	store, err := backup.NewStore(t.TempDir(), "run-1")
	require.NoError(t, err)

	b, err := store.Snapshot(target)
	require.NoError(t, err)
	assert.True(t, b.Existed)

	// Step mutates the file, then the run needs to unwind
	require.NoError(t, os.WriteFile(target, []byte("# managed\noptions ov02c10 test\n"), 0600))
	require.NoError(t, store.Restore(b))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "blacklist snd_soc_skl\n", string(content))
}

func TestSnapshotMissingPathRestoresByDeleting(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "modprobe.d", "hwfix.conf")

	store, err := backup.NewStore(t.TempDir(), "run-2")
	require.NoError(t, err)

	b, err := store.Snapshot(target)
	require.NoError(t, err)
	assert.False(t, b.Existed)

	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("softdep ov02c10\n"), 0644))

	require.NoError(t, store.Restore(b))
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotIsIdempotentPerPath(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "conf")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	store, err := backup.NewStore(t.TempDir(), "run-3")
	require.NoError(t, err)

	first, err := store.Snapshot(target)
	require.NoError(t, err)

	// A later step mutates and re-snapshots the same path; the
	// pre-run content must win on restore.
	require.NoError(t, os.WriteFile(target, []byte("step one"), 0644))
	second, err := store.Snapshot(target)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, os.WriteFile(target, []byte("step two"), 0644))
	require.NoError(t, store.RestoreOutstanding())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
}

func TestRestoreOutstandingSkipsDiscarded(t *testing.T) {
	workDir := t.TempDir()
	keep := filepath.Join(workDir, "keep.conf")
	undo := filepath.Join(workDir, "undo.conf")
	require.NoError(t, os.WriteFile(keep, []byte("keep-old"), 0644))
	require.NoError(t, os.WriteFile(undo, []byte("undo-old"), 0644))

	store, err := backup.NewStore(t.TempDir(), "run-4")
	require.NoError(t, err)

	keepBackup, err := store.Snapshot(keep)
	require.NoError(t, err)
	_, err = store.Snapshot(undo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(keep, []byte("keep-new"), 0644))
	require.NoError(t, os.WriteFile(undo, []byte("undo-new"), 0644))

	require.NoError(t, store.Discard(keepBackup))
	require.NoError(t, store.RestoreOutstanding())

	keepContent, _ := os.ReadFile(keep)
	undoContent, _ := os.ReadFile(undo)
	assert.Equal(t, "keep-new", string(keepContent))
	assert.Equal(t, "undo-old", string(undoContent))
}

func TestCommitRemovesRunDir(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "f")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	store, err := backup.NewStore(t.TempDir(), "run-5")
	require.NoError(t, err)

	_, err = store.Snapshot(target)
	require.NoError(t, err)
	require.NoError(t, store.Commit())

	assert.Empty(t, store.Outstanding())
	_, err = os.Stat(store.RunDir())
	assert.True(t, os.IsNotExist(err))
}

func TestOpenReloadsManifest(t *testing.T) {
	backupRoot := t.TempDir()
	workDir := t.TempDir()
	target := filepath.Join(workDir, "interrupted.conf")
	require.NoError(t, os.WriteFile(target, []byte("before"), 0644))

	store, err := backup.NewStore(backupRoot, "run-6")
	require.NoError(t, err)
	_, err = store.Snapshot(target)
	require.NoError(t, err)

	// Simulate the process dying after a step mutated the file
	require.NoError(t, os.WriteFile(target, []byte("after"), 0644))

	reopened, err := backup.Open(backupRoot, "run-6")
	require.NoError(t, err)
	require.Len(t, reopened.Outstanding(), 1)
	require.NoError(t, reopened.RestoreOutstanding())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "before", string(content))
}

func TestSnapshotDirectory(t *testing.T) {
	workDir := t.TempDir()
	dir := filepath.Join(workDir, "camera")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profiles"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles", "a.conf"), []byte("a"), 0644))

	store, err := backup.NewStore(t.TempDir(), "run-7")
	require.NoError(t, err)

	b, err := store.Snapshot(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles", "a.conf"), []byte("mutated"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.conf"), []byte("new"), 0644))

	require.NoError(t, store.Restore(b))

	content, err := os.ReadFile(filepath.Join(dir, "profiles", "a.conf"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(content))
	_, err = os.Stat(filepath.Join(dir, "extra.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunsListsSnapshotDirectories(t *testing.T) {
	backupRoot := filepath.Join(t.TempDir(), "backups")

	// A missing backup root means no runs
	runs, err := backup.Runs(backupRoot)
	require.NoError(t, err)
	assert.Empty(t, runs)

	target := filepath.Join(t.TempDir(), "camera.conf")
	require.NoError(t, os.WriteFile(target, []byte("before"), 0644))

	store, err := backup.NewStore(backupRoot, "run-8")
	require.NoError(t, err)
	_, err = store.Snapshot(target)
	require.NoError(t, err)

	// A stray directory without a manifest is not a run
	require.NoError(t, os.MkdirAll(filepath.Join(backupRoot, "not-a-run"), 0700))

	runs, err = backup.Runs(backupRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-8"}, runs)

	require.NoError(t, store.Commit())
	runs, err = backup.Runs(backupRoot)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
