// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HWFIX_HOME", home)

	cfg := config.NewDefaultConfig()
	assert.Equal(t, filepath.Join(home, ".hwfix", "library"), cfg.LibraryPath)
	assert.Equal(t, filepath.Join(home, ".hwfix", "backups"), cfg.BackupRoot)
	assert.Equal(t, filepath.Join(home, ".hwfix", "reports"), cfg.ReportsDir)
	assert.True(t, cfg.UseLocal)
	assert.True(t, cfg.UseGlobal)
	assert.False(t, cfg.GlobalFirst)
}

func TestExpandPathWithTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HWFIX_HOME", home)

	assert.Equal(t, home, config.ExpandPathWithTilde("~"))
	assert.Equal(t, filepath.Join(home, "x"), config.ExpandPathWithTilde("~/x"))
	assert.Equal(t, "/absolute/path", config.ExpandPathWithTilde("/absolute/path"))
}

func TestLoadConfigMergesGlobalThenProject(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HWFIX_HOME", home)

	globalDir := filepath.Join(home, ".hwfix")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(globalDir, "config.yaml"),
		[]byte("library_path: /opt/hwfix-library\nglobal_first: true\n"), 0644))

	projectDir := t.TempDir()
	projectConfDir := filepath.Join(projectDir, ".hwfix")
	require.NoError(t, os.MkdirAll(projectConfDir, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(projectConfDir, "config.yaml"),
		[]byte("global_first: false\n"), 0644))

	cfg, err := config.LoadConfig(projectDir)
	require.NoError(t, err)

	// Global file applied, project file wins on conflict
	assert.Equal(t, "/opt/hwfix-library", cfg.LibraryPath)
	assert.False(t, cfg.GlobalFirst)
}

func TestFixPathsOrdering(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HWFIX_HOME", home)

	cfg := config.NewDefaultConfig()
	projectDir := "/proj"

	local := filepath.Join("/proj", ".hwfix", "fixes")
	global := filepath.Join(cfg.LibraryPath, "fixes")

	assert.Equal(t, []string{local, global}, cfg.FixPaths(projectDir))

	cfg.GlobalFirst = true
	assert.Equal(t, []string{global, local}, cfg.FixPaths(projectDir))

	cfg.UseGlobal = false
	cfg.GlobalFirst = false
	assert.Equal(t, []string{local}, cfg.FixPaths(projectDir))

	cfg.UseGlobal = true
	cfg.UseLocal = false
	assert.Equal(t, []string{global}, cfg.FixPaths(projectDir))
}

func TestStampLifecycle(t *testing.T) {
	t.Setenv("HWFIX_HOME", t.TempDir())

	_, found, err := config.ReadStamp("galaxy-book-camera")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, config.WriteStamp(&config.Stamp{
		FixName:       "galaxy-book-camera",
		Version:       "1.2.0",
		RunID:         "run-123",
		KernelVersion: "6.10.3",
		BackupRunID:   "run-123",
	}))

	stamp, found, err := config.ReadStamp("galaxy-book-camera")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "galaxy-book-camera", stamp.FixName)
	assert.Equal(t, "run-123", stamp.RunID)
	assert.Equal(t, "6.10.3", stamp.KernelVersion)
	assert.Equal(t, "run-123", stamp.BackupRunID)
	assert.NotEmpty(t, stamp.AppliedAt)

	require.NoError(t, config.RemoveStamp("galaxy-book-camera"))
	_, found, err = config.ReadStamp("galaxy-book-camera")
	require.NoError(t, err)
	assert.False(t, found)

	// Removing a stamp twice is fine
	assert.NoError(t, config.RemoveStamp("galaxy-book-camera"))
}

func TestStampedBackupRuns(t *testing.T) {
	t.Setenv("HWFIX_HOME", t.TempDir())

	runs, err := config.StampedBackupRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)

	require.NoError(t, config.WriteStamp(&config.Stamp{
		FixName:     "galaxy-book-camera",
		RunID:       "run-1",
		BackupRunID: "run-1",
	}))
	require.NoError(t, config.WriteStamp(&config.Stamp{
		FixName: "galaxy-book-speakers",
		RunID:   "run-2",
		// no snapshots were taken for this fix
	}))

	runs, err = config.StampedBackupRuns()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"run-1": true}, runs)
}
