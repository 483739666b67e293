// SPDX-License-Identifier: Apache-2.0

package library_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/core/library"
	"github.com/hwfix-dev/hwfix/internal/fixplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncEmbedded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manager := library.NewManager(library.NewSyncConfig())
	usedRemote, err := manager.Sync(dir, false)
	require.NoError(t, err)
	assert.False(t, usedRemote)
	return dir
}

func TestSyncEmbeddedPopulatesLibrary(t *testing.T) {
	dir := syncEmbedded(t)

	assert.True(t, library.Seeded(dir))
	assert.FileExists(t, filepath.Join(dir, "fixes", "galaxy-book-camera.yaml"))
	assert.FileExists(t, filepath.Join(dir, "fixes", "galaxy-book-speakers.yaml"))
	assert.FileExists(t, filepath.Join(dir, "fixes", "camera-ccm-preset.yaml"))
	assert.FileExists(t, filepath.Join(dir, "templates", "ccm-preset.conf.tmpl"))
}

func TestSyncOverwritesStaleCopies(t *testing.T) {
	dir := t.TempDir()
	fixesDir := filepath.Join(dir, "fixes")
	require.NoError(t, os.MkdirAll(fixesDir, 0755))
	stale := filepath.Join(fixesDir, "galaxy-book-camera.yaml")
	require.NoError(t, os.WriteFile(stale, []byte("stale: true\n"), 0644))

	manager := library.NewManager(library.NewSyncConfig())
	_, err := manager.Sync(dir, false)
	require.NoError(t, err)

	content, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "stale")
}

func TestEmbeddedFixesAreValid(t *testing.T) {
	dir := syncEmbedded(t)

	resolver := fixplan.NewResolver(filepath.Join(dir, "fixes"))
	fixes, err := resolver.List()
	require.NoError(t, err)
	require.Len(t, fixes, 3)

	for name, fix := range fixes {
		assert.NoError(t, fixplan.Validate(fix), "embedded fix %s must validate", name)
		assert.NotEmpty(t, fix.Description, "embedded fix %s needs a description", name)
	}

	camera := fixes["galaxy-book-camera"]
	require.NotNil(t, camera)
	assert.Contains(t, camera.PackageSets, "camera-hal")
	require.NoError(t, fixplan.SortSteps(camera))
	assert.Equal(t, "install-camera-hal", camera.Steps[0].ID)
}

func TestSeededOnEmptyDir(t *testing.T) {
	assert.False(t, library.Seeded(t.TempDir()))
}
