// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		params, err := parseParams(nil)
		require.NoError(t, err)
		assert.Nil(t, params)
	})

	t.Run("pairs", func(t *testing.T) {
		params, err := parseParams([]string{"preset=warm", "red_gain=1.05"})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{
			"preset":   "warm",
			"red_gain": "1.05",
		}, params)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		params, err := parseParams([]string{"extra=a=b"})
		require.NoError(t, err)
		assert.Equal(t, "a=b", params["extra"])
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := parseParams([]string{"preset"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected key=value")
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := parseParams([]string{"=warm"})
		assert.Error(t, err)
	})
}

func TestResolveFix(t *testing.T) {
	t.Setenv("HWFIX_HOME", t.TempDir())

	projectDir := t.TempDir()
	fixesDir := filepath.Join(projectDir, ".hwfix", "fixes")
	require.NoError(t, os.MkdirAll(fixesDir, 0755))

	fixYAML := `name: camera-conf
description: Write the camera configuration
steps:
  - id: write-conf
    type: file
    params:
      target: /etc/camera/hwfix.conf
      content: "enabled = true\n"
`
	fixPath := filepath.Join(fixesDir, "camera-conf.yaml")
	require.NoError(t, os.WriteFile(fixPath, []byte(fixYAML), 0644))

	t.Run("by name", func(t *testing.T) {
		_, fix, err := resolveFix(projectDir, "camera-conf")
		require.NoError(t, err)
		assert.Equal(t, "camera-conf", fix.Name)
	})

	t.Run("by path", func(t *testing.T) {
		_, fix, err := resolveFix(projectDir, fixPath)
		require.NoError(t, err)
		assert.Equal(t, "camera-conf", fix.Name)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, _, err := resolveFix(projectDir, "no-such-fix")
		assert.Error(t, err)
	})
}
