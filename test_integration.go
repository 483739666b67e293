//go:build integration

// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/fixplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBasicWorkflow exercises the non-mutating parts of the hwfix
// workflow end-to-end: configuration, fix loading and validation,
// ordering, and the applied-stamp lifecycle.
func TestBasicWorkflow(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HWFIX_HOME", tempDir)

	t.Run("ConfigurationLoad", func(t *testing.T) {
		cfg, err := config.LoadConfig("")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "fixes", cfg.FixesDir)
		assert.Equal(t, "templates", cfg.TemplatesDir)
		assert.True(t, cfg.UseGlobal)
		assert.True(t, cfg.UseLocal)

		fmt.Printf("✓ Configuration loaded successfully\n")
		fmt.Printf("  Library Path: %s\n", cfg.LibraryPath)
		fmt.Printf("  Backup Root: %s\n", cfg.BackupRoot)
	})

	t.Run("FixValidation", func(t *testing.T) {
		validFix := &models.Fix{
			Name: "camera-enable",
			Steps: []models.StepSpec{
				{
					ID:   "install-hal",
					Type: "package",
					Params: map[string]interface{}{
						"set": "camera-hal",
					},
				},
				{
					ID:   "restart-relay",
					Type: "service",
					Params: map[string]interface{}{
						"name":  "v4l2-relayd.service",
						"state": "restarted",
					},
					DependsOn: []string{"install-hal"},
				},
			},
		}

		require.NoError(t, fixplan.Validate(validFix))
		require.NoError(t, fixplan.SortSteps(validFix))
		assert.Equal(t, "install-hal", validFix.Steps[0].ID)

		fmt.Printf("✓ Valid fix passed validation\n")
		fmt.Printf("  Fix: %s\n", validFix.Name)
		fmt.Printf("  Steps: %d\n", len(validFix.Steps))

		invalidFix := &models.Fix{
			Name: "camera-enable",
			Steps: []models.StepSpec{
				{ID: "a", Type: "command", DependsOn: []string{"b"}},
				{ID: "b", Type: "command", DependsOn: []string{"a"}},
			},
		}
		err := fixplan.Validate(invalidFix)
		assert.Error(t, err)

		fmt.Printf("✓ Cyclic fix correctly rejected\n")
	})

	t.Run("FixFileOperations", func(t *testing.T) {
		fixYAML := `name: camera-enable
description: Enable the camera stack
steps:
  - id: write-conf
    type: file
    params:
      target: /etc/camera/hwfix.conf
      content: "enabled = true\n"
`
		fixFile := filepath.Join(tempDir, "camera-enable.yaml")
		require.NoError(t, os.WriteFile(fixFile, []byte(fixYAML), 0644))

		fix, err := fixplan.LoadFix(fixFile)
		require.NoError(t, err)
		assert.Equal(t, "camera-enable", fix.Name)
		assert.Len(t, fix.Steps, 1)

		fmt.Printf("✓ Fix file operations successful\n")
		fmt.Printf("  Fix loaded from: %s\n", fixFile)
	})

	t.Run("StampLifecycle", func(t *testing.T) {
		_, found, err := config.ReadStamp("camera-enable")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, config.WriteStamp(&config.Stamp{
			FixName:       "camera-enable",
			Version:       "test-version",
			RunID:         "run-1",
			KernelVersion: "6.8.0",
		}))

		stamp, found, err := config.ReadStamp("camera-enable")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "run-1", stamp.RunID)
		assert.Equal(t, "test-version", stamp.Version)

		require.NoError(t, config.RemoveStamp("camera-enable"))
		_, found, err = config.ReadStamp("camera-enable")
		require.NoError(t, err)
		assert.False(t, found)

		fmt.Printf("✓ Applied stamp lifecycle working correctly\n")
	})

	t.Run("PathExpansion", func(t *testing.T) {
		expanded := config.ExpandPathWithTilde("~/test/path")
		assert.Equal(t, filepath.Join(tempDir, "test/path"), expanded)

		absolutePath := "/absolute/path"
		assert.Equal(t, absolutePath, config.ExpandPathWithTilde(absolutePath))

		relativePath := "relative/path"
		assert.Equal(t, relativePath, config.ExpandPathWithTilde(relativePath))

		fmt.Printf("✓ Path expansion working correctly\n")
	})

	fmt.Printf("\n✅ All integration tests passed successfully!\n")
}
