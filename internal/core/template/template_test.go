// SPDX-License-Identifier: Apache-2.0

package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessString(t *testing.T) {
	out, err := ProcessString("options {{.module}} {{.opts}}\n", map[string]interface{}{
		"module": "ov02c10",
		"opts":   "dyndbg=+p",
	})
	require.NoError(t, err)
	assert.Equal(t, "options ov02c10 dyndbg=+p\n", string(out))
}

func TestProcessStringMissingKey(t *testing.T) {
	_, err := ProcessString("unit = {{.unit}}", map[string]interface{}{})
	assert.Error(t, err)
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("preset = {{.preset}}\n"), 0644))

	out, err := ProcessFile(path, map[string]interface{}{"preset": "neutral"})
	require.NoError(t, err)
	assert.Equal(t, "preset = neutral\n", string(out))

	_, err = ProcessFile(filepath.Join(dir, "absent.tmpl"), nil)
	assert.Error(t, err)
}
