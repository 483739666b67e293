// SPDX-License-Identifier: Apache-2.0

package format

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string   `json:"name" yaml:"name"`
	Value int      `json:"value" yaml:"value"`
	Items []string `json:"items" yaml:"items"`
}

func TestParseData(t *testing.T) {
	want := testDoc{Name: "camera", Value: 42, Items: []string{"a", "b"}}

	t.Run("YAML", func(t *testing.T) {
		var got testDoc
		err := ParseData([]byte("name: camera\nvalue: 42\nitems: [a, b]\n"), &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("JSONFallback", func(t *testing.T) {
		var got testDoc
		err := ParseData([]byte(`{"name": "camera", "value": 42, "items": ["a", "b"]}`), &got)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Garbage", func(t *testing.T) {
		var got testDoc
		err := ParseData([]byte("{not valid: in either:: format["), &got)
		assert.Error(t, err)
	})
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := testDoc{Name: "speakers", Value: 7, Items: []string{"x"}}

	t.Run("YAMLByDefault", func(t *testing.T) {
		path := filepath.Join(dir, "doc.yaml")
		require.NoError(t, WriteFile(path, doc))

		var got testDoc
		require.NoError(t, ParseFile(path, &got))
		assert.Equal(t, doc, got)
	})

	t.Run("JSONByExtension", func(t *testing.T) {
		path := filepath.Join(dir, "doc.json")
		require.NoError(t, WriteFile(path, doc))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"name": "speakers"`)
	})
}

func TestParseFileMissing(t *testing.T) {
	var got testDoc
	err := ParseFile(filepath.Join(t.TempDir(), "absent.yaml"), &got)
	assert.Error(t, err)
}
