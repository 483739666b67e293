// SPDX-License-Identifier: Apache-2.0

package step

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/template"
)

var fileParamSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"target"},
	"properties": map[string]interface{}{
		"target":      map[string]interface{}{"type": "string"},
		"content":     map[string]interface{}{"type": "string"},
		"template":    map[string]interface{}{"type": "string"},
		"mode":        map[string]interface{}{"type": "string"},
		"create_dirs": map[string]interface{}{"type": "boolean"},
		"vars":        map[string]interface{}{"type": "object"},
	},
}

// fileStep writes a configuration file from an inline content template
// or a template file resolved across the configured template
// directories. This is how tuning files, modprobe configs and udev
// rules get placed.
type fileStep struct {
	spec         models.StepSpec
	target       string
	content      string
	templateName string
	mode         os.FileMode
	createDirs   bool
	vars         map[string]interface{}
	templateDirs []string
}

func newFileStep(spec models.StepSpec, env Environment) (Step, error) {
	params := Params(spec.Params)

	target, err := requireString(params, "target", "file")
	if err != nil {
		return nil, err
	}

	content := params.str("content")
	templateName := params.str("template")
	if content == "" && templateName == "" {
		return nil, fmt.Errorf("either content or template is required for file steps")
	}
	if content != "" && templateName != "" {
		return nil, fmt.Errorf("content and template are mutually exclusive for file steps")
	}

	mode := os.FileMode(0644)
	if modeStr := params.str("mode"); modeStr != "" {
		parsed, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid file mode %q: %w", modeStr, err)
		}
		mode = os.FileMode(parsed)
	}

	vars, _ := spec.Params["vars"].(map[string]interface{})
	if vars == nil {
		vars = map[string]interface{}{}
	}

	return &fileStep{
		spec:         spec,
		target:       target,
		content:      content,
		templateName: templateName,
		mode:         mode,
		createDirs:   params.boolean("create_dirs"),
		vars:         vars,
		templateDirs: env.TemplateDirs,
	}, nil
}

func (s *fileStep) Description() string {
	if s.spec.Description != "" {
		return s.spec.Description
	}
	return fmt.Sprintf("Write %s", s.target)
}

func (s *fileStep) render() ([]byte, error) {
	if s.content != "" {
		return template.ProcessString(s.content, s.vars)
	}

	for _, dir := range s.templateDirs {
		path := filepath.Join(dir, s.templateName)
		if _, err := os.Stat(path); err == nil {
			return template.ProcessFile(path, s.vars)
		}
	}
	return nil, fmt.Errorf("template %q not found in any configured location", s.templateName)
}

func (s *fileStep) IsApplied(ctx context.Context) (bool, error) {
	want, err := s.render()
	if err != nil {
		return false, err
	}

	have, err := os.ReadFile(s.target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading %s: %w", s.target, err)
	}

	return bytes.Equal(have, want), nil
}

func (s *fileStep) Apply(ctx context.Context) error {
	content, err := s.render()
	if err != nil {
		return err
	}

	if s.createDirs {
		if err := os.MkdirAll(filepath.Dir(s.target), 0755); err != nil {
			return fmt.Errorf("error creating directories: %w", err)
		}
	}

	if err := os.WriteFile(s.target, content, s.mode); err != nil {
		return fmt.Errorf("error writing %s: %w", s.target, err)
	}

	return nil
}

// Revert removes the target only when it still holds the content this
// step wrote. A file the user has since edited is left alone.
func (s *fileStep) Revert(ctx context.Context) error {
	applied, err := s.IsApplied(ctx)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := os.Remove(s.target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing %s: %w", s.target, err)
	}
	return nil
}

func (s *fileStep) MutatedPaths() []string {
	return []string{s.target}
}
