// SPDX-License-Identifier: Apache-2.0

package fixplan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/core/format"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/schema"
	"github.com/hwfix-dev/hwfix/internal/core/step"
)

// LoadFix reads and validates a fix definition file.
func LoadFix(filePath string) (*models.Fix, error) {
	var fix models.Fix
	if err := format.ParseFile(filePath, &fix); err != nil {
		return nil, fmt.Errorf("error parsing fix file: %w", err)
	}

	if fix.Name == "" {
		fix.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	if err := Validate(&fix); err != nil {
		return nil, err
	}

	return &fix, nil
}

// Resolver finds fix definitions by name across the configured fix
// directories, in order of precedence.
type Resolver struct {
	fixPaths []string
}

// NewResolver creates a resolver searching the given directories.
func NewResolver(fixPaths ...string) *Resolver {
	return &Resolver{fixPaths: fixPaths}
}

// Resolve finds and loads a fix by name.
func (r *Resolver) Resolve(name string) (*models.Fix, error) {
	var lastErr error

	for _, dir := range r.fixPaths {
		for _, ext := range []string{".yaml", ".yml"} {
			fixPath := filepath.Join(dir, name+ext)
			if _, err := os.Stat(fixPath); err != nil {
				lastErr = err
				continue
			}
			return LoadFix(fixPath)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("could not resolve fix %q: %w", name, lastErr)
	}
	return nil, fmt.Errorf("fix %q not found in any configured location", name)
}

// List returns every fix available from the configured directories,
// keyed by name. Earlier directories win on name collisions.
func (r *Resolver) List() (map[string]*models.Fix, error) {
	fixes := make(map[string]*models.Fix)

	for _, dir := range r.fixPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error reading fix directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			ext := filepath.Ext(entry.Name())
			if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), ext)
			if _, exists := fixes[name]; exists {
				continue
			}
			fix, err := LoadFix(filepath.Join(dir, entry.Name()))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping invalid fix %s: %v\n", entry.Name(), err)
				continue
			}
			fixes[name] = fix
		}
	}

	return fixes, nil
}

// Validate checks a fix definition for structural problems: empty or
// duplicate step ids, dangling or cyclic dependencies.
func Validate(fix *models.Fix) error {
	if len(fix.Steps) == 0 {
		return fmt.Errorf("fix %q contains no steps", fix.Name)
	}

	stepIDs := make(map[string]bool)
	for _, s := range fix.Steps {
		if s.ID == "" {
			return fmt.Errorf("fix %q has a step with an empty id", fix.Name)
		}
		if s.Type == "" {
			return fmt.Errorf("step %q has no type", s.ID)
		}
		if stepIDs[s.ID] {
			return fmt.Errorf("duplicate step id: %s", s.ID)
		}
		stepIDs[s.ID] = true
	}

	for _, s := range fix.Steps {
		for _, dep := range s.DependsOn {
			if !stepIDs[dep] {
				return fmt.Errorf("step %q depends on non-existent step %q", s.ID, dep)
			}
		}
	}

	return detectCycles(fix.Steps)
}

// SortSteps orders steps so every step follows its dependencies,
// preserving the declared order among independent steps.
func SortSteps(fix *models.Fix) error {
	if err := detectCycles(fix.Steps); err != nil {
		return err
	}

	stepMap := make(map[string]int, len(fix.Steps))
	for i, s := range fix.Steps {
		stepMap[s.ID] = i
	}

	sorted := make([]models.StepSpec, 0, len(fix.Steps))
	visited := make(map[string]bool)

	var visit func(s models.StepSpec)
	visit = func(s models.StepSpec) {
		if visited[s.ID] {
			return
		}
		visited[s.ID] = true
		for _, dep := range s.DependsOn {
			visit(fix.Steps[stepMap[dep]])
		}
		sorted = append(sorted, s)
	}

	for _, s := range fix.Steps {
		visit(s)
	}

	fix.Steps = sorted
	return nil
}

func detectCycles(steps []models.StepSpec) error {
	stepMap := make(map[string]models.StepSpec, len(steps))
	for _, s := range steps {
		stepMap[s.ID] = s
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)

	var visit func(id string, trail []string) error
	visit = func(id string, trail []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular step dependency: %s -> %s", strings.Join(trail, " -> "), id)
		}
		state[id] = visiting
		for _, dep := range stepMap[id].DependsOn {
			if err := visit(dep, append(trail, id)); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, s := range steps {
		if err := visit(s.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// ExpandParams substitutes {{.fact}} references in every step's
// parameters from the combined facts and user-supplied parameters,
// with type coercion driven by each step type's schema.
func ExpandParams(fix *models.Fix, factory *step.Factory, data map[string]interface{}) error {
	for i := range fix.Steps {
		s := &fix.Steps[i]
		if s.Params == nil {
			continue
		}
		paramSchema := factory.ParamSchema(s.Type)
		if paramSchema == nil {
			paramSchema = map[string]interface{}{}
		}
		processed, err := schema.ProcessParamsWithSchema(s.Params, data, paramSchema)
		if err != nil {
			return fmt.Errorf("error processing parameters for step %q: %w", s.ID, err)
		}
		s.Params = processed
	}
	return nil
}
