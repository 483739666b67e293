// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"

	"github.com/hwfix-dev/hwfix/internal/core/models"
)

var packageParamSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"set"},
	"properties": map[string]interface{}{
		"set":              map[string]interface{}{"type": "string"},
		"remove_on_revert": map[string]interface{}{"type": "boolean"},
	},
}

// packageStep converges a logical package set through the distro's
// package manager. By default revert leaves packages installed, since
// removing shared dependencies can break unrelated software; fixes
// that install dedicated packages opt in with remove_on_revert.
type packageStep struct {
	spec           models.StepSpec
	setName        string
	removeOnRevert bool
	packages       PackageManager
}

func newPackageStep(spec models.StepSpec, env Environment) (Step, error) {
	params := Params(spec.Params)

	setName, err := requireString(params, "set", "package")
	if err != nil {
		return nil, err
	}
	if env.Packages == nil {
		return nil, fmt.Errorf("no package manager available for step %q", spec.ID)
	}

	return &packageStep{
		spec:           spec,
		setName:        setName,
		removeOnRevert: params.boolean("remove_on_revert"),
		packages:       env.Packages,
	}, nil
}

func (s *packageStep) Description() string {
	if s.spec.Description != "" {
		return s.spec.Description
	}
	return fmt.Sprintf("Install package set %q", s.setName)
}

func (s *packageStep) IsApplied(ctx context.Context) (bool, error) {
	return s.packages.SetInstalled(ctx, s.setName)
}

func (s *packageStep) Apply(ctx context.Context) error {
	return s.packages.InstallSet(ctx, s.setName)
}

func (s *packageStep) Revert(ctx context.Context) error {
	if !s.removeOnRevert {
		return nil
	}
	return s.packages.RemoveSet(ctx, s.setName)
}

func (s *packageStep) MutatedPaths() []string {
	// Package databases are the package manager's own responsibility
	return nil
}
