// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/core/models"
)

var commandParamSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"apply"},
	"properties": map[string]interface{}{
		"apply":   commandSpecSchema,
		"revert":  commandSpecSchema,
		"check":   commandSpecSchema,
		"mutates": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

var commandSpecSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"command"},
	"properties": map[string]interface{}{
		"command": map[string]interface{}{"type": "string"},
		"args":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

type commandLine struct {
	command string
	args    []string
}

func (c commandLine) empty() bool {
	return c.command == ""
}

func (c commandLine) String() string {
	if len(c.args) == 0 {
		return c.command
	}
	return c.command + " " + strings.Join(c.args, " ")
}

// commandStep wraps a pair of external commands: one that applies a
// change and one that undoes it. An optional check command (exit 0
// means applied) provides the idempotency probe; without one the step
// reports not-applied and relies on the apply command itself being
// idempotent.
type commandStep struct {
	spec    models.StepSpec
	apply   commandLine
	revert  commandLine
	check   commandLine
	mutates []string
	runner  cmdexec.Runner
}

func newCommandStep(spec models.StepSpec, env Environment) (Step, error) {
	params := Params(spec.Params)

	applyLine := parseCommandLine(params.subMap("apply"))
	if applyLine.empty() {
		return nil, fmt.Errorf("apply.command is required for command steps")
	}

	return &commandStep{
		spec:    spec,
		apply:   applyLine,
		revert:  parseCommandLine(params.subMap("revert")),
		check:   parseCommandLine(params.subMap("check")),
		mutates: params.strSlice("mutates"),
		runner:  env.runner(),
	}, nil
}

func parseCommandLine(p Params) commandLine {
	if p == nil {
		return commandLine{}
	}
	return commandLine{
		command: p.str("command"),
		args:    p.strSlice("args"),
	}
}

func (s *commandStep) Description() string {
	if s.spec.Description != "" {
		return s.spec.Description
	}
	return fmt.Sprintf("Run %s", s.apply)
}

func (s *commandStep) IsApplied(ctx context.Context) (bool, error) {
	if s.check.empty() {
		return false, nil
	}

	_, err := s.runner.Run(ctx, s.check.command, s.check.args)
	// The check command signals "not applied" with a non-zero exit
	return err == nil, nil
}

func (s *commandStep) Apply(ctx context.Context) error {
	result, err := s.runner.Run(ctx, s.apply.command, s.apply.args)
	if err != nil {
		return commandError(s.apply, result, err)
	}
	return nil
}

func (s *commandStep) Revert(ctx context.Context) error {
	if s.revert.empty() {
		return nil
	}

	result, err := s.runner.Run(ctx, s.revert.command, s.revert.args)
	if err != nil {
		return commandError(s.revert, result, err)
	}
	return nil
}

func (s *commandStep) MutatedPaths() []string {
	return s.mutates
}

func commandError(line commandLine, result *cmdexec.Result, err error) error {
	if result != nil && len(result.Stderr) > 0 {
		return fmt.Errorf("command %q failed: %w: %s", line.String(), err, strings.TrimSpace(string(result.Stderr)))
	}
	return fmt.Errorf("command %q failed: %w", line.String(), err)
}
