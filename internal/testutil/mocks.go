// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"sync"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/step"
	"github.com/stretchr/testify/mock"
)

// MockStep provides a versatile mock implementation of the Step
// interface. This can be used for both step-type tests and factory
// tests.
type MockStep struct {
	mock.Mock
	Spec models.StepSpec
	Env  step.Environment
}

// Description mocks the Description method.
func (m *MockStep) Description() string {
	if len(m.Mock.ExpectedCalls) > 0 {
		args := m.Called()
		return args.String(0)
	}
	return m.Spec.Description
}

// IsApplied mocks the IsApplied method.
func (m *MockStep) IsApplied(ctx context.Context) (bool, error) {
	if len(m.Mock.ExpectedCalls) > 0 {
		args := m.Called(ctx)
		return args.Bool(0), args.Error(1)
	}
	return false, nil
}

// Apply mocks the Apply method.
func (m *MockStep) Apply(ctx context.Context) error {
	if len(m.Mock.ExpectedCalls) > 0 {
		args := m.Called(ctx)
		return args.Error(0)
	}
	return nil
}

// Revert mocks the Revert method.
func (m *MockStep) Revert(ctx context.Context) error {
	if len(m.Mock.ExpectedCalls) > 0 {
		args := m.Called(ctx)
		return args.Error(0)
	}
	return nil
}

// MutatedPaths mocks the MutatedPaths method.
func (m *MockStep) MutatedPaths() []string {
	if len(m.Mock.ExpectedCalls) > 0 {
		args := m.Called()
		if paths, ok := args.Get(0).([]string); ok {
			return paths
		}
		return nil
	}
	return nil
}

// NewMockStepCreator returns a creator function for MockSteps, useful
// for registering with the factory.
func NewMockStepCreator() step.Creator {
	return func(spec models.StepSpec, env step.Environment) (step.Step, error) {
		return &MockStep{Spec: spec, Env: env}, nil
	}
}

// CannedResult pairs a command-line prefix with the result a
// ScriptedRunner should return for it.
type CannedResult struct {
	Command string
	Result  *cmdexec.Result
	Err     error
}

// ScriptedRunner is a cmdexec.Runner that records every invocation and
// answers from a canned script. Commands with no canned result succeed
// with empty output.
type ScriptedRunner struct {
	mu      sync.Mutex
	Script  []CannedResult
	Invoked [][]string
}

func (r *ScriptedRunner) Run(ctx context.Context, command string, args []string) (*cmdexec.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Invoked = append(r.Invoked, append([]string{command}, args...))
	for _, canned := range r.Script {
		if canned.Command == command {
			return canned.Result, canned.Err
		}
	}
	return &cmdexec.Result{ExitStatus: 0}, nil
}

// Commands returns the recorded invocations joined as single strings,
// which keeps test assertions readable.
func (r *ScriptedRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.Invoked))
	for _, inv := range r.Invoked {
		joined := inv[0]
		for _, arg := range inv[1:] {
			joined += " " + arg
		}
		out = append(out, joined)
	}
	return out
}
