// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"
	"time"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/service"
)

var serviceParamSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"unit"},
	"properties": map[string]interface{}{
		"unit":         map[string]interface{}{"type": "string"},
		"scope":        map[string]interface{}{"type": "string", "enum": []interface{}{"system", "user"}},
		"state":        map[string]interface{}{"type": "string", "enum": []interface{}{"started", "restarted", "stopped"}},
		"enable":       map[string]interface{}{"type": "boolean"},
		"wait_timeout": map[string]interface{}{"type": "number"},
	},
}

// serviceStep converges a service unit to a desired state, optionally
// enabling it and waiting for it to report active.
type serviceStep struct {
	spec        models.StepSpec
	handle      service.Handle
	state       string
	enable      bool
	waitTimeout time.Duration
	services    ServiceManager
}

func newServiceStep(spec models.StepSpec, env Environment) (Step, error) {
	params := Params(spec.Params)

	unit, err := requireString(params, "unit", "service")
	if err != nil {
		return nil, err
	}
	if env.Services == nil {
		return nil, fmt.Errorf("no service manager available for step %q", spec.ID)
	}

	state := params.str("state")
	if state == "" {
		state = "restarted"
	}

	return &serviceStep{
		spec:        spec,
		handle:      service.Handle{Unit: unit, UserScope: params.str("scope") == "user"},
		state:       state,
		enable:      params.boolean("enable"),
		waitTimeout: time.Duration(params.number("wait_timeout", 0)) * time.Second,
		services:    env.Services,
	}, nil
}

func (s *serviceStep) Description() string {
	if s.spec.Description != "" {
		return s.spec.Description
	}
	return fmt.Sprintf("Ensure %s is %s", s.handle, s.state)
}

func (s *serviceStep) IsApplied(ctx context.Context) (bool, error) {
	active, err := s.services.IsActive(ctx, s.handle.Unit, s.handle.UserScope)
	if err != nil {
		return false, err
	}

	if s.state == "stopped" {
		return !active, nil
	}
	return active, nil
}

// ReappliesOnApply marks restart steps as always due during apply: the
// unit being active says nothing about whether it picked up the config
// written earlier in the run.
func (s *serviceStep) ReappliesOnApply() bool {
	return s.state == "restarted"
}

func (s *serviceStep) Apply(ctx context.Context) error {
	if s.enable {
		if err := s.services.Enable(ctx, s.handle); err != nil {
			return err
		}
	}

	var err error
	switch s.state {
	case "stopped":
		err = s.services.Stop(ctx, s.handle)
	case "started":
		err = s.services.Start(ctx, s.handle)
	default:
		err = s.services.Restart(ctx, s.handle)
	}
	if err != nil {
		return err
	}

	if s.waitTimeout > 0 && s.state != "stopped" {
		ready, err := s.services.WaitUntilActive(ctx, s.handle, s.waitTimeout)
		if err != nil {
			return err
		}
		if !ready {
			return fmt.Errorf("%s did not become active within %s", s.handle, s.waitTimeout)
		}
	}

	return nil
}

// Revert stops the unit and disables it if apply enabled it. Calling
// this for a unit that was never touched is harmless.
func (s *serviceStep) Revert(ctx context.Context) error {
	if s.state == "stopped" {
		return s.services.Start(ctx, s.handle)
	}

	if err := s.services.Stop(ctx, s.handle); err != nil {
		return err
	}
	if s.enable {
		return s.services.Disable(ctx, s.handle)
	}
	return nil
}

func (s *serviceStep) MutatedPaths() []string {
	return nil
}
