// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/probe"
	"github.com/hwfix-dev/hwfix/internal/service"
)

// ErrUnsupported marks a failure the orchestrator should warn about
// and continue past, such as package installation on a distro family
// without an automated backend.
var ErrUnsupported = errors.New("unsupported on this system")

// Step is a single idempotent, reversible unit of system configuration
// change.
//
// Implementations must uphold two contracts the runner cannot enforce:
// Revert must be safe to call even if Apply partially failed or never
// ran, and a partially failed Apply must leave IsApplied reporting
// false so retry and revert behave correctly.
type Step interface {
	// Description returns a human-readable description of the step.
	Description() string

	// IsApplied reports whether the step's change is already in place.
	IsApplied(ctx context.Context) (bool, error)

	// Apply performs the change.
	Apply(ctx context.Context) error

	// Revert undoes the change.
	Revert(ctx context.Context) error

	// MutatedPaths lists the filesystem paths Apply will touch, so the
	// runner can snapshot them beforehand.
	MutatedPaths() []string
}

// Reapplier is implemented by steps whose effect does not persist, so
// apply must run them even when the observed state already looks
// converged. A service restart after a config change is the canonical
// case. Status and revert modes still go through IsApplied.
type Reapplier interface {
	ReappliesOnApply() bool
}

// ServiceManager is the surface of the service controller steps use.
type ServiceManager interface {
	Start(ctx context.Context, h service.Handle) error
	Stop(ctx context.Context, h service.Handle) error
	Restart(ctx context.Context, h service.Handle) error
	Enable(ctx context.Context, h service.Handle) error
	Disable(ctx context.Context, h service.Handle) error
	IsActive(ctx context.Context, unit string, userScope bool) (bool, error)
	WaitUntilActive(ctx context.Context, h service.Handle, timeout time.Duration) (bool, error)
}

// PackageManager is the surface of the package installer steps use.
type PackageManager interface {
	InstallSet(ctx context.Context, setName string) error
	RemoveSet(ctx context.Context, setName string) error
	SetInstalled(ctx context.Context, setName string) (bool, error)
}

// Environment carries the run's shared collaborators into step
// construction. It replaces the ambient state a hand-written script
// would keep in shell variables.
type Environment struct {
	Prober       *probe.Prober
	Services     ServiceManager
	Packages     PackageManager
	Runner       cmdexec.Runner
	TemplateDirs []string
	WorkingDir   string
	Verbose      bool
}

func (e Environment) runner() cmdexec.Runner {
	if e.Runner != nil {
		return e.Runner
	}
	return cmdexec.ExecRunner{Verbose: e.Verbose}
}

// Params is the decoded parameter map of a step spec.
type Params map[string]interface{}

func (p Params) str(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p Params) boolean(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Params) strSlice(key string) []string {
	raw, ok := p[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p Params) number(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func (p Params) subMap(key string) Params {
	v, _ := p[key].(map[string]interface{})
	return Params(v)
}

func requireString(p Params, key, stepType string) (string, error) {
	v := p.str(key)
	if v == "" {
		return "", fmt.Errorf("%s is required for %s steps", key, stepType)
	}
	return v, nil
}
