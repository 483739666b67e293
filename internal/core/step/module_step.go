// SPDX-License-Identifier: Apache-2.0

package step

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/probe"
)

var moduleParamSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"module"},
	"properties": map[string]interface{}{
		"module":        map[string]interface{}{"type": "string"},
		"options":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"persist":       map[string]interface{}{"type": "boolean"},
		"modprobe_conf": map[string]interface{}{"type": "string"},
		"conf_root":     map[string]interface{}{"type": "string"},
	},
}

// moduleStep loads a kernel module and optionally persists it across
// boots via modules-load.d, with an optional modprobe.d fragment for
// module options or soft dependency ordering.
type moduleStep struct {
	spec         models.StepSpec
	module       string
	options      []string
	persist      bool
	modprobeConf string
	confRoot     string
	runner       cmdexec.Runner
	prober       *probe.Prober
}

func newModuleStep(spec models.StepSpec, env Environment) (Step, error) {
	params := Params(spec.Params)

	module, err := requireString(params, "module", "module")
	if err != nil {
		return nil, err
	}

	confRoot := params.str("conf_root")
	if confRoot == "" {
		confRoot = "/etc"
	}

	prober := env.Prober
	if prober == nil {
		prober = probe.New()
	}

	return &moduleStep{
		spec:         spec,
		module:       module,
		options:      params.strSlice("options"),
		persist:      params.boolean("persist"),
		modprobeConf: params.str("modprobe_conf"),
		confRoot:     confRoot,
		runner:       env.runner(),
		prober:       prober,
	}, nil
}

func (s *moduleStep) Description() string {
	if s.spec.Description != "" {
		return s.spec.Description
	}
	return fmt.Sprintf("Load kernel module %s", s.module)
}

func (s *moduleStep) loadConfPath() string {
	return filepath.Join(s.confRoot, "modules-load.d", s.module+".conf")
}

func (s *moduleStep) modprobeConfPath() string {
	return filepath.Join(s.confRoot, "modprobe.d", s.module+".conf")
}

func (s *moduleStep) IsApplied(ctx context.Context) (bool, error) {
	loaded, err := s.prober.IsKernelModuleLoaded(s.module)
	if err != nil {
		return false, err
	}
	if !loaded {
		return false, nil
	}

	if s.persist {
		if _, err := os.Stat(s.loadConfPath()); err != nil {
			return false, nil
		}
	}
	if s.modprobeConf != "" {
		have, err := os.ReadFile(s.modprobeConfPath())
		if err != nil || strings.TrimSpace(string(have)) != strings.TrimSpace(s.modprobeConf) {
			return false, nil
		}
	}

	return true, nil
}

func (s *moduleStep) Apply(ctx context.Context) error {
	if s.modprobeConf != "" {
		path := s.modprobeConfPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("error creating modprobe.d: %w", err)
		}
		content := strings.TrimSpace(s.modprobeConf) + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}
	}

	args := append([]string{s.module}, s.options...)
	if result, err := s.runner.Run(ctx, "modprobe", args); err != nil {
		return commandError(commandLine{command: "modprobe", args: args}, result, err)
	}

	if s.persist {
		path := s.loadConfPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("error creating modules-load.d: %w", err)
		}
		if err := os.WriteFile(path, []byte(s.module+"\n"), 0644); err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}
	}

	return nil
}

func (s *moduleStep) Revert(ctx context.Context) error {
	for _, path := range []string{s.loadConfPath(), s.modprobeConfPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing %s: %w", path, err)
		}
	}

	loaded, err := s.prober.IsKernelModuleLoaded(s.module)
	if err != nil {
		return err
	}
	if !loaded {
		return nil
	}

	if result, err := s.runner.Run(ctx, "modprobe", []string{"-r", s.module}); err != nil {
		return commandError(commandLine{command: "modprobe", args: []string{"-r", s.module}}, result, err)
	}
	return nil
}

func (s *moduleStep) MutatedPaths() []string {
	var paths []string
	if s.persist {
		paths = append(paths, s.loadConfPath())
	}
	if s.modprobeConf != "" {
		paths = append(paths, s.modprobeConfPath())
	}
	return paths
}
