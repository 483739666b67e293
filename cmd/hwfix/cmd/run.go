// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/fixplan"
)

// resolveFix loads the configuration and looks the named fix up across
// the configured fix libraries. A name containing a path separator or
// a YAML extension is treated as a direct file path instead.
func resolveFix(projectDir, name string) (*config.Config, *models.Fix, error) {
	cfg, err := config.LoadConfig(projectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}

	if strings.ContainsAny(name, "/\\") || strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		fix, err := fixplan.LoadFix(name)
		return cfg, fix, err
	}

	resolver := fixplan.NewResolver(cfg.FixPaths(projectDir)...)
	fix, err := resolver.Resolve(name)
	return cfg, fix, err
}

// parseParams turns repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
