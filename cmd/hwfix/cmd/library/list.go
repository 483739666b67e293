// SPDX-License-Identifier: Apache-2.0

package library

import (
	"fmt"
	"sort"

	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/fixplan"
	"github.com/spf13/cobra"
)

func getListCmd() *cobra.Command {
	var projectDir string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the fixes available in the configured libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(projectDir)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			resolver := fixplan.NewResolver(cfg.FixPaths(projectDir)...)
			fixes, err := resolver.List()
			if err != nil {
				return err
			}

			if len(fixes) == 0 {
				fmt.Println("No fixes found. Run 'hwfix library sync' to populate the global library.")
				return nil
			}

			names := make([]string, 0, len(fixes))
			for name := range fixes {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				fix := fixes[name]
				if fix.Description != "" {
					fmt.Printf("%-28s %s\n", name, fix.Description)
				} else {
					fmt.Println(name)
				}
			}
			return nil
		},
	}

	listCmd.Flags().StringVar(&projectDir, "project-dir", ".", "Directory with a project-local fix library")

	return listCmd
}
