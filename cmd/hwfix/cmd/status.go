// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/orchestrator"
	"github.com/spf13/cobra"
)

func getStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status [fix-name]",
		Short: "Report how much of a fix is currently in effect",
		Long: `Status checks each step of a fix against the running system and reports
whether it is applied, without changing anything. The exit code is always
0; status is for inspection, not enforcement.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			projectDir, _ := cmd.Flags().GetString("project-dir")

			cfg, fix, err := resolveFix(projectDir, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}

			options := models.RunOptions{
				Mode:       models.ModeStatusOnly,
				Verbose:    verbose,
				WorkingDir: projectDir,
			}

			report, err := orchestrator.New(cfg, options).Run(cmd.Context(), fix)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			orchestrator.PrintReport(report)
		},
	}

	statusCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	statusCmd.Flags().String("project-dir", ".", "Directory with a project-local fix library")

	return statusCmd
}
