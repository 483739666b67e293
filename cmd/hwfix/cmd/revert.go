// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/orchestrator"
	"github.com/spf13/cobra"
)

func getRevertCmd() *cobra.Command {
	revertCmd := &cobra.Command{
		Use:   "revert [fix-name]",
		Short: "Undo a previously applied fix",
		Long: `Revert walks a fix's steps in reverse order and undoes each one that is
currently in effect. Reverting a fix that is not recorded as applied is
refused unless --force is given.

Revert is best effort: a step that fails to revert is reported but does
not stop the remaining steps.

Exit codes: 0 on success, 1 when any step failed to revert.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			force, _ := cmd.Flags().GetBool("force")
			verbose, _ := cmd.Flags().GetBool("verbose")
			projectDir, _ := cmd.Flags().GetString("project-dir")

			cfg, fix, err := resolveFix(projectDir, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}

			if dryRun {
				fmt.Println("Running in dry-run mode - no changes will be made")
			}

			options := models.RunOptions{
				Mode:       models.ModeRevert,
				DryRun:     dryRun,
				Force:      force,
				Verbose:    verbose,
				WorkingDir: projectDir,
			}

			report, err := orchestrator.New(cfg, options).Run(cmd.Context(), fix)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if report != nil {
				orchestrator.PrintReport(report)
			}
			if err != nil || (report != nil && report.Outcome != models.RunSuccess) {
				os.Exit(1)
			}
		},
	}

	revertCmd.Flags().BoolP("dry-run", "d", false, "Show what would be undone without changing the system")
	revertCmd.Flags().BoolP("force", "f", false, "Revert even when the fix is not recorded as applied")
	revertCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	revertCmd.Flags().String("project-dir", ".", "Directory with a project-local fix library")

	return revertCmd
}
