// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/orchestrator"
	"github.com/spf13/cobra"
)

func getApplyCmd() *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply [fix-name]",
		Short: "Apply a fix to the current system",
		Long: `Apply converges the system toward the state a fix describes. Steps whose
preconditions do not match are skipped, steps already in effect are left
alone, and every file a step touches is snapshotted first.

If a critical step fails, all steps applied so far are rolled back in
reverse order and the snapshots are restored.

Exit codes: 0 on success, 1 when any step failed (including runs rolled
back after a critical failure), 2 when the run was aborted by a signal.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			force, _ := cmd.Flags().GetBool("force")
			verbose, _ := cmd.Flags().GetBool("verbose")
			projectDir, _ := cmd.Flags().GetString("project-dir")
			paramFlags, _ := cmd.Flags().GetStringArray("param")

			params, err := parseParams(paramFlags)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}

			cfg, fix, err := resolveFix(projectDir, args[0])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}

			if dryRun {
				fmt.Println("Running in dry-run mode - no changes will be made")
			}

			options := models.RunOptions{
				Mode:        models.ModeApply,
				DryRun:      dryRun,
				Force:       force,
				Verbose:     verbose,
				WorkingDir:  projectDir,
				ExtraParams: params,
			}

			report, err := orchestrator.New(cfg, options).Run(cmd.Context(), fix)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if report != nil {
				orchestrator.PrintReport(report)
			}
			if err != nil {
				os.Exit(1)
			}
			if report != nil {
				if code := applyExitCode(report.Outcome); code != 0 {
					os.Exit(code)
				}
			}
		},
	}

	applyCmd.Flags().BoolP("dry-run", "d", false, "Show what would be done without changing the system")
	applyCmd.Flags().BoolP("force", "f", false, "Run steps even when their preconditions do not match")
	applyCmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
	applyCmd.Flags().String("project-dir", ".", "Directory with a project-local fix library")
	applyCmd.Flags().StringArrayP("param", "p", nil, "Additional parameter in key=value format (repeatable)")

	return applyCmd
}

// applyExitCode maps a run outcome to the apply command's exit code.
// Rolled-back runs contain a failed step, so they exit 1; exit 2 is
// reserved for runs aborted by a signal.
func applyExitCode(outcome models.RunOutcome) int {
	switch outcome {
	case models.RunSuccess:
		return 0
	case models.RunAborted:
		return 2
	default:
		return 1
	}
}
