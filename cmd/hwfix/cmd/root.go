// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/hwfix-dev/hwfix/cmd/hwfix/cmd/library"
	"github.com/hwfix-dev/hwfix/internal/version"
	"github.com/spf13/cobra"
)

// Create the root command
var rootCmd = &cobra.Command{
	Use:   "hwfix",
	Short: "Hwfix - Hardware Enablement Fix Orchestrator",
	Long: `Hwfix converges a Linux system toward working hardware by applying
declarative, reversible fixes: probing for the affected devices, installing
the right packages for the running distro, loading kernel modules in the
correct order, and managing the services that tie it together.

Every change is snapshotted before it is made, so a failed or interrupted
run restores the system to its previous state.`,
	Version: fmt.Sprintf("%s (commit: %s)", version.Version, version.Commit),
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(getApplyCmd())
	rootCmd.AddCommand(getRevertCmd())
	rootCmd.AddCommand(getStatusCmd())
	rootCmd.AddCommand(getProbeCmd())
	rootCmd.AddCommand(library.GetLibraryCmd())
}
