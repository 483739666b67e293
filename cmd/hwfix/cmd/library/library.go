// SPDX-License-Identifier: Apache-2.0

package library

import (
	"github.com/spf13/cobra"
)

// GetLibraryCmd creates the library command group.
func GetLibraryCmd() *cobra.Command {
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the library of fix definitions and templates",
		Long:  `Manage the library of fix definitions and templates. Sync it from the embedded defaults or list the fixes it contains.`,
	}

	libraryCmd.AddCommand(getSyncCmd())
	libraryCmd.AddCommand(getListCmd())

	return libraryCmd
}
