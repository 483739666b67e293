// SPDX-License-Identifier: Apache-2.0

package library

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/core/library"
	"github.com/spf13/cobra"
)

func getSyncCmd() *cobra.Command {
	var (
		libraryPath string
		localOnly   bool
	)

	syncCmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"refresh"},
		Short:   "Sync the fix library with the latest definitions",
		Long: `Sync updates the global fix library (typically ~/.hwfix/library) with the
latest fix definitions and templates. Remote content is fetched when
reachable; the copies embedded in the hwfix binary are the fallback.

Examples:
  hwfix library sync                          # Sync the configured global library
  hwfix library sync --library-path /custom   # Sync a specific directory
  hwfix library sync --local-only             # Use only the embedded defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig("")
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			target := cfg.LibraryPath
			if libraryPath != "" {
				target = config.ExpandPathWithTilde(libraryPath)
			}
			target, err = filepath.Abs(target)
			if err != nil {
				return fmt.Errorf("failed to resolve library path: %w", err)
			}

			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create library directory: %w", err)
			}

			manager := library.NewManager(library.NewSyncConfig())
			usedRemote, err := manager.Sync(target, !localOnly)
			if err != nil {
				return err
			}

			source := "embedded defaults"
			if usedRemote {
				source = "remote library"
			}
			fmt.Printf("Library at %s synced from %s.\n", target, source)
			return nil
		},
	}

	syncCmd.Flags().StringVar(&libraryPath, "library-path", "", "Path to the library to sync (defaults to the global library)")
	syncCmd.Flags().BoolVar(&localOnly, "local-only", false, "Use only embedded defaults, don't attempt a remote fetch")

	return syncCmd
}
