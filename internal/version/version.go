// SPDX-License-Identifier: Apache-2.0

package version

// Version and Commit are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)
