// SPDX-License-Identifier: Apache-2.0

package cmdexec

import "context"

// Runner abstracts command execution so tests can stub out external
// tools (package managers, modprobe, dkms).
type Runner interface {
	Run(ctx context.Context, command string, args []string) (*Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	Verbose bool
}

func (r ExecRunner) Run(ctx context.Context, command string, args []string) (*Result, error) {
	return New(command, args).WithVerbose(r.Verbose).Execute(ctx)
}
