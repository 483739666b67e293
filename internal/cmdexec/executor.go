// SPDX-License-Identifier: Apache-2.0

package cmdexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/hwfix-dev/hwfix/internal/core/template"
)

// Executor runs a single external command with template-expanded
// arguments. Package managers, modprobe, dkms and the like are all
// driven through this type.
type Executor struct {
	command     string
	args        []string
	workingDir  string
	environment []string
	verbose     bool
}

// Result holds the outcome of a command execution.
type Result struct {
	Output     []byte
	Stderr     []byte
	ExitStatus int
}

// New creates an executor for the given command and arguments.
func New(command string, args []string) *Executor {
	return &Executor{
		command: command,
		args:    args,
	}
}

// WithWorkingDir sets the working directory.
func (e *Executor) WithWorkingDir(dir string) *Executor {
	e.workingDir = dir
	return e
}

// WithEnvironment sets environment variables.
func (e *Executor) WithEnvironment(env []string) *Executor {
	e.environment = env
	return e
}

// WithVerbose mirrors command output to the terminal while capturing it.
func (e *Executor) WithVerbose(verbose bool) *Executor {
	e.verbose = verbose
	return e
}

// ExpandParameters expands {{.param}} references in the command and its
// arguments before execution.
func (e *Executor) ExpandParameters(params map[string]interface{}) error {
	processedCommand, err := template.ProcessString(e.command, params)
	if err != nil {
		return fmt.Errorf("error processing command: %w", err)
	}
	e.command = string(processedCommand)

	processedArgs := make([]string, 0, len(e.args))
	for _, arg := range e.args {
		processedArg, err := template.ProcessString(arg, params)
		if err != nil {
			return fmt.Errorf("error processing argument: %w", err)
		}
		processedArgs = append(processedArgs, string(processedArg))
	}
	e.args = processedArgs

	return nil
}

// Execute runs the command and returns its captured output. A non-zero
// exit is returned as an error alongside the populated result.
func (e *Executor) Execute(ctx context.Context) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.command, e.args...)

	var stdout, stderr bytes.Buffer
	if e.verbose {
		cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if e.workingDir != "" {
		cmd.Dir = e.workingDir
	}
	if len(e.environment) > 0 {
		cmd.Env = e.environment
	}

	if e.verbose {
		fmt.Printf("Executing: %s %s\n", e.command, strings.Join(e.args, " "))
	}

	err := cmd.Run()

	result := &Result{
		Output: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if exitError, ok := err.(*exec.ExitError); ok {
		result.ExitStatus = exitError.ExitCode()
	}

	return result, err
}
