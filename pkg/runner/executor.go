// Package runner executes selected matrix jobs as sequences of external
// commands and collects per-job results.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/gridci/gridci/pkg/matrix"
)

// DefaultShell is used when the declaration does not configure one.
const DefaultShell = "/bin/sh"

// CommandOptions carries the execution context for a single command.
type CommandOptions struct {
	// Env is the complete environment for the process.
	Env []string

	// Dir is the working directory; empty inherits the runner's directory.
	Dir string

	// Shell is the shell binary the command line is passed to via -c.
	Shell string
}

// Executor runs one expanded command and reports its outcome. Implementations
// observe only the process exit status and captured output; they never parse
// command output for semantics.
type Executor interface {
	RunCommand(ctx context.Context, command string, opts CommandOptions) matrix.CommandResult
}

// LocalExecutor runs commands as local subprocesses through a shell.
type LocalExecutor struct{}

// NewLocalExecutor creates a local executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// RunCommand executes `shell -c command`, capturing stdout and stderr.
//
// A non-zero exit is reported through ExitCode. A process that cannot start
// at all (missing shell, permission denied) is reported as ExitCode -1 with a
// command-class error; allow-failure logic treats both identically.
func (e *LocalExecutor) RunCommand(ctx context.Context, command string, opts CommandOptions) matrix.CommandResult {
	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := matrix.CommandResult{
		Command:  command,
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Err = matrix.NewCancelledError("command cancelled", ctx.Err())
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Err = matrix.NewJobFailureError("command exited non-zero", err)
		} else {
			result.ExitCode = -1
			result.Err = matrix.NewCommandError("command could not start", err)
		}
	}

	return result
}
