package ssh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/gridci/gridci/pkg/matrix"
	"github.com/gridci/gridci/pkg/runner"
)

// Executor runs matrix commands on the remote host, one SSH session per
// command. It satisfies the runner's Executor contract.
type Executor struct {
	client *Client
}

// NewExecutor wraps a connected client as a command executor.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// RunCommand executes a command line on the remote host, capturing stdout
// and stderr. Exit status reporting matches the local executor: a non-zero
// exit is carried in ExitCode, and a command that cannot be dispatched at
// all is reported as ExitCode -1 with a command-class error.
func (e *Executor) RunCommand(ctx context.Context, command string, opts runner.CommandOptions) matrix.CommandResult {
	start := time.Now()
	result := matrix.CommandResult{Command: command}

	conn, err := e.client.conn()
	if err != nil {
		result.ExitCode = -1
		result.Duration = time.Since(start)
		result.Err = matrix.NewCommandError("ssh connection unavailable", err)
		return result
	}

	session, err := conn.NewSession()
	if err != nil {
		result.ExitCode = -1
		result.Duration = time.Since(start)
		result.Err = matrix.NewCommandError("opening ssh session", err)
		return result
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	line := buildCommandLine(command, opts)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case runErr == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Err = matrix.NewCancelledError("command cancelled", ctx.Err())
	default:
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			result.Err = matrix.NewJobFailureError("command exited non-zero", runErr)
		} else {
			result.ExitCode = -1
			result.Err = matrix.NewCommandError("command could not start", runErr)
		}
	}

	return result
}

// buildCommandLine assembles the remote invocation: change into the working
// directory, apply the environment through env(1), and hand the command line
// to the shell. Remote servers rarely accept Setenv, so the environment is
// carried on the command line instead.
func buildCommandLine(command string, opts runner.CommandOptions) string {
	shell := opts.Shell
	if shell == "" {
		shell = runner.DefaultShell
	}

	var b strings.Builder
	if opts.Dir != "" {
		b.WriteString("cd ")
		b.WriteString(shellQuote(opts.Dir))
		b.WriteString(" && ")
	}
	if len(opts.Env) > 0 {
		b.WriteString("env")
		for _, kv := range opts.Env {
			b.WriteString(" ")
			b.WriteString(shellQuote(kv))
		}
		b.WriteString(" ")
	}
	b.WriteString(shell)
	b.WriteString(" -c ")
	b.WriteString(shellQuote(command))
	return b.String()
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
