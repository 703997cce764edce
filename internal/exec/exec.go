package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// ExecutionResult holds the outcome of a command execution.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor defines an interface for running external commands.
// This allows for mocking in tests.
type Executor interface {
	Run(ctx context.Context, command string, args ...string) (*ExecutionResult, error)
}

// CommandExecutor is a concrete implementation of the Executor interface
// that runs actual commands on the host system.
type CommandExecutor struct {
	// Dir is the working directory of the command. Empty means the
	// current directory.
	Dir string
	// Env, when non-nil, replaces the environment of the command.
	Env []string
}

// NewCommandExecutor creates a new CommandExecutor running in dir.
func NewCommandExecutor(dir string) *CommandExecutor {
	return &CommandExecutor{Dir: dir}
}

// Run executes the given command and returns its result.
func (e *CommandExecutor) Run(ctx context.Context, command string, args ...string) (*ExecutionResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.Dir
	if e.Env != nil {
		cmd.Env = e.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// cmd.Run() returns an error for non-zero exit codes, but we handle
	// the exit code explicitly. So, we only return other kinds of errors
	// (e.g., command not found).
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, err
		}
	}

	return &ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, nil
}
