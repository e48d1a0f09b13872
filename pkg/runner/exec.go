package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait keeps copying output after the process
// was killed, in case a grandchild still holds the pipe open.
const waitDelay = 5 * time.Second

// ExecOptions configures a single command execution.
type ExecOptions struct {
	Dir string
	Env []string // appended to the parent environment
	// Output receives stdout and stderr through one shared pipe, so bytes
	// arrive in the order the child wrote them. It must be comparable.
	Output io.Writer
}

// ExecResult holds the outcome of a command execution.
type ExecResult struct {
	ExitCode int
}

// CommandExecutor abstracts os/exec for testing.
type CommandExecutor interface {
	// Run executes a command. Returns ExecResult for command outcomes (including non-zero exit).
	// Returns error only for failures to launch (command not found, permission denied, context done).
	Run(ctx context.Context, name string, args []string, opts ExecOptions) (*ExecResult, error)
}

// osExecutor implements CommandExecutor using os/exec.
type osExecutor struct{}

// NewExecutor returns the os/exec backed executor.
func NewExecutor() CommandExecutor {
	return &osExecutor{}
}

func (e *osExecutor) Run(ctx context.Context, name string, args []string, opts ExecOptions) (*ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	err := cmd.Wait()
	if err == nil {
		return &ExecResult{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExecResult{ExitCode: exitErr.ExitCode()}, nil
	}
	// The process finished but its output pipe was held open past waitDelay.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return &ExecResult{ExitCode: cmd.ProcessState.ExitCode()}, nil
	}
	return nil, err
}
