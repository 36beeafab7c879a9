package adapter

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// RunSpec describes one go command invocation.
type RunSpec struct {
	// Dir is the working directory, usually the staged module root.
	Dir string
	// Args follow the go binary, e.g. {"run", "./cmd/app", "--flag"}.
	Args []string
	// Env is appended to the current environment.
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// GoRunnerAdapter runs the go tool for the profiled program.
type GoRunnerAdapter interface {
	// Run executes the go tool and returns the process exit code. The error is
	// non-nil when the process could not run or exited unsuccessfully.
	Run(ctx context.Context, spec RunSpec) (exitCode int, err error)
}

// LocalGoRunnerAdapter runs the go binary found on PATH.
type LocalGoRunnerAdapter struct {
	goBin   string
	timeout time.Duration
}

// NewLocalGoRunnerAdapter constructs a LocalGoRunnerAdapter. A zero timeout
// means no limit beyond ctx.
func NewLocalGoRunnerAdapter(timeout time.Duration) *LocalGoRunnerAdapter {
	return &LocalGoRunnerAdapter{goBin: "go", timeout: timeout}
}

// Run implements GoRunnerAdapter.
func (a *LocalGoRunnerAdapter) Run(ctx context.Context, spec RunSpec) (int, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// #nosec G204 - arguments come from the CLI user
	cmd := exec.CommandContext(ctx, a.goBin, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}

	return -1, err
}
