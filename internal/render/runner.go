package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderrTail caps how much tool output ends up in an error message
const maxStderrTail = 2048

// Runner runs an external program to completion.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) error
}

// ExecRunner runs programs with os/exec. The process is killed when ctx is
// cancelled.
type ExecRunner struct{}

// ExitError is returned when a tool exits with a non-zero status.
type ExitError struct {
	Program  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Program, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Program, e.ExitCode, e.Stderr)
}

// Run implements Runner
func (ExecRunner) Run(ctx context.Context, program string, args ...string) error {
	cmd := exec.CommandContext(ctx, program, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted: %w", program, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Program:  program,
			ExitCode: exitErr.ExitCode(),
			Stderr:   tail(strings.TrimSpace(stderr.String()), maxStderrTail),
		}
	}
	return fmt.Errorf("run %s: %w", program, err)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
