package build

import (
	"context"
	"errors"
	"os/exec"
	"time"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
)

// Result is what a finished command produced.
type Result struct {
	Command  string
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	ExitCode int
	// Truncated is set when output went past the output limit.
	Truncated bool
}

// runOptions configures runCommand.
type runOptions struct {
	dir         string
	outputLimit int
	waitDelay   time.Duration
}

// runCommand runs command through sh in opts.dir and waits for it.
// The error is a CommandCancelled error when ctx was cancelled before the
// command finished, whatever its exit status, and a CommandFailure error
// carrying the Result as details otherwise.
func runCommand(ctx context.Context, command string, opts runOptions) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, "sh", "-c", command) //#nosec G204 -- commands come from the user's configuration
	cmd.Dir = opts.dir
	cmd.WaitDelay = opts.waitDelay
	configureProcess(cmd)

	stdout := &cappedBuffer{limit: opts.outputLimit}
	stderr := &cappedBuffer{limit: opts.outputLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	result := &Result{
		Command:   command,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Duration:  time.Since(start),
		ExitCode:  cmd.ProcessState.ExitCode(),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if ctx.Err() != nil {
		return result, domainerrors.CommandCancelledf("%q was superseded", command).WithCause(ctx.Err())
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, domainerrors.CommandFailuref("%q exited with status %d", command, result.ExitCode).
			WithDetails(result)
	}
	return result, domainerrors.CommandFailuref("%q could not run", command).
		WithCause(err).
		WithDetails(result)
}
