package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

// The result channel carries a single string, so callers distinguish outcomes
// by these prefixes.
const (
	ErrorPrefix   = "Error: "
	FailurePrefix = "Failed to execute command on host. Error: "
)

type Executor struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Execute runs command through the host shell and folds every outcome into a
// string: trimmed stdout on success, ErrorPrefix+stderr on a non-zero exit and
// FailurePrefix+description on timeout, cancellation or spawn failure.
func (e *Executor) Execute(parent context.Context, command string) string {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, e.timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Do not wait forever on pipes held open by orphaned grandchildren.
	cmd.WaitDelay = time.Second

	slog.Info("Executing task", "timeout", e.timeout)
	err := cmd.Run()

	if err != nil && ctx.Err() != nil {
		return FailurePrefix + e.interruption(parent, ctx.Err(), time.Since(start))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Warn("Task exited with non-zero status", "exit_code", exitErr.ExitCode())
			return ErrorPrefix + stderr.String()
		}
		slog.Error("Failed to execute task", "error", err)
		return FailurePrefix + err.Error()
	}

	return strings.TrimSpace(stdout.String())
}

// interruption describes why the command context ended: the executor's own
// timeout, a deadline inherited from parent, or a cancellation.
func (e *Executor) interruption(parent context.Context, cause error, elapsed time.Duration) string {
	switch {
	case parent.Err() == nil:
		slog.Error("Task timed out", "timeout", e.timeout)
		return fmt.Sprintf("command timed out after %s", e.timeout)
	case errors.Is(cause, context.DeadlineExceeded):
		elapsed = elapsed.Round(time.Millisecond)
		slog.Error("Task hit caller deadline", "elapsed", elapsed)
		return fmt.Sprintf("command timed out after %s", elapsed)
	default:
		slog.Warn("Task interrupted", "error", cause)
		return fmt.Sprintf("command interrupted: %v", cause)
	}
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
