package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrProcessTimeout is returned by a ProcessRunner whose process outlived its timeout
var ErrProcessTimeout = errors.New("process timed out")

// ProcessRunner invokes an external program and captures its output
type ProcessRunner interface {
	Run(ctx context.Context, name string, args []string, timeout time.Duration) (stdout, stderr []byte, err error)
}

// ExecRunner runs programs with os/exec
type ExecRunner struct {
	// WaitDelay bounds how long output pipes are drained after the process is killed
	WaitDelay time.Duration
}

// Run starts name and waits for it, killing it when timeout elapses or ctx is done
func (r ExecRunner) Run(ctx context.Context, name string, args []string, timeout time.Duration) ([]byte, []byte, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 2 * time.Second
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return stdout.Bytes(), stderr.Bytes(), nil
	case ctx.Err() != nil:
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s after %s: %w", name, timeout, ErrProcessTimeout)
	default:
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s: %w", name, err)
	}
}
