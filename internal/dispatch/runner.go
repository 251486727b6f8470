package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const (
	// maxOutputBytes caps the amount of stdout/stderr captured per stream.
	maxOutputBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after interrupting before killing.
	terminationGracePeriod = 5 * time.Second
)

// ErrTimeout is returned by ExecRunner when a process outlives its timeout.
var ErrTimeout = errors.New("process timed out")

// RunResult carries captured process output.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an external program and captures its output.
// A non-nil error means the program failed to start, exited non-zero, or was
// terminated; the RunResult still holds whatever output was captured.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (RunResult, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) (RunResult, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Timeout bounds each run. Zero means no limit.
	Timeout time.Duration
	// Grace is how long to wait after interrupting before killing.
	Grace  time.Duration
	Logger *slog.Logger
}

// NewExecRunner returns an ExecRunner with the default grace period.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Timeout: timeout, Grace: terminationGracePeriod, Logger: logger}
}

// Run starts name with args and waits for it, the timeout, or ctx.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Don't use CommandContext - termination is managed below.
	cmd := exec.Command(name, args...)
	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Orphaned grandchildren may hold the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	logger.Debug("spawning process", "command", name, "timeout", r.Timeout)

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("start %s: %w", name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if r.Timeout > 0 {
		timer := time.NewTimer(r.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	result := func(code int) RunResult {
		return RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
	}

	select {
	case err := <-waitErr:
		if err == nil {
			return result(0), nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Debug("process exited with non-zero status", "command", name, "exit_code", exitErr.ExitCode())
			return result(exitErr.ExitCode()), err
		}
		return result(-1), fmt.Errorf("wait for %s: %w", name, err)

	case <-timeoutC:
		logger.Warn("process timed out, interrupting", "command", name, "timeout", r.Timeout)
		r.terminate(cmd, waitErr, logger)
		return result(-1), fmt.Errorf("%s: %w after %s", name, ErrTimeout, r.Timeout)

	case <-ctx.Done():
		logger.Warn("context done, interrupting process", "command", name)
		r.terminate(cmd, waitErr, logger)
		return result(-1), ctx.Err()
	}
}

func (r *ExecRunner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	if err := interrupt(cmd.Process); err != nil {
		logger.Debug("failed to interrupt process", "error", err)
	}

	grace := r.Grace
	if grace <= 0 {
		grace = terminationGracePeriod
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-waitErr:
	case <-timer.C:
		logger.Warn("process did not exit after interrupt, killing")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to kill process", "error", err)
		}
		<-waitErr
	}
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
