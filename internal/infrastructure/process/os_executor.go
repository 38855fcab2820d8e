package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"kilometers.ai/appdeploy/internal/core/deployment"
)

// ProcessSignal names the signals the executor sends
type ProcessSignal string

const (
	SignalTerminate ProcessSignal = "terminate"
	SignalInterrupt ProcessSignal = "interrupt"
	SignalKill      ProcessSignal = "kill"
)

// Executor runs external commands to completion and reports their exit codes
type Executor struct {
	mu        sync.RWMutex
	env       []string
	stdout    io.Writer
	stderr    io.Writer
	killGrace time.Duration
}

// NewExecutor creates a new process executor writing to the process's own
// stdout and stderr.
func NewExecutor() *Executor {
	return &Executor{
		env:       os.Environ(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		killGrace: 10 * time.Second,
	}
}

// NewExecutorWithOptions creates a new process executor with custom options
func NewExecutorWithOptions(env []string, stdout, stderr io.Writer, killGrace time.Duration) *Executor {
	if env == nil {
		env = os.Environ()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	return &Executor{
		env:       env,
		stdout:    stdout,
		stderr:    stderr,
		killGrace: killGrace,
	}
}

// SetOutput redirects the output of subsequently started commands
func (e *Executor) SetOutput(stdout, stderr io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stdout = stdout
	e.stderr = stderr
}

// Run starts cmd, waits for it and returns its exit code. A command that
// exits non-zero is not an error; failing to start one is. When ctx is
// cancelled the process is sent SIGTERM and killed after the grace period.
func (e *Executor) Run(ctx context.Context, cmd deployment.Command) (int, error) {
	if cmd.Executable == "" {
		return 0, fmt.Errorf("executable cannot be empty")
	}

	e.mu.RLock()
	stdout, stderr := e.stdout, e.stderr
	e.mu.RUnlock()

	execCmd := exec.CommandContext(ctx, cmd.Executable, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = e.buildEnvironment(cmd.Env)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr
	execCmd.Cancel = func() error {
		return execCmd.Process.Signal(ConvertSignal(SignalTerminate))
	}
	execCmd.WaitDelay = e.killGrace

	if err := execCmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", cmd.Executable, err)
	}

	err := execCmd.Wait()
	if ctx.Err() != nil {
		return 0, fmt.Errorf("%s interrupted: %w", cmd.Executable, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		return exitErr.ExitCode(), nil
	default:
		return 0, fmt.Errorf("%s failed: %w", cmd.Executable, err)
	}
}

// buildEnvironment combines the base environment with command-specific
// variables, which take precedence.
func (e *Executor) buildEnvironment(cmdEnv map[string]string) []string {
	env := append([]string(nil), e.env...)

	keys := make([]string, 0, len(cmdEnv))
	for key := range cmdEnv {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, cmdEnv[key]))
	}

	return env
}

// ConvertSignal converts a ProcessSignal to an OS signal
func ConvertSignal(signal ProcessSignal) os.Signal {
	switch signal {
	case SignalTerminate:
		return syscall.SIGTERM
	case SignalInterrupt:
		return syscall.SIGINT
	case SignalKill:
		return syscall.SIGKILL
	default:
		return syscall.SIGTERM
	}
}
