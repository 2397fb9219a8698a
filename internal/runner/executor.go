// Package runner executes external commands. It is the only place in
// lvrestic that talks to the operating system.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout marks a command that was killed because it exceeded the
// configured timeout.
var ErrTimeout = errors.New("command timed out")

// CommandError reports a command that exited non-zero or could not run.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Output   []byte
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit %d): %v",
		strings.Join(append([]string{e.Name}, e.Args...), " "), e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Executor runs external commands from argument vectors; nothing is ever
// passed through a shell. Run and RunWithEnv fail on non-zero exit, Probe
// only classifies the exit code.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	RunWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	Probe(ctx context.Context, name string, args ...string) int
}

// ExecExecutor is the default executor using os/exec.
type ExecExecutor struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutor creates an executor. A zero timeout disables the per-command
// deadline.
func NewExecutor(logger zerolog.Logger, timeout time.Duration) *ExecExecutor {
	return &ExecExecutor{
		timeout: timeout,
		logger:  logger,
	}
}

func (e *ExecExecutor) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Run executes a command and fails on non-zero exit.
func (e *ExecExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return e.RunWithEnv(ctx, nil, name, args...)
}

// RunWithEnv executes a command with additional environment variables and
// fails on non-zero exit.
func (e *ExecExecutor) RunWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmdCtx, cancel := e.commandContext(ctx)
	defer cancel()

	e.logger.Debug().Str("command", name).Strs("args", args).Msg("running command")

	cmd := exec.CommandContext(cmdCtx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		cmdErr := &CommandError{
			Name:     name,
			Args:     args,
			ExitCode: exitCode,
			Output:   output,
			Err:      err,
		}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			cmdErr.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, e.timeout, err)
		}
		e.logger.Error().
			Str("command", name).
			Int("exit_code", cmdErr.ExitCode).
			Str("output", string(output)).
			Msg("command failed")
		return output, cmdErr
	}

	e.logger.Debug().Str("command", name).Str("output", string(output)).Msg("command succeeded")
	return output, nil
}

// Probe executes a command and returns its exit code; -1 means the command
// could not be started at all. Probe never fails.
func (e *ExecExecutor) Probe(ctx context.Context, name string, args ...string) int {
	cmdCtx, cancel := e.commandContext(ctx)
	defer cancel()

	e.logger.Debug().Str("command", name).Strs("args", args).Msg("probing command")

	cmd := exec.CommandContext(cmdCtx, name, args...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		return -1
	}
	return 0
}
