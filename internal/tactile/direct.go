package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	config ExecutorConfig
	log    *zap.Logger
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor(log *zap.Logger) *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig(), log)
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig, log *zap.Logger) *DirectExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectExecutor{
		config: config,
		log:    log,
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		return nil, err
	}
	cmd = e.config.Merge(cmd)

	e.log.Debug("executing command",
		zap.String("command", cmd.CommandString()),
		zap.String("dir", cmd.WorkingDirectory),
		zap.Duration("timeout", cmd.Timeout))

	result := &ExecutionResult{ExitCode: -1}

	execCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	if cmd.Stream != nil {
		execCmd.Stdout = io.MultiWriter(stdoutLimited, cmd.Stream)
		execCmd.Stderr = io.MultiWriter(stderrLimited, cmd.Stream)
	} else {
		execCmd.Stdout = stdoutLimited
		execCmd.Stderr = stderrLimited
	}

	started := time.Now()
	err := execCmd.Run()
	result.Duration = time.Since(started)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Truncated = stdoutLimited.truncated || stderrLimited.truncated
	if result.Truncated {
		e.log.Warn("command output truncated",
			zap.Int64("discarded_bytes", stdoutLimited.discarded+stderrLimited.discarded))
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Success = true
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
		e.log.Warn("command killed", zap.String("binary", cmd.Binary), zap.String("reason", result.KillReason))
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Success = true
		result.Killed = true
		result.KillReason = "context canceled"
	case errors.As(err, &exitErr):
		result.Success = true // Command ran, just returned non-zero
		result.ExitCode = exitErr.ExitCode()
	default:
		result.Success = false
		result.Error = err.Error()
		e.log.Error("command failed to run", zap.String("binary", cmd.Binary), zap.Error(err))
		return result, nil
	}

	e.log.Debug("command completed",
		zap.String("binary", cmd.Binary),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_bytes", len(result.Stdout)))
	return result, nil
}

// buildEnvironment creates the environment variable list. Command entries
// replace inherited entries with the same key.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	var base []string
	if e.config.InheritEnvironment {
		base = os.Environ()
	} else {
		for _, key := range e.config.AllowedEnvironment {
			if val, ok := os.LookupEnv(key); ok {
				base = append(base, key+"="+val)
			}
		}
	}

	overridden := make(map[string]bool, len(cmdEnv))
	for _, kv := range cmdEnv {
		key, _, _ := strings.Cut(kv, "=")
		overridden[key] = true
	}

	env := make([]string, 0, len(base)+len(cmdEnv))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if overridden[key] {
			continue
		}
		env = append(env, kv)
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		written, err := lw.w.Write(p)
		lw.written += int64(written)
		return written, err
	}

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
