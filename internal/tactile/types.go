// Package tactile runs external processes for the pipeline: the isolated
// single-file test runs used for validation and the plain artifact runs.
//
// Design Principles:
//   - Minimal logic: callers decide what an exit code means
//   - Structured output: stdout, stderr and exit status are always captured
//   - Infrastructure failures (binary missing, spawn failure) are reported
//     separately from non-zero exits
package tactile

import (
	"io"
	"strings"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "npx").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These override inherited values with the same key.
	Environment []string `json:"environment,omitempty"`

	// Timeout bounds the run. Zero uses the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Stream, when set, receives stdout and stderr as they are produced in
	// addition to the captured copy.
	Stream io.Writer `json:"-"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult is the output of one command execution.
type ExecutionResult struct {
	// Success indicates whether the execution infrastructure worked.
	// Note: A command that runs but returns non-zero exit code has Success=true.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	Duration time.Duration `json:"duration"`

	// Killed indicates the command was forcibly terminated.
	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was cut at the capture limit.
	Truncated bool `json:"truncated"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns stdout followed by stderr.
func (r *ExecutionResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `yaml:"default_working_dir"`

	// DefaultTimeout is used when Command.Timeout is zero.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// MaxOutputBytes caps the capture of each stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// InheritEnvironment passes the full parent environment through.
	// When false only AllowedEnvironment keys are passed.
	InheritEnvironment bool `yaml:"inherit_environment"`

	// AllowedEnvironment lists variables passed through when not inheriting.
	AllowedEnvironment []string `yaml:"allowed_environment"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  ".",
		DefaultTimeout:     5 * time.Minute,
		MaxOutputBytes:     10 * 1024 * 1024, // 10MB
		InheritEnvironment: true,
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "NODE_PATH"},
	}
}

// Merge fills unset command fields from the config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd
	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}
	if result.Timeout <= 0 {
		result.Timeout = c.DefaultTimeout
	}
	return result
}
