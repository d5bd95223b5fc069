package tactile

import (
	"context"
)

// Executor is the interface for command execution.
type Executor interface {
	// Execute runs a command and returns its result. A non-zero exit is not
	// an error; the returned error is reserved for invalid commands.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}
