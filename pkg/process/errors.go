package process

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessUnready is returned when the engine does not open
	// its listening port within the readiness timeout.
	ErrProcessUnready = errors.New("engine process not ready")

	// ErrProcessCrashed is returned when the engine exits
	// unexpectedly.
	ErrProcessCrashed = errors.New("engine process crashed")
)

// SpawnError reports a failure to launch the engine binary.
type SpawnError struct {
	Binary string
	Err    error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn engine %q: %v", e.Binary, e.Err)
}

// Unwrap returns the underlying launch error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}
