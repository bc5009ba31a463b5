package connpool

import (
	"errors"
	"fmt"
)

// errors surfaced to callers of a pool.
var (
	ErrPoolClosed     = errors.New("connpool: pool is closed")
	ErrAcquireTimeout = errors.New("connpool: timed out waiting for a connection")
	ErrInvalidConfig  = errors.New("connpool: invalid pool configuration")
)

// internal error kinds, never returned to an Acquire caller. No pool code
// returns or wraps them: a connection that fails validation or reset is
// retired directly, observable through events and logging.
var (
	errValidationFailed = errors.New("connpool: connection failed validation")
	errResetFailed      = errors.New("connpool: connection failed reset")
)

// ConnectionCreationError wraps a Factory failure surfaced from Acquire's
// grow path. Use errors.Unwrap to recover the underlying driver error.
type ConnectionCreationError struct {
	Err error
}

func (e *ConnectionCreationError) Error() string {
	return fmt.Sprintf("connpool: connection creation failed: %v", e.Err)
}

func (e *ConnectionCreationError) Unwrap() error {
	return e.Err
}

// NewConnectionCreationError wraps a Factory error for return from Acquire.
func NewConnectionCreationError(err error) error {
	return &ConnectionCreationError{Err: err}
}
