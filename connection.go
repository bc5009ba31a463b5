package connpool

import "context"

// Connection is the capability a pool manages: one live database session.
// Driver adapters implement this; the pool never assumes anything about the
// underlying transport beyond these six operations.
type Connection interface {
	// Cursor returns a driver-specific cursor capability. The pool never
	// calls methods on the returned value; it only hands it back to the
	// caller that acquired the Connection.
	Cursor(ctx context.Context) (any, error)

	// Commit commits any work started on this Connection.
	Commit(ctx context.Context) error

	// Rollback rolls back any work started on this Connection. Used by the
	// pool as the reset primitive at Release; drivers in auto-commit mode
	// may treat it as a no-op.
	Rollback(ctx context.Context) error

	// Close tears down the underlying session. Idempotent.
	Close(ctx context.Context) error

	// IsOpen is a non-blocking, non-I/O liveness hint.
	IsOpen() bool

	// RawHandle is an opaque passthrough for advanced callers.
	RawHandle() any
}

// Factory produces a fresh Connection on demand. It must be callable
// repeatedly, must be safe for concurrent use by the blocking pool, and
// must not re-enter the pool that owns it.
type Factory func(ctx context.Context) (Connection, error)
