package sqladapter

import (
	"context"
	"database/sql/driver"
	"sync"
)

// Connection adapts a single database/sql/driver.Conn to connpool.Connection.
// Cursor lazily begins a transaction on first use after construction (or
// after the previous one ended); Commit/Rollback end it. The pool's own
// reset-on-release protocol calls Rollback, which is why a caller that
// forgets to Commit never leaks partial work back into the idle set.
type Connection struct {
	mu   sync.Mutex
	conn driver.Conn
	tx   driver.Tx
	open bool
}

func newConnection(conn driver.Conn) *Connection {
	return &Connection{conn: conn, open: true}
}

// Cursor returns the narrow statement-preparation surface a query-builder
// or ORM layer (out of this package's scope) would build on. Begins a
// transaction if none is active.
func (c *Connection) Cursor(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrBadConnection
	}
	if c.tx == nil {
		tx, err := c.beginLocked(ctx)
		if err != nil {
			return nil, err
		}
		c.tx = tx
	}
	return &Cursor{conn: c.conn}, nil
}

func (c *Connection) beginLocked(ctx context.Context) (driver.Tx, error) {
	if connCtx, ok := c.conn.(driver.ConnBeginTx); ok {
		return connCtx.BeginTx(ctx, driver.TxOptions{})
	}
	return c.conn.Begin() //nolint:staticcheck // fallback for drivers without ConnBeginTx
}

// Commit ends the active transaction, if any.
func (c *Connection) Commit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback ends the active transaction, if any. Called by the pool on
// every Release as the reset step.
func (c *Connection) Rollback(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// Close closes the underlying driver connection.
func (c *Connection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return c.conn.Close()
}

// IsOpen reports the non-blocking liveness hint the pool consults during
// acquire and maintenance; it never issues a round trip.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// RawHandle exposes the underlying driver.Conn for collaborators that need
// it directly (e.g. a dialect-specific capability check).
func (c *Connection) RawHandle() any {
	return c.conn
}

// Cursor is the statement-preparation surface handed to whatever
// query-builder or ORM layer sits above the pool.
type Cursor struct {
	conn driver.Conn
}

// Prepare prepares query on the underlying connection.
func (cur *Cursor) Prepare(query string) (driver.Stmt, error) {
	return cur.conn.Prepare(query)
}
