// Package sqladaptertest provides a fake database/sql/driver implementation
// so sqladapter (and, through it, the pools) can be exercised without a
// real network dependency.
package sqladaptertest

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrConnectFailure is returned by a FakeDriver configured to fail Connect.
var ErrConnectFailure = errors.New("sqladaptertest: connect failed")

// FakeDriver is a driver.DriverContext that mints FakeConn values without
// touching a network.
type FakeDriver struct {
	connects  atomic.Int64
	mu        sync.Mutex
	failFrom  int64
	connCount atomic.Int64
}

// NewFakeDriver returns a driver with no configured failures.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// OpenConnector implements driver.DriverContext.
func (d *FakeDriver) OpenConnector(name string) (driver.Connector, error) {
	return &fakeConnector{driver: d, name: name}, nil
}

// Open implements driver.Driver for completeness; OpenConnector is the path
// sqladapter actually uses.
func (d *FakeDriver) Open(name string) (driver.Conn, error) {
	return d.connect()
}

// FailFrom makes every Connect call numbered n or later fail.
func (d *FakeDriver) FailFrom(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFrom = n
}

// Connects reports how many connection attempts have been made, including
// ones that failed.
func (d *FakeDriver) Connects() int64 { return d.connects.Load() }

func (d *FakeDriver) connect() (driver.Conn, error) {
	n := d.connects.Add(1)
	d.mu.Lock()
	fail := d.failFrom != 0 && n >= d.failFrom
	d.mu.Unlock()
	if fail {
		return nil, ErrConnectFailure
	}
	id := d.connCount.Add(1)
	return &FakeConn{id: id}, nil
}

type fakeConnector struct {
	driver *FakeDriver
	name   string
}

func (c *fakeConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.connect()
}

func (c *fakeConnector) Driver() driver.Driver {
	return c.driver
}

// FakeConn is a driver.Conn (and driver.ConnBeginTx) that records Begin and
// Close calls for assertions.
type FakeConn struct {
	id int64

	mu     sync.Mutex
	closed bool
	begins int
}

// ID is a stable identity for assertions.
func (c *FakeConn) ID() int64 { return c.id }

func (c *FakeConn) Prepare(query string) (driver.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, driver.ErrBadConn
	}
	return &fakeStmt{query: query}, nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *FakeConn) Begin() (driver.Tx, error) { //nolint:staticcheck // driver.Conn requires it
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, driver.ErrBadConn
	}
	c.begins++
	return &fakeTx{}, nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *FakeConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	return c.Begin()
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Begins reports how many transactions were started.
func (c *FakeConn) Begins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begins
}

type fakeStmt struct {
	query string
}

func (s *fakeStmt) Close() error                                    { return nil }
func (s *fakeStmt) NumInput() int                                    { return -1 }
func (s *fakeStmt) Exec(_ []driver.Value) (driver.Result, error)     { return fakeResult{}, nil }
func (s *fakeStmt) Query(_ []driver.Value) (driver.Rows, error)      { return &fakeRows{}, nil }

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 0, nil }

type fakeRows struct{}

func (r *fakeRows) Columns() []string              { return nil }
func (r *fakeRows) Close() error                    { return nil }
func (r *fakeRows) Next(_ []driver.Value) error     { return errors.New("no rows") }

type fakeTx struct {
	mu       sync.Mutex
	done     bool
	commits  int
	rollback int
}

func (t *fakeTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.rollback++
	return nil
}
