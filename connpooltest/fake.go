// Package connpooltest provides a fake connpool.Connection and
// connpool.Factory shared by the blockingpool and asyncpool test suites,
// so both pool implementations are exercised against the identical
// scenario table (spec.md §8's seed scenarios).
package connpooltest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sinhashubham95/connpool"
)

// ErrFactoryFailure is returned by a FakeFactory configured to fail.
var ErrFactoryFailure = errors.New("connpooltest: factory failed to create a connection")

// FakeConnection is a connpool.Connection that never touches a network.
type FakeConnection struct {
	id int64

	mu        sync.Mutex
	open      bool
	closed    bool
	commits   int
	rollbacks int

	// rollbackErr, when set, makes Rollback fail once (simulating a
	// ResetFailed on the next Release).
	rollbackErr error
}

func newFakeConnection(id int64) *FakeConnection {
	return &FakeConnection{id: id, open: true}
}

// ID is a stable identity for assertions ("is this the same connection").
func (c *FakeConnection) ID() int64 { return c.id }

func (c *FakeConnection) Cursor(_ context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, errors.New("connpooltest: cursor on closed connection")
	}
	return c, nil
}

func (c *FakeConnection) Commit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func (c *FakeConnection) Rollback(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rollbackErr != nil {
		err := c.rollbackErr
		c.rollbackErr = nil
		return err
	}
	c.rollbacks++
	return nil
}

func (c *FakeConnection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.open = false
	return nil
}

func (c *FakeConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *FakeConnection) RawHandle() any { return c }

// SetOpen flips the liveness hint, simulating a connection that died
// silently underneath the pool (spec.md §8 scenario 5).
func (c *FakeConnection) SetOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

// FailNextRollback makes the next Rollback call return err instead of
// succeeding, simulating ResetFailed.
func (c *FakeConnection) FailNextRollback(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackErr = err
}

// Closed reports whether Close was ever called.
func (c *FakeConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Rollbacks reports how many times Rollback succeeded.
func (c *FakeConnection) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// FakeFactory is a connpool.Factory with deterministic, inspectable
// behavior for tests: counts calls, can be told to fail every call from a
// point forward, and remembers every connection it has ever produced.
type FakeFactory struct {
	calls    atomic.Int64
	mu       sync.Mutex
	failFrom int64 // 0 means never fail
	created  []*FakeConnection
}

// NewFakeFactory returns a factory with no configured failures; Factory
// returns the connpool.Factory closure bound to it.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// Factory returns the connpool.Factory capability.
func (f *FakeFactory) Factory() connpool.Factory {
	return func(_ context.Context) (connpool.Connection, error) {
		n := f.calls.Add(1)
		f.mu.Lock()
		fail := f.failFrom != 0 && n >= f.failFrom
		f.mu.Unlock()
		if fail {
			return nil, ErrFactoryFailure
		}
		c := newFakeConnection(n)
		f.mu.Lock()
		f.created = append(f.created, c)
		f.mu.Unlock()
		return c, nil
	}
}

// FailFrom makes every call numbered n or later fail with
// ErrFactoryFailure (calls are 1-indexed in creation order).
func (f *FakeFactory) FailFrom(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFrom = n
}

// Calls reports how many times the factory has been invoked.
func (f *FakeFactory) Calls() int64 { return f.calls.Load() }

// Created returns every connection the factory has produced, in order.
func (f *FakeFactory) Created() []*FakeConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeConnection, len(f.created))
	copy(out, f.created)
	return out
}
