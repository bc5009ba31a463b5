// Package sqladapter is the concrete driver adapter: it wraps a
// database/sql/driver connector the way database/sql itself does, and
// exposes the result as a connpool.Connection/connpool.Factory pair. It is
// the narrow boundary the pool is engineered against — everything above a
// raw driver connection (query building, dialects, sessions, migrations,
// the driver's own cursor wrapper, URL parsing) lives outside this
// package and is never imported by it.
package sqladapter

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"sync/atomic"
)

// Config is the set of parameters needed to open a DB.
type Config struct {
	DriverName string
	URL        string
}

// ValidateAndDefault validates the mandatory fields.
func (c *Config) ValidateAndDefault() error {
	if c.DriverName == "" {
		return ErrMissingDriverName
	}
	if c.URL == "" {
		return ErrMissingURL
	}
	return nil
}

// DB wraps a driver.Connector and mints pool connections from it.
type DB struct {
	c      driver.Connector
	closed atomic.Bool
}

// Open opens a DB against the driver registered under cfg.DriverName.
func Open(cfg Config) (*DB, error) {
	if err := cfg.ValidateAndDefault(); err != nil {
		return nil, err
	}
	driversMu.RLock()
	d, ok := drivers[cfg.DriverName]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, cfg.DriverName)
	}
	c, err := d.OpenConnector(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &DB{c: c}, nil
}

// Connect opens one new driver connection and wraps it as a
// connpool.Connection. This is the method a connpool.Factory closure calls.
func (db *DB) Connect(ctx context.Context) (*Connection, error) {
	if db.closed.Load() {
		return nil, ErrDBClosed
	}
	c, err := db.c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return newConnection(c), nil
}

// Close closes the underlying connector, if it supports closing.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return ErrDBClosed
	}
	if c, ok := db.c.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
