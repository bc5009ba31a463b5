package asyncpool

import (
	"context"

	"github.com/sinhashubham95/connpool"
)

// AddEventHandler registers handler for event, invoked synchronously in
// registration order whenever the pool fires it.
func (p *Pool) AddEventHandler(event connpool.Event, handler connpool.Handler) {
	p.events.AddHandler(event, handler)
}

// WithConnection acquires a connection, runs body, and releases it on every
// exit path including a panic unwinding through body.
func (p *Pool) WithConnection(ctx context.Context, body func(ctx context.Context, conn connpool.Connection) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(ctx, conn)
	return body(ctx, conn)
}
