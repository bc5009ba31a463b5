package asyncpool

import (
	"context"
	"errors"

	"github.com/sinhashubham95/connpool"
)

func (p *Pool) createIdleConnection(ctx context.Context) error {
	rec, err := p.e.createConnection(ctx, p.cfg.MaxLifetime)
	if err != nil {
		if errors.Is(err, errAtCapacity) {
			return nil
		}
		return err
	}
	p.events.Fire(ctx, connpool.EventConnectionCreated, rec.conn)
	return nil
}

// createIdleConnections fans count creations out concurrently and returns
// the first hard failure, matching Initialize's "pre-create failures are
// logged, not fatal" contract one level up in New.
func (p *Pool) createIdleConnections(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}
	errs := make(chan error, count)
	for i := 0; i < count; i++ {
		go func() { errs <- p.createIdleConnection(ctx) }()
	}
	var firstErr error
	for i := 0; i < count; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// triggerHealthCheck nudges the maintenance loop to run sooner than its
// next tick, e.g. right after a lifetime-expired Release so a replacement
// connection appears without waiting a full HealthCheckInterval.
func (p *Pool) triggerHealthCheck() {
	select {
	case p.healthCheckChan <- struct{}{}:
	default:
	}
}
