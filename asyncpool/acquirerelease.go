package asyncpool

import (
	"context"
	"time"

	"github.com/sinhashubham95/connpool"
)

// Acquire returns a validated connpool.Connection checked out to the
// caller. It never spin-polls: the wait path suspends on the acquire
// semaphore's internal channel, which honors ctx cancellation. The
// ConnectionTimeout deadline and the AcquireRequests counter apply once
// per logical call, not once per internal validation retry.
func (p *Pool) Acquire(ctx context.Context) (connpool.Connection, error) {
	p.e.mu.Lock()
	p.e.acquireRequests++
	p.e.mu.Unlock()

	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ConnectionTimeout > 0 {
		acquireCtx, cancel = context.WithDeadline(ctx, time.Now().Add(p.cfg.ConnectionTimeout))
		defer cancel()
	}

	for {
		rec, err := p.acquireConnection(acquireCtx)
		if err != nil {
			if acquireCtx.Err() != nil && ctx.Err() == nil {
				p.e.mu.Lock()
				p.e.acquireTimeouts++
				p.e.mu.Unlock()
				return nil, connpool.ErrAcquireTimeout
			}
			return nil, err
		}
		if !rec.conn.IsOpen() {
			p.events.Fire(ctx, connpool.EventConnectionInvalid, rec.conn)
			go p.e.destroyAcquired(ctx, rec)
			continue
		}
		if rec.expired() {
			go p.e.destroyAcquired(ctx, rec)
			p.addLifetimeDestroy()
			continue
		}
		return rec.conn, nil
	}
}

// Release returns conn to the pool. A conn not currently checked out is a
// no-op safety net against double-release. The connection is validated
// before being handed back to idle: a dead connection is retired and
// CONNECTION_INVALID is fired instead.
func (p *Pool) Release(ctx context.Context, conn connpool.Connection) {
	p.e.mu.Lock()
	rec, ok := p.e.inUse[conn]
	if !ok {
		p.e.mu.Unlock()
		return
	}
	delete(p.e.inUse, conn)
	p.e.mu.Unlock()

	if !rec.conn.IsOpen() {
		p.events.Fire(ctx, connpool.EventConnectionInvalid, rec.conn)
		go p.e.destroyAcquired(ctx, rec)
		p.triggerHealthCheck()
		return
	}

	if rec.expired() {
		p.addLifetimeDestroy()
		go p.e.destroyAcquired(ctx, rec)
		p.triggerHealthCheck()
		return
	}

	go func() {
		if err := rec.conn.Rollback(ctx); err != nil {
			p.logger.Debug().Err(err).Msg("asyncpool: reset failed on release, retiring connection")
			p.e.destroyAcquired(ctx, rec)
			return
		}
		p.e.releaseToIdle(rec, time.Now().UnixNano())
	}()
}

func (p *Pool) addLifetimeDestroy() {
	p.destroyCountMu.Lock()
	p.lifetimeDestroyCount++
	p.destroyCountMu.Unlock()
}

func (p *Pool) addIdleDestroy() {
	p.destroyCountMu.Lock()
	p.idleDestroyCount++
	p.destroyCountMu.Unlock()
}

func (e *engine) tryAcquireIdleLocked() *entry {
	rec, ok := e.idle.pop()
	if !ok {
		return nil
	}
	rec.status = statusAcquired
	rec.usageCount++
	e.inUse[rec.conn] = rec
	return rec
}

// initialiseAcquired runs the factory for a brand-new entry outside the
// lock, honoring ctx cancellation while the factory call is in flight.
func (e *engine) initialiseAcquired(ctx context.Context, rec *entry) (*entry, error) {
	type result struct {
		conn connpool.Connection
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := e.constructor(ctx)
		done <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		e.mu.Lock()
		defer e.mu.Unlock()
		if r.err != nil {
			e.retireLocked(rec)
			e.destructWG.Done()
			e.acquireSem.Release(1)
			return nil, connpool.NewConnectionCreationError(r.err)
		}
		rec.conn = r.conn
		rec.status = statusAcquired
		rec.usageCount++
		e.inUse[rec.conn] = rec
		e.connectionsCreated++
		return rec, nil
	}
}

func (p *Pool) acquireConnection(ctx context.Context) (*entry, error) {
	if !p.e.acquireSem.TryAcquire(1) {
		if err := p.e.acquireSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p.e.mu.Lock()
	if p.e.closed {
		p.e.acquireSem.Release(1)
		p.e.mu.Unlock()
		return nil, connpool.ErrPoolClosed
	}

	if rec := p.e.tryAcquireIdleLocked(); rec != nil {
		p.e.mu.Unlock()
		return rec, nil
	}

	rec := p.e.newEntryLocked(p.cfg.MaxLifetime, 0)
	p.e.mu.Unlock()

	rec, err := p.e.initialiseAcquired(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.events.Fire(ctx, connpool.EventConnectionCreated, rec.conn)
	p.events.Fire(ctx, connpool.EventPoolGrow, rec.conn)
	return rec, nil
}

// destroyAcquired tears down rec, which must currently be tracked as
// in-use (or otherwise not idle). Safe to call from a goroutine.
func (e *engine) destroyAcquired(ctx context.Context, rec *entry) {
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		return
	}
	delete(e.inUse, rec.conn)
	e.retireLocked(rec)
	e.mu.Unlock()

	e.destroyEntry(ctx, rec)

	e.mu.Lock()
	e.acquireSem.Release(1)
	e.connectionsClosed++
	e.mu.Unlock()
}

// releaseToIdle pushes rec back onto the idle set with timestamp ts and
// releases the acquire-semaphore permit it was holding while checked out.
func (e *engine) releaseToIdle(rec *entry, ts int64) {
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		e.acquireSem.Release(1)
		return
	}
	if e.closed {
		e.retireLocked(rec)
		e.mu.Unlock()
		e.destroyEntry(context.Background(), rec)
		e.mu.Lock()
		e.connectionsClosed++
		e.mu.Unlock()
		e.acquireSem.Release(1)
		return
	}
	rec.status = statusIdle
	rec.lastUsedNano = ts
	e.idle.push(rec)
	e.mu.Unlock()
	e.acquireSem.Release(1)
}
