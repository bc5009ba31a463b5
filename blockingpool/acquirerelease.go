package blockingpool

import (
	"context"
	"time"

	"github.com/sinhashubham95/connpool"
)

// Acquire blocks the calling goroutine until a validated connpool.Connection
// is checked out, Config.ConnectionTimeout elapses, or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (connpool.Connection, error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ConnectionTimeout > 0 {
		acquireCtx, cancel = context.WithDeadline(ctx, time.Now().Add(p.cfg.ConnectionTimeout))
		defer cancel()
	}

	p.e.mu.Lock()
	p.e.acquireRequests++
	p.e.mu.Unlock()

	for {
		rec, err := p.acquireOnce(acquireCtx)
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
			p.destroyAcquiredSync(ctx, rec)
			continue
		}
		if rec.expired() {
			p.addLifetimeDestroy()
			p.destroyAcquiredSync(ctx, rec)
			continue
		}
		return rec.conn, nil
	}
}

// acquireOnce runs a single condition-variable-style wait: check the
// predicate (idle connection available, or room to grow), and if neither
// holds, park on a FIFO waiter until woken, then re-check from scratch.
func (p *Pool) acquireOnce(ctx context.Context) (*entry, error) {
	e := p.e
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, connpool.ErrPoolClosed
		}
		if rec := e.tryAcquireIdleLocked(); rec != nil {
			e.mu.Unlock()
			return rec, nil
		}
		if len(e.all) < e.maxSize {
			rec := e.newEntryLocked(p.cfg.MaxLifetime, 0)
			e.mu.Unlock()
			return p.initialiseAcquired(ctx, rec)
		}
		w := e.enqueueWaiterLocked()
		e.mu.Unlock()

		select {
		case <-w.ch:
			// predicate may now hold; loop re-checks it from scratch.
		case <-ctx.Done():
			e.mu.Lock()
			e.dequeueWaiterLocked(w)
			e.mu.Unlock()
			return nil, ctx.Err()
		}
	}
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
func (p *Pool) initialiseAcquired(ctx context.Context, rec *entry) (*entry, error) {
	e := p.e
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
		if r.err != nil {
			e.retireLocked(rec)
			e.destructWG.Done()
			e.wakeOneLocked()
			e.mu.Unlock()
			return nil, connpool.NewConnectionCreationError(r.err)
		}
		rec.conn = r.conn
		rec.status = statusAcquired
		rec.usageCount++
		e.inUse[rec.conn] = rec
		e.connectionsCreated++
		e.mu.Unlock()
		p.events.Fire(ctx, connpool.EventConnectionCreated, rec.conn)
		p.events.Fire(ctx, connpool.EventPoolGrow, rec.conn)
		return rec, nil
	}
}

// Release returns conn to the pool, synchronously running its reset
// (Rollback) on the calling goroutine. A conn not currently checked out is
// a no-op safety net against double-release. The connection is validated
// before being handed back to idle: a dead connection is retired and
// CONNECTION_INVALID is fired instead.
func (p *Pool) Release(ctx context.Context, conn connpool.Connection) {
	e := p.e
	e.mu.Lock()
	rec, ok := e.inUse[conn]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.inUse, conn)
	e.mu.Unlock()

	if !rec.conn.IsOpen() {
		p.events.Fire(ctx, connpool.EventConnectionInvalid, rec.conn)
		p.destroyAcquiredSync(ctx, rec)
		p.triggerHealthCheck()
		return
	}

	if rec.expired() {
		p.addLifetimeDestroy()
		p.destroyAcquiredSync(ctx, rec)
		p.triggerHealthCheck()
		return
	}

	if err := rec.conn.Rollback(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("blockingpool: reset failed on release, retiring connection")
		p.destroyAcquiredSync(ctx, rec)
		return
	}
	p.releaseToIdle(rec, time.Now().UnixNano())
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

// destroyAcquiredSync tears down rec, which must currently be tracked as
// in-use (or otherwise not idle), on the calling goroutine.
func (p *Pool) destroyAcquiredSync(ctx context.Context, rec *entry) {
	e := p.e
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		return
	}
	delete(e.inUse, rec.conn)
	e.retireLocked(rec)
	e.wakeOneLocked()
	e.mu.Unlock()

	e.destroyEntry(ctx, rec)

	e.mu.Lock()
	e.connectionsClosed++
	e.mu.Unlock()
}

// releaseToIdle pushes rec back onto the idle set with timestamp ts and
// wakes one parked Acquire call, if any.
func (p *Pool) releaseToIdle(rec *entry, ts int64) {
	e := p.e
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		return
	}
	if e.closed {
		e.retireLocked(rec)
		e.mu.Unlock()
		e.destroyEntry(context.Background(), rec)
		e.mu.Lock()
		e.connectionsClosed++
		e.mu.Unlock()
		return
	}
	rec.status = statusIdle
	rec.lastUsedNano = ts
	e.idle.push(rec)
	e.wakeOneLocked()
	e.mu.Unlock()
}
