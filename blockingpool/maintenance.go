package blockingpool

import (
	"context"
	"time"

	"github.com/sinhashubham95/connpool"
)

func (p *Pool) healthChecker(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			return
		case <-ctx.Done():
			return
		case <-p.healthCheckChan:
			p.runHealthCheck(ctx)
		case <-ticker.C:
			p.runHealthCheck(ctx)
		}
	}
}

// HealthCheck runs the same scan the background maintenance loop runs, on
// the calling goroutine.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.runHealthCheck(ctx)
}

func (p *Pool) runHealthCheck(ctx context.Context) {
	for {
		if err := p.createIdleConnections(ctx, p.cfg.MinSize-p.e.totalConnections()); err != nil {
			p.logger.Error().Err(err).Msg("blockingpool: maintenance top-up to min_size failed")
			break
		}
		if !p.expireIdleOnce(ctx) {
			break
		}
		select {
		case <-p.closeChan:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// expireIdleOnce scans every idle entry once, retiring any past max
// lifetime or, once idle past idle_timeout, reporting a dead liveness
// hint. Returns whether anything was retired.
func (p *Pool) expireIdleOnce(ctx context.Context) bool {
	e := p.e
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	all := e.idle.drainAll()
	e.mu.Unlock()

	destroyed := false
	var survivors []*entry
	for _, rec := range all {
		switch {
		case rec.expired():
			p.addLifetimeDestroy()
			go e.destroyIdle(ctx, rec)
			destroyed = true
		case rec.idleDuration() > p.cfg.IdleTimeout && !rec.conn.IsOpen():
			p.events.Fire(ctx, connpool.EventConnectionInvalid, rec.conn)
			p.addIdleDestroy()
			go e.destroyIdle(ctx, rec)
			destroyed = true
		default:
			survivors = append(survivors, rec)
		}
	}

	e.mu.Lock()
	closedNow := e.closed
	if !closedNow {
		for _, rec := range survivors {
			e.idle.push(rec)
		}
	}
	e.mu.Unlock()
	if closedNow {
		for _, rec := range survivors {
			go e.destroyIdle(ctx, rec)
		}
	}

	return destroyed
}
