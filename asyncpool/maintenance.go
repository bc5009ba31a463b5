package asyncpool

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

// HealthCheck is the explicit entry point that performs the same scan the
// background maintenance loop runs (spec.md §4.1).
func (p *Pool) HealthCheck(ctx context.Context) {
	p.runHealthCheck(ctx)
}

func (p *Pool) runHealthCheck(ctx context.Context) {
	for {
		if err := p.createIdleConnections(ctx, p.cfg.MinSize-p.e.totalConnections()); err != nil {
			p.logger.Error().Err(err).Msg("asyncpool: maintenance top-up to min_size failed")
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
// hint. Returns whether anything was retired, so runHealthCheck keeps
// scanning while there's churn.
func (p *Pool) expireIdleOnce(ctx context.Context) bool {
	p.e.mu.Lock()
	if p.e.closed {
		p.e.mu.Unlock()
		return false
	}
	all := p.e.idle.drainAll()
	p.e.mu.Unlock()

	destroyed := false
	var survivors []*entry
	for _, rec := range all {
		switch {
		case rec.expired():
			p.addLifetimeDestroy()
			go p.e.destroyIdle(ctx, rec)
			destroyed = true
		case rec.idleDuration() > p.cfg.IdleTimeout && !rec.conn.IsOpen():
			p.events.Fire(ctx, connpool.EventConnectionInvalid, rec.conn)
			p.addIdleDestroy()
			go p.e.destroyIdle(ctx, rec)
			destroyed = true
		default:
			survivors = append(survivors, rec)
		}
	}

	p.e.mu.Lock()
	closedNow := p.e.closed
	if !closedNow {
		for _, rec := range survivors {
			p.e.idle.push(rec)
		}
	}
	p.e.mu.Unlock()
	if closedNow {
		for _, rec := range survivors {
			go p.e.destroyIdle(ctx, rec)
		}
	}

	return destroyed
}
