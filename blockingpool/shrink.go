package blockingpool

import (
	"context"
	"sort"
	"time"

	"github.com/sinhashubham95/connpool"
)

func (p *Pool) shrinkLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ShrinkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runShrink(ctx)
		}
	}
}

// runShrink trims idle connections down to Config.MaxIdle, never below the
// floor min_size - |in-use|, coldest-last-used first. Survivors past
// IdleTimeout are retired here too regardless of MaxIdle headroom.
func (p *Pool) runShrink(ctx context.Context) {
	e := p.e
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	inUseCount := len(e.inUse)
	all := e.idle.drainAll()
	e.mu.Unlock()

	if len(all) == 0 {
		return
	}

	sort.Slice(all, func(i, j int) bool { return all[i].lastUsedNano < all[j].lastUsedNano })

	floor := p.cfg.MinSize - inUseCount
	if floor < 0 {
		floor = 0
	}
	keep := p.cfg.MaxIdle
	if keep < floor {
		keep = floor
	}

	excess := len(all) - keep
	if excess < 0 {
		excess = 0
	}
	removed, remaining := all[:excess], all[excess:]

	for _, rec := range removed {
		p.events.Fire(ctx, connpool.EventPoolShrink, rec.conn)
		go e.destroyIdle(ctx, rec)
	}

	var survivors []*entry
	for _, rec := range remaining {
		if rec.idleDuration() > p.cfg.IdleTimeout {
			go e.destroyIdle(ctx, rec)
		} else {
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
}
