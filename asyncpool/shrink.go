package asyncpool

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
// floor min_size - |in-use| (the conservative resolution of spec.md's open
// question on the shrink floor), coldest-last-used first. Survivors past
// IdleTimeout are retired here too regardless of MaxIdle headroom.
func (p *Pool) runShrink(ctx context.Context) {
	p.e.mu.Lock()
	if p.e.closed {
		p.e.mu.Unlock()
		return
	}
	inUseCount := len(p.e.inUse)
	all := p.e.idle.drainAll()
	p.e.mu.Unlock()

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
		go p.e.destroyIdle(ctx, rec)
	}

	var survivors []*entry
	for _, rec := range remaining {
		if rec.idleDuration() > p.cfg.IdleTimeout {
			go p.e.destroyIdle(ctx, rec)
		} else {
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
}
