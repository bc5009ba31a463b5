package blockingpool

import "github.com/sinhashubham95/connpool"

// GetStats returns a point-in-time snapshot of pool counters, including
// average usage per connection across the current all-connections set.
func (p *Pool) GetStats() connpool.Stats {
	e := p.e
	e.mu.Lock()
	defer e.mu.Unlock()

	var totalUsage int64
	for _, rec := range e.all {
		totalUsage += rec.usageCount
	}
	avg := 0.0
	if len(e.all) > 0 {
		avg = float64(totalUsage) / float64(len(e.all))
	}

	return connpool.Stats{
		ConnectionsCreated:    e.connectionsCreated,
		ConnectionsClosed:     e.connectionsClosed,
		AcquireRequests:       e.acquireRequests,
		AcquireTimeouts:       e.acquireTimeouts,
		TotalConnections:      int64(len(e.all)),
		IdleConnections:       int64(e.idle.length()),
		InUseConnections:      int64(len(e.inUse)),
		AvgUsagePerConnection: avg,
	}
}
