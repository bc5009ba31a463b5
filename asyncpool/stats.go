package asyncpool

import "github.com/sinhashubham95/connpool"

// GetStats returns a point-in-time snapshot of pool counters, including
// average usage per connection across the current all-connections set.
func (p *Pool) GetStats() connpool.Stats {
	p.e.mu.Lock()
	defer p.e.mu.Unlock()

	var totalUsage int64
	for _, rec := range p.e.all {
		totalUsage += rec.usageCount
	}
	avg := 0.0
	if len(p.e.all) > 0 {
		avg = float64(totalUsage) / float64(len(p.e.all))
	}

	return connpool.Stats{
		ConnectionsCreated:    p.e.connectionsCreated,
		ConnectionsClosed:     p.e.connectionsClosed,
		AcquireRequests:       p.e.acquireRequests,
		AcquireTimeouts:       p.e.acquireTimeouts,
		TotalConnections:      int64(len(p.e.all)),
		IdleConnections:       int64(p.e.idle.length()),
		InUseConnections:      int64(len(p.e.inUse)),
		AvgUsagePerConnection: avg,
	}
}
