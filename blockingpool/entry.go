package blockingpool

import (
	"math/rand/v2"
	"time"

	"github.com/sinhashubham95/connpool"
)

// status tracks an entry's placement, mirroring spec.md §4.6's per-
// connection state machine: creating -> idle -> in-use -> idle -> ... ->
// retired. There is no resurrection out of retired.
type status byte

const (
	statusInitialising status = iota
	statusIdle
	statusAcquired
)

// entry is the pool's private record for one live connpool.Connection.
// Callers only ever see the connpool.Connection it wraps.
type entry struct {
	conn connpool.Connection

	creationTime time.Time
	maxAgeTime   time.Time
	lastUsedNano int64
	usageCount   int64
	status       status

	// retired is set once the entry has been (or is being) torn down, so
	// a concurrent Close and Release never destroy the same connection
	// twice. Guarded by the owning engine's mu.
	retired bool
}

// newEntry creates a not-yet-constructed record and applies max-lifetime
// jitter so connections created together don't all expire in the same
// instant and starve the pool.
func newEntry(maxLifetime, maxLifetimeJitter time.Duration) *entry {
	now := time.Now()
	jitter := time.Duration(rand.Float64() * float64(maxLifetimeJitter))
	return &entry{
		creationTime: now,
		maxAgeTime:   now.Add(maxLifetime).Add(jitter),
		lastUsedNano: now.UnixNano(),
		status:       statusInitialising,
	}
}

func (e *entry) idleDuration() time.Duration {
	return time.Duration(time.Now().UnixNano() - e.lastUsedNano)
}

func (e *entry) expired() bool {
	return time.Now().After(e.maxAgeTime)
}
