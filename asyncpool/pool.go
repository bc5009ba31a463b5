// Package asyncpool is the cooperative pool: single-threaded-style async
// callers acquire and release connections through suspension points that
// never spin-poll, built around golang.org/x/sync/semaphore the same way
// the teacher's original pool package used it — Acquire suspends the
// calling goroutine on a channel receive and honors context cancellation,
// which is exactly the "cooperative, suspend don't spin" contract spec.md
// §5 asks of the async pool.
package asyncpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sinhashubham95/connpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// errAtCapacity is the internal signal that a background top-up attempt
// found no room — the caller (createIdleConnection) treats it as a
// no-op, never a failure, per spec.md §4.1 Initialize.
var errAtCapacity = errors.New("asyncpool: no space available to create new connections")

// engine is the part of the pool holding the shared mutable state: idle
// set, all-connections set, the acquire semaphore, and the per-connection
// destruction wait group. A single critical section (mu) protects every
// field spec.md §4.7 names, except the semaphore's own internal wait
// queue, which is exactly the cooperative suspension point.
type engine struct {
	mu         sync.Mutex
	acquireSem *semaphore.Weighted
	destructWG sync.WaitGroup

	all   []*entry
	idle  *mvStack
	inUse map[connpool.Connection]*entry

	maxSize int

	constructor func(ctx context.Context) (connpool.Connection, error)
	destructor  func(ctx context.Context, c connpool.Connection) error

	connectionsCreated int64
	connectionsClosed  int64
	acquireRequests    int64
	acquireTimeouts    int64

	closed bool
}

func newEngine(p *Pool) *engine {
	return &engine{
		acquireSem:  semaphore.NewWeighted(int64(p.cfg.MaxSize)),
		idle:        newMVStack(),
		all:         make([]*entry, 0),
		inUse:       make(map[connpool.Connection]*entry),
		maxSize:     p.cfg.MaxSize,
		constructor: p.constructor,
		destructor:  p.destructor,
	}
}

// Options configures a new Pool.
type Options struct {
	Config  connpool.Config
	Factory connpool.Factory
	Logger  zerolog.Logger
	Events  *connpool.EventDispatcher
}

// Pool manages a set of connpool.Connection values for cooperative async
// callers, engineered to the same semantics as blockingpool.Pool.
type Pool struct {
	e       *engine
	cfg     connpool.Config
	factory connpool.Factory
	events  *connpool.EventDispatcher
	logger  zerolog.Logger

	lifetimeDestroyCount int64
	idleDestroyCount     int64
	destroyCountMu       sync.Mutex

	healthCheckChan chan struct{}

	closeOnce sync.Once
	closeChan chan struct{}
	bgCancel  context.CancelFunc
	bg        *errgroup.Group
}

// New pre-creates up to Config.MinSize connections (failures are logged,
// not fatal — the pool merely starts under its floor) and starts the
// maintenance and shrink loops.
func New(ctx context.Context, opts Options) (*Pool, error) {
	cfg := opts.Config
	if err := cfg.ValidateAndDefault(); err != nil {
		return nil, err
	}
	events := opts.Events
	if events == nil {
		events = connpool.NewEventDispatcher(opts.Logger)
	}
	p := &Pool{
		cfg:             cfg,
		factory:         opts.Factory,
		events:          events,
		logger:          opts.Logger,
		healthCheckChan: make(chan struct{}, 1),
		closeChan:       make(chan struct{}),
	}
	p.e = newEngine(p)

	bgCtx, cancel := context.WithCancel(ctx)
	p.bgCancel = cancel
	group, bgCtx := errgroup.WithContext(bgCtx)
	p.bg = group

	if err := p.createIdleConnections(ctx, p.cfg.MinSize); err != nil {
		p.logger.Error().Err(err).Msg("asyncpool: pre-create below min_size, pool starts under floor")
	}

	group.Go(func() error {
		p.healthChecker(bgCtx)
		return nil
	})
	group.Go(func() error {
		p.shrinkLoop(bgCtx)
		return nil
	})

	return p, nil
}

// Close marks the pool closed, stops the background loops, and closes
// every idle and in-use connection. Idempotent.
func (p *Pool) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.bgCancel()
		_ = p.bg.Wait()
		p.e.close(ctx)
	})
}

func (p *Pool) constructor(ctx context.Context) (connpool.Connection, error) {
	c, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Pool) destructor(ctx context.Context, c connpool.Connection) error {
	err := c.Close(ctx)
	p.events.Fire(ctx, connpool.EventConnectionClosed, c)
	return err
}

func (e *engine) newEntryLocked(maxLifetime, maxLifetimeJitter time.Duration) *entry {
	rec := newEntry(maxLifetime, maxLifetimeJitter)
	e.all = append(e.all, rec)
	e.destructWG.Add(1)
	return rec
}

func removeFromAll(all *[]*entry, target *entry) {
	for i, e := range *all {
		if e == target {
			last := len(*all) - 1
			(*all)[i] = (*all)[last]
			(*all)[last] = nil
			*all = (*all)[:last]
			return
		}
	}
}

func (e *engine) totalConnections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.all)
}

// retireLocked marks rec as being torn down and removes it from the
// all-connections set. Must be called with e.mu held. Safe to call at
// most once per entry; callers must check rec.retired first.
func (e *engine) retireLocked(rec *entry) {
	rec.retired = true
	removeFromAll(&e.all, rec)
}

func (e *engine) close(ctx context.Context) {
	defer e.destructWG.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, rec := range e.idle.drainAll() {
		if rec.retired {
			continue
		}
		e.retireLocked(rec)
		go e.destroyEntry(ctx, rec)
	}
	// whatever remains in all is in-use: callers must not use a
	// connection after shutdown, so Close tears these down too rather
	// than waiting for Release.
	for _, rec := range append([]*entry(nil), e.all...) {
		if rec.retired {
			continue
		}
		delete(e.inUse, rec.conn)
		e.retireLocked(rec)
		go e.destroyEntry(ctx, rec)
	}
}

func (e *engine) destroyEntry(ctx context.Context, rec *entry) {
	defer e.destructWG.Done()
	_ = e.destructor(ctx, rec.conn)
}

// destroyIdle tears down rec, which must currently be idle and therefore
// holds no acquire-semaphore permit (a permit represents "checked out or
// about to be", never "exists idle"). Safe to call from a goroutine.
func (e *engine) destroyIdle(ctx context.Context, rec *entry) {
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		return
	}
	e.retireLocked(rec)
	e.mu.Unlock()

	e.destroyEntry(ctx, rec)

	e.mu.Lock()
	e.connectionsClosed++
	e.mu.Unlock()
}

// createConnection builds one new idle connection, bounded by maxSize and
// by the pool's closed state. It holds an acquire-semaphore permit only
// for the duration of construction — the permit represents "about to
// create or currently checked out", not "exists", so an idle connection
// never pins a permit indefinitely.
func (e *engine) createConnection(ctx context.Context, maxLifetime time.Duration) (*entry, error) {
	if !e.acquireSem.TryAcquire(1) {
		return nil, errAtCapacity
	}
	e.mu.Lock()
	if e.closed {
		e.acquireSem.Release(1)
		e.mu.Unlock()
		return nil, connpool.ErrPoolClosed
	}
	if len(e.all) >= e.maxSize {
		e.acquireSem.Release(1)
		e.mu.Unlock()
		return nil, errAtCapacity
	}
	rec := e.newEntryLocked(maxLifetime, 0)
	e.mu.Unlock()

	conn, err := e.constructor(ctx)

	e.mu.Lock()
	if err != nil {
		e.retireLocked(rec)
		e.destructWG.Done()
		e.mu.Unlock()
		e.acquireSem.Release(1)
		return nil, err
	}
	rec.conn = conn
	rec.status = statusIdle
	closed := e.closed
	if !closed {
		e.idle.push(rec)
		e.connectionsCreated++
	}
	e.mu.Unlock()
	e.acquireSem.Release(1)

	if closed {
		_ = e.destructor(ctx, conn)
		return nil, connpool.ErrPoolClosed
	}
	return rec, nil
}
