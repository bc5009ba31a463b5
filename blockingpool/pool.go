// Package blockingpool is the preemptive-multithreaded pool: Acquire and
// Release are ordinary synchronous calls that block the calling goroutine
// until they can complete, coordinated with a plain sync.Mutex and a FIFO
// waiter queue standing in for a deadline-aware condition variable (Go's
// sync.Cond has no deadline support, so each waiter gets its own signal
// channel instead of cond.Wait/Broadcast). This is the "blocking, suspend
// the whole caller" engineering style spec.md §5 asks of one of the two
// pool implementations, as distinct from asyncpool's cooperative,
// suspend-at-a-channel-receive style.
package blockingpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sinhashubham95/connpool"
	"golang.org/x/sync/errgroup"
)

// errAtCapacity is the internal signal that a background top-up attempt
// found no room — treated as a no-op, never a failure.
var errAtCapacity = errors.New("blockingpool: no space available to create new connections")

// waiter is one Acquire call parked because the pool is at capacity, woken
// by a single non-blocking send from whichever Release or background loop
// frees up room next, in FIFO order.
type waiter struct {
	ch chan struct{}
}

// engine holds the shared mutable state behind a single sync.Mutex: idle
// set, all-connections set, in-use index, and the FIFO waiter queue.
type engine struct {
	mu sync.Mutex

	all     []*entry
	idle    *mvStack
	inUse   map[connpool.Connection]*entry
	waiters []*waiter

	maxSize int

	constructor func(ctx context.Context) (connpool.Connection, error)
	destructor  func(ctx context.Context, c connpool.Connection) error

	destructWG sync.WaitGroup

	connectionsCreated int64
	connectionsClosed  int64
	acquireRequests    int64
	acquireTimeouts    int64

	closed bool
}

func newEngine(p *Pool) *engine {
	return &engine{
		idle:        newMVStack(),
		all:         make([]*entry, 0),
		inUse:       make(map[connpool.Connection]*entry),
		maxSize:     p.cfg.MaxSize,
		constructor: p.constructor,
		destructor:  p.destructor,
	}
}

func (e *engine) enqueueWaiterLocked() *waiter {
	w := &waiter{ch: make(chan struct{}, 1)}
	e.waiters = append(e.waiters, w)
	return w
}

func (e *engine) dequeueWaiterLocked(target *waiter) {
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// wakeOneLocked nudges the longest-waiting Acquire call to re-check the
// predicate, mirroring a condition variable's Signal. Must be called
// whenever a slot frees up: a connection becomes idle, or the all-
// connections set shrinks.
func (e *engine) wakeOneLocked() {
	if len(e.waiters) == 0 {
		return
	}
	w := e.waiters[0]
	e.waiters = e.waiters[1:]
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Options configures a new Pool.
type Options struct {
	Config  connpool.Config
	Factory connpool.Factory
	Logger  zerolog.Logger
	Events  *connpool.EventDispatcher
}

// Pool manages a set of connpool.Connection values for blocking callers,
// engineered to the same semantics as asyncpool.Pool.
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
// not fatal) and starts the maintenance and shrink loops.
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
		p.logger.Error().Err(err).Msg("blockingpool: pre-create below min_size, pool starts under floor")
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

// Close marks the pool closed, stops the background loops, wakes every
// parked Acquire so it observes ErrPoolClosed, and closes every idle and
// in-use connection. Idempotent.
func (p *Pool) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		p.bgCancel()
		_ = p.bg.Wait()
		p.e.close(ctx)
	})
}

func (p *Pool) constructor(ctx context.Context) (connpool.Connection, error) {
	return p.factory(ctx)
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
// all-connections set, freeing a capacity slot. Must be called with e.mu
// held; safe to call at most once per entry.
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
	for _, rec := range append([]*entry(nil), e.all...) {
		if rec.retired {
			continue
		}
		delete(e.inUse, rec.conn)
		e.retireLocked(rec)
		go e.destroyEntry(ctx, rec)
	}
	for _, w := range e.waiters {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
	e.waiters = nil
}

func (e *engine) destroyEntry(ctx context.Context, rec *entry) {
	defer e.destructWG.Done()
	_ = e.destructor(ctx, rec.conn)
}

// destroyIdle tears down rec, which must currently be idle.
func (e *engine) destroyIdle(ctx context.Context, rec *entry) {
	e.mu.Lock()
	if rec.retired {
		e.mu.Unlock()
		return
	}
	e.retireLocked(rec)
	e.wakeOneLocked()
	e.mu.Unlock()

	e.destroyEntry(ctx, rec)

	e.mu.Lock()
	e.connectionsClosed++
	e.mu.Unlock()
}

// createConnection builds one new idle connection, bounded by maxSize and
// by the pool's closed state.
func (e *engine) createConnection(ctx context.Context, maxLifetime time.Duration) (*entry, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, connpool.ErrPoolClosed
	}
	if len(e.all) >= e.maxSize {
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
		e.wakeOneLocked()
		e.mu.Unlock()
		return nil, err
	}
	rec.conn = conn
	rec.status = statusIdle
	closed := e.closed
	if !closed {
		e.idle.push(rec)
		e.connectionsCreated++
		e.wakeOneLocked()
	}
	e.mu.Unlock()

	if closed {
		_ = e.destructor(ctx, conn)
		return nil, connpool.ErrPoolClosed
	}
	return rec, nil
}
