package asyncpool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinhashubham95/connpool"
	"github.com/sinhashubham95/connpool/asyncpool"
	"github.com/sinhashubham95/connpool/connpooltest"
)

func newTestPool(t *testing.T, cfg connpool.Config, factory *connpooltest.FakeFactory) *asyncpool.Pool {
	t.Helper()
	p, err := asyncpool.New(context.Background(), asyncpool.Options{
		Config:  cfg,
		Factory: factory.Factory(),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestNew_PreCreatesMinSize(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	newTestPool(t, connpool.Config{MinSize: 3, MaxSize: 5}, factory)
	eventually(t, time.Second, func() bool { return factory.Calls() == 3 })
}

func TestAcquireRelease_ReusesIdleConnection_LIFO(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{MinSize: 0, MaxSize: 5}, factory)

	ctx := context.Background()
	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, first)

	eventually(t, time.Second, func() bool { return p.GetStats().IdleConnections == 1 })

	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second, "Acquire should reuse the just-released connection")
	assert.Equal(t, int64(1), factory.Calls(), "only one connection should ever be constructed")
}

func TestAcquire_GrowsUpToMaxSizeThenTimesOut(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{
		MinSize:           0,
		MaxSize:           1,
		ConnectionTimeout: 50 * time.Millisecond,
	}, factory)

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, connpool.ErrAcquireTimeout)

	p.Release(ctx, conn)
}

func TestRelease_ResetFailureRetiresConnection(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{MinSize: 0, MaxSize: 2}, factory)

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	fake := conn.(*connpooltest.FakeConnection)
	fake.FailNextRollback(assertError{})

	p.Release(ctx, conn)
	eventually(t, time.Second, fake.Closed)

	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, second, "a reset-failed connection must not be handed back out")
	assert.Equal(t, int64(2), factory.Calls())
}

type assertError struct{}

func (assertError) Error() string { return "reset failed" }

func TestRelease_DeadConnectionIsRetiredNotReturnedToIdle(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	var invalidFired atomic.Int64
	p := newTestPool(t, connpool.Config{MinSize: 0, MaxSize: 2}, factory)
	p.AddEventHandler(connpool.EventConnectionInvalid, func(context.Context, connpool.Connection) error {
		invalidFired.Add(1)
		return nil
	})

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	fake := conn.(*connpooltest.FakeConnection)
	fake.SetOpen(false)

	p.Release(ctx, conn)
	eventually(t, time.Second, fake.Closed)
	eventually(t, time.Second, func() bool { return invalidFired.Load() == 1 })

	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, conn, second, "a dead connection must be retired on release, not returned to idle")
	assert.Equal(t, int64(2), factory.Calls())
}

func TestMaintenance_ExpiresPastMaxLifetime(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{
		MinSize:             1,
		MaxSize:             3,
		MaxLifetime:         10 * time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
	}, factory)

	eventually(t, time.Second, func() bool { return factory.Calls() >= 1 })
	eventually(t, 2*time.Second, func() bool {
		for _, c := range factory.Created() {
			if c.Closed() {
				return true
			}
		}
		return false
	})
}

func TestShrink_TrimsIdleAboveMaxIdle(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{
		MinSize:        0,
		MaxSize:        5,
		MaxIdle:        1,
		ShrinkInterval: 10 * time.Millisecond,
	}, factory)

	ctx := context.Background()
	conns := make([]connpool.Connection, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for _, c := range conns {
		p.Release(ctx, c)
	}

	eventually(t, 2*time.Second, func() bool {
		stats := p.GetStats()
		return stats.IdleConnections <= 1
	})
}

func TestClose_ClosesIdleAndInUseConnections(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p, err := asyncpool.New(context.Background(), asyncpool.Options{
		Config:  connpool.Config{MinSize: 1, MaxSize: 2},
		Factory: factory.Factory(),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	inUse, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Close(ctx)
	p.Close(ctx) // idempotent

	for _, c := range factory.Created() {
		assert.True(t, c.Closed())
	}
	assert.True(t, inUse.(*connpooltest.FakeConnection).Closed())
}

func TestGetStats_ReportsUsageCounters(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{MinSize: 0, MaxSize: 2}, factory)

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, conn)
	eventually(t, time.Second, func() bool { return p.GetStats().IdleConnections == 1 })

	conn, err = p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, conn)
	eventually(t, time.Second, func() bool {
		return p.GetStats().AvgUsagePerConnection >= 2
	})
}

func TestEvents_FireOnCreateAndClose(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	var created, closed int
	p, err := asyncpool.New(context.Background(), asyncpool.Options{
		Config:  connpool.Config{MinSize: 0, MaxSize: 2},
		Factory: factory.Factory(),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(context.Background()) })

	p.AddEventHandler(connpool.EventConnectionCreated, func(_ context.Context, _ connpool.Connection) error {
		created++
		return nil
	})
	p.AddEventHandler(connpool.EventConnectionClosed, func(_ context.Context, _ connpool.Connection) error {
		closed++
		return nil
	})

	ctx := context.Background()
	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	p.Close(ctx)
	eventually(t, time.Second, func() bool { return closed == 1 })
	_ = conn
}

func TestWithConnection_ReleasesOnPanic(t *testing.T) {
	factory := connpooltest.NewFakeFactory()
	p := newTestPool(t, connpool.Config{MinSize: 0, MaxSize: 1}, factory)

	ctx := context.Background()
	func() {
		defer func() { recover() }()
		_ = p.WithConnection(ctx, func(_ context.Context, _ connpool.Connection) error {
			panic("boom")
		})
	}()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), factory.Calls(), "connection must have been returned to idle, not leaked")
	p.Release(ctx, conn)
}
