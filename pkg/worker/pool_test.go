package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
	panic bool
}

func TestNewPool_Defaults(t *testing.T) {
	noop := func(context.Context, testWork) error { return nil }

	pool := NewPool(5, 100, noop)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 4, pool.workers)
	assert.Equal(t, 256, pool.queueSize)

	assert.Panics(t, func() { NewPool[testWork](1, 1, nil) })
}

func TestPool_Lifecycle(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(context.Context, testWork) error {
		processed.Add(1)
		return nil
	})

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)
	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(testWork{id: i}))
	}
	require.NoError(t, pool.Stop(5*time.Second))
	assert.Equal(t, int64(5), processed.Load())

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	var dropped int
	for i := 0; i < 5; i++ {
		if errors.Is(pool.Submit(testWork{id: i}), ErrQueueFull) {
			dropped++
		}
	}
	close(release)
	require.NoError(t, pool.Stop(5*time.Second))

	assert.GreaterOrEqual(t, dropped, 3)
	assert.Equal(t, int64(dropped), pool.Stats().Dropped)
}

func TestPool_FailuresAndPanics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(2, 10, func(_ context.Context, w testWork) error {
		if w.panic {
			panic("boom")
		}
		if w.fail {
			return errors.New("simulated error")
		}
		return nil
	}, WithMetricsRegistry[testWork](registry, "test_pool"))
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Submit(testWork{id: 2, fail: true}))
	require.NoError(t, pool.Submit(testWork{id: 3, panic: true}))
	require.NoError(t, pool.Submit(testWork{id: 4}))
	require.NoError(t, pool.Stop(5*time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(4), stats.Submitted)
	assert.Equal(t, int64(4), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, 2.0, testutil.ToFloat64(pool.metrics.failed))
	assert.True(t, registry.Registered("worker_pool", "test_pool_dropped_total"))
}

func TestPool_SubmitKeyedOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]int{}
	pool := NewPool(4, 512, func(_ context.Context, w testWork) error {
		time.Sleep(w.delay)
		mu.Lock()
		key := fmt.Sprintf("k%d", w.id%3)
		seen[key] = append(seen[key], w.id)
		mu.Unlock()
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	for i := 0; i < 150; i++ {
		w := testWork{id: i, delay: time.Duration(i%4) * 50 * time.Microsecond}
		require.NoError(t, pool.SubmitKeyed(fmt.Sprintf("k%d", i%3), w))
	}
	require.NoError(t, pool.Stop(5*time.Second))

	for key, ids := range seen {
		assert.Len(t, ids, 50, key)
		assert.True(t, sort.IntsAreSorted(ids), "%s processed out of order: %v", key, ids)
	}
	assert.Equal(t, int64(150), pool.Stats().Processed)
}

func TestPool_SubmitKeyedLifecycle(t *testing.T) {
	pool := NewPool(2, 1, func(context.Context, testWork) error { return nil })
	assert.ErrorIs(t, pool.SubmitKeyed("a", testWork{}), ErrPoolNotStarted)
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.SubmitKeyed("a", testWork{}), ErrPoolStopped)
}

func TestPool_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(1, 10, func(context.Context, testWork) error { return nil })
	require.NoError(t, pool.Start(ctx))
	cancel()

	require.NoError(t, pool.Stop(time.Second))
}
