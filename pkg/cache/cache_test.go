package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

func TestNew_RejectsZeroCapacity(t *testing.T) {
	_, err := New(Config[int]{})
	assert.True(t, errors.IsInvalid(err))
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c, err := New(Config[int]{Capacity: 2, OnEvict: func(key string, _ int) {
		evicted = append(evicted, key)
	}})
	require.NoError(t, err)

	created, err := c.Set("a", 1)
	require.NoError(t, err)
	assert.True(t, created)
	_, _ = c.Set("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)
	_, _ = c.Set("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())

	created, err = c.Set("a", 10)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"a", "c"}, c.Keys())
	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	var dropped []string
	c, err := New(Config[string]{Capacity: 4, OnEvict: func(key, _ string) {
		dropped = append(dropped, key)
	}})
	require.NoError(t, err)
	for _, k := range []string{"x", "y", "z"} {
		_, err := c.Set(k, k)
		require.NoError(t, err)
	}

	ok, err := c.Delete("y")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete("y")
	require.NoError(t, err)
	assert.False(t, ok)

	c.Clear()
	assert.Zero(t, c.Size())
	assert.Empty(t, c.Keys())
	assert.ElementsMatch(t, []string{"y", "x", "z"}, dropped)

	_, err = c.Set("", "empty")
	assert.True(t, errors.IsInvalid(err))
	_, err = c.Delete("")
	assert.True(t, errors.IsInvalid(err))

	// Usable after Clear
	_, _ = c.Set("w", "w")
	assert.Equal(t, []string{"w"}, c.Keys())
}

func TestLRU_Statistics(t *testing.T) {
	c, err := New(Config[int]{Capacity: 1})
	require.NoError(t, err)

	_, _ = c.Get("missing")
	_, _ = c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Set("b", 2)

	s := c.Stats().Summary()
	assert.Equal(t, StatsSummary{
		Hits:        1,
		Misses:      1,
		Sets:        2,
		Evictions:   1,
		CurrentSize: 1,
		PeakSize:    1,
		HitRatio:    0.5,
	}, s)
}

func TestLRU_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	c, err := New(Config[int]{Capacity: 1, Registry: reg, Service: "objects"})
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	_, _ = c.Set("b", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.size))

	_, err = New(Config[int]{Capacity: 1, Registry: reg, Service: "objects"})
	assert.Error(t, err)

	plain, err := New(Config[int]{Capacity: 1, Registry: reg})
	require.NoError(t, err)
	assert.Nil(t, plain.metrics, "no service, no metrics")
}

func TestLRU_Concurrent(t *testing.T) {
	c, err := New(Config[int]{Capacity: 16})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", (g+i)%26)
				_, _ = c.Set(key, i)
				_, _ = c.Get(key)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 16)
	assert.Len(t, c.Keys(), c.Size())
}
