package buffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

func newRing[T any](t *testing.T, opts ...Option[T]) *RingBuffer[T] {
	t.Helper()
	rb, err := NewRingBuffer[T](opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rb.Close() })
	return rb
}

// TestBufferInterface verifies RingBuffer satisfies Buffer
func TestBufferInterface(t *testing.T) {
	var buf Buffer[int] = newRing[int](t)

	if buf.Length() != DefaultLength {
		t.Errorf("Expected length %d, got %d", DefaultLength, buf.Length())
	}
	if !buf.Empty() {
		t.Error("Expected buffer to be empty initially")
	}
	if buf.Full() {
		t.Error("Expected buffer not to be full initially")
	}
	if buf.Writable() != DefaultLength || buf.Readable() != 0 {
		t.Errorf("unexpected writable/readable %d/%d", buf.Writable(), buf.Readable())
	}
}

func TestRingBuffer_RejectPolicyCapacity(t *testing.T) {
	for _, n := range []int{1, 2, 5, 16} {
		t.Run(fmt.Sprintf("length_%d", n), func(t *testing.T) {
			rb := newRing(t, WithLength[int](n), WithOverflowPolicy[int](DropNewest))

			for i := 0; i < n; i++ {
				require.Equal(t, StatusOK, rb.Write(i, 0), "write %d", i)
			}
			assert.True(t, rb.Full())
			assert.Equal(t, StatusFull, rb.Write(n, 0))

			for i := 0; i < n; i++ {
				v, st := rb.Read(0)
				require.Equal(t, StatusOK, st)
				assert.Equal(t, i, v)
			}
			_, st := rb.Read(0)
			assert.Equal(t, StatusEmpty, st)
			assert.Equal(t, int64(1), rb.Stats().Overflows())
		})
	}
}

func TestRingBuffer_OverwritePolicy(t *testing.T) {
	var dropped []string
	rb := newRing(t,
		WithLength[string](3),
		WithDropCallback(func(item string) { dropped = append(dropped, item) }),
	)

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		require.Equal(t, StatusOK, rb.Write(s, 0))
	}

	assert.Equal(t, []string{"a", "b"}, dropped)
	assert.Equal(t, int64(2), rb.Stats().Drops())

	var got []string
	for !rb.Empty() {
		v, st := rb.Read(0)
		require.Equal(t, StatusOK, st)
		got = append(got, v)
	}
	assert.Equal(t, []string{"c", "d", "e"}, got)
}

func TestRingBuffer_ReadBack(t *testing.T) {
	rb := newRing(t, WithUnderflowPolicy[int](ReadBack))

	_, st := rb.Read(0)
	assert.Equal(t, StatusEmpty, st, "nothing read yet")

	require.Equal(t, StatusOK, rb.Write(7, 0))
	v, st := rb.Read(0)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, 7, v)

	v, st = rb.Read(0)
	assert.Equal(t, StatusOK, st)
	assert.Equal(t, 7, v)
}

func TestRingBuffer_PutGetAdvance(t *testing.T) {
	rb := newRing(t, WithLength[int](2), WithOverflowPolicy[int](DropNewest))

	require.Equal(t, StatusOK, rb.Put(10))
	assert.True(t, rb.Empty(), "put does not advance")

	_, st := rb.Get()
	assert.Equal(t, StatusEmpty, st)

	require.Equal(t, StatusOK, rb.AdvanceWptr(1))
	v, st := rb.Get()
	require.Equal(t, StatusOK, st)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, rb.Readable(), "get does not advance")

	require.Equal(t, StatusOK, rb.AdvanceRptr(1))
	assert.True(t, rb.Empty())

	assert.Equal(t, StatusPreconditionNotMet, rb.AdvanceRptr(1))
	assert.Equal(t, StatusPreconditionNotMet, rb.AdvanceWptr(3))
	assert.Equal(t, StatusPreconditionNotMet, rb.AdvanceWptr(-1))

	require.Equal(t, StatusOK, rb.AdvanceWptr(2))
	assert.True(t, rb.Full())
	assert.Equal(t, StatusFull, rb.Put(99))

	require.Equal(t, StatusOK, rb.AdvanceRptr(2))
	require.Equal(t, StatusOK, rb.AdvanceRptr(-1), "rewind one")
	assert.Equal(t, 1, rb.Readable())
}

func TestRingBuffer_BlockingWriteTimeout(t *testing.T) {
	rb := newRing(t, WithLength[int](1), WithOverflowPolicy[int](Block))
	require.Equal(t, StatusOK, rb.Write(1, 0))

	start := time.Now()
	st := rb.Write(2, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, StatusTimeout, st)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int64(1), rb.Stats().Timeouts())
}

func TestRingBuffer_BlockingWriteUnblocksOnRead(t *testing.T) {
	rb := newRing(t, WithLength[int](2), WithOverflowPolicy[int](Block))
	_ = rb.Write(1, 0)
	_ = rb.Write(2, 0)

	var wg sync.WaitGroup
	var writeStatus Status
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeStatus = rb.Write(3, 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)

	v, st := rb.Read(0)
	if st != StatusOK || v != 1 {
		t.Errorf("Expected to read 1, got %d (%s)", v, st)
	}

	wg.Wait()
	assert.Equal(t, StatusOK, writeStatus)
	assert.Equal(t, 2, rb.Readable())
}

func TestRingBuffer_BlockingReadTimeoutAndWake(t *testing.T) {
	rb := newRing(t, WithUnderflowPolicy[int](BlockEmpty))

	_, st := rb.Read(50 * time.Millisecond)
	assert.Equal(t, StatusTimeout, st)

	done := make(chan Status, 1)
	go func() {
		_, st := rb.Read(2 * time.Second)
		done <- st
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StatusOK, rb.Write(5, 0))

	select {
	case st := <-done:
		assert.Equal(t, StatusOK, st)
	case <-time.After(time.Second):
		t.Fatal("blocked read was not woken by write")
	}
}

func TestRingBuffer_CloseWakesWaiters(t *testing.T) {
	rb, err := NewRingBuffer[int](WithUnderflowPolicy[int](BlockEmpty))
	require.NoError(t, err)

	done := make(chan Status, 1)
	go func() {
		_, st := rb.Read(0)
		done <- st
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, rb.Close())
	require.NoError(t, rb.Close())

	select {
	case st := <-done:
		assert.Equal(t, StatusError, st)
	case <-time.After(time.Second):
		t.Fatal("close did not wake reader")
	}

	assert.Equal(t, StatusError, rb.Write(1, 0))
}

func TestRingBuffer_Init(t *testing.T) {
	rb := newRing[int](t)
	rb.Init(properties.Properties{
		"length":            "4",
		"write.full_policy": "do_nothing",
		"write.timeout":     "0.2",
		"read.empty_policy": "block",
		"read.timeout":      "30ms",
	})

	assert.Equal(t, 4, rb.Length())
	assert.Equal(t, DropNewest, rb.opts.overflowPolicy)
	assert.Equal(t, BlockEmpty, rb.opts.underflowPolicy)
	assert.Equal(t, 200*time.Millisecond, rb.opts.writeTimeout)

	start := time.Now()
	_, st := rb.Read(UseDefault)
	assert.Equal(t, StatusTimeout, st)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	rb.Init(properties.Properties{"length": "-3", "write.full_policy": "explode"})
	assert.Equal(t, 4, rb.Length(), "invalid length ignored")
	assert.Equal(t, DropOldest, rb.opts.overflowPolicy, "unknown policy falls back")
}

func TestRingBuffer_SetLengthAndReset(t *testing.T) {
	rb := newRing(t, WithLength[int](2))

	assert.Equal(t, StatusOK, rb.SetLength(5))
	assert.Equal(t, 5, rb.Length())
	assert.Equal(t, StatusNotSupported, rb.SetLength(0))

	_ = rb.Write(1, 0)
	assert.Equal(t, StatusNotSupported, rb.SetLength(3), "cannot resize with queued data")

	assert.Equal(t, StatusOK, rb.Reset())
	assert.True(t, rb.Empty())
	assert.Equal(t, StatusOK, rb.SetLength(3))
}

func TestRingBuffer_Ordering(t *testing.T) {
	rb := newRing(t, WithLength[int](64), WithOverflowPolicy[int](Block))

	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			rb.Write(i, 0)
		}
	}()

	for i := 0; i < n; i++ {
		var v int
		var st Status
		for {
			v, st = rb.Read(0)
			if st == StatusOK {
				break
			}
			time.Sleep(time.Millisecond)
		}
		require.Equal(t, i, v)
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "BUFFER_OK", StatusOK.String())
	assert.Equal(t, "BUFFER_FULL", StatusFull.String())
	assert.Equal(t, "BUFFER_EMPTY", StatusEmpty.String())
	assert.Equal(t, "TIMEOUT", StatusTimeout.String())
	assert.Equal(t, "PRECONDITION_NOT_MET", StatusPreconditionNotMet.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
}

func TestParsePolicies(t *testing.T) {
	p, ok := ParseOverflowPolicy(" Block ")
	assert.True(t, ok)
	assert.Equal(t, Block, p)
	assert.Equal(t, "do_nothing", DropNewest.String())

	u, ok := ParseUnderflowPolicy("readback")
	assert.True(t, ok)
	assert.Equal(t, ReadBack, u)

	_, ok = ParseUnderflowPolicy("")
	assert.False(t, ok)
}

func TestRingBuffer_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	rb, err := NewRingBuffer[int](
		WithLength[int](2),
		WithMetrics[int](reg, "conn-1"),
		WithOverflowPolicy[int](DropNewest),
	)
	require.NoError(t, err)

	rb.Write(1, 0)
	rb.Write(2, 0)
	rb.Write(3, 0)
	rb.Read(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(rb.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(rb.metrics.reads))
	assert.Equal(t, 1.0, testutil.ToFloat64(rb.metrics.overflows))
	assert.Equal(t, 0.5, testutil.ToFloat64(rb.metrics.utilization))

	_, err = NewRingBuffer[int](WithMetrics[int](reg, "conn-1"))
	assert.Error(t, err, "duplicate metrics must fail")

	require.NoError(t, rb.Close())
	_, err = NewRingBuffer[int](WithMetrics[int](reg, "conn-1"))
	assert.NoError(t, err, "close unregisters metrics")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry[[]byte]()
	require.NoError(t, reg.Add(RingBufferName, RingBufferFactory[[]byte](nil)))
	assert.Error(t, reg.Add(RingBufferName, RingBufferFactory[[]byte](nil)))

	assert.True(t, reg.Has(RingBufferName))
	assert.Equal(t, []string{RingBufferName}, reg.Names())

	buf, err := reg.Create(RingBufferName, "conn")
	require.NoError(t, err)
	assert.Equal(t, DefaultLength, buf.Length())

	_, err = reg.Create("double_buffer", "conn")
	assert.Error(t, err)
}
