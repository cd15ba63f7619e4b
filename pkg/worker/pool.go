package worker

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateStopped
)

// Pool runs processor for every submitted item on a fixed set of workers
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error
	logger    *slog.Logger
	metrics   *poolMetrics

	queue chan T
	lanes []chan T // one per worker, for SubmitKeyed
	wg    sync.WaitGroup

	mu    sync.Mutex
	state poolState

	submitted, processed, failed, dropped atomic.Int64

	registry *metric.MetricsRegistry
	prefix   string
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool metrics under prefix
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) { p.registry, p.prefix = registry, prefix }
}

// WithLogger sets the logger used for processor failures
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(p *Pool[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool; non-positive sizes fall back to 4 workers and a
// queue of 256. A nil processor panics.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		logger:    slog.Default(),
		queue:     make(chan T, queueSize),
		lanes:     make([]chan T, workers),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan T, queueSize)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "worker-pool")
	if p.registry != nil && p.prefix != "" {
		p.metrics = newPoolMetrics(p.registry, p.prefix, p.logger)
	}
	return p
}

// Start launches the workers. They exit when ctx ends or once Stop has
// drained the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return ErrPoolAlreadyStarted
	}
	p.state = stateRunning

	p.wg.Add(p.workers)
	for _, lane := range p.lanes {
		go p.loop(ctx, lane)
	}
	return nil
}

// Submit queues work for any free worker without blocking. A full queue
// returns ErrQueueFull.
func (p *Pool[T]) Submit(work T) error {
	return p.enqueue(p.queue, work)
}

// SubmitKeyed queues work on the lane of key. Every item with the same key
// is processed by the same worker in submission order. Each lane holds up to
// the queue size; a full lane returns ErrQueueFull.
func (p *Pool[T]) SubmitKeyed(key string, work T) error {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.enqueue(p.lanes[h.Sum32()%uint32(len(p.lanes))], work)
}

func (p *Pool[T]) enqueue(q chan T, work T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateIdle:
		return ErrPoolNotStarted
	case stateStopped:
		return ErrPoolStopped
	}

	select {
	case q <- work:
		p.submitted.Add(1)
		p.metrics.accepted(p.depth())
		return nil
	default:
		p.dropped.Add(1)
		p.metrics.refused()
		return ErrQueueFull
	}
}

// depth counts queued items across the shared queue and every lane
func (p *Pool[T]) depth() int {
	n := len(p.queue)
	for _, lane := range p.lanes {
		n += len(lane)
	}
	return n
}

// Stop closes the queue and waits up to timeout for queued work to drain.
// Stopping an idle or stopped pool is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = stateStopped
	close(p.queue)
	for _, lane := range p.lanes {
		close(lane)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns a snapshot of the pool counters
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: p.depth(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// loop serves the shared queue and its own lane until both are closed
// and drained, or ctx ends.
func (p *Pool[T]) loop(ctx context.Context, lane chan T) {
	defer p.wg.Done()
	shared := p.queue
	for shared != nil || lane != nil {
		var (
			work T
			ok   bool
		)
		select {
		case <-ctx.Done():
			return
		case work, ok = <-shared:
			if !ok {
				shared = nil
				continue
			}
		case work, ok = <-lane:
			if !ok {
				lane = nil
				continue
			}
		}
		start := time.Now()
		err := p.safeProcess(ctx, work)
		p.processed.Add(1)
		if err != nil {
			p.failed.Add(1)
			p.logger.Debug("Work item failed", "error", err)
		}
		p.metrics.done(p.depth(), time.Since(start).Seconds(), err)
	}
}

func (p *Pool[T]) safeProcess(ctx context.Context, work T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r, "worker.Pool", "process")
		}
	}()
	return p.processor(ctx, work)
}
