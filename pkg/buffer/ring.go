package buffer

import (
	"sync"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// RingBuffer is the "ring_buffer" Buffer implementation.
type RingBuffer[T any] struct {
	mu      sync.Mutex
	items   []T
	length  int
	wpos    int // next write slot
	rpos    int // next read slot
	fill    int
	hasRead bool
	closed  bool

	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]

	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// NewRingBuffer creates a ring buffer. Returns an error if metrics
// registration fails when metrics are requested.
func NewRingBuffer[T any](options ...Option[T]) (*RingBuffer[T], error) {
	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "RingBuffer", "NewRingBuffer", "metrics registration")
		}
	}

	rb := &RingBuffer[T]{
		items:   make([]T, opts.length),
		length:  opts.length,
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}
	rb.notEmpty = sync.NewCond(&rb.mu)
	rb.notFull = sync.NewCond(&rb.mu)

	return rb, nil
}

// Init applies buffer properties. Malformed values are logged and ignored.
func (rb *RingBuffer[T]) Init(props properties.Properties) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	logger := rb.opts.logger.With("component", "RingBuffer")

	if v, ok := props.Lookup("length"); ok {
		n := props.Int("length", 0)
		switch {
		case n <= 0:
			logger.Warn("Ignoring invalid buffer length", "length", v)
		case rb.fill > 0:
			logger.Warn("Buffer length cannot change while data is queued", "length", n)
		default:
			rb.resizeLocked(n)
		}
	}

	if v, ok := props.Lookup("write.full_policy"); ok {
		policy, valid := ParseOverflowPolicy(v)
		if !valid {
			logger.Warn("Unknown write.full_policy, using overwrite", "value", v)
		}
		rb.opts.overflowPolicy = policy
	}
	if _, ok := props.Lookup("write.timeout"); ok {
		rb.opts.writeTimeout = props.Duration("write.timeout", rb.opts.writeTimeout)
	}

	if v, ok := props.Lookup("read.empty_policy"); ok {
		policy, valid := ParseUnderflowPolicy(v)
		if !valid {
			logger.Warn("Unknown read.empty_policy, using do_nothing", "value", v)
		}
		rb.opts.underflowPolicy = policy
	}
	if _, ok := props.Lookup("read.timeout"); ok {
		rb.opts.readTimeout = props.Duration("read.timeout", rb.opts.readTimeout)
	}
}

// Length returns the capacity
func (rb *RingBuffer[T]) Length() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// SetLength resizes an empty buffer. A non-empty buffer or a non-positive
// length yields StatusNotSupported.
func (rb *RingBuffer[T]) SetLength(n int) Status {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n <= 0 || rb.fill > 0 {
		return StatusNotSupported
	}
	rb.resizeLocked(n)
	return StatusOK
}

func (rb *RingBuffer[T]) resizeLocked(n int) {
	rb.items = make([]T, n)
	rb.length = n
	rb.wpos, rb.rpos, rb.fill = 0, 0, 0
	rb.hasRead = false
	rb.notFull.Broadcast()
}

// Reset drops every item
func (rb *RingBuffer[T]) Reset() Status {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.wpos, rb.rpos, rb.fill = 0, 0, 0
	rb.hasRead = false

	rb.stats.UpdateSize(0)
	if rb.metrics != nil {
		rb.metrics.updateSize(0, rb.length)
	}
	rb.notFull.Broadcast()
	return StatusOK
}

// waitLocked waits on cond until ready holds, the buffer closes or timeout
// elapses. A zero timeout waits without bound. Must hold rb.mu.
func (rb *RingBuffer[T]) waitLocked(cond *sync.Cond, ready func() bool, timeout time.Duration) bool {
	if ready() {
		return true
	}

	timedOut := false
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			rb.mu.Lock()
			timedOut = true
			cond.Broadcast()
			rb.mu.Unlock()
		})
		defer timer.Stop()
	}

	for !ready() && !rb.closed && !timedOut {
		cond.Wait()
	}
	return ready() && !rb.closed
}

// Write stores v and advances the write cursor. A negative timeout uses the
// configured write.timeout.
func (rb *RingBuffer[T]) Write(v T, timeout time.Duration) Status {
	rb.mu.Lock()

	if rb.closed {
		rb.mu.Unlock()
		return StatusError
	}
	if timeout < 0 {
		timeout = rb.opts.writeTimeout
	}

	var dropped T
	haveDropped := false

	if rb.fill == rb.length {
		switch rb.opts.overflowPolicy {
		case DropOldest:
			dropped = rb.items[rb.rpos]
			haveDropped = true
			rb.rpos = (rb.rpos + 1) % rb.length
			rb.fill--

			rb.stats.Overflow()
			rb.stats.Drop()
			if rb.metrics != nil {
				rb.metrics.recordOverflow()
				rb.metrics.recordDrop()
			}

		case DropNewest:
			rb.stats.Overflow()
			if rb.metrics != nil {
				rb.metrics.recordOverflow()
			}
			rb.mu.Unlock()
			return StatusFull

		case Block:
			if !rb.waitLocked(rb.notFull, func() bool { return rb.fill < rb.length }, timeout) {
				closed := rb.closed
				if !closed {
					rb.stats.Timeout()
					if rb.metrics != nil {
						rb.metrics.recordTimeout()
					}
				}
				rb.mu.Unlock()
				if closed {
					return StatusError
				}
				return StatusTimeout
			}
		}
	}

	rb.items[rb.wpos] = v
	rb.wpos = (rb.wpos + 1) % rb.length
	rb.fill++

	rb.stats.Write()
	rb.stats.UpdateSize(int64(rb.fill))
	if rb.metrics != nil {
		rb.metrics.recordWrite(rb.fill, rb.length)
	}
	rb.notEmpty.Broadcast()
	rb.mu.Unlock()

	if haveDropped && rb.opts.dropCallback != nil {
		rb.opts.dropCallback(dropped)
	}
	return StatusOK
}

// Read returns the item at the read cursor and advances it. A negative timeout
// uses the configured read.timeout.
func (rb *RingBuffer[T]) Read(timeout time.Duration) (T, Status) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.closed {
		return zero, StatusError
	}
	if timeout < 0 {
		timeout = rb.opts.readTimeout
	}

	if rb.fill == 0 {
		switch rb.opts.underflowPolicy {
		case ReturnEmpty:
			return zero, StatusEmpty

		case ReadBack:
			if !rb.hasRead {
				return zero, StatusEmpty
			}
			prev := (rb.rpos - 1 + rb.length) % rb.length
			rb.stats.Read()
			return rb.items[prev], StatusOK

		case BlockEmpty:
			if !rb.waitLocked(rb.notEmpty, func() bool { return rb.fill > 0 }, timeout) {
				if rb.closed {
					return zero, StatusError
				}
				rb.stats.Timeout()
				if rb.metrics != nil {
					rb.metrics.recordTimeout()
				}
				return zero, StatusTimeout
			}
		}
	}

	item := rb.items[rb.rpos]
	rb.rpos = (rb.rpos + 1) % rb.length
	rb.fill--
	rb.hasRead = true

	rb.stats.Read()
	rb.stats.UpdateSize(int64(rb.fill))
	if rb.metrics != nil {
		rb.metrics.recordRead(rb.fill, rb.length)
	}
	rb.notFull.Broadcast()

	return item, StatusOK
}

// Put stores v at the write cursor without advancing it. When the buffer is
// full, DropOldest discards the oldest item first; other policies report StatusFull.
func (rb *RingBuffer[T]) Put(v T) Status {
	rb.mu.Lock()

	if rb.closed {
		rb.mu.Unlock()
		return StatusError
	}

	var dropped T
	haveDropped := false
	if rb.fill == rb.length {
		if rb.opts.overflowPolicy != DropOldest {
			rb.mu.Unlock()
			return StatusFull
		}
		dropped = rb.items[rb.rpos]
		haveDropped = true
		rb.rpos = (rb.rpos + 1) % rb.length
		rb.fill--
		rb.stats.Overflow()
		rb.stats.Drop()
		if rb.metrics != nil {
			rb.metrics.recordOverflow()
			rb.metrics.recordDrop()
		}
	}

	rb.items[rb.wpos] = v
	rb.mu.Unlock()

	if haveDropped && rb.opts.dropCallback != nil {
		rb.opts.dropCallback(dropped)
	}
	return StatusOK
}

// Get returns the item at the read cursor without advancing it.
func (rb *RingBuffer[T]) Get() (T, Status) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.closed {
		return zero, StatusError
	}
	if rb.fill == 0 {
		return zero, StatusEmpty
	}

	rb.stats.Peek()
	if rb.metrics != nil {
		rb.metrics.recordPeek()
	}
	return rb.items[rb.rpos], StatusOK
}

// AdvanceWptr moves the write cursor. Moving past the read cursor yields
// StatusPreconditionNotMet.
func (rb *RingBuffer[T]) AdvanceWptr(n int) Status {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if (n > 0 && n > rb.length-rb.fill) || (n < 0 && -n > rb.fill) {
		return StatusPreconditionNotMet
	}

	rb.wpos = ((rb.wpos+n)%rb.length + rb.length) % rb.length
	rb.fill += n

	if n > 0 {
		for i := 0; i < n; i++ {
			rb.stats.Write()
		}
		rb.notEmpty.Broadcast()
	} else if n < 0 {
		rb.notFull.Broadcast()
	}
	rb.stats.UpdateSize(int64(rb.fill))
	if rb.metrics != nil {
		rb.metrics.updateSize(rb.fill, rb.length)
	}
	return StatusOK
}

// AdvanceRptr moves the read cursor. Moving past the write cursor yields
// StatusPreconditionNotMet.
func (rb *RingBuffer[T]) AdvanceRptr(n int) Status {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if (n > 0 && n > rb.fill) || (n < 0 && -n > rb.length-rb.fill) {
		return StatusPreconditionNotMet
	}

	rb.rpos = ((rb.rpos+n)%rb.length + rb.length) % rb.length
	rb.fill -= n

	if n > 0 {
		rb.hasRead = true
		for i := 0; i < n; i++ {
			rb.stats.Read()
		}
		rb.notFull.Broadcast()
	} else if n < 0 {
		rb.notEmpty.Broadcast()
	}
	rb.stats.UpdateSize(int64(rb.fill))
	if rb.metrics != nil {
		rb.metrics.updateSize(rb.fill, rb.length)
	}
	return StatusOK
}

// Writable returns the number of free slots
func (rb *RingBuffer[T]) Writable() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length - rb.fill
}

// Readable returns the number of unread items
func (rb *RingBuffer[T]) Readable() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.fill
}

// Full reports whether no slot is free
func (rb *RingBuffer[T]) Full() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.fill == rb.length
}

// Empty reports whether no item is unread
func (rb *RingBuffer[T]) Empty() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.fill == 0
}

// Stats returns buffer statistics
func (rb *RingBuffer[T]) Stats() *Statistics {
	return rb.stats
}

// Close wakes blocked callers and unregisters metrics. Safe to call twice.
func (rb *RingBuffer[T]) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return nil
	}
	rb.closed = true

	if rb.metrics != nil {
		rb.metrics.unregister()
	}

	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
	return nil
}
