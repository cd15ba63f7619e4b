package natsclient

import (
	"sync"
	"time"
)

const initialBackoff = time.Second

// breaker counts connection failures. Every threshold failures it trips,
// handing out the current backoff and doubling it up to max for the next
// trip. The Client owns the open/closed state.
type breaker struct {
	mu        sync.Mutex
	threshold int32
	max       time.Duration

	total   int32
	round   int32
	backoff time.Duration
	last    time.Time
}

func newBreaker() *breaker {
	return &breaker{threshold: 5, max: time.Minute, backoff: initialBackoff}
}

// fail records one failure. It reports whether the breaker tripped and, if
// so, how long the circuit should stay open.
func (b *breaker) fail() (tripped bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.round++
	b.last = time.Now()
	if b.round < b.threshold {
		return false, 0
	}

	wait = b.backoff
	b.backoff = min(2*b.backoff, b.max)
	b.round = 0
	return true, wait
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total, b.round = 0, 0
	b.backoff = initialBackoff
	b.last = time.Time{}
}

func (b *breaker) snapshot() (failures int32, backoff time.Duration, last time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.backoff, b.last
}
