package csp

import (
	"sync"
	"time"
)

// cond is a condition variable whose waits can time out. Waiters and
// broadcasters must hold mu.
type cond struct {
	mu     sync.Mutex
	signal chan struct{}
}

func newCond() *cond {
	return &cond{signal: make(chan struct{})}
}

// broadcast wakes every waiter
func (c *cond) broadcast() {
	close(c.signal)
	c.signal = make(chan struct{})
}

// wait releases mu until the next broadcast or until d elapses. It reports
// false on timeout.
func (c *cond) wait(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	ch := c.signal
	c.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()

	woken := true
	select {
	case <-ch:
	case <-t.C:
		woken = false
	}
	c.mu.Lock()
	return woken
}

// waitFor waits until ready holds or d elapses and returns ready's final value
func (c *cond) waitFor(ready func() bool, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for !ready() {
		if !c.wait(time.Until(deadline)) {
			return ready()
		}
	}
	return true
}
