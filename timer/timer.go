// Package timer drives delayed and periodic callbacks from a single tick source.
//
// A Timer does not measure time itself: every Tick advances all tasks by the
// given interval. Run feeds it from a time.Ticker using the measured elapsed
// time between ticks.
package timer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// Task is advanced by the timer; it reports true once it should be removed
type Task interface {
	Tick(interval time.Duration) (expired bool)
}

// DelayedFunction fires once after its delay has elapsed
type DelayedFunction struct {
	fn      func()
	remains time.Duration
	stopped atomic.Bool
	mu      sync.Mutex
	call    func(func())
}

// Tick decrements the remaining delay and fires when it reaches zero
func (d *DelayedFunction) Tick(interval time.Duration) bool {
	if d.stopped.Load() {
		return true
	}
	d.mu.Lock()
	d.remains -= interval
	expired := d.remains <= 0
	d.mu.Unlock()

	if expired && !d.stopped.Swap(true) {
		d.call(d.fn)
	}
	return expired
}

// Stop cancels the function if it has not fired yet
func (d *DelayedFunction) Stop() {
	d.stopped.Store(true)
}

// PeriodicFunction fires every period until stopped
type PeriodicFunction struct {
	fn      func()
	period  time.Duration
	remains time.Duration
	stopped atomic.Bool
	mu      sync.Mutex
	call    func(func())
}

// Tick decrements the remaining time and fires once for every full period
// that has elapsed, re-arming after each firing.
func (p *PeriodicFunction) Tick(interval time.Duration) bool {
	if p.stopped.Load() {
		return true
	}

	p.mu.Lock()
	p.remains -= interval
	fires := 0
	if p.period <= 0 {
		fires = 1
		p.remains = 0
	} else {
		for p.remains <= 0 {
			fires++
			p.remains += p.period
		}
	}
	p.mu.Unlock()

	for i := 0; i < fires; i++ {
		if p.stopped.Load() {
			return true
		}
		p.call(p.fn)
	}
	return false
}

// Stop prevents any further firing. It is idempotent and safe to call from
// the function itself.
func (p *PeriodicFunction) Stop() {
	p.stopped.Store(true)
}

// Stopped reports whether Stop was called
func (p *PeriodicFunction) Stopped() bool {
	return p.stopped.Load()
}

// Period returns the configured period
func (p *PeriodicFunction) Period() time.Duration {
	return p.period
}

// Timer advances a set of tasks
type Timer struct {
	mu      sync.Mutex
	tasks   []Task
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Timer
type Option func(*Timer)

// WithLogger sets the logger used for panicking callbacks
func WithLogger(logger *slog.Logger) Option {
	return func(t *Timer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics counts ticks
func WithMetrics(m *metric.Metrics) Option {
	return func(t *Timer) {
		t.metrics = m
	}
}

// New creates an empty timer
func New(opts ...Option) *Timer {
	t := &Timer{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "timer")
	return t
}

// Add registers a task. Tasks are removed by identity, so implementations
// should be pointer types.
func (t *Timer) Add(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = append(t.tasks, task)
}

// Delay registers fn to run once after delay
func (t *Timer) Delay(fn func(), delay time.Duration) *DelayedFunction {
	d := &DelayedFunction{fn: fn, remains: delay, call: t.safeCall}
	t.Add(d)
	return d
}

// Periodic registers fn to run every period
func (t *Timer) Periodic(fn func(), period time.Duration) *PeriodicFunction {
	p := &PeriodicFunction{fn: fn, period: period, remains: period, call: t.safeCall}
	t.Add(p)
	return p
}

// Len returns the number of registered tasks
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Tick advances every task by interval. Tasks are ticked from a snapshot so
// callbacks may register or stop tasks; expired tasks are removed afterwards.
func (t *Timer) Tick(interval time.Duration) {
	t.mu.Lock()
	tasks := make([]Task, len(t.tasks))
	copy(tasks, t.tasks)
	t.mu.Unlock()

	t.metrics.RecordTimerTick()

	var expired []Task
	for _, task := range tasks {
		if task.Tick(interval) {
			expired = append(expired, task)
		}
	}
	if len(expired) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, done := range expired {
		for i, task := range t.tasks {
			if task == done {
				t.tasks = append(t.tasks[:i:i], t.tasks[i+1:]...)
				break
			}
		}
	}
}

// Run ticks the timer every interval with the measured elapsed time until ctx
// is cancelled.
func (t *Timer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			t.Tick(now.Sub(last))
			last = now
		}
	}
}

func (t *Timer) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Timer callback panicked", "panic", r)
		}
	}()
	fn()
}
