package component

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
)

// ExecutionContext drives its components at a fixed rate from a periodic
// task on the runtime timer.
type ExecutionContext struct {
	id     ECID
	timer  *timer.Timer
	logger *slog.Logger

	mu    sync.Mutex
	rate  float64
	task  *timer.PeriodicFunction
	comps []*Component
}

// NewExecutionContext creates a stopped execution context running at rate Hz
func NewExecutionContext(id ECID, t *timer.Timer, rate float64, logger *slog.Logger) (*ExecutionContext, error) {
	if t == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "ExecutionContext", "New", "timer validation")
	}
	if err := checkRate(rate); err != nil {
		return nil, errors.Wrap(err, "ExecutionContext", "New", "rate validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionContext{
		id:     id,
		timer:  t,
		rate:   rate,
		logger: logger.With("execution_context", int(id)),
	}, nil
}

func checkRate(rate float64) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: rate %v", errors.ErrInvalidConfig, rate),
			"ExecutionContext", "checkRate", "rate check")
	}
	return nil
}

func period(rate float64) time.Duration {
	return time.Duration(float64(time.Second) / rate)
}

// ID returns the execution context id
func (e *ExecutionContext) ID() ECID { return e.id }

// Rate returns the execution rate in Hz
func (e *ExecutionContext) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// IsRunning reports whether the context is started
func (e *ExecutionContext) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task != nil
}

// Components returns the attached components in attach order
func (e *ExecutionContext) Components() []*Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.comps)
}

// AddComponent attaches c. A running context runs its OnStartup at once.
func (e *ExecutionContext) AddComponent(c *Component) error {
	e.mu.Lock()
	if slices.Contains(e.comps, c) {
		e.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %q", errors.ErrDuplicateName, c.Name()),
			"ExecutionContext", "AddComponent", "duplicate check")
	}
	e.comps = append(e.comps, c)
	running := e.task != nil
	e.mu.Unlock()

	c.attach(e.id)
	if running {
		c.startup(e.id)
	}
	return nil
}

// RemoveComponent detaches c. An ACTIVE component must be deactivated first.
func (e *ExecutionContext) RemoveComponent(c *Component) error {
	if c.State() == StateActive {
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %q is active", errors.ErrInvalidState, c.Name()),
			"ExecutionContext", "RemoveComponent", "state check")
	}
	e.mu.Lock()
	i := slices.Index(e.comps, c)
	if i < 0 {
		e.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("component %q is not attached", c.Name()),
			"ExecutionContext", "RemoveComponent", "lookup")
	}
	e.comps = slices.Delete(e.comps, i, i+1)
	running := e.task != nil
	e.mu.Unlock()

	if running {
		c.shutdown(e.id)
	}
	return nil
}

// Start registers the periodic task and runs OnStartup on every component
func (e *ExecutionContext) Start() error {
	e.mu.Lock()
	if e.task != nil {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "ExecutionContext", "Start", "running check")
	}
	comps := slices.Clone(e.comps)
	e.task = e.timer.Periodic(e.tick, period(e.rate))
	e.mu.Unlock()

	for _, c := range comps {
		c.startup(e.id)
	}
	e.logger.Info("Execution context started", "rate", e.Rate(), "components", len(comps))
	return nil
}

// Stop removes the periodic task and runs OnShutdown on every component
func (e *ExecutionContext) Stop() error {
	e.mu.Lock()
	if e.task == nil {
		e.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "ExecutionContext", "Stop", "running check")
	}
	e.task.Stop()
	e.task = nil
	comps := slices.Clone(e.comps)
	e.mu.Unlock()

	for _, c := range comps {
		c.shutdown(e.id)
	}
	e.logger.Info("Execution context stopped")
	return nil
}

// SetRate changes the execution rate and runs OnRateChanged on every component
func (e *ExecutionContext) SetRate(rate float64) error {
	if err := checkRate(rate); err != nil {
		return errors.Wrap(err, "ExecutionContext", "SetRate", "rate validation")
	}
	e.mu.Lock()
	e.rate = rate
	if e.task != nil {
		e.task.Stop()
		e.task = e.timer.Periodic(e.tick, period(rate))
	}
	comps := slices.Clone(e.comps)
	e.mu.Unlock()

	for _, c := range comps {
		c.rateChanged(e.id)
	}
	return nil
}

// ActivateComponent activates an attached component
func (e *ExecutionContext) ActivateComponent(c *Component) error {
	if err := e.owns(c, "ActivateComponent"); err != nil {
		return err
	}
	return c.Activate()
}

// DeactivateComponent deactivates an attached component
func (e *ExecutionContext) DeactivateComponent(c *Component) error {
	if err := e.owns(c, "DeactivateComponent"); err != nil {
		return err
	}
	return c.Deactivate()
}

// ResetComponent resets an attached component out of ERROR
func (e *ExecutionContext) ResetComponent(c *Component) error {
	if err := e.owns(c, "ResetComponent"); err != nil {
		return err
	}
	return c.Reset()
}

func (e *ExecutionContext) owns(c *Component, method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slices.Contains(e.comps, c) {
		return errors.WrapInvalid(
			fmt.Errorf("component %q is not attached", c.Name()),
			"ExecutionContext", method, "lookup")
	}
	return nil
}

func (e *ExecutionContext) tick() {
	for _, c := range e.Components() {
		if err := c.Execute(); err != nil {
			e.logger.Warn("Component execution failed", "component", c.Name(), "error", err)
		}
	}
}
