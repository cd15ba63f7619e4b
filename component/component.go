package component

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/fsm"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
)

// Profile describes a component and its ports
type Profile struct {
	Name     string         `json:"name"`
	Instance string         `json:"instance"`
	State    string         `json:"state"`
	Ports    []port.Profile `json:"ports"`
}

// Option configures a Component
type Option func(*options)

type options struct {
	logger     *slog.Logger
	nc         *nats.Conn
	instance   string
	metrics    *metric.Metrics
	states     []fsm.State
	selector   fsm.Selector
	runTimeout time.Duration
}

// WithLogger sets the component logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogPublisher publishes lifecycle logs on nc under the given instance name
func WithLogPublisher(nc *nats.Conn, instance string) Option {
	return func(o *options) {
		o.nc = nc
		o.instance = instance
	}
}

// WithMetrics records state changes and failures
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMachine gives the component a state machine. The component observes
// every hook of the machine; while ACTIVE each Execute runs one machine
// event taken from sel, waiting up to timeout.
func WithMachine(states []fsm.State, sel fsm.Selector, timeout time.Duration) Option {
	return func(o *options) {
		o.states = states
		o.selector = sel
		o.runTimeout = timeout
	}
}

// Component runs Logic through the CREATED, INACTIVE, ACTIVE and ERROR
// lifecycle. Logic callbacks run with the component's operation lock held
// and must not call lifecycle operations on their own component.
type Component struct {
	name      string
	logic     Logic
	logger    *slog.Logger
	log       *Logger
	metrics   *metric.Metrics
	listeners *Listeners

	opMu      sync.Mutex
	state     atomic.Int32
	finalized bool
	ec        ECID

	portsMu sync.RWMutex
	ports   []port.Port

	machine    *fsm.Machine
	selector   fsm.Selector
	runTimeout time.Duration
}

var _ fsm.Observer = (*Component)(nil)

// New creates a component in the CREATED state
func New(name string, logic Logic, opts ...Option) (*Component, error) {
	if err := ValidateComponentName(name); err != nil {
		return nil, errors.Wrap(err, "Component", "New", "name validation")
	}
	if logic == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Component", "New", "logic validation")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", name)

	c := &Component{
		name:       name,
		logic:      logic,
		logger:     logger,
		log:        NewLogger(name, o.instance, o.nc, o.logger),
		metrics:    o.metrics,
		listeners:  &Listeners{},
		selector:   o.selector,
		runTimeout: o.runTimeout,
	}
	if len(o.states) > 0 {
		m, err := fsm.NewMachine(o.states, fsm.WithObserver(c), fsm.WithLogger(logger))
		if err != nil {
			return nil, errors.Wrap(err, "Component", "New", "state machine")
		}
		c.machine = m
	}
	c.metrics.RecordComponentState(name, int(StateCreated))
	return c, nil
}

// Name returns the component name
func (c *Component) Name() string { return c.name }

// State returns the current lifecycle state
func (c *Component) State() State { return State(c.state.Load()) }

// Listeners returns the component's action and state machine listeners
func (c *Component) Listeners() *Listeners { return c.listeners }

// Machine returns the component's state machine, or nil
func (c *Component) Machine() *fsm.Machine { return c.machine }

// ExecutionContextID returns the id of the attached execution context
func (c *Component) ExecutionContextID() ECID {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.ec
}

func (c *Component) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.metrics.RecordComponentState(c.name, int(s))
	c.log.Info(fmt.Sprintf("State changed from %s", prev), s)
}

// run brackets one Logic action with its pre and post listeners
func (c *Component) run(a Action, ec ECID, fn func() error) (err error) {
	c.listeners.notifyPre(a, ec)
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("%s panicked: %v", a, r), "Component", a.String(), "logic call")
		}
		c.listeners.notifyPost(a, ec, err)
	}()
	return fn()
}

func (c *Component) precondition(method string, want ...State) error {
	if c.finalized {
		return errors.WrapFatal(errors.ErrShuttingDown, "Component", method, "finalized check")
	}
	if s := c.State(); !slices.Contains(want, s) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s in state %s", errors.ErrInvalidState, method, s),
			"Component", method, "state check")
	}
	return nil
}

// Initialize moves a CREATED component to INACTIVE. On failure the
// component stays CREATED.
func (c *Component) Initialize() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Initialize", StateCreated); err != nil {
		return err
	}
	if err := c.run(ActionInitialize, c.ec, c.logic.OnInitialize); err != nil {
		c.fail("Initialize", err)
		return errors.Wrap(err, "Component", "Initialize", "OnInitialize")
	}
	if c.machine != nil {
		if err := c.machine.Start(); err != nil {
			return errors.Wrap(err, "Component", "Initialize", "state machine start")
		}
	}
	c.setState(StateInactive)
	return nil
}

// Finalize releases the component: every port is disconnected and later
// operations fail. An ACTIVE component must be deactivated first.
func (c *Component) Finalize() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Finalize", StateCreated, StateInactive, StateError); err != nil {
		return err
	}
	err := c.run(ActionFinalize, c.ec, c.logic.OnFinalize)
	for _, p := range c.Ports() {
		p.DisconnectAll()
	}
	if c.machine != nil {
		c.machine.Close()
	}
	c.finalized = true
	c.log.Info("Component finalized", c.State())
	if err != nil {
		return errors.Wrap(err, "Component", "Finalize", "OnFinalize")
	}
	return nil
}

// Activate moves an INACTIVE component to ACTIVE and resumes its ports.
// A failing OnActivated leaves the component in ERROR.
func (c *Component) Activate() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Activate", StateInactive); err != nil {
		return err
	}
	for _, p := range c.Ports() {
		p.Activate()
	}
	if err := c.run(ActionActivated, c.ec, func() error { return c.logic.OnActivated(c.ec) }); err != nil {
		c.fail("Activate", err)
		c.setState(StateError)
		return errors.Wrap(err, "Component", "Activate", "OnActivated")
	}
	c.setState(StateActive)
	return nil
}

// Deactivate moves an ACTIVE component to INACTIVE and pauses its ports
func (c *Component) Deactivate() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Deactivate", StateActive); err != nil {
		return err
	}
	err := c.run(ActionDeactivated, c.ec, func() error { return c.logic.OnDeactivated(c.ec) })
	for _, p := range c.Ports() {
		p.Deactivate()
	}
	if err != nil {
		c.fail("Deactivate", err)
		c.setState(StateError)
		return errors.Wrap(err, "Component", "Deactivate", "OnDeactivated")
	}
	c.setState(StateInactive)
	return nil
}

// Reset moves an ERROR component back to INACTIVE. On failure the
// component stays in ERROR.
func (c *Component) Reset() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Reset", StateError); err != nil {
		return err
	}
	if err := c.run(ActionReset, c.ec, func() error { return c.logic.OnReset(c.ec) }); err != nil {
		c.fail("Reset", err)
		return errors.Wrap(err, "Component", "Reset", "OnReset")
	}
	c.setState(StateInactive)
	return nil
}

// Error moves an ACTIVE component to ERROR, running OnAborting
func (c *Component) Error() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if err := c.precondition("Error", StateActive); err != nil {
		return err
	}
	c.abort()
	return nil
}

func (c *Component) abort() {
	if err := c.run(ActionAborting, c.ec, func() error { return c.logic.OnAborting(c.ec) }); err != nil {
		c.fail("Aborting", err)
	}
	for _, p := range c.Ports() {
		p.Deactivate()
	}
	c.setState(StateError)
}

// Execute runs one execution cycle. An ACTIVE component runs OnExecute,
// one state machine event when it has a machine, then OnStateUpdate; any
// failure moves it to ERROR. A component in ERROR runs OnError. Other
// states do nothing.
func (c *Component) Execute() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.finalized {
		return nil
	}
	ec := c.ec
	switch c.State() {
	case StateActive:
		err := c.run(ActionExecute, ec, func() error { return c.logic.OnExecute(ec) })
		if err == nil && c.machine != nil {
			_, err = c.machine.RunEvent(c.selector, c.runTimeout)
		}
		if err == nil {
			err = c.run(ActionStateUpdate, ec, func() error { return c.logic.OnStateUpdate(ec) })
		}
		if err != nil {
			c.fail("Execute", err)
			c.abort()
			return errors.Wrap(err, "Component", "Execute", "OnExecute")
		}
	case StateError:
		if err := c.run(ActionError, ec, func() error { return c.logic.OnError(ec) }); err != nil {
			c.fail("Error", err)
		}
	}
	return nil
}

func (c *Component) fail(action string, err error) {
	c.metrics.RecordError(c.name, action)
	c.log.Error(action+" failed", c.State(), err)
}

// attach binds the component to an execution context
func (c *Component) attach(ec ECID) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.ec = ec
}

// startup runs OnStartup for an execution context that starts
func (c *Component) startup(ec ECID) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.finalized {
		return
	}
	if err := c.run(ActionStartup, ec, func() error { return c.logic.OnStartup(ec) }); err != nil {
		c.fail("Startup", err)
	}
}

// shutdown runs OnShutdown for an execution context that stops
func (c *Component) shutdown(ec ECID) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.finalized {
		return
	}
	if err := c.run(ActionShutdown, ec, func() error { return c.logic.OnShutdown(ec) }); err != nil {
		c.fail("Shutdown", err)
	}
}

// rateChanged runs OnRateChanged for an execution context whose rate changed
func (c *Component) rateChanged(ec ECID) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.finalized {
		return
	}
	if err := c.run(ActionRateChanged, ec, func() error { return c.logic.OnRateChanged(ec) }); err != nil {
		c.fail("RateChanged", err)
	}
}

// AddPort adds a port. Port names are unique within a component.
func (c *Component) AddPort(p port.Port) error {
	c.portsMu.Lock()
	defer c.portsMu.Unlock()
	for _, existing := range c.ports {
		if existing.Name() == p.Name() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: port %q", errors.ErrDuplicateName, p.Name()),
				"Component", "AddPort", "name check")
		}
	}
	c.ports = append(c.ports, p)
	return nil
}

// RemovePort disconnects and removes the named port
func (c *Component) RemovePort(name string) bool {
	c.portsMu.Lock()
	i := slices.IndexFunc(c.ports, func(p port.Port) bool { return p.Name() == name })
	if i < 0 {
		c.portsMu.Unlock()
		return false
	}
	p := c.ports[i]
	c.ports = slices.Delete(c.ports, i, i+1)
	c.portsMu.Unlock()
	p.DisconnectAll()
	return true
}

// Port returns the named port
func (c *Component) Port(name string) (port.Port, bool) {
	c.portsMu.RLock()
	defer c.portsMu.RUnlock()
	for _, p := range c.ports {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Ports returns the ports in the order they were added
func (c *Component) Ports() []port.Port {
	c.portsMu.RLock()
	defer c.portsMu.RUnlock()
	return slices.Clone(c.ports)
}

// Profile returns the component profile
func (c *Component) Profile() Profile {
	ports := c.Ports()
	prof := Profile{
		Name:     c.name,
		Instance: c.log.instance,
		State:    c.State().String(),
		Ports:    make([]port.Profile, 0, len(ports)),
	}
	for _, p := range ports {
		prof.Ports = append(prof.Ports, p.Profile())
	}
	return prof
}

// PreOnFsmInit implements fsm.Observer
func (c *Component) PreOnFsmInit(state string) { c.listeners.notifyPreFsm(FsmInit, state) }

// PreOnFsmEntry implements fsm.Observer
func (c *Component) PreOnFsmEntry(state string) { c.listeners.notifyPreFsm(FsmEntry, state) }

// PreOnFsmExit implements fsm.Observer
func (c *Component) PreOnFsmExit(state string) { c.listeners.notifyPreFsm(FsmExit, state) }

// PreOnFsmStateChange implements fsm.Observer
func (c *Component) PreOnFsmStateChange(state string) {
	c.listeners.notifyPreFsm(FsmStateChange, state)
}

// PostOnFsmInit implements fsm.Observer
func (c *Component) PostOnFsmInit(state string, err error) {
	c.listeners.notifyPostFsm(FsmInit, state, err)
}

// PostOnFsmEntry implements fsm.Observer
func (c *Component) PostOnFsmEntry(state string, err error) {
	c.listeners.notifyPostFsm(FsmEntry, state, err)
}

// PostOnFsmExit implements fsm.Observer
func (c *Component) PostOnFsmExit(state string, err error) {
	c.listeners.notifyPostFsm(FsmExit, state, err)
}

// PostOnFsmStateChange implements fsm.Observer
func (c *Component) PostOnFsmStateChange(state string, err error) {
	c.listeners.notifyPostFsm(FsmStateChange, state, err)
	c.logger.Debug("State machine changed state", "fsm_state", state, "error", err)
}
