package fsm

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Machine runs a state table. Exactly one leaf state is current once Start
// has returned.
type Machine struct {
	mu       sync.Mutex
	states   map[string]*State
	top      string
	current  string
	started  bool
	observer Observer
	drainMu  sync.Mutex
	events   *queue.Queue
	logger   *slog.Logger
}

// Option configures a Machine
type Option func(*Machine)

// WithObserver brackets every hook with observer notifications
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observer = o
	}
}

// WithLogger sets the machine logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine validates the table and returns an unstarted machine. Exactly one
// state must have no parent.
func NewMachine(states []State, opts ...Option) (*Machine, error) {
	m := &Machine{
		states: make(map[string]*State, len(states)),
		events: queue.New(16),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "fsm")

	for i := range states {
		s := states[i]
		if s.Name == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("state %d has no name", i), "Machine", "NewMachine", "validate table")
		}
		if _, dup := m.states[s.Name]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: state %s", errors.ErrDuplicateName, s.Name),
				"Machine", "NewMachine", "validate table")
		}
		m.states[s.Name] = &s
		if s.Parent == "" {
			if m.top != "" {
				return nil, errors.WrapInvalid(fmt.Errorf("two top states: %s and %s", m.top, s.Name),
					"Machine", "NewMachine", "validate table")
			}
			m.top = s.Name
		}
	}
	if m.top == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("no top state"), "Machine", "NewMachine", "validate table")
	}

	for _, s := range m.states {
		if s.Parent != "" {
			if _, ok := m.states[s.Parent]; !ok {
				return nil, errors.WrapInvalid(fmt.Errorf("state %s: unknown parent %s", s.Name, s.Parent),
					"Machine", "NewMachine", "validate table")
			}
		}
		if s.Initial != "" {
			child, ok := m.states[s.Initial]
			if !ok || child.Parent != s.Name {
				return nil, errors.WrapInvalid(fmt.Errorf("state %s: initial %s is not a child", s.Name, s.Initial),
					"Machine", "NewMachine", "validate table")
			}
		}
		if err := m.checkCycle(s.Name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Machine) checkCycle(name string) error {
	seen := make(map[string]bool)
	for n := name; n != ""; n = m.states[n].Parent {
		if seen[n] {
			return errors.WrapInvalid(fmt.Errorf("parent cycle through %s", n), "Machine", "NewMachine", "validate table")
		}
		seen[n] = true
	}
	return nil
}

// Start enters the top state and follows the initial chain
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Machine", "Start", "start machine")
	}
	m.started = true

	var errs []error
	errs = append(errs, m.entry(m.top))
	m.current = m.top
	errs = append(errs, m.init(m.top))
	errs = append(errs, m.followInitial(m.top)...)
	return stderrors.Join(errs...)
}

// Current returns the active leaf state
func (m *Machine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsIn reports whether name is the current state or one of its ancestors
func (m *Machine) IsIn(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n := m.current; n != ""; n = m.states[n].Parent {
		if n == name {
			return true
		}
	}
	return false
}

// Transition moves the machine to target. Hook errors are joined and
// returned; the transition completes regardless. Hooks must not call
// Transition themselves; they may Post events instead.
func (m *Machine) Transition(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Machine", "Transition", "transition")
	}
	if _, ok := m.states[target]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: unknown state %s", errors.ErrInvalidState, target),
			"Machine", "Transition", "transition")
	}

	from := m.path(m.current)
	to := m.path(target)

	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}
	// A target on the current path is left and re-entered
	if common == len(to) {
		common--
	}

	var errs []error
	for i := len(from) - 1; i >= common; i-- {
		errs = append(errs, m.exit(from[i]))
	}
	for i := common; i < len(to); i++ {
		errs = append(errs, m.entry(to[i]))
		m.current = to[i]
	}
	errs = append(errs, m.init(target))
	errs = append(errs, m.followInitial(target)...)
	return stderrors.Join(errs...)
}

func (m *Machine) followInitial(name string) []error {
	var errs []error
	for s := m.states[name]; s.Initial != ""; s = m.states[s.Initial] {
		errs = append(errs, m.entry(s.Initial))
		m.current = s.Initial
		errs = append(errs, m.init(s.Initial))
	}
	return errs
}

// path returns the states from the top down to name
func (m *Machine) path(name string) []string {
	var rev []string
	for n := name; n != ""; n = m.states[n].Parent {
		rev = append(rev, n)
	}
	out := make([]string, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

func (m *Machine) entry(name string) error {
	s := m.states[name]
	if m.observer == nil {
		return call(s.OnEntry)
	}
	m.observer.PostOnFsmStateChange(name, nil)
	m.observer.PreOnFsmEntry(name)
	err := call(s.OnEntry)
	m.observer.PostOnFsmEntry(name, err)
	return err
}

func (m *Machine) init(name string) error {
	s := m.states[name]
	if m.observer == nil {
		return call(s.OnInit)
	}
	m.observer.PreOnFsmInit(name)
	err := call(s.OnInit)
	m.observer.PostOnFsmInit(name, err)
	return err
}

func (m *Machine) exit(name string) error {
	s := m.states[name]
	if m.observer == nil {
		return call(s.OnExit)
	}
	m.observer.PreOnFsmExit(name)
	err := call(s.OnExit)
	m.observer.PostOnFsmExit(name, err)
	m.observer.PreOnFsmStateChange(name)
	return err
}

func call(h Hook) (err error) {
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r, "Machine", "hook")
		}
	}()
	return h()
}
