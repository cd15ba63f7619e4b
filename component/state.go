package component

// State represents the lifecycle state of a component
type State int32

const (
	// StateCreated indicates the component exists but is not initialized
	StateCreated State = iota
	// StateInactive indicates the component is initialized and idle
	StateInactive
	// StateActive indicates the component is executing
	StateActive
	// StateError indicates the component failed while active and awaits a reset
	StateError
)

// String returns the operator-facing name of the state. INACTIVE and
// ACTIVE are reported as INACTIVATE and ACTIVATE.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInactive:
		return "INACTIVATE"
	case StateActive:
		return "ACTIVATE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ECID identifies an execution context within a component
type ECID int

// Logic is the behaviour a component runs at each lifecycle action
type Logic interface {
	OnInitialize() error
	OnFinalize() error
	OnStartup(ec ECID) error
	OnShutdown(ec ECID) error
	OnActivated(ec ECID) error
	OnDeactivated(ec ECID) error
	OnAborting(ec ECID) error
	OnError(ec ECID) error
	OnReset(ec ECID) error
	OnExecute(ec ECID) error
	OnStateUpdate(ec ECID) error
	OnRateChanged(ec ECID) error
}

// NopLogic implements every Logic action as a no-op. Embed it to override
// only the actions a component needs.
type NopLogic struct{}

func (NopLogic) OnInitialize() error { return nil }
func (NopLogic) OnFinalize() error { return nil }
func (NopLogic) OnStartup(ECID) error { return nil }
func (NopLogic) OnShutdown(ECID) error { return nil }
func (NopLogic) OnActivated(ECID) error { return nil }
func (NopLogic) OnDeactivated(ECID) error { return nil }
func (NopLogic) OnAborting(ECID) error { return nil }
func (NopLogic) OnError(ECID) error { return nil }
func (NopLogic) OnReset(ECID) error { return nil }
func (NopLogic) OnExecute(ECID) error { return nil }
func (NopLogic) OnStateUpdate(ECID) error { return nil }
func (NopLogic) OnRateChanged(ECID) error { return nil }
