// Package fsm implements hierarchical state machines described by an explicit
// state table.
//
// A transition exits the states being left innermost first, then enters the
// new states outermost first, then runs the target's init hook and follows
// its initial child chain. Every hook can be bracketed by an Observer, which
// is how a component watches its machine.
package fsm

// Hook is an entry, init or exit callback
type Hook func() error

// Handler reacts to a dispatched event while its state is active
type Handler func(m *Machine, ev Event) error

// State is one row of the state table
type State struct {
	Name string
	// Parent is empty only for the top state
	Parent string
	// Initial names the child entered after this state's init hook
	Initial  string
	OnEntry  Hook
	OnInit   Hook
	OnExit   Hook
	Handlers map[string]Handler
}

// Observer is notified around every hook invocation
type Observer interface {
	PreOnFsmInit(state string)
	PreOnFsmEntry(state string)
	PreOnFsmExit(state string)
	PreOnFsmStateChange(state string)
	PostOnFsmInit(state string, err error)
	PostOnFsmEntry(state string, err error)
	PostOnFsmExit(state string, err error)
	PostOnFsmStateChange(state string, err error)
}
