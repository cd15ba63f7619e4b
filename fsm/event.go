package fsm

import (
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Event is dispatched to the handler registered under Name by the current
// state or its nearest ancestor
type Event struct {
	Name string
	Data any
}

// Readable yields an input event when data is available
type Readable interface {
	ReadEvent() (Event, bool)
}

// Writable performs one pending output write
type Writable interface {
	WriteOut() bool
}

// Selector waits up to timeout for a readable input or a writable output,
// preferring input. Both are nil when neither side became ready.
type Selector interface {
	Select(timeout time.Duration) (Readable, Writable)
}

// Action reports what RunEvent did
type Action int

const (
	ActionNone Action = iota
	ActionInput
	ActionOutput
)

func (a Action) String() string {
	switch a {
	case ActionInput:
		return "input"
	case ActionOutput:
		return "output"
	default:
		return "none"
	}
}

// Post queues ev for a later RunEvents or RunEvent call
func (m *Machine) Post(ev Event) error {
	if err := m.events.Put(ev); err != nil {
		return errors.Wrap(err, "Machine", "Post", "queue event")
	}
	return nil
}

// Pending returns the number of posted events
func (m *Machine) Pending() int {
	return int(m.events.Len())
}

// Dispatch runs the handler for ev, searching from the current state upward.
// It reports false when no active state handles the event.
func (m *Machine) Dispatch(ev Event) (bool, error) {
	m.mu.Lock()
	var h Handler
	for n := m.current; n != "" && h == nil; n = m.states[n].Parent {
		h = m.states[n].Handlers[ev.Name]
	}
	m.mu.Unlock()

	if h == nil {
		m.logger.Debug("Event not handled", "event", ev.Name, "state", m.Current())
		return false, nil
	}
	return true, callHandler(h, m, ev)
}

// RunEvents drains the posted events in order
func (m *Machine) RunEvents() error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	for m.events.Len() > 0 {
		ev, ok := m.next()
		if !ok {
			return nil
		}
		if _, err := m.Dispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RunEvent performs at most one action. A posted event is dispatched first;
// otherwise sel is asked for a readable input or a writable output, waiting
// up to timeout. ActionNone means nothing was ready.
func (m *Machine) RunEvent(sel Selector, timeout time.Duration) (Action, error) {
	m.drainMu.Lock()
	if m.events.Len() > 0 {
		ev, ok := m.next()
		m.drainMu.Unlock()
		if ok {
			_, err := m.Dispatch(ev)
			return ActionInput, err
		}
	} else {
		m.drainMu.Unlock()
	}

	if sel == nil {
		return ActionNone, nil
	}

	in, out := sel.Select(timeout)
	switch {
	case in != nil:
		ev, ok := in.ReadEvent()
		if !ok {
			return ActionNone, nil
		}
		_, err := m.Dispatch(ev)
		return ActionInput, err
	case out != nil:
		if !out.WriteOut() {
			return ActionNone, nil
		}
		return ActionOutput, nil
	}
	return ActionNone, nil
}

// Close discards posted events; later Post calls fail
func (m *Machine) Close() {
	m.events.Dispose()
}

func (m *Machine) next() (Event, bool) {
	items, err := m.events.Get(1)
	if err != nil || len(items) == 0 {
		return Event{}, false
	}
	ev, ok := items[0].(Event)
	return ev, ok
}

func callHandler(h Handler, m *Machine, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r, "Machine", "Dispatch")
		}
	}()
	return h(m, ev)
}
