package component

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Action names a lifecycle action listeners can observe
type Action int

// Lifecycle actions
const (
	ActionInitialize Action = iota
	ActionFinalize
	ActionStartup
	ActionShutdown
	ActionActivated
	ActionDeactivated
	ActionAborting
	ActionError
	ActionReset
	ActionExecute
	ActionStateUpdate
	ActionRateChanged
)

var actionNames = [...]string{
	"ON_INITIALIZE", "ON_FINALIZE", "ON_STARTUP", "ON_SHUTDOWN",
	"ON_ACTIVATED", "ON_DEACTIVATED", "ON_ABORTING", "ON_ERROR",
	"ON_RESET", "ON_EXECUTE", "ON_STATE_UPDATE", "ON_RATE_CHANGED",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "UNKNOWN"
	}
	return actionNames[a]
}

// FsmAction names a state machine hook listeners can observe
type FsmAction int

// State machine hooks
const (
	FsmInit FsmAction = iota
	FsmEntry
	FsmExit
	FsmStateChange
)

func (a FsmAction) String() string {
	switch a {
	case FsmInit:
		return "ON_INIT"
	case FsmEntry:
		return "ON_ENTRY"
	case FsmExit:
		return "ON_EXIT"
	case FsmStateChange:
		return "ON_STATE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// PreActionListener runs before an action with the execution context id
type PreActionListener func(ec ECID)

// PostActionListener runs after an action with its result
type PostActionListener func(ec ECID, err error)

// PreFsmListener runs before a state machine hook
type PreFsmListener func(state string)

// PostFsmListener runs after a state machine hook with its result
type PostFsmListener func(state string, err error)

// ListenerID identifies a registered listener for removal
type ListenerID uint64

type registered[L any] struct {
	id ListenerID
	fn L
}

// listenerSet keeps listeners per key in registration order
type listenerSet[K comparable, L any] struct {
	mu    sync.RWMutex
	byKey map[K][]registered[L]
}

func (s *listenerSet[K, L]) add(id ListenerID, key K, fn L) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byKey == nil {
		s.byKey = make(map[K][]registered[L])
	}
	s.byKey[key] = append(s.byKey[key], registered[L]{id: id, fn: fn})
}

func (s *listenerSet[K, L]) remove(key K, id ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byKey[key]
	i := slices.IndexFunc(list, func(r registered[L]) bool { return r.id == id })
	if i < 0 {
		return false
	}
	s.byKey[key] = slices.Delete(list, i, i+1)
	return true
}

func (s *listenerSet[K, L]) snapshot(key K) []L {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byKey[key]
	out := make([]L, len(list))
	for i, r := range list {
		out[i] = r.fn
	}
	return out
}

// Listeners holds the action and state machine listeners of one component
type Listeners struct {
	next    atomic.Uint64
	pre     listenerSet[Action, PreActionListener]
	post    listenerSet[Action, PostActionListener]
	preFsm  listenerSet[FsmAction, PreFsmListener]
	postFsm listenerSet[FsmAction, PostFsmListener]
}

func (l *Listeners) id() ListenerID { return ListenerID(l.next.Add(1)) }

// AddPreAction registers fn to run before action a
func (l *Listeners) AddPreAction(a Action, fn PreActionListener) ListenerID {
	id := l.id()
	l.pre.add(id, a, fn)
	return id
}

// AddPostAction registers fn to run after action a
func (l *Listeners) AddPostAction(a Action, fn PostActionListener) ListenerID {
	id := l.id()
	l.post.add(id, a, fn)
	return id
}

// AddPreFsm registers fn to run before state machine hook a
func (l *Listeners) AddPreFsm(a FsmAction, fn PreFsmListener) ListenerID {
	id := l.id()
	l.preFsm.add(id, a, fn)
	return id
}

// AddPostFsm registers fn to run after state machine hook a
func (l *Listeners) AddPostFsm(a FsmAction, fn PostFsmListener) ListenerID {
	id := l.id()
	l.postFsm.add(id, a, fn)
	return id
}

// RemovePreAction removes a listener added with AddPreAction
func (l *Listeners) RemovePreAction(a Action, id ListenerID) bool { return l.pre.remove(a, id) }

// RemovePostAction removes a listener added with AddPostAction
func (l *Listeners) RemovePostAction(a Action, id ListenerID) bool { return l.post.remove(a, id) }

// RemovePreFsm removes a listener added with AddPreFsm
func (l *Listeners) RemovePreFsm(a FsmAction, id ListenerID) bool { return l.preFsm.remove(a, id) }

// RemovePostFsm removes a listener added with AddPostFsm
func (l *Listeners) RemovePostFsm(a FsmAction, id ListenerID) bool { return l.postFsm.remove(a, id) }

func (l *Listeners) notifyPre(a Action, ec ECID) {
	for _, fn := range l.pre.snapshot(a) {
		fn(ec)
	}
}

func (l *Listeners) notifyPost(a Action, ec ECID, err error) {
	for _, fn := range l.post.snapshot(a) {
		fn(ec, err)
	}
}

func (l *Listeners) notifyPreFsm(a FsmAction, state string) {
	for _, fn := range l.preFsm.snapshot(a) {
		fn(state)
	}
}

func (l *Listeners) notifyPostFsm(a FsmAction, state string, err error) {
	for _, fn := range l.postFsm.snapshot(a) {
		fn(state, err)
	}
}
