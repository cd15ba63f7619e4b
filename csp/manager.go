// Package csp implements CSP channel ports: in-ports and out-ports that hand
// data over as a rendezvous between writer and reader, and a Manager that
// lets one state machine wait on many of them at once.
//
// A CSP in-port either buffers accepted values (buffer.length > 0) or takes
// a value only while a reader is blocked on it (buffer.length = 0). Writers
// probe the in-port before sending; a refused probe leaves the value with
// the writer. Every wait is bounded by channel_timeout seconds.
//
// The Manager implements fsm.Selector, so a machine's RunEvent reads from
// the first in-port with data or writes to the first out-port with a
// reader.
package csp

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/fsm"
)

// member is what the Manager needs from a port
type member interface {
	Name() string
	// selectReady reports whether the port can act now
	selectReady() bool
	// reselect re-probes connectors the last selectReady found busy
	reselect() bool
	// syncMode ports are never re-probed
	syncMode() bool
}

type inMember interface {
	member
	fsm.Readable
}

type outMember interface {
	member
	fsm.Writable
}

// Manager selects among CSP ports
type Manager struct {
	logger *slog.Logger

	selectMu sync.Mutex

	portsMu sync.RWMutex
	ins     []inMember
	outs    []outMember

	c       *cond
	waiting bool
	in      fsm.Readable
	out     fsm.Writable
}

var _ fsm.Selector = (*Manager)(nil)

// NewManager creates an empty manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With("component", "csp-manager"),
		c:      newCond(),
	}
}

func (m *Manager) addIn(p inMember) {
	m.portsMu.Lock()
	defer m.portsMu.Unlock()
	m.ins = append(m.ins, p)
}

func (m *Manager) addOut(p outMember) {
	m.portsMu.Lock()
	defer m.portsMu.Unlock()
	m.outs = append(m.outs, p)
}

// Remove drops the ports with the given name
func (m *Manager) Remove(name string) {
	m.portsMu.Lock()
	defer m.portsMu.Unlock()
	m.ins = slices.DeleteFunc(m.ins, func(p inMember) bool { return p.Name() == name })
	m.outs = slices.DeleteFunc(m.outs, func(p outMember) bool { return p.Name() == name })
}

// Ports returns the names of the managed in-ports and out-ports
func (m *Manager) Ports() (ins, outs []string) {
	m.portsMu.RLock()
	defer m.portsMu.RUnlock()
	for _, p := range m.ins {
		ins = append(ins, p.Name())
	}
	for _, p := range m.outs {
		outs = append(outs, p.Name())
	}
	return ins, outs
}

// Select returns an in-port with data or an out-port with a waiting reader.
// In-ports are tried before out-ports. When nothing is ready Select waits
// up to timeout for a peer to Notify it; both results are nil if none does.
func (m *Manager) Select(timeout time.Duration) (fsm.Readable, fsm.Writable) {
	m.selectMu.Lock()
	defer m.selectMu.Unlock()

	m.portsMu.RLock()
	ins, outs := slices.Clone(m.ins), slices.Clone(m.outs)
	m.portsMu.RUnlock()

	for _, p := range ins {
		if p.selectReady() {
			return p, nil
		}
	}
	for _, p := range outs {
		if p.selectReady() {
			return nil, p
		}
	}
	for _, p := range ins {
		if !p.syncMode() && p.reselect() {
			return p, nil
		}
	}
	for _, p := range outs {
		if !p.syncMode() && p.reselect() {
			return nil, p
		}
	}

	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.waiting, m.in, m.out = true, nil, nil
	m.c.waitFor(func() bool { return !m.waiting }, timeout)
	m.waiting = false
	if m.in == nil && m.out == nil {
		return nil, nil
	}
	m.logger.Debug("Port selected by peer")
	return m.in, m.out
}

// Notify hands a ready port to a waiting Select. It reports false when no
// Select is waiting.
func (m *Manager) Notify(in fsm.Readable, out fsm.Writable) bool {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if !m.waiting {
		return false
	}
	m.waiting, m.in, m.out = false, in, out
	m.c.broadcast()
	return true
}
