package csp

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/fsm"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/retry"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
)

var errChannelBusy = errors.New("no reader accepted the value")

// probeBackoff paces re-probing of push peers while a write waits
var probeBackoff = retry.Config{
	MaxAttempts:  math.MaxInt32,
	InitialDelay: time.Millisecond,
	MaxDelay:     50 * time.Millisecond,
	Multiplier:   2,
}

// OutPort is a CSP channel out-port. Values go to the first push peer that
// accepts them, or are handed to a pull reader. Any OnConnected option given
// to NewOutPort is replaced by the port's own hook.
type OutPort[T any] struct {
	*port.OutPort[T]

	mgr      *Manager
	logger   *slog.Logger
	c        *cond
	timeout  time.Duration
	syncWait bool

	// guarded by c.mu
	next     T
	slot     T
	staged   bool
	reading  bool
	waiting  bool
	searched []string
	retry    []string
	target   *connector.OutPortPushConnector
}

var _ fsm.Writable = (*OutPort[int])(nil)

// NewOutPort creates a CSP out-port and registers it with mgr, which may be nil
func NewOutPort[T any](name string, mgr *Manager, deps port.Deps, opts ...port.Option) *OutPort[T] {
	p := &OutPort[T]{mgr: mgr, c: newCond()}
	p.OutPort = port.NewOutPort[T](name, deps, append(opts, port.OnConnected(p.attach))...)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "csp-outport", "port", name)

	props := p.Properties()
	p.timeout = channelTimeout(props)
	p.syncWait = props.Bool(KeySyncWait, true)

	if mgr != nil {
		mgr.addOut(p)
	}
	return p
}

func (p *OutPort[T]) attach(c connector.Connector) {
	if pc, ok := c.(*connector.OutPortPullConnector); ok {
		pc.SetIsReadableListener(p.isReadable)
		pc.SetReadListener(func() ([]byte, buffer.Status) { return p.read(pc) })
	}
}

// isReadable answers a pull reader's probe. A true answer promises the
// reader the next value handed over.
func (p *OutPort[T]) isReadable(c *connector.OutPortPullConnector, retry bool) bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()

	if retry && !slices.Contains(p.searched, c.ID()) {
		return false
	}
	if p.mgr != nil && p.mgr.Notify(nil, p) {
		p.reading = true
		return true
	}
	if p.reading && !p.c.waitFor(func() bool { return !p.reading }, p.timeout) {
		p.logger.Warn("Promised read never arrived", "connector_id", c.ID())
		p.reading = false
	}
	if !p.staged {
		return false
	}
	p.reading = true
	return true
}

func (p *OutPort[T]) read(c *connector.OutPortPullConnector) ([]byte, buffer.Status) {
	p.c.mu.Lock()
	if !p.staged {
		p.waiting = true
		p.c.waitFor(func() bool { return p.staged }, p.timeout)
		p.waiting = false
	}
	p.reading = false
	if !p.staged {
		p.c.broadcast()
		p.c.mu.Unlock()
		return nil, buffer.StatusTimeout
	}
	v := p.slot
	var zero T
	p.slot, p.staged = zero, false
	p.c.broadcast()
	p.c.mu.Unlock()

	data, st := c.SerializeData(v)
	if st != dataport.PortOK {
		p.logger.Warn("Serialization failed", "connector_id", c.ID(), "status", st.String())
		return nil, buffer.StatusError
	}
	return data, buffer.StatusOK
}

// handover stages v for a pull reader and waits for it to be taken
func (p *OutPort[T]) handover(v T) bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.slot, p.staged = v, true
	p.c.broadcast()
	if p.c.waitFor(func() bool { return !p.staged }, p.timeout) {
		return true
	}
	var zero T
	p.slot, p.staged = zero, false
	return false
}

// Write sends v on the channel, waiting up to channel_timeout for a peer
// to accept it.
func (p *OutPort[T]) Write(v T) dataport.Status {
	return p.WriteFunc(v, p.send)
}

func (p *OutPort[T]) send(v T) dataport.Status {
	pushes := p.pushConnectors()
	pulls := p.hasPull()
	if len(pushes) == 0 && !pulls {
		return dataport.PreconditionNotMet
	}

	var refused []*connector.OutPortPushConnector
	for _, c := range pushes {
		if c.IsWritable(false) {
			return p.deliver(c, v)
		}
		refused = append(refused, c)
	}
	if !p.syncWait {
		for _, c := range refused {
			if c.IsWritable(true) {
				return p.deliver(c, v)
			}
		}
	}

	if pulls {
		if p.handover(v) {
			return dataport.PortOK
		}
		p.logger.Debug("Channel write timed out")
		return dataport.SendTimeout
	}
	return p.awaitPush(pushes, v)
}

// awaitPush re-probes push peers until one accepts or the channel times out
func (p *OutPort[T]) awaitPush(pushes []*connector.OutPortPushConnector, v T) dataport.Status {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	st := dataport.SendTimeout
	err := retry.Do(ctx, probeBackoff, func() error {
		for _, c := range pushes {
			if c.IsWritable(false) {
				st = p.deliver(c, v)
				return nil
			}
		}
		return errChannelBusy
	})
	if err != nil {
		p.logger.Debug("Channel write timed out", "error", err)
		return dataport.SendTimeout
	}
	return st
}

func (p *OutPort[T]) deliver(c *connector.OutPortPushConnector, v T) dataport.Status {
	st := c.Write(v)
	if st == dataport.ConnectionLost {
		p.logger.Warn("Connection lost, removing connector", "connector_id", c.ID())
		p.Disconnect(c.ID())
	}
	return st
}

func (p *OutPort[T]) pushConnectors() []*connector.OutPortPushConnector {
	var out []*connector.OutPortPushConnector
	for _, c := range p.Connectors() {
		if pc, ok := c.(*connector.OutPortPushConnector); ok {
			out = append(out, pc)
		}
	}
	return out
}

func (p *OutPort[T]) hasPull() bool {
	for _, c := range p.Connectors() {
		if _, ok := c.(*connector.OutPortPullConnector); ok {
			return true
		}
	}
	return false
}

// SetValue sets the value the next WriteOut sends
func (p *OutPort[T]) SetValue(v T) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.next = v
}

// WriteOut implements fsm.Writable. It sends the value set with SetValue
// to the peer found by the last selection.
func (p *OutPort[T]) WriteOut() bool {
	p.c.mu.Lock()
	v, target := p.next, p.target
	p.target = nil
	p.c.mu.Unlock()

	st := p.WriteFunc(v, func(v T) dataport.Status {
		if target != nil {
			return p.deliver(target, v)
		}
		p.c.mu.Lock()
		reader := p.waiting || p.reading
		p.c.mu.Unlock()
		if reader {
			if p.handover(v) {
				return dataport.PortOK
			}
			return dataport.SendTimeout
		}
		return p.send(v)
	})
	return st == dataport.PortOK
}

func (p *OutPort[T]) syncMode() bool { return p.syncWait }

func (p *OutPort[T]) selectReady() bool {
	p.c.mu.Lock()
	p.searched, p.retry, p.target = nil, nil, nil
	ready := p.waiting || p.reading
	p.c.mu.Unlock()
	if ready {
		return true
	}

	var searched, pending []string
	for _, c := range p.Connectors() {
		switch c := c.(type) {
		case *connector.OutPortPushConnector:
			if c.IsWritable(false) {
				p.c.mu.Lock()
				p.target = c
				p.c.mu.Unlock()
				return true
			}
			pending = append(pending, c.ID())
		case *connector.OutPortPullConnector:
			searched = append(searched, c.ID())
		}
	}
	p.c.mu.Lock()
	p.searched, p.retry = searched, pending
	p.c.mu.Unlock()
	return false
}

func (p *OutPort[T]) reselect() bool {
	p.c.mu.Lock()
	pending := slices.Clone(p.retry)
	ready := p.waiting || p.reading
	p.c.mu.Unlock()
	if ready {
		return true
	}
	for _, c := range p.pushConnectors() {
		if !slices.Contains(pending, c.ID()) {
			continue
		}
		if c.IsWritable(true) {
			p.c.mu.Lock()
			p.target = c
			p.c.mu.Unlock()
			return true
		}
	}
	return false
}
