package csp

import (
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/fsm"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// Property keys read by CSP ports
const (
	KeyChannelTimeout = "channel_timeout"
	KeySyncWait       = "csp.sync_wait"
)

// DefaultChannelTimeout bounds every channel wait unless channel_timeout is set
const DefaultChannelTimeout = 10 * time.Second

// pollInterval paces re-probing of pull connectors while a read waits
const pollInterval = 10 * time.Millisecond

func channelTimeout(props properties.Properties) time.Duration {
	secs := props.Float(KeyChannelTimeout, DefaultChannelTimeout.Seconds())
	if secs < 0 {
		return DefaultChannelTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

// InPort is a CSP channel in-port. Any OnConnected option given to
// NewInPort is replaced by the port's own hook.
type InPort[T any] struct {
	*port.InPort[T]

	mgr      *Manager
	logger   *slog.Logger
	c        *cond
	buf      *buffer.RingBuffer[T]
	zero     bool
	timeout  time.Duration
	syncWait bool

	// guarded by c.mu
	writing  bool
	reading  bool
	searched []string
	retry    []string
	source   connector.InPortConnector
}

var _ fsm.Readable = (*InPort[int])(nil)

// NewInPort creates a CSP in-port and registers it with mgr, which may be nil
func NewInPort[T any](name string, mgr *Manager, deps port.Deps, opts ...port.Option) (*InPort[T], error) {
	p := &InPort[T]{mgr: mgr, c: newCond()}
	p.InPort = port.NewInPort[T](name, deps, append(opts, port.OnConnected(p.attach))...)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger.With("component", "csp-inport", "port", name)

	props := p.Properties()
	p.timeout = channelTimeout(props)
	p.syncWait = props.Bool(KeySyncWait, false)

	length := props.Int("buffer.length", 8)
	if length <= 0 {
		p.zero = true
		length = 1
	}
	bufProps := props.Node("buffer").Clone()
	bufProps.Set("length", strconv.Itoa(length))
	buf, err := buffer.NewRingBuffer[T](buffer.WithLength[T](length), buffer.WithLogger[T](logger))
	if err != nil {
		return nil, err
	}
	buf.Init(bufProps)
	p.buf = buf

	if mgr != nil {
		mgr.addIn(p)
	}
	p.logger.Debug("CSP in-port created",
		"zero_mode", p.zero, "length", length, "channel_timeout", p.timeout, "sync_wait", p.syncWait)
	return p, nil
}

func (p *InPort[T]) attach(c connector.Connector) {
	if pc, ok := c.(*connector.InPortPushConnector); ok {
		pc.SetIsWritableListener(p.isWritable)
		pc.SetWriteListener(func(data []byte) buffer.Status { return p.write(pc, data) })
	}
}

// isWritable answers a writer's probe. A true answer reserves the channel
// until the matching write arrives.
func (p *InPort[T]) isWritable(c *connector.InPortPushConnector, retry bool) bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()

	if retry && !slices.Contains(p.searched, c.ID()) {
		return false
	}
	if p.mgr != nil && p.mgr.Notify(p, nil) {
		p.writing = true
		return true
	}
	if p.writing && !p.c.waitFor(func() bool { return !p.writing }, p.timeout) {
		p.logger.Warn("Reserved write never arrived", "connector_id", c.ID())
		p.writing = false
	}
	if p.zero {
		if p.reading && p.buf.Empty() {
			p.writing = true
			return true
		}
		return false
	}
	if p.buf.Full() {
		return false
	}
	p.writing = true
	return true
}

func (p *InPort[T]) write(c *connector.InPortPushConnector, data []byte) buffer.Status {
	var v T
	st := c.DeserializeData(data, &v)

	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.writing = false
	defer p.c.broadcast()
	if st != dataport.PortOK {
		p.logger.Warn("Dropping undecodable data", "connector_id", c.ID(), "status", st.String())
		return buffer.StatusError
	}
	return p.buf.Write(v, 0)
}

// take pops a buffered value; c.mu must be held
func (p *InPort[T]) take() (T, bool) {
	var zero T
	if p.buf.Empty() {
		return zero, false
	}
	v, st := p.buf.Read(0)
	if st != buffer.StatusOK {
		return zero, false
	}
	p.c.broadcast()
	return v, true
}

// Read takes the next value, waiting up to channel_timeout for a writer.
// Buffered values are returned first, then values pulled from pull
// connectors.
func (p *InPort[T]) Read() (T, dataport.Status) {
	return p.ReadFunc(p.receive)
}

func (p *InPort[T]) receive() (T, dataport.Status) {
	var zero T
	if len(p.Connectors()) == 0 {
		return zero, dataport.PreconditionNotMet
	}

	deadline := time.Now().Add(p.timeout)
	p.c.mu.Lock()
	if p.zero {
		p.reading = true
		defer func() {
			p.c.mu.Lock()
			p.reading = false
			p.c.mu.Unlock()
		}()
	}
	for {
		if v, ok := p.take(); ok {
			p.c.mu.Unlock()
			return v, dataport.PortOK
		}
		p.c.mu.Unlock()

		if v, ok := p.pull(false); ok {
			return v, dataport.PortOK
		}
		if !p.syncWait {
			if v, ok := p.pull(true); ok {
				return v, dataport.PortOK
			}
		}

		p.c.mu.Lock()
		left := time.Until(deadline)
		if left <= 0 {
			if v, ok := p.take(); ok {
				p.c.mu.Unlock()
				return v, dataport.PortOK
			}
			p.c.mu.Unlock()
			p.logger.Debug("Channel read timed out")
			return zero, dataport.BufferTimeout
		}
		if p.hasPull() {
			left = min(left, pollInterval)
		}
		p.c.wait(left)
	}
}

// pull reads from the first pull connector whose peer has a value
func (p *InPort[T]) pull(retry bool) (T, bool) {
	var zero T
	for _, c := range p.pullConnectors() {
		if !c.IsReadable(retry) {
			continue
		}
		var v T
		if c.Read(&v) == dataport.PortOK {
			return v, true
		}
	}
	return zero, false
}

func (p *InPort[T]) hasPull() bool { return len(p.pullConnectors()) > 0 }

func (p *InPort[T]) pullConnectors() []connector.InPortConnector {
	var out []connector.InPortConnector
	for _, c := range p.Connectors() {
		if pc, ok := c.(*connector.InPortPullConnector); ok {
			out = append(out, pc)
		}
	}
	return out
}

// IsNew reports whether a value is buffered
func (p *InPort[T]) IsNew() bool {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	return !p.buf.Empty()
}

// IsEmpty reports whether no value is buffered
func (p *InPort[T]) IsEmpty() bool { return !p.IsNew() }

// ReadEvent implements fsm.Readable. The event is named after the port and
// carries the value read.
func (p *InPort[T]) ReadEvent() (fsm.Event, bool) {
	p.c.mu.Lock()
	src := p.source
	p.source = nil
	p.c.mu.Unlock()

	var v T
	var st dataport.Status
	if src != nil {
		v, st = p.ReadFunc(func() (T, dataport.Status) {
			var v T
			st := src.Read(&v)
			return v, st
		})
	} else {
		v, st = p.Read()
	}
	if st != dataport.PortOK {
		p.logger.Debug("Selected port had nothing to read", "status", st.String())
		return fsm.Event{}, false
	}
	return fsm.Event{Name: p.Name(), Data: v}, true
}

func (p *InPort[T]) syncMode() bool { return p.syncWait }

func (p *InPort[T]) selectReady() bool {
	p.c.mu.Lock()
	p.searched, p.retry, p.source = nil, nil, nil
	if p.writing {
		p.c.waitFor(func() bool { return !p.writing }, p.timeout)
	}
	ready := !p.buf.Empty()
	p.c.mu.Unlock()
	if ready {
		return true
	}

	var searched, retry []string
	for _, c := range p.Connectors() {
		switch c := c.(type) {
		case *connector.InPortPullConnector:
			if c.IsReadable(false) {
				p.c.mu.Lock()
				p.source = c
				p.c.mu.Unlock()
				return true
			}
			retry = append(retry, c.ID())
		case *connector.InPortPushConnector:
			searched = append(searched, c.ID())
		}
	}
	p.c.mu.Lock()
	p.searched, p.retry = searched, retry
	p.c.mu.Unlock()
	return false
}

func (p *InPort[T]) reselect() bool {
	p.c.mu.Lock()
	retry := slices.Clone(p.retry)
	ready := !p.buf.Empty()
	p.c.mu.Unlock()
	if ready {
		return true
	}
	for _, c := range p.pullConnectors() {
		if !slices.Contains(retry, c.ID()) {
			continue
		}
		if c.IsReadable(true) {
			p.c.mu.Lock()
			p.source = c
			p.c.mu.Unlock()
			return true
		}
	}
	return false
}
