package port

import (
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// InPort receives values of type T from its connectors
type InPort[T any] struct {
	base

	valueMu   sync.Mutex
	value     T
	onRead    func()
	onConvert func(T) T
}

// NewInPort creates an input port
func NewInPort[T any](name string, deps Deps, opts ...Option) *InPort[T] {
	var zero T
	return &InPort[T]{base: newBase(name, DirectionInput, datatype.TypeName(zero), deps, opts)}
}

// SetOnRead registers fn to run before every Read
func (p *InPort[T]) SetOnRead(fn func()) {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	p.onRead = fn
}

// SetOnReadConvert registers fn to transform every value read
func (p *InPort[T]) SetOnReadConvert(fn func(T) T) {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	p.onConvert = fn
}

// Value returns the last value read
func (p *InPort[T]) Value() T {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	return p.value
}

// Read takes the next value. Connectors are asked in connection order and
// the first one holding data wins. When none does, the last value read is
// returned with the status of the first connector.
func (p *InPort[T]) Read() (T, dataport.Status) {
	return p.ReadFunc(p.readConnectors)
}

// ReadFunc runs the read callback, takes a value from fn and records it as
// the last value read. When fn fails the last value is returned with fn's
// status.
func (p *InPort[T]) ReadFunc(fn func() (T, dataport.Status)) (T, dataport.Status) {
	p.valueMu.Lock()
	onRead := p.onRead
	p.valueMu.Unlock()
	if onRead != nil {
		onRead()
	}
	v, st := fn()
	if st != dataport.PortOK {
		return p.Value(), st
	}
	return p.store(v), st
}

func (p *InPort[T]) readConnectors() (T, dataport.Status) {
	var zero T
	conns := p.inConnectors()
	if len(conns) == 0 {
		return zero, dataport.PreconditionNotMet
	}

	first := dataport.PortOK
	for i, c := range conns {
		var v T
		st := c.Read(&v)
		if st == dataport.PortOK {
			return v, st
		}
		if i == 0 {
			first = st
		}
	}
	switch first {
	case dataport.BufferEmpty, dataport.BufferTimeout:
		p.logger.Debug("No data to read", "status", first.String())
	default:
		p.logger.Warn("Read failed", "status", first.String())
	}
	return zero, first
}

// ReadFrom reads from the named connector only
func (p *InPort[T]) ReadFrom(name string) (T, dataport.Status) {
	for _, c := range p.inConnectors() {
		if c.Name() != name {
			continue
		}
		var v T
		st := c.Read(&v)
		if st != dataport.PortOK {
			return p.Value(), st
		}
		return p.store(v), st
	}
	p.logger.Debug("Connector not found", "connector", name)
	return p.Value(), dataport.PreconditionNotMet
}

func (p *InPort[T]) store(v T) T {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	if p.onConvert != nil {
		v = p.onConvert(v)
	}
	p.value = v
	return v
}

// IsNew reports whether any connector holds unread data
func (p *InPort[T]) IsNew() bool {
	for _, c := range p.inConnectors() {
		if c.IsReadable(false) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no connector holds unread data
func (p *InPort[T]) IsEmpty() bool { return !p.IsNew() }

func (p *InPort[T]) inConnectors() []connector.InPortConnector {
	conns := p.Connectors()
	out := make([]connector.InPortConnector, 0, len(conns))
	for _, c := range conns {
		if ic, ok := c.(connector.InPortConnector); ok {
			out = append(out, ic)
		}
	}
	return out
}

func (p *InPort[T]) sample() any {
	var zero T
	return zero
}

// publishPush creates the provider side of a push connection
func (p *InPort[T]) publishPush(info dataport.ConnectorInfo) error {
	provider, err := p.deps.Transports.CreateInPortProvider(info.InterfaceType())
	if err != nil {
		return err
	}
	conn, err := connector.NewInPortPushConnector(p.config(info, p.sample()), provider)
	if err != nil {
		_ = provider.Close()
		return err
	}
	if err := provider.PublishInterface(info.Properties); err != nil {
		conn.Disconnect()
		return errors.Wrap(err, "InPort", "Connect", "publish interface")
	}
	p.add(conn)
	return nil
}

// subscribePull creates the consumer side of a pull connection
func (p *InPort[T]) subscribePull(info dataport.ConnectorInfo) error {
	consumer, err := p.deps.Transports.CreateOutPortConsumer(info.InterfaceType())
	if err != nil {
		return err
	}
	conn, err := connector.NewInPortPullConnector(p.config(info, p.sample()), consumer)
	if err != nil {
		_ = consumer.Close()
		return err
	}
	if err := consumer.SubscribeInterface(info.Properties); err != nil {
		conn.Disconnect()
		return errors.Wrap(err, "InPort", "Connect", "subscribe interface")
	}
	p.add(conn)
	return nil
}
