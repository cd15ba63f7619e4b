package port

import (
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// OutPort sends values of type T to every connector
type OutPort[T any] struct {
	base

	valueMu   sync.Mutex
	value     T
	onWrite   func(T)
	onConvert func(T) T
}

// NewOutPort creates an output port
func NewOutPort[T any](name string, deps Deps, opts ...Option) *OutPort[T] {
	var zero T
	return &OutPort[T]{base: newBase(name, DirectionOutput, datatype.TypeName(zero), deps, opts)}
}

// SetOnWrite registers fn to run with every value before it is written
func (p *OutPort[T]) SetOnWrite(fn func(T)) {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	p.onWrite = fn
}

// SetOnWriteConvert registers fn to transform every value before it is written
func (p *OutPort[T]) SetOnWriteConvert(fn func(T) T) {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	p.onConvert = fn
}

// Value returns the last value written
func (p *OutPort[T]) Value() T {
	p.valueMu.Lock()
	defer p.valueMu.Unlock()
	return p.value
}

// Write sends v through every connector. The first failing status is
// returned; connectors that report CONNECTION_LOST are disconnected.
func (p *OutPort[T]) Write(v T) dataport.Status {
	return p.WriteFunc(v, p.writeConnectors)
}

// WriteFunc runs the write callbacks on v, records the converted value as
// the port value and hands it to fn.
func (p *OutPort[T]) WriteFunc(v T, fn func(T) dataport.Status) dataport.Status {
	p.valueMu.Lock()
	onWrite, convert := p.onWrite, p.onConvert
	p.valueMu.Unlock()
	if onWrite != nil {
		onWrite(v)
	}
	if convert != nil {
		v = convert(v)
	}
	p.valueMu.Lock()
	p.value = v
	p.valueMu.Unlock()
	return fn(v)
}

func (p *OutPort[T]) writeConnectors(v T) dataport.Status {
	conns := p.Connectors()
	if len(conns) == 0 {
		return dataport.PreconditionNotMet
	}

	result := dataport.PortOK
	var lost []string
	for _, c := range conns {
		oc, ok := c.(connector.OutPortConnector)
		if !ok {
			continue
		}
		st := oc.Write(v)
		if st == dataport.PortOK {
			continue
		}
		if result == dataport.PortOK {
			result = st
		}
		if st == dataport.ConnectionLost {
			lost = append(lost, c.ID())
		}
	}
	for _, id := range lost {
		p.logger.Warn("Connection lost, removing connector", "connector_id", id)
		p.Disconnect(id)
	}
	return result
}

func (p *OutPort[T]) sample() any {
	var zero T
	return zero
}

// publishPull creates the provider side of a pull connection
func (p *OutPort[T]) publishPull(info dataport.ConnectorInfo) error {
	provider, err := p.deps.Transports.CreateOutPortProvider(info.InterfaceType())
	if err != nil {
		return err
	}
	conn, err := connector.NewOutPortPullConnector(p.config(info, p.sample()), provider)
	if err != nil {
		_ = provider.Close()
		return err
	}
	if err := provider.PublishInterface(info.Properties); err != nil {
		conn.Disconnect()
		return errors.Wrap(err, "OutPort", "Connect", "publish interface")
	}
	p.add(conn)
	return nil
}

// subscribePush creates the consumer side of a push connection
func (p *OutPort[T]) subscribePush(info dataport.ConnectorInfo) error {
	consumer, err := p.deps.Transports.CreateInPortConsumer(info.InterfaceType())
	if err != nil {
		return err
	}
	conn, err := connector.NewOutPortPushConnector(p.config(info, p.sample()), consumer)
	if err != nil {
		_ = consumer.Close()
		return err
	}
	if err := consumer.SubscribeInterface(info.Properties); err != nil {
		conn.Disconnect()
		return errors.Wrap(err, "OutPort", "Connect", "subscribe interface")
	}
	p.add(conn)
	return nil
}
