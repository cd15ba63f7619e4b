// Package direct implements the in-process transport. Providers register with
// the object broker under a local reference; consumers resolve the reference
// and call the provider without any framing. When the in-port installs a
// direct sink, values bypass serialization altogether.
package direct

import (
	"context"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// Register adds the direct factories for both dataflow directions
func Register(r *transport.Registry) error {
	name := dataport.InterfaceDirect
	for _, err := range []error{
		r.AddInPortProvider(name, func(d transport.Deps) (transport.InPortProvider, error) {
			return NewInPortProvider(d.Broker), nil
		}),
		r.AddInPortConsumer(name, func(d transport.Deps) (transport.InPortConsumer, error) {
			return NewInPortConsumer(d.Broker), nil
		}),
		r.AddOutPortProvider(name, func(d transport.Deps) (transport.OutPortProvider, error) {
			return NewOutPortProvider(d.Broker), nil
		}),
		r.AddOutPortConsumer(name, func(d transport.Deps) (transport.OutPortConsumer, error) {
			return NewOutPortConsumer(d.Broker), nil
		}),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// unreachable is the servant face of a direct provider; it is only ever
// resolved in process.
func unreachable(context.Context, string, []byte) ([]byte, error) {
	return nil, errors.WrapInvalid(rpc.ErrBadOperation, "direct", "Invoke", "remote call on in-process provider")
}

// InPortProvider receives pushes from a consumer in the same process
type InPortProvider struct {
	transport.Notifier
	broker *rpc.Broker
	ref    rpc.Reference

	mu   sync.RWMutex
	conn transport.InPortConnector
	sink func(v any) dataport.Status
}

// NewInPortProvider creates a provider registered on broker when published
func NewInPortProvider(broker *rpc.Broker) *InPortProvider {
	return &InPortProvider{broker: broker}
}

// Invoke implements rpc.Servant
func (p *InPortProvider) Invoke(ctx context.Context, op string, args []byte) ([]byte, error) {
	return unreachable(ctx, op, args)
}

// Init implements transport.InPortProvider
func (p *InPortProvider) Init(properties.Properties) error { return nil }

// SetBuffer implements transport.InPortProvider; writes go through the connector
func (p *InPortProvider) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.InPortProvider
func (p *InPortProvider) SetConnector(c transport.InPortConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

// SetDirectSink implements transport.DirectSink
func (p *InPortProvider) SetDirectSink(fn func(v any) dataport.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = fn
}

// Put delivers serialized data to the connector
func (p *InPortProvider) Put(data []byte) dataport.Status {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	return p.Deliver(conn, data)
}

func (p *InPortProvider) writeDirect(v any) (dataport.Status, bool) {
	p.mu.RLock()
	sink := p.sink
	p.mu.RUnlock()
	if sink == nil {
		return dataport.PortOK, false
	}
	return sink(v), true
}

func (p *InPortProvider) writable(retry bool) bool {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	return conn != nil && conn.IsWritable(retry)
}

// PublishInterface implements transport.InPortProvider
func (p *InPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "direct.InPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p)
	}
	props.Set(dataport.KeyInPortRef, p.ref.String())
	return nil
}

// Close implements transport.InPortProvider
func (p *InPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	return nil
}

// InPortConsumer pushes to a provider in the same process
type InPortConsumer struct {
	transport.Notifier
	broker *rpc.Broker

	mu       sync.RWMutex
	provider *InPortProvider
}

// NewInPortConsumer creates a consumer resolving providers through broker
func NewInPortConsumer(broker *rpc.Broker) *InPortConsumer {
	return &InPortConsumer{broker: broker}
}

// Init implements transport.InPortConsumer
func (c *InPortConsumer) Init(properties.Properties) error { return nil }

func (c *InPortConsumer) peer() *InPortProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// Put implements transport.InPortConsumer
func (c *InPortConsumer) Put(data []byte) dataport.Status {
	p := c.peer()
	if p == nil {
		return dataport.ConnectionLost
	}
	return transport.SendStatus(p.Put(data))
}

// WriteDirect implements transport.DirectWriter
func (c *InPortConsumer) WriteDirect(v any) (dataport.Status, bool) {
	p := c.peer()
	if p == nil {
		return dataport.ConnectionLost, true
	}
	return p.writeDirect(v)
}

// IsWritable implements transport.InPortConsumer
func (c *InPortConsumer) IsWritable(retry bool) bool {
	p := c.peer()
	return p != nil && p.writable(retry)
}

// SubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) SubscribeInterface(props properties.Properties) error {
	s, err := resolve(c.broker, props, dataport.KeyInPortRef)
	if err != nil {
		return err
	}
	p, ok := s.(*InPortProvider)
	if !ok {
		return errors.WrapInvalid(errors.ErrIncompatibleDataType, "direct.InPortConsumer", "SubscribeInterface", "provider type check")
	}
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
	return nil
}

// UnsubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) UnsubscribeInterface(properties.Properties) {
	c.mu.Lock()
	c.provider = nil
	c.mu.Unlock()
}

// Close implements transport.InPortConsumer
func (c *InPortConsumer) Close() error {
	c.UnsubscribeInterface(nil)
	return nil
}

func resolve(broker *rpc.Broker, props properties.Properties, key string) (rpc.Servant, error) {
	raw, ok := props.Lookup(key)
	if !ok || raw == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "direct", "resolve", "lookup "+key)
	}
	if broker == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "direct", "resolve", "broker lookup")
	}
	s, ok := broker.Resolve(rpc.Reference(raw))
	if !ok {
		return nil, errors.Wrap(errors.ErrObjectNotFound, "direct", "resolve", "resolve "+raw)
	}
	return s, nil
}
