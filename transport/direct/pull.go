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

// OutPortProvider serves pulls from a consumer in the same process
type OutPortProvider struct {
	transport.Notifier
	broker *rpc.Broker
	ref    rpc.Reference

	mu   sync.RWMutex
	conn transport.OutPortConnector
}

// NewOutPortProvider creates a provider registered on broker when published
func NewOutPortProvider(broker *rpc.Broker) *OutPortProvider {
	return &OutPortProvider{broker: broker}
}

// Invoke implements rpc.Servant
func (p *OutPortProvider) Invoke(ctx context.Context, op string, args []byte) ([]byte, error) {
	return unreachable(ctx, op, args)
}

// Init implements transport.OutPortProvider
func (p *OutPortProvider) Init(properties.Properties) error { return nil }

// SetBuffer implements transport.OutPortProvider; reads go through the connector
func (p *OutPortProvider) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.OutPortProvider
func (p *OutPortProvider) SetConnector(c transport.OutPortConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

func (p *OutPortProvider) connector() transport.OutPortConnector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// Get serves the next item
func (p *OutPortProvider) Get() (dataport.Status, []byte) {
	return p.Serve(p.connector())
}

func (p *OutPortProvider) readable(retry bool) bool {
	conn := p.connector()
	return conn != nil && conn.IsReadable(retry)
}

// PublishInterface implements transport.OutPortProvider
func (p *OutPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "direct.OutPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p)
	}
	props.Set(dataport.KeyOutPortRef, p.ref.String())
	return nil
}

// Close implements transport.OutPortProvider
func (p *OutPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	return nil
}

// OutPortConsumer pulls from a provider in the same process
type OutPortConsumer struct {
	transport.Notifier
	broker *rpc.Broker

	mu       sync.RWMutex
	provider *OutPortProvider
	buf      buffer.Buffer[[]byte]
}

// NewOutPortConsumer creates a consumer resolving providers through broker
func NewOutPortConsumer(broker *rpc.Broker) *OutPortConsumer {
	return &OutPortConsumer{broker: broker}
}

// Init implements transport.OutPortConsumer
func (c *OutPortConsumer) Init(properties.Properties) error { return nil }

// SetBuffer implements transport.OutPortConsumer
func (c *OutPortConsumer) SetBuffer(b buffer.Buffer[[]byte]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = b
}

// Get implements transport.OutPortConsumer
func (c *OutPortConsumer) Get() (dataport.Status, []byte) {
	c.mu.RLock()
	p, buf := c.provider, c.buf
	c.mu.RUnlock()
	if p == nil {
		return dataport.ConnectionLost, nil
	}

	st, data := p.Get()
	if st != dataport.PortOK {
		return c.PullResult(st), nil
	}
	return dataport.PortOK, c.Store(buf, data)
}

// IsReadable implements transport.OutPortConsumer
func (c *OutPortConsumer) IsReadable(retry bool) bool {
	c.mu.RLock()
	p := c.provider
	c.mu.RUnlock()
	return p != nil && p.readable(retry)
}

// SubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) SubscribeInterface(props properties.Properties) error {
	s, err := resolve(c.broker, props, dataport.KeyOutPortRef)
	if err != nil {
		return err
	}
	p, ok := s.(*OutPortProvider)
	if !ok {
		return errors.WrapInvalid(errors.ErrIncompatibleDataType, "direct.OutPortConsumer", "SubscribeInterface", "provider type check")
	}
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
	return nil
}

// UnsubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) UnsubscribeInterface(properties.Properties) {
	c.mu.Lock()
	c.provider = nil
	c.mu.Unlock()
}

// Close implements transport.OutPortConsumer
func (c *OutPortConsumer) Close() error {
	c.UnsubscribeInterface(nil)
	return nil
}
