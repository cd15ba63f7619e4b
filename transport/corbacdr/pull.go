package corbacdr

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// OutPortProvider answers get and is_readable
type OutPortProvider struct {
	transport.Notifier
	broker *rpc.Broker
	ref    rpc.Reference

	mu   sync.RWMutex
	conn transport.OutPortConnector
}

// NewOutPortProvider creates a provider activated on broker when published
func NewOutPortProvider(broker *rpc.Broker) *OutPortProvider {
	return &OutPortProvider{broker: broker}
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

func (p *OutPortProvider) servant() rpc.Operations {
	return rpc.Operations{
		transport.OpGet: func(context.Context, []byte) ([]byte, error) {
			st, data := p.Serve(p.connector())
			return transport.EncodeGet(st, data), nil
		},
		transport.OpIsReadable: func(context.Context, []byte) ([]byte, error) {
			conn := p.connector()
			return transport.EncodeBool(conn != nil && conn.IsReadable(false)), nil
		},
	}
}

// PublishInterface activates the servant and publishes its reference
func (p *OutPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "corbacdr.OutPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p.servant())
	}
	props.Set(dataport.KeyOutPortRef, p.ref.String())
	return nil
}

// Close deactivates the servant
func (p *OutPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	return nil
}

// OutPortConsumer pulls from a remote OutPortProvider
type OutPortConsumer struct {
	transport.Notifier
	remote

	bufMu sync.RWMutex
	buf   buffer.Buffer[[]byte]
}

// NewOutPortConsumer creates a consumer calling through broker
func NewOutPortConsumer(broker *rpc.Broker, logger *slog.Logger) *OutPortConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutPortConsumer{remote: remote{broker: broker, logger: logger.With("component", "corbacdr-consumer")}}
}

// Init implements transport.OutPortConsumer
func (c *OutPortConsumer) Init(props properties.Properties) error {
	c.configure(props)
	return nil
}

// SetBuffer implements transport.OutPortConsumer
func (c *OutPortConsumer) SetBuffer(b buffer.Buffer[[]byte]) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	c.buf = b
}

// Get implements transport.OutPortConsumer
func (c *OutPortConsumer) Get() (dataport.Status, []byte) {
	out, err := c.call(transport.OpGet, nil)
	if err != nil {
		return dataport.ConnectionLost, nil
	}
	st, data, err := transport.DecodeGet(out)
	if err != nil {
		c.Event(listener.OnSenderError)
		return dataport.UnknownError, nil
	}
	if st != dataport.PortOK {
		return c.PullResult(st), nil
	}

	c.bufMu.RLock()
	buf := c.buf
	c.bufMu.RUnlock()
	return dataport.PortOK, c.Store(buf, data)
}

// IsReadable implements transport.OutPortConsumer
func (c *OutPortConsumer) IsReadable(bool) bool {
	out, err := c.call(transport.OpIsReadable, nil)
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) SubscribeInterface(props properties.Properties) error {
	return c.subscribe(props, dataport.KeyOutPortRef)
}

// UnsubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) UnsubscribeInterface(props properties.Properties) {
	c.unsubscribe(props, dataport.KeyOutPortRef)
}

// Close implements transport.OutPortConsumer
func (c *OutPortConsumer) Close() error {
	c.unsubscribe(nil, "")
	return nil
}
