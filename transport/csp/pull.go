package csp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// OutPortProvider serves gets and answers is_readable from the connector
type OutPortProvider struct {
	transport.Notifier
	endpoint

	mu   sync.RWMutex
	conn transport.OutPortConnector
}

// NewOutPortProvider creates a provider activated on broker when published
func NewOutPortProvider(broker *rpc.Broker) *OutPortProvider {
	return &OutPortProvider{endpoint: endpoint{broker: broker}}
}

// Init implements transport.OutPortProvider
func (p *OutPortProvider) Init(properties.Properties) error { return nil }

// SetBuffer implements transport.OutPortProvider
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

// IsReadable asks the connector
func (p *OutPortProvider) IsReadable(retry bool) bool {
	conn := p.connector()
	return conn != nil && conn.IsReadable(retry)
}

// PublishInterface implements transport.OutPortProvider
func (p *OutPortProvider) PublishInterface(props properties.Properties) error {
	return p.publish(props, dataport.KeyOutPortRef, rpc.Operations{
		transport.OpGet: func(context.Context, []byte) ([]byte, error) {
			st, data := p.Serve(p.connector())
			return transport.EncodeGet(st, data), nil
		},
		transport.OpIsReadable: func(_ context.Context, args []byte) ([]byte, error) {
			return transport.EncodeBool(p.IsReadable(transport.DecodeBool(args))), nil
		},
	})
}

// Close implements transport.OutPortProvider
func (p *OutPortProvider) Close() error { return p.close() }

// OutPortConsumer pulls from a remote OutPortProvider. Pulled data goes to
// the caller only; a CSP in-port keeps no connector buffer.
type OutPortConsumer struct {
	transport.Notifier
	peer
}

// NewOutPortConsumer creates a consumer calling through broker
func NewOutPortConsumer(broker *rpc.Broker, logger *slog.Logger) *OutPortConsumer {
	return &OutPortConsumer{peer: newPeer(broker, logger, "csp-outport-consumer")}
}

// Init implements transport.OutPortConsumer
func (c *OutPortConsumer) Init(props properties.Properties) error {
	c.timeout = props.Duration("csp.call_timeout", 0)
	return nil
}

// SetBuffer implements transport.OutPortConsumer
func (c *OutPortConsumer) SetBuffer(buffer.Buffer[[]byte]) {}

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
	data = c.Data(listener.OnReceived, data)
	data = c.Data(listener.OnBufferWrite, data)
	return dataport.PortOK, data
}

// IsReadable implements transport.OutPortConsumer
func (c *OutPortConsumer) IsReadable(retry bool) bool {
	out, err := c.call(transport.OpIsReadable, transport.EncodeBool(retry))
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) SubscribeInterface(props properties.Properties) error {
	return c.subscribe(props, dataport.KeyOutPortRef)
}

// UnsubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) UnsubscribeInterface(properties.Properties) { c.set("") }

// Close implements transport.OutPortConsumer
func (c *OutPortConsumer) Close() error {
	c.set("")
	return nil
}
