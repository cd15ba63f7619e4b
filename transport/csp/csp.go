// Package csp implements the csp_channel transport used by CSP ports. It
// carries data like corba_cdr, but the writable and readable probes are
// answered by the connector (and through it the CSP port), passing the retry
// flag along so a port can tell a first probe from a re-check.
package csp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// Register adds the csp_channel factories for both dataflow directions
func Register(r *transport.Registry) error {
	name := dataport.InterfaceCSPChannel
	for _, err := range []error{
		r.AddInPortProvider(name, func(d transport.Deps) (transport.InPortProvider, error) {
			return NewInPortProvider(d.Broker), nil
		}),
		r.AddInPortConsumer(name, func(d transport.Deps) (transport.InPortConsumer, error) {
			return NewInPortConsumer(d.Broker, d.Logger), nil
		}),
		r.AddOutPortProvider(name, func(d transport.Deps) (transport.OutPortProvider, error) {
			return NewOutPortProvider(d.Broker), nil
		}),
		r.AddOutPortConsumer(name, func(d transport.Deps) (transport.OutPortConsumer, error) {
			return NewOutPortConsumer(d.Broker, d.Logger), nil
		}),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// endpoint is the activation state shared by both providers
type endpoint struct {
	broker *rpc.Broker
	ref    rpc.Reference
}

func (e *endpoint) publish(props properties.Properties, key string, s rpc.Servant) error {
	if e.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "csp", "PublishInterface", "broker lookup")
	}
	if e.ref == "" {
		e.ref = e.broker.Activate(s)
	}
	props.Set(key, e.ref.String())
	return nil
}

func (e *endpoint) close() error {
	if e.ref != "" {
		e.broker.Deactivate(e.ref)
		e.ref = ""
	}
	return nil
}

// InPortProvider accepts puts and answers is_writable from the connector
type InPortProvider struct {
	transport.Notifier
	endpoint

	mu   sync.RWMutex
	conn transport.InPortConnector
}

// NewInPortProvider creates a provider activated on broker when published
func NewInPortProvider(broker *rpc.Broker) *InPortProvider {
	return &InPortProvider{endpoint: endpoint{broker: broker}}
}

// Init implements transport.InPortProvider
func (p *InPortProvider) Init(properties.Properties) error { return nil }

// SetBuffer implements transport.InPortProvider
func (p *InPortProvider) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.InPortProvider
func (p *InPortProvider) SetConnector(c transport.InPortConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

func (p *InPortProvider) connector() transport.InPortConnector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// Put delivers one received item
func (p *InPortProvider) Put(data []byte) dataport.Status {
	return p.Deliver(p.connector(), data)
}

// IsWritable asks the connector
func (p *InPortProvider) IsWritable(retry bool) bool {
	conn := p.connector()
	return conn != nil && conn.IsWritable(retry)
}

// PublishInterface implements transport.InPortProvider
func (p *InPortProvider) PublishInterface(props properties.Properties) error {
	return p.publish(props, dataport.KeyInPortRef, rpc.Operations{
		transport.OpPut: func(_ context.Context, args []byte) ([]byte, error) {
			return transport.EncodeStatus(p.Put(args)), nil
		},
		transport.OpIsWritable: func(_ context.Context, args []byte) ([]byte, error) {
			return transport.EncodeBool(p.IsWritable(transport.DecodeBool(args))), nil
		},
	})
}

// Close implements transport.InPortProvider
func (p *InPortProvider) Close() error { return p.close() }

// peer is the remote reference held by both consumers
type peer struct {
	broker  *rpc.Broker
	logger  *slog.Logger
	timeout time.Duration

	mu  sync.RWMutex
	ref rpc.Reference
}

func newPeer(broker *rpc.Broker, logger *slog.Logger, name string) peer {
	if logger == nil {
		logger = slog.Default()
	}
	return peer{broker: broker, logger: logger.With("component", name)}
}

func (p *peer) set(ref rpc.Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = ref
}

func (p *peer) call(op string, args []byte) ([]byte, error) {
	p.mu.RLock()
	ref := p.ref
	p.mu.RUnlock()
	if ref == "" {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "csp", "call", op)
	}
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	out, err := p.broker.Invoke(ctx, ref, op, args)
	if err != nil {
		p.logger.Debug("Channel call failed", "op", op, "error", err)
	}
	return out, err
}

func (p *peer) subscribe(props properties.Properties, key string) error {
	ref := rpc.Reference(props.Get(key))
	if !ref.Valid() {
		return errors.WrapInvalid(errors.ErrObjectNotFound, "csp", "SubscribeInterface", "parse "+key)
	}
	p.set(ref)
	return nil
}

// InPortConsumer pushes to a remote InPortProvider
type InPortConsumer struct {
	transport.Notifier
	peer
}

// NewInPortConsumer creates a consumer calling through broker
func NewInPortConsumer(broker *rpc.Broker, logger *slog.Logger) *InPortConsumer {
	return &InPortConsumer{peer: newPeer(broker, logger, "csp-inport-consumer")}
}

// Init implements transport.InPortConsumer
func (c *InPortConsumer) Init(props properties.Properties) error {
	c.timeout = props.Duration("csp.call_timeout", 0)
	return nil
}

// Put implements transport.InPortConsumer
func (c *InPortConsumer) Put(data []byte) dataport.Status {
	out, err := c.call(transport.OpPut, data)
	if err != nil {
		return dataport.ConnectionLost
	}
	st, err := transport.DecodeStatus(out)
	if err != nil {
		return dataport.UnknownError
	}
	return transport.SendStatus(st)
}

// IsWritable implements transport.InPortConsumer
func (c *InPortConsumer) IsWritable(retry bool) bool {
	out, err := c.call(transport.OpIsWritable, transport.EncodeBool(retry))
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) SubscribeInterface(props properties.Properties) error {
	return c.subscribe(props, dataport.KeyInPortRef)
}

// UnsubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) UnsubscribeInterface(properties.Properties) { c.set("") }

// Close implements transport.InPortConsumer
func (c *InPortConsumer) Close() error {
	c.set("")
	return nil
}
