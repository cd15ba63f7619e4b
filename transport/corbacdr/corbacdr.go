// Package corbacdr implements the corba_cdr transport: providers are broker
// servants answering put, get and the writable/readable probes, and consumers
// invoke them through whichever carrier the published reference names.
package corbacdr

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

// KeyCallTimeout bounds each remote call made by a consumer
const KeyCallTimeout = "corba_cdr.call_timeout"

// Register adds the corba_cdr factories for both dataflow directions
func Register(r *transport.Registry) error {
	name := dataport.InterfaceCorbaCDR
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

// InPortProvider answers put and is_writable
type InPortProvider struct {
	transport.Notifier
	broker *rpc.Broker
	ref    rpc.Reference

	mu   sync.RWMutex
	conn transport.InPortConnector
}

// NewInPortProvider creates a provider activated on broker when published
func NewInPortProvider(broker *rpc.Broker) *InPortProvider {
	return &InPortProvider{broker: broker}
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

func (p *InPortProvider) connector() transport.InPortConnector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

// Put delivers one received item
func (p *InPortProvider) Put(data []byte) dataport.Status {
	return p.Deliver(p.connector(), data)
}

func (p *InPortProvider) servant() rpc.Operations {
	return rpc.Operations{
		transport.OpPut: func(_ context.Context, args []byte) ([]byte, error) {
			return transport.EncodeStatus(p.Put(args)), nil
		},
		transport.OpIsWritable: func(context.Context, []byte) ([]byte, error) {
			conn := p.connector()
			return transport.EncodeBool(conn != nil && conn.IsWritable(false)), nil
		},
	}
}

// PublishInterface activates the servant and publishes its reference
func (p *InPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "corbacdr.InPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p.servant())
	}
	props.Set(dataport.KeyInPortRef, p.ref.String())
	return nil
}

// Close deactivates the servant
func (p *InPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	return nil
}

// remote is the reference a consumer calls, shared by both consumer roles
type remote struct {
	broker  *rpc.Broker
	logger  *slog.Logger
	timeout time.Duration

	mu  sync.RWMutex
	ref rpc.Reference
}

func (r *remote) configure(props properties.Properties) {
	r.timeout = props.Duration(KeyCallTimeout, 0)
}

func (r *remote) subscribe(props properties.Properties, key string) error {
	raw := props.Get(key)
	ref := rpc.Reference(raw)
	if !ref.Valid() {
		return errors.WrapInvalid(errors.ErrObjectNotFound, "corbacdr", "SubscribeInterface", "parse "+key)
	}
	r.mu.Lock()
	r.ref = ref
	r.mu.Unlock()
	return nil
}

// unsubscribe forgets the reference when props name the one in use
func (r *remote) unsubscribe(props properties.Properties, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if props == nil || props.Get(key) == r.ref.String() {
		r.ref = ""
	}
}

func (r *remote) call(op string, args []byte) ([]byte, error) {
	r.mu.RLock()
	ref := r.ref
	r.mu.RUnlock()
	if ref == "" {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "corbacdr", "call", op)
	}
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := r.broker.Invoke(ctx, ref, op, args)
	if err != nil {
		r.logger.Debug("Remote call failed", "op", op, "reference", ref.String(), "error", err)
	}
	return out, err
}

// InPortConsumer pushes to a remote InPortProvider
type InPortConsumer struct {
	transport.Notifier
	remote
}

// NewInPortConsumer creates a consumer calling through broker
func NewInPortConsumer(broker *rpc.Broker, logger *slog.Logger) *InPortConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &InPortConsumer{remote: remote{broker: broker, logger: logger.With("component", "corbacdr-consumer")}}
}

// Init implements transport.InPortConsumer
func (c *InPortConsumer) Init(props properties.Properties) error {
	c.configure(props)
	return nil
}

// Put implements transport.InPortConsumer. Carrier failures read as
// CONNECTION_LOST.
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
func (c *InPortConsumer) IsWritable(bool) bool {
	out, err := c.call(transport.OpIsWritable, nil)
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) SubscribeInterface(props properties.Properties) error {
	return c.subscribe(props, dataport.KeyInPortRef)
}

// UnsubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) UnsubscribeInterface(props properties.Properties) {
	c.unsubscribe(props, dataport.KeyInPortRef)
}

// Close implements transport.InPortConsumer
func (c *InPortConsumer) Close() error {
	c.unsubscribe(nil, "")
	return nil
}
