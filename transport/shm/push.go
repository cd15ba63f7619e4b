package shm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// InPortProvider reads pushed payloads from the consumer's segment
type InPortProvider struct {
	transport.Notifier
	broker *rpc.Broker
	logger *slog.Logger
	ref    rpc.Reference

	mu   sync.Mutex
	cfg  settings
	conn transport.InPortConnector
	seg  *Segment
}

// NewInPortProvider creates a provider activated on broker when published
func NewInPortProvider(broker *rpc.Broker, logger *slog.Logger) *InPortProvider {
	logger = componentLogger(logger, "shm-inport-provider")
	return &InPortProvider{broker: broker, logger: logger, cfg: readSettings(properties.New(), logger)}
}

// Init implements transport.InPortProvider
func (p *InPortProvider) Init(props properties.Properties) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = readSettings(props, p.logger)
	return nil
}

// SetBuffer implements transport.InPortProvider; writes go through the connector
func (p *InPortProvider) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.InPortProvider
func (p *InPortProvider) SetConnector(c transport.InPortConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

func (p *InPortProvider) openMemory(_ context.Context, args []byte) ([]byte, error) {
	dec, _ := cdr.NewDecoder(args, cdr.LittleEndian)
	address, _, err := decodeMemory(dec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seg != nil {
		_ = p.seg.Close()
		p.seg = nil
	}
	seg, err := Open(p.cfg.dir, address, p.cfg.endian)
	if err != nil {
		return nil, err
	}
	p.seg = seg
	return nil, nil
}

func (p *InPortProvider) closeMemory(context.Context, []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seg != nil {
		err := p.seg.Close()
		p.seg = nil
		return nil, err
	}
	return nil, nil
}

// put reads the segment and hands the payload to the connector
func (p *InPortProvider) put(context.Context, []byte) ([]byte, error) {
	p.mu.Lock()
	seg, conn := p.seg, p.conn
	p.mu.Unlock()

	if seg == nil {
		p.Data(listener.OnReceiverError, nil)
		return transport.EncodeStatus(dataport.PortError), nil
	}
	data, err := seg.Read()
	if err != nil {
		p.logger.Warn("Shared memory read failed", "error", err)
		p.Data(listener.OnReceiverError, nil)
		return transport.EncodeStatus(dataport.PortError), nil
	}
	return transport.EncodeStatus(p.Deliver(conn, data)), nil
}

func (p *InPortProvider) servant() rpc.Operations {
	return rpc.Operations{
		transport.OpPut:         p.put,
		transport.OpOpenMemory:  p.openMemory,
		transport.OpCloseMemory: p.closeMemory,
		transport.OpIsWritable: func(context.Context, []byte) ([]byte, error) {
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			return transport.EncodeBool(conn != nil && conn.IsWritable(false)), nil
		},
	}
}

// PublishInterface activates the servant and publishes its reference
func (p *InPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "shm.InPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p.servant())
	}
	props.Set(dataport.KeyInPortRef, p.ref.String())
	return nil
}

// Close deactivates the servant and unmaps the peer segment
func (p *InPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	_, err := p.closeMemory(context.Background(), nil)
	return err
}

// InPortConsumer writes payloads into its own segment and signals the provider
type InPortConsumer struct {
	transport.Notifier
	address string

	mu     sync.Mutex
	cfg    settings
	caller caller
	seg    *Segment
	opened bool
}

// NewInPortConsumer creates a consumer signalling through broker
func NewInPortConsumer(broker *rpc.Broker, logger *slog.Logger) *InPortConsumer {
	logger = componentLogger(logger, "shm-inport-consumer")
	return &InPortConsumer{
		address: uuid.NewString(),
		cfg:     readSettings(properties.New(), logger),
		caller:  caller{broker: broker, logger: logger},
	}
}

// Address returns the segment address
func (c *InPortConsumer) Address() string { return c.address }

// Init implements transport.InPortConsumer
func (c *InPortConsumer) Init(props properties.Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = readSettings(props, c.caller.logger)
	return nil
}

// Put implements transport.InPortConsumer
func (c *InPortConsumer) Put(data []byte) dataport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.caller.ref == "" {
		return dataport.ConnectionLost
	}
	if c.seg == nil {
		seg, err := Create(c.cfg.dir, c.address, c.cfg.size, c.cfg.endian)
		if err != nil {
			c.caller.logger.Error("Shared memory create failed", "error", err)
			return dataport.ConnectionLost
		}
		c.seg = seg
		c.opened = false
	}

	grown, err := c.seg.Write(data)
	if err != nil {
		// recreated on the next put
		c.caller.logger.Error("Shared memory write failed", "error", err)
		_ = c.seg.Close()
		c.seg = nil
		c.opened = false
		return dataport.ConnectionLost
	}
	if grown || !c.opened {
		if _, err := c.caller.call(transport.OpOpenMemory, encodeMemory(c.address, c.seg.Capacity())); err != nil {
			return dataport.ConnectionLost
		}
		c.opened = true
	}

	out, err := c.caller.call(transport.OpPut, nil)
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
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.caller.call(transport.OpIsWritable, nil)
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) SubscribeInterface(props properties.Properties) error {
	ref, err := parseRef(props, dataport.KeyInPortRef)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller.ref = ref
	c.opened = false
	return nil
}

// UnsubscribeInterface implements transport.InPortConsumer
func (c *InPortConsumer) UnsubscribeInterface(properties.Properties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		_, _ = c.caller.call(transport.OpCloseMemory, nil)
		c.opened = false
	}
	c.caller.ref = ""
}

// Close releases the segment
func (c *InPortConsumer) Close() error {
	c.UnsubscribeInterface(nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seg == nil {
		return nil
	}
	err := c.seg.Close()
	c.seg = nil
	return err
}
