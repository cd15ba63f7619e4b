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

// get replies are little endian CDR: ulong status, then the memory frame
// when the status is PORT_OK.

// OutPortProvider serves pulls by writing the next item into its segment
type OutPortProvider struct {
	transport.Notifier
	broker  *rpc.Broker
	logger  *slog.Logger
	address string
	ref     rpc.Reference

	mu   sync.Mutex
	cfg  settings
	conn transport.OutPortConnector
	seg  *Segment
}

// NewOutPortProvider creates a provider activated on broker when published
func NewOutPortProvider(broker *rpc.Broker, logger *slog.Logger) *OutPortProvider {
	logger = componentLogger(logger, "shm-outport-provider")
	return &OutPortProvider{
		broker:  broker,
		logger:  logger,
		address: uuid.NewString(),
		cfg:     readSettings(properties.New(), logger),
	}
}

// Init implements transport.OutPortProvider
func (p *OutPortProvider) Init(props properties.Properties) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = readSettings(props, p.logger)
	return nil
}

// SetBuffer implements transport.OutPortProvider; reads go through the connector
func (p *OutPortProvider) SetBuffer(buffer.Buffer[[]byte]) {}

// SetConnector implements transport.OutPortProvider
func (p *OutPortProvider) SetConnector(c transport.OutPortConnector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

func (p *OutPortProvider) get(context.Context, []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, data := p.Serve(p.conn)
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	if st != dataport.PortOK {
		enc.WriteULong(uint32(st))
		return enc.Bytes(), nil
	}

	if p.seg == nil {
		seg, err := Create(p.cfg.dir, p.address, p.cfg.size, p.cfg.endian)
		if err != nil {
			p.logger.Error("Shared memory create failed", "error", err)
			enc.WriteULong(uint32(dataport.PortError))
			return enc.Bytes(), nil
		}
		p.seg = seg
	}
	if _, err := p.seg.Write(data); err != nil {
		p.logger.Error("Shared memory write failed", "error", err)
		enc.WriteULong(uint32(dataport.PortError))
		return enc.Bytes(), nil
	}
	enc.WriteULong(uint32(dataport.PortOK))
	enc.WriteRaw(encodeMemory(p.address, p.seg.Capacity()))
	return enc.Bytes(), nil
}

func (p *OutPortProvider) servant() rpc.Operations {
	return rpc.Operations{
		transport.OpGet: p.get,
		transport.OpIsReadable: func(context.Context, []byte) ([]byte, error) {
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			return transport.EncodeBool(conn != nil && conn.IsReadable(false)), nil
		},
	}
}

// PublishInterface activates the servant and publishes its reference
func (p *OutPortProvider) PublishInterface(props properties.Properties) error {
	if p.broker == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "shm.OutPortProvider", "PublishInterface", "broker lookup")
	}
	if p.ref == "" {
		p.ref = p.broker.Activate(p.servant())
	}
	props.Set(dataport.KeyOutPortRef, p.ref.String())
	props.Set(dataport.KeySHMAddress, p.address)
	return nil
}

// Close deactivates the servant and removes the segment
func (p *OutPortProvider) Close() error {
	if p.ref != "" {
		p.broker.Deactivate(p.ref)
		p.ref = ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seg == nil {
		return nil
	}
	err := p.seg.Close()
	p.seg = nil
	return err
}

// OutPortConsumer pulls through the provider's segment
type OutPortConsumer struct {
	transport.Notifier

	mu       sync.Mutex
	cfg      settings
	caller   caller
	buf      buffer.Buffer[[]byte]
	seg      *Segment
	address  string
	capacity int
}

// NewOutPortConsumer creates a consumer signalling through broker
func NewOutPortConsumer(broker *rpc.Broker, logger *slog.Logger) *OutPortConsumer {
	logger = componentLogger(logger, "shm-outport-consumer")
	return &OutPortConsumer{
		cfg:    readSettings(properties.New(), logger),
		caller: caller{broker: broker, logger: logger},
	}
}

// Init implements transport.OutPortConsumer
func (c *OutPortConsumer) Init(props properties.Properties) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = readSettings(props, c.caller.logger)
	return nil
}

// SetBuffer implements transport.OutPortConsumer
func (c *OutPortConsumer) SetBuffer(b buffer.Buffer[[]byte]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = b
}

// Get implements transport.OutPortConsumer
func (c *OutPortConsumer) Get() (dataport.Status, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, err := c.caller.call(transport.OpGet, nil)
	if err != nil {
		return dataport.ConnectionLost, nil
	}
	dec, _ := cdr.NewDecoder(out, cdr.LittleEndian)
	st := dataport.Status(dec.ReadULong())
	if dec.Err() != nil {
		c.Event(listener.OnSenderError)
		return dataport.UnknownError, nil
	}
	if st != dataport.PortOK {
		return c.PullResult(st), nil
	}
	address, capacity, err := decodeMemory(dec)
	if err != nil {
		c.Event(listener.OnSenderError)
		return dataport.UnknownError, nil
	}

	if c.seg == nil || address != c.address || capacity != c.capacity {
		if c.seg != nil {
			_ = c.seg.Close()
			c.seg = nil
		}
		seg, err := Open(c.cfg.dir, address, c.cfg.endian)
		if err != nil {
			c.caller.logger.Warn("Shared memory open failed", "address", address, "error", err)
			c.Event(listener.OnSenderError)
			return dataport.ConnectionLost, nil
		}
		c.seg, c.address, c.capacity = seg, address, capacity
	}

	data, err := c.seg.Read()
	if err != nil {
		c.Event(listener.OnSenderError)
		_ = c.seg.Close()
		c.seg = nil
		return dataport.ConnectionLost, nil
	}
	return dataport.PortOK, c.Store(c.buf, data)
}

// IsReadable implements transport.OutPortConsumer
func (c *OutPortConsumer) IsReadable(bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.caller.call(transport.OpIsReadable, nil)
	return err == nil && transport.DecodeBool(out)
}

// SubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) SubscribeInterface(props properties.Properties) error {
	ref, err := parseRef(props, dataport.KeyOutPortRef)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller.ref = ref
	return nil
}

// UnsubscribeInterface implements transport.OutPortConsumer
func (c *OutPortConsumer) UnsubscribeInterface(properties.Properties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller.ref = ""
}

// Close unmaps the provider's segment
func (c *OutPortConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller.ref = ""
	if c.seg == nil {
		return nil
	}
	err := c.seg.Close()
	c.seg = nil
	return err
}
