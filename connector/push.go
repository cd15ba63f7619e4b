package connector

import (
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// WriteListener replaces the buffer write of an in-port connector
type WriteListener func(data []byte) buffer.Status

// IsWritableListener replaces the writable probe of an in-port connector
type IsWritableListener func(c *InPortPushConnector, retry bool) bool

// InPortPushConnector receives pushed data from its provider into a buffer
// and hands it to the in-port on Read.
type InPortPushConnector struct {
	*base
	provider transport.InPortProvider
	buf      buffer.Buffer[[]byte]
	direct   *buffer.RingBuffer[any]
	hs       *handshake

	mu         sync.RWMutex
	onWrite    WriteListener
	onWritable IsWritableListener
}

// NewInPortPushConnector wires provider to a new connector and fires ON_CONNECT
func NewInPortPushConnector(cfg Config, provider transport.InPortProvider) (*InPortPushConnector, error) {
	if provider == nil {
		return nil, configError("InPortPushConnector", "provider")
	}
	b, err := newBase(&cfg, "inport-push-connector")
	if err != nil {
		return nil, err
	}
	buf, err := createBuffer(cfg)
	if err != nil {
		return nil, err
	}
	c := &InPortPushConnector{base: b, provider: provider, buf: buf}
	if cfg.Info.Properties.Bool(dataport.KeySyncReadWrite, false) {
		c.hs = newHandshake()
	}

	if err := provider.Init(cfg.Info.Properties); err != nil {
		b.logger.Error("Provider init failed", "error", err)
		return nil, err
	}
	provider.SetBuffer(buf)
	provider.SetListener(cfg.Info, cfg.Listeners)
	provider.SetConnector(c)

	if sink, ok := provider.(transport.DirectSink); ok {
		direct, err := buffer.NewRingBuffer[any](buffer.WithLength[any](buf.Length()))
		if err != nil {
			return nil, err
		}
		direct.Init(cfg.Info.Properties.Node("buffer"))
		c.direct = direct
		sink.SetDirectSink(c.writeDirect)
	}

	c.onConnect()
	return c, nil
}

// Buffer returns the connection buffer holding serialized data. Values
// pushed in direct mode skip serialization and are kept in DirectBuffer.
func (c *InPortPushConnector) Buffer() buffer.Buffer[[]byte] { return c.buf }

// DirectBuffer returns the buffer of values pushed in direct mode, or nil
// when the provider does not accept direct writes.
func (c *InPortPushConnector) DirectBuffer() buffer.Buffer[any] {
	if c.direct == nil {
		return nil
	}
	return c.direct
}

// Provider returns the provider
func (c *InPortPushConnector) Provider() transport.InPortProvider { return c.provider }

// SetWriteListener routes received data to fn instead of the buffer
func (c *InPortPushConnector) SetWriteListener(fn WriteListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWrite = fn
}

// SetIsWritableListener routes writable probes to fn
func (c *InPortPushConnector) SetIsWritableListener(fn IsWritableListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWritable = fn
}

// Write implements transport.InPortConnector
func (c *InPortPushConnector) Write(data []byte) buffer.Status {
	if c.Closed() {
		return buffer.StatusError
	}
	c.mu.RLock()
	fn := c.onWrite
	c.mu.RUnlock()
	if fn != nil {
		return fn(data)
	}
	if c.hs != nil {
		return c.hs.write(func() buffer.Status { return c.buf.Write(data, buffer.UseDefault) })
	}
	st := c.buf.Write(data, buffer.UseDefault)
	if st == buffer.StatusFull {
		c.warnf("Connector buffer full", "length", c.buf.Length())
	}
	return st
}

// IsWritable implements transport.InPortConnector
func (c *InPortPushConnector) IsWritable(retry bool) bool {
	if c.Closed() {
		return false
	}
	c.mu.RLock()
	fn := c.onWritable
	c.mu.RUnlock()
	if fn != nil {
		return fn(c, retry)
	}
	return !c.buf.Full()
}

// IsReadable reports whether Read would find data
func (c *InPortPushConnector) IsReadable(bool) bool {
	if c.Closed() {
		return false
	}
	return !c.buf.Empty() || (c.direct != nil && !c.direct.Empty())
}

func (c *InPortPushConnector) writeDirect(v any) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	switch st := c.direct.Write(v, buffer.UseDefault); st {
	case buffer.StatusOK:
		return dataport.PortOK
	case buffer.StatusFull:
		c.warnf("Connector buffer full", "length", c.direct.Length())
		return dataport.BufferFull
	case buffer.StatusTimeout:
		return dataport.BufferTimeout
	default:
		return dataport.PortError
	}
}

// ReadBuff takes the next serialized item from the buffer and converts the
// buffer outcome, firing ON_BUFFER_EMPTY or ON_BUFFER_READ_TIMEOUT.
func (c *InPortPushConnector) ReadBuff() ([]byte, dataport.Status) {
	if c.Closed() {
		return nil, dataport.ConnectionLost
	}
	read := func() ([]byte, buffer.Status) { return c.buf.Read(buffer.UseDefault) }
	var (
		data []byte
		st   buffer.Status
	)
	if c.hs != nil {
		data, st = c.hs.read(read)
	} else {
		data, st = read()
	}

	switch st {
	case buffer.StatusOK:
		return data, dataport.PortOK
	case buffer.StatusEmpty:
		c.listeners.Notify(listener.OnBufferEmpty, c.info)
		return nil, dataport.BufferEmpty
	case buffer.StatusTimeout:
		c.listeners.Notify(listener.OnBufferReadTimeout, c.info)
		return nil, dataport.BufferTimeout
	case buffer.StatusPreconditionNotMet:
		return nil, dataport.PreconditionNotMet
	default:
		return nil, dataport.PortError
	}
}

// Read stores the next item in out, which must be a pointer to the port's
// data type. Values written in direct mode are returned before serialized
// ones.
func (c *InPortPushConnector) Read(out any) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	if c.direct != nil && !c.direct.Empty() {
		if v, st := c.direct.Read(0); st == buffer.StatusOK {
			return c.record(assign(out, v))
		}
	}

	data, st := c.ReadBuff()
	if st != dataport.PortOK {
		return c.record(st)
	}
	_, data = c.listeners.NotifyData(listener.OnBufferRead, c.info, data)
	return c.record(c.DeserializeData(data, out))
}

func (c *InPortPushConnector) record(st dataport.Status) dataport.Status {
	c.metrics.RecordRead(c.info.Name, st.String())
	return st
}

// Activate implements Connector; in-port connectors have no task
func (c *InPortPushConnector) Activate() {}

// Deactivate implements Connector
func (c *InPortPushConnector) Deactivate() {}

// Disconnect fires ON_DISCONNECT and releases the provider. Later calls are
// no-ops.
func (c *InPortPushConnector) Disconnect() dataport.Status {
	if !c.close() {
		return dataport.PortOK
	}
	if c.hs != nil {
		c.hs.close()
	}
	if sink, ok := c.provider.(transport.DirectSink); ok {
		sink.SetDirectSink(nil)
	}
	if err := c.provider.Close(); err != nil {
		c.logger.Warn("Provider close failed", "error", err)
	}
	if c.direct != nil {
		_ = c.direct.Close()
	}
	_ = c.buf.Close()
	return dataport.PortOK
}

// OutPortPushConnector serializes port data and hands it to a publisher that
// pushes it through the consumer.
type OutPortPushConnector struct {
	*base
	consumer  transport.InPortConsumer
	publisher Publisher
	buf       buffer.Buffer[[]byte]
}

// NewOutPortPushConnector wires consumer to a new connector and fires
// ON_CONNECT. The publisher is chosen by dataport.io_mode, or else by
// dataport.subscription_type.
func NewOutPortPushConnector(cfg Config, consumer transport.InPortConsumer) (*OutPortPushConnector, error) {
	if consumer == nil {
		return nil, configError("OutPortPushConnector", "consumer")
	}
	if cfg.Publishers == nil {
		return nil, configError("OutPortPushConnector", "publisher registry")
	}
	b, err := newBase(&cfg, "outport-push-connector")
	if err != nil {
		return nil, err
	}
	props := cfg.Info.Properties
	publisher, err := cfg.Publishers.Create(publisherName(props))
	if err != nil {
		b.logger.Error("Publisher creation failed", "error", err)
		return nil, err
	}
	buf, err := createBuffer(cfg)
	if err != nil {
		return nil, err
	}

	if err := publisher.Init(props); err != nil {
		_ = publisher.Close()
		return nil, err
	}
	if err := consumer.Init(props); err != nil {
		_ = publisher.Close()
		b.logger.Error("Consumer init failed", "error", err)
		return nil, err
	}
	consumer.SetListener(cfg.Info, cfg.Listeners)
	publisher.SetConsumer(consumer)
	publisher.SetBuffer(buf)
	publisher.SetListener(cfg.Info, cfg.Listeners)
	publisher.Activate()

	c := &OutPortPushConnector{base: b, consumer: consumer, publisher: publisher, buf: buf}
	c.onConnect()
	return c, nil
}

// Buffer returns the staging buffer of asynchronous publishers
func (c *OutPortPushConnector) Buffer() buffer.Buffer[[]byte] { return c.buf }

// Consumer returns the consumer
func (c *OutPortPushConnector) Consumer() transport.InPortConsumer { return c.consumer }

// Write sends v. When the consumer reaches an in-process peer with a direct
// sink, v is handed over unserialized.
func (c *OutPortPushConnector) Write(v any) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	if dw, ok := c.consumer.(transport.DirectWriter); ok {
		if st, direct := dw.WriteDirect(v); direct {
			return c.record(st)
		}
	}
	data, st := c.SerializeData(v)
	if st != dataport.PortOK {
		return c.record(st)
	}
	return c.record(c.publisher.Write(data, buffer.UseDefault))
}

// WriteData sends already serialized data through the publisher
func (c *OutPortPushConnector) WriteData(data []byte) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	return c.record(c.publisher.Write(data, buffer.UseDefault))
}

// IsWritable asks the consumer whether its peer accepts data
func (c *OutPortPushConnector) IsWritable(retry bool) bool {
	if c.Closed() {
		return false
	}
	return c.consumer.IsWritable(retry)
}

func (c *OutPortPushConnector) record(st dataport.Status) dataport.Status {
	c.metrics.RecordWrite(c.info.Name, st.String())
	switch st {
	case dataport.PortOK:
	case dataport.BufferFull, dataport.SendFull, dataport.BufferTimeout, dataport.SendTimeout:
		c.logger.Debug("Write not accepted", "status", st.String())
	default:
		c.warnf("Write failed", "status", st.String())
	}
	return st
}

// Activate resumes the publisher task
func (c *OutPortPushConnector) Activate() { c.publisher.Activate() }

// Deactivate pauses the publisher task
func (c *OutPortPushConnector) Deactivate() { c.publisher.Deactivate() }

// Disconnect fires ON_DISCONNECT, stops the publisher and releases the
// consumer. Later calls are no-ops.
func (c *OutPortPushConnector) Disconnect() dataport.Status {
	if !c.close() {
		return dataport.PortOK
	}
	if err := c.publisher.Close(); err != nil {
		c.logger.Warn("Publisher close failed", "error", err)
	}
	c.consumer.UnsubscribeInterface(c.info.Properties)
	if err := c.consumer.Close(); err != nil {
		c.logger.Warn("Consumer close failed", "error", err)
	}
	_ = c.buf.Close()
	return dataport.PortOK
}
