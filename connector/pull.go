package connector

import (
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// ReadListener replaces the buffer read of an out-port pull connector
type ReadListener func() ([]byte, buffer.Status)

// IsReadableListener replaces the readable probe of an out-port pull connector
type IsReadableListener func(c *OutPortPullConnector, retry bool) bool

// OutPortPullConnector keeps written data in its buffer until the remote
// in-port pulls it through the provider.
type OutPortPullConnector struct {
	*base
	provider transport.OutPortProvider
	buf      buffer.Buffer[[]byte]
	hs       *handshake

	mu         sync.RWMutex
	onRead     ReadListener
	onReadable IsReadableListener
}

// NewOutPortPullConnector wires provider to a new connector and fires ON_CONNECT
func NewOutPortPullConnector(cfg Config, provider transport.OutPortProvider) (*OutPortPullConnector, error) {
	if provider == nil {
		return nil, configError("OutPortPullConnector", "provider")
	}
	b, err := newBase(&cfg, "outport-pull-connector")
	if err != nil {
		return nil, err
	}
	buf, err := createBuffer(cfg)
	if err != nil {
		return nil, err
	}
	c := &OutPortPullConnector{base: b, provider: provider, buf: buf}
	if cfg.Info.Properties.Bool(dataport.KeySyncReadWrite, false) {
		c.hs = newHandshake()
	}

	if err := provider.Init(cfg.Info.Properties); err != nil {
		b.logger.Error("Provider init failed", "error", err)
		return nil, err
	}
	provider.SetBuffer(buf)
	provider.SetConnector(c)
	provider.SetListener(cfg.Info, cfg.Listeners)

	c.onConnect()
	return c, nil
}

// Buffer returns the connection buffer
func (c *OutPortPullConnector) Buffer() buffer.Buffer[[]byte] { return c.buf }

// Provider returns the provider
func (c *OutPortPullConnector) Provider() transport.OutPortProvider { return c.provider }

// SetReadListener routes pulls to fn instead of the buffer
func (c *OutPortPullConnector) SetReadListener(fn ReadListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRead = fn
}

// SetIsReadableListener routes readable probes to fn
func (c *OutPortPullConnector) SetIsReadableListener(fn IsReadableListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReadable = fn
}

// Write serializes v into the buffer for the next pull
func (c *OutPortPullConnector) Write(v any) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	data, st := c.SerializeData(v)
	if st != dataport.PortOK {
		return c.record(st)
	}
	return c.WriteData(data)
}

// WriteData stores serialized data for the next pull
func (c *OutPortPullConnector) WriteData(data []byte) dataport.Status {
	if c.Closed() {
		return dataport.ConnectionLost
	}
	write := func() buffer.Status { return c.buf.Write(data, buffer.UseDefault) }
	var st buffer.Status
	if c.hs != nil {
		st = c.hs.write(write)
	} else {
		st = write()
	}

	switch st {
	case buffer.StatusOK:
		c.listeners.NotifyData(listener.OnBufferWrite, c.info, data)
		return c.record(dataport.PortOK)
	case buffer.StatusFull:
		c.listeners.NotifyData(listener.OnBufferFull, c.info, data)
		return c.record(dataport.BufferFull)
	case buffer.StatusTimeout:
		c.listeners.NotifyData(listener.OnBufferWriteTimeout, c.info, data)
		return c.record(dataport.BufferTimeout)
	default:
		return c.record(dataport.PortError)
	}
}

// Read implements transport.OutPortConnector. An empty buffer reports
// BUFFER_EMPTY whatever its empty policy.
func (c *OutPortPullConnector) Read() ([]byte, buffer.Status) {
	if c.Closed() {
		return nil, buffer.StatusError
	}
	c.mu.RLock()
	fn := c.onRead
	c.mu.RUnlock()
	if fn != nil {
		return fn()
	}

	read := func() ([]byte, buffer.Status) {
		if c.buf.Empty() {
			return nil, buffer.StatusEmpty
		}
		return c.buf.Read(0)
	}
	if c.hs != nil {
		return c.hs.read(read)
	}
	return read()
}

// IsReadable implements transport.OutPortConnector
func (c *OutPortPullConnector) IsReadable(retry bool) bool {
	if c.Closed() {
		return false
	}
	c.mu.RLock()
	fn := c.onReadable
	c.mu.RUnlock()
	if fn != nil {
		return fn(c, retry)
	}
	return !c.buf.Empty()
}

func (c *OutPortPullConnector) record(st dataport.Status) dataport.Status {
	c.metrics.RecordWrite(c.info.Name, st.String())
	if !st.OK() {
		c.warnf("Write failed", "status", st.String())
	}
	return st
}

// Activate implements Connector
func (c *OutPortPullConnector) Activate() {}

// Deactivate implements Connector
func (c *OutPortPullConnector) Deactivate() {}

// Disconnect fires ON_DISCONNECT and releases the provider. Later calls are
// no-ops.
func (c *OutPortPullConnector) Disconnect() dataport.Status {
	if !c.close() {
		return dataport.PortOK
	}
	if c.hs != nil {
		c.hs.close()
	}
	if err := c.provider.Close(); err != nil {
		c.logger.Warn("Provider close failed", "error", err)
	}
	_ = c.buf.Close()
	return dataport.PortOK
}

// InPortPullConnector pulls data from the remote out-port on every Read.
type InPortPullConnector struct {
	*base
	consumer transport.OutPortConsumer
	buf      buffer.Buffer[[]byte]
}

// NewInPortPullConnector wires consumer to a new connector and fires ON_CONNECT
func NewInPortPullConnector(cfg Config, consumer transport.OutPortConsumer) (*InPortPullConnector, error) {
	if consumer == nil {
		return nil, configError("InPortPullConnector", "consumer")
	}
	b, err := newBase(&cfg, "inport-pull-connector")
	if err != nil {
		return nil, err
	}
	buf, err := createBuffer(cfg)
	if err != nil {
		return nil, err
	}

	if err := consumer.Init(cfg.Info.Properties); err != nil {
		b.logger.Error("Consumer init failed", "error", err)
		return nil, err
	}
	consumer.SetBuffer(buf)
	consumer.SetListener(cfg.Info, cfg.Listeners)

	c := &InPortPullConnector{base: b, consumer: consumer, buf: buf}
	c.onConnect()
	return c, nil
}

// Buffer returns the buffer holding the last pulled item
func (c *InPortPullConnector) Buffer() buffer.Buffer[[]byte] { return c.buf }

// Consumer returns the consumer
func (c *InPortPullConnector) Consumer() transport.OutPortConsumer { return c.consumer }

// ReadBuff pulls the next serialized item
func (c *InPortPullConnector) ReadBuff() ([]byte, dataport.Status) {
	if c.Closed() {
		return nil, dataport.ConnectionLost
	}
	st, data := c.consumer.Get()
	return data, st
}

// Read pulls the next item into out, which must be a pointer to the port's
// data type.
func (c *InPortPullConnector) Read(out any) dataport.Status {
	data, st := c.ReadBuff()
	if st != dataport.PortOK {
		return c.record(st)
	}
	return c.record(c.DeserializeData(data, out))
}

// IsReadable asks the consumer whether the remote side has data
func (c *InPortPullConnector) IsReadable(retry bool) bool {
	if c.Closed() {
		return false
	}
	return c.consumer.IsReadable(retry)
}

func (c *InPortPullConnector) record(st dataport.Status) dataport.Status {
	c.metrics.RecordRead(c.info.Name, st.String())
	if st == dataport.ConnectionLost || st == dataport.UnknownError {
		c.warnf("Read failed", "status", st.String())
	}
	return st
}

// Activate implements Connector
func (c *InPortPullConnector) Activate() {}

// Deactivate implements Connector
func (c *InPortPullConnector) Deactivate() {}

// Disconnect fires ON_DISCONNECT and releases the consumer. Later calls are
// no-ops.
func (c *InPortPullConnector) Disconnect() dataport.Status {
	if !c.close() {
		return dataport.PortOK
	}
	c.consumer.UnsubscribeInterface(c.info.Properties)
	if err := c.consumer.Close(); err != nil {
		c.logger.Warn("Consumer close failed", "error", err)
	}
	_ = c.buf.Close()
	return dataport.PortOK
}

var (
	_ OutPortConnector           = (*OutPortPushConnector)(nil)
	_ OutPortConnector           = (*OutPortPullConnector)(nil)
	_ InPortConnector            = (*InPortPushConnector)(nil)
	_ InPortConnector            = (*InPortPullConnector)(nil)
	_ transport.InPortConnector  = (*InPortPushConnector)(nil)
	_ transport.OutPortConnector = (*OutPortPullConnector)(nil)
)
