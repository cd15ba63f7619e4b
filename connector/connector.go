// Package connector binds a port to one transport pair and a buffer.
//
// Four connectors cover both dataflow directions on both sides of a
// connection:
//
//	push: OutPortPushConnector --publisher--> InPortConsumer ~~> InPortProvider --> InPortPushConnector
//	pull: OutPortPullConnector <-- OutPortProvider <~~ OutPortConsumer <-- InPortPullConnector
//
// Connectors serialize on the out-port side and deserialize on the in-port
// side with a codec chosen by dataport.marshaling_type. Every data-path call
// returns a dataport.Status. Disconnect is idempotent; a disconnected
// connector answers CONNECTION_LOST.
package connector

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
)

// Connector is the part every connector shares
type Connector interface {
	ID() string
	Name() string
	Profile() dataport.ConnectorInfo
	Buffer() buffer.Buffer[[]byte]
	Disconnect() dataport.Status
	Activate()
	Deactivate()
}

// OutPortConnector is an out-port side connector
type OutPortConnector interface {
	Connector
	Write(v any) dataport.Status
}

// InPortConnector is an in-port side connector
type InPortConnector interface {
	Connector
	Read(out any) dataport.Status
	IsReadable(retry bool) bool
}

// Config carries what a connector is built from.
type Config struct {
	Info      dataport.ConnectorInfo
	Listeners *listener.ConnectorListeners

	// Buffer is used as is when set; otherwise one is created from
	// buffer_type through Buffers.
	Buffer  buffer.Buffer[[]byte]
	Buffers *buffer.Registry[[]byte]

	Serializers *serializer.Registry
	// Publishers is required by OutPortPushConnector
	Publishers *Publishers

	// DataType is a sample value of the port's data type. The codec is
	// created from it; SetDataType may supply it later.
	DataType any

	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// base holds the profile, codec and lifecycle shared by all connectors
type base struct {
	info      dataport.ConnectorInfo
	listeners *listener.ConnectorListeners
	logger    *slog.Logger
	metrics   *metric.Metrics

	serializers *serializer.Registry
	endian      cdr.Endian
	codecMu     sync.RWMutex
	codec       serializer.Serializer

	closed atomic.Bool
	warn   *rate.Limiter
}

func newBase(cfg *Config, kind string) (*base, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Listeners == nil {
		cfg.Listeners = listener.NewConnectorListeners()
	}
	if cfg.Info.Properties == nil {
		cfg.Info = dataport.NewConnectorInfo(cfg.Info.Name, cfg.Info.ID, cfg.Info.Ports, nil)
	}
	b := &base{
		info:        cfg.Info,
		listeners:   cfg.Listeners,
		metrics:     cfg.Metrics,
		serializers: cfg.Serializers,
		logger: cfg.Logger.With(
			"component", kind,
			"connector", cfg.Info.Name,
			"connector_id", cfg.Info.ID),
		warn: rate.NewLimiter(rate.Every(time.Second), 1),
	}

	endian, err := dataport.ParseEndian(cfg.Info.Properties)
	if err != nil {
		b.logger.Error("Connector endian is not configured", "error", err)
		return nil, err
	}
	if endian == cdr.EndianUnset {
		b.logger.Error("Unsupported endian in connector profile", "endian", cfg.Info.Properties.Get(dataport.KeyEndian))
	}
	b.endian = endian

	if cfg.DataType != nil {
		if err := b.SetDataType(cfg.DataType); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ID returns the connector id
func (b *base) ID() string { return b.info.ID }

// Name returns the connector name
func (b *base) Name() string { return b.info.Name }

// Profile returns the connector profile
func (b *base) Profile() dataport.ConnectorInfo { return b.info }

// Endian returns the byte order used by the codec
func (b *base) Endian() cdr.Endian { return b.endian }

// SetDataType creates the codec for the type of sample
func (b *base) SetDataType(sample any) error {
	if b.serializers == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Connector", "SetDataType", "serializer registry")
	}
	codec, err := b.serializers.CreateSerializer(b.info.MarshalingType(), sample)
	if err != nil {
		b.logger.Error("Serializer creation failed",
			"marshaling_type", b.info.MarshalingType(),
			"error", err)
		return err
	}
	codec.SetEndian(b.endian)

	b.codecMu.Lock()
	b.codec = codec
	b.codecMu.Unlock()
	return nil
}

func (b *base) currentCodec() serializer.Serializer {
	b.codecMu.RLock()
	defer b.codecMu.RUnlock()
	return b.codec
}

// SerializeData encodes v with the connector codec. Every codec failure is
// UNKNOWN_ERROR.
func (b *base) SerializeData(v any) ([]byte, dataport.Status) {
	codec := b.currentCodec()
	if codec == nil {
		b.logger.Error("Serializer is not created")
		return nil, dataport.UnknownError
	}
	data, st := codec.Serialize(v)
	if st != serializer.StatusOK {
		b.logger.Error("Serialize failed", "status", st.String(), "marshaling_type", b.info.MarshalingType())
		return nil, st.PortStatus()
	}
	return data, dataport.PortOK
}

// DeserializeData decodes data into out, which must be a pointer
func (b *base) DeserializeData(data []byte, out any) dataport.Status {
	codec := b.currentCodec()
	if codec == nil {
		b.logger.Error("Serializer is not created")
		return dataport.UnknownError
	}
	if st := codec.Deserialize(data, out); st != serializer.StatusOK {
		b.logger.Error("Deserialize failed", "status", st.String(), "marshaling_type", b.info.MarshalingType())
		return st.PortStatus()
	}
	return dataport.PortOK
}

func (b *base) onConnect() {
	b.listeners.Notify(listener.OnConnect, b.info)
	b.metrics.RecordConnectorOpened(b.info.InterfaceType())
	b.logger.Debug("Connector connected", "interface_type", b.info.InterfaceType())
}

// close marks the connector inert; it reports false when it already was
func (b *base) close() bool {
	if !b.closed.CompareAndSwap(false, true) {
		return false
	}
	b.listeners.Notify(listener.OnDisconnect, b.info)
	b.metrics.RecordConnectorClosed(b.info.InterfaceType())
	b.logger.Debug("Connector disconnected")
	return true
}

// Closed reports whether Disconnect was called
func (b *base) Closed() bool { return b.closed.Load() }

// warnf logs a data-path fault at most once a second
func (b *base) warnf(msg string, args ...any) {
	if b.warn.Allow() {
		b.logger.Warn(msg, args...)
	}
}

func createBuffer(cfg Config) (buffer.Buffer[[]byte], error) {
	buf := cfg.Buffer
	if buf == nil {
		if cfg.Buffers == nil {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Connector", "createBuffer", "buffer registry")
		}
		var err error
		name := cfg.Info.Properties.Get(dataport.KeyBufferType, buffer.RingBufferName)
		buf, err = cfg.Buffers.Create(name, cfg.Info.ID)
		if err != nil {
			return nil, err
		}
	}
	buf.Init(cfg.Info.Properties.Node("buffer"))
	return buf, nil
}

// assign stores v in the value out points to
func assign(out, v any) dataport.Status {
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return dataport.InvalidArgs
	}
	src := reflect.ValueOf(v)
	if src.Kind() == reflect.Pointer && src.Type() == dst.Type() {
		src = src.Elem()
	}
	if !src.IsValid() || !src.Type().AssignableTo(dst.Elem().Type()) {
		return dataport.InvalidArgs
	}
	dst.Elem().Set(src)
	return dataport.PortOK
}

// handshake lines a single writer up with a single reader when
// sync_readwrite is set: the writer waits for a reader, and both return
// once the written item has been read.
type handshake struct {
	mu        sync.Mutex
	cond      *sync.Cond
	readReady bool
	written   bool
	reads     uint64
	closed    bool
}

func newHandshake() *handshake {
	h := &handshake{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *handshake) write(fn func() buffer.Status) buffer.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.readReady && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return buffer.StatusError
	}
	st := fn()
	h.written = true
	gen := h.reads
	h.cond.Broadcast()
	for h.reads == gen && !h.closed {
		h.cond.Wait()
	}
	return st
}

func (h *handshake) read(fn func() ([]byte, buffer.Status)) ([]byte, buffer.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readReady = true
	h.cond.Broadcast()
	for !h.written && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return nil, buffer.StatusError
	}
	h.written = false
	data, st := fn()
	h.readReady = false
	h.reads++
	h.cond.Broadcast()
	return data, st
}

func (h *handshake) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

func configError(kind, what string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrMissingConfig, what), kind, "New", "wiring")
}
