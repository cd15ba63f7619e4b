// Package port implements typed data ports and the negotiation that builds
// a connector on each side of a connection.
//
// A connection is made between one OutPort[T] and one InPort[T]. The side
// that owns the provider publishes its interface into the shared connection
// properties first; the other side then creates its consumer and subscribes
// to what was published:
//
//	push: in-port publishes (InPortProvider), out-port subscribes (InPortConsumer)
//	pull: out-port publishes (OutPortProvider), in-port subscribes (OutPortConsumer)
package port

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Deps are the registries ports build connectors from
type Deps struct {
	Transports  *transport.Registry
	Buffers     *buffer.Registry[[]byte]
	Serializers *serializer.Registry
	Publishers  *connector.Publishers
	Logger      *slog.Logger
	Metrics     *metric.Metrics
}

// Profile describes a port and its live connections
type Profile struct {
	Name       string                   `json:"name"`
	Direction  Direction                `json:"direction"`
	DataType   string                   `json:"data_type"`
	Properties properties.Properties    `json:"properties"`
	Connectors []dataport.ConnectorInfo `json:"connectors"`
}

// Port is the untyped view of InPort[T] and OutPort[T]
type Port interface {
	Name() string
	Direction() Direction
	Profile() Profile
	Connectors() []connector.Connector
	Disconnect(id string) dataport.Status
	DisconnectAll()
	Activate()
	Deactivate()
}

// Option configures a port
type Option func(*options)

type options struct {
	props     properties.Properties
	listeners *listener.ConnectorListeners
	connected func(connector.Connector)
}

// WithProperties sets port-level connection defaults. Connection properties
// passed to Connect override them.
func WithProperties(props properties.Properties) Option {
	return func(o *options) { o.props = props }
}

// WithListeners shares listeners across every connector of the port
func WithListeners(ls *listener.ConnectorListeners) Option {
	return func(o *options) { o.listeners = ls }
}

// OnConnected runs fn for every connector added to the port, before the
// connection is reported to the caller.
func OnConnected(fn func(connector.Connector)) Option {
	return func(o *options) { o.connected = fn }
}

// base holds the connector list shared by both port kinds
type base struct {
	name     string
	dir      Direction
	dataType string
	deps     Deps
	opts     options
	logger   *slog.Logger

	mu    sync.RWMutex
	conns []connector.Connector
}

func newBase(name string, dir Direction, dataType string, deps Deps, opts []Option) base {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.props == nil {
		o.props = properties.New()
	}
	if o.listeners == nil {
		o.listeners = listener.NewConnectorListeners()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return base{
		name:     name,
		dir:      dir,
		dataType: dataType,
		deps:     deps,
		opts:     o,
		logger:   deps.Logger.With("component", "port", "port", name, "direction", string(dir)),
	}
}

// Name returns the port name
func (b *base) Name() string { return b.name }

// Direction returns the port direction
func (b *base) Direction() Direction { return b.dir }

// DataType returns the repository id of the port's data type
func (b *base) DataType() string { return b.dataType }

// Properties returns the port-level connection defaults
func (b *base) Properties() properties.Properties { return b.opts.props }

// Listeners returns the listeners shared by the port's connectors
func (b *base) Listeners() *listener.ConnectorListeners { return b.opts.listeners }

// Profile returns the port profile
func (b *base) Profile() Profile {
	b.mu.RLock()
	defer b.mu.RUnlock()
	infos := make([]dataport.ConnectorInfo, 0, len(b.conns))
	for _, c := range b.conns {
		infos = append(infos, c.Profile())
	}
	return Profile{
		Name:       b.name,
		Direction:  b.dir,
		DataType:   b.dataType,
		Properties: b.opts.props.Clone(),
		Connectors: infos,
	}
}

// Connectors returns the live connectors in connection order
func (b *base) Connectors() []connector.Connector {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.conns)
}

// Connector returns the connector with the given id
func (b *base) Connector(id string) (connector.Connector, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.conns {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

func (b *base) add(c connector.Connector) {
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()
	if b.opts.connected != nil {
		b.opts.connected(c)
	}
	b.logger.Debug("Connector added", "connector", c.Name(), "connector_id", c.ID())
}

func (b *base) remove(id string) connector.Connector {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.conns {
		if c.ID() == id {
			b.conns = slices.Delete(b.conns, i, i+1)
			return c
		}
	}
	return nil
}

// Disconnect removes and disconnects the connector with the given id
func (b *base) Disconnect(id string) dataport.Status {
	c := b.remove(id)
	if c == nil {
		return dataport.PreconditionNotMet
	}
	st := c.Disconnect()
	b.logger.Debug("Connector removed", "connector", c.Name(), "connector_id", id)
	return st
}

// DisconnectAll disconnects every connector of the port
func (b *base) DisconnectAll() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		c.Disconnect()
	}
}

// Activate resumes every connector
func (b *base) Activate() {
	for _, c := range b.Connectors() {
		c.Activate()
	}
}

// Deactivate pauses every connector
func (b *base) Deactivate() {
	for _, c := range b.Connectors() {
		c.Deactivate()
	}
}

func (b *base) config(info dataport.ConnectorInfo, sample any) connector.Config {
	return connector.Config{
		Info:        info,
		Listeners:   b.opts.listeners,
		Buffers:     b.deps.Buffers,
		Serializers: b.deps.Serializers,
		Publishers:  b.deps.Publishers,
		DataType:    sample,
		Logger:      b.deps.Logger,
		Metrics:     b.deps.Metrics,
	}
}
