package listener

import (
	"log/slog"
	"sync/atomic"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// ConnectorListeners holds one data holder per DataListenerType and one plain
// holder per ListenerType. A port owns one and shares it with its connectors.
type ConnectorListeners struct {
	data    [DataListenerNum]*DataListenerHolder
	plain   [ListenerNum]*ListenerHolder
	nextID  atomic.Uint64
	metrics *metric.Metrics
}

// Option configures ConnectorListeners
type Option func(*ConnectorListeners)

// WithLogger sets the logger used to report panicking listeners
func WithLogger(logger *slog.Logger) Option {
	return func(c *ConnectorListeners) {
		l := logger.With("component", "connector-listeners")
		for _, h := range c.data {
			h.logger = l
		}
		for _, h := range c.plain {
			h.logger = l
		}
	}
}

// WithMetrics counts every notification that reaches at least one listener
func WithMetrics(m *metric.Metrics) Option {
	return func(c *ConnectorListeners) {
		c.metrics = m
	}
}

// NewConnectorListeners creates empty holders for every event type
func NewConnectorListeners(opts ...Option) *ConnectorListeners {
	c := &ConnectorListeners{}
	logger := slog.Default().With("component", "connector-listeners")
	for i := range c.data {
		c.data[i] = &DataListenerHolder{logger: logger}
	}
	for i := range c.plain {
		c.plain[i] = &ListenerHolder{logger: logger}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddDataListener registers l for t and returns the handle that removes it.
// ok is false for an unknown type.
func (c *ConnectorListeners) AddDataListener(t DataListenerType, l DataListener) (id ID, ok bool) {
	if t < 0 || t >= DataListenerNum || l == nil {
		return 0, false
	}
	id = ID(c.nextID.Add(1))
	c.data[t].add(id, l)
	return id, true
}

// RemoveDataListener removes the registration id from t. It reports false
// when id is not registered there.
func (c *ConnectorListeners) RemoveDataListener(t DataListenerType, id ID) bool {
	if t < 0 || t >= DataListenerNum {
		return false
	}
	return c.data[t].remove(id)
}

// AddListener registers l for t and returns the handle that removes it.
// ok is false for an unknown type.
func (c *ConnectorListeners) AddListener(t ListenerType, l Listener) (id ID, ok bool) {
	if t < 0 || t >= ListenerNum || l == nil {
		return 0, false
	}
	id = ID(c.nextID.Add(1))
	c.plain[t].add(id, l)
	return id, true
}

// RemoveListener removes the registration id from t. It reports false when
// id is not registered there.
func (c *ConnectorListeners) RemoveListener(t ListenerType, id ID) bool {
	if t < 0 || t >= ListenerNum {
		return false
	}
	return c.plain[t].remove(id)
}

// DataListenerCount returns the number of listeners registered for t
func (c *ConnectorListeners) DataListenerCount(t DataListenerType) int {
	if t < 0 || t >= DataListenerNum {
		return 0
	}
	return c.data[t].len()
}

// ListenerCount returns the number of listeners registered for t
func (c *ConnectorListeners) ListenerCount(t ListenerType) int {
	if t < 0 || t >= ListenerNum {
		return 0
	}
	return c.plain[t].len()
}

// NotifyData threads data through the listeners of t. With no listeners the
// data is returned untouched.
func (c *ConnectorListeners) NotifyData(t DataListenerType, info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
	if c == nil || t < 0 || t >= DataListenerNum {
		return NoChange, data
	}
	h := c.data[t]
	if h.len() == 0 {
		return NoChange, data
	}
	c.metrics.RecordListener(t.String())
	return h.Notify(info, data)
}

// Notify calls the listeners of t
func (c *ConnectorListeners) Notify(t ListenerType, info dataport.ConnectorInfo) ReturnCode {
	if c == nil || t < 0 || t >= ListenerNum {
		return NoChange
	}
	h := c.plain[t]
	if h.len() == 0 {
		return NoChange
	}
	c.metrics.RecordListener(t.String())
	return h.Notify(info)
}
