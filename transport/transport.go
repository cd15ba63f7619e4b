// Package transport defines the provider and consumer roles that move
// serialized port data across a connection, and the registry that creates
// them by interface type.
//
// A push connection pairs an InPortConsumer on the out-port side with an
// InPortProvider on the in-port side. A pull connection pairs an
// OutPortConsumer on the in-port side with an OutPortProvider on the out-port
// side. Every data-path call returns a dataport.Status; faults from the
// carrier, codecs or listeners never escape as panics or raw errors.
package transport

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// InPortConnector is the in-port side of a push connection as seen by its
// provider.
type InPortConnector interface {
	// Write stores received data in the connection buffer
	Write(data []byte) buffer.Status
	// IsWritable reports whether Write would be accepted now
	IsWritable(retry bool) bool
}

// OutPortConnector is the out-port side of a pull connection as seen by its
// provider.
type OutPortConnector interface {
	// Read takes the next item from the connection buffer
	Read() ([]byte, buffer.Status)
	// IsReadable reports whether Read would return data now
	IsReadable(retry bool) bool
}

// InPortProvider receives pushed data on the in-port side.
//
// SetBuffer, SetListener and SetConnector are wiring calls made once while
// the connector is built, before any data flows.
type InPortProvider interface {
	Init(props properties.Properties) error
	SetBuffer(b buffer.Buffer[[]byte])
	SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners)
	SetConnector(c InPortConnector)
	// PublishInterface adds what a consumer needs to reach this provider
	// (an object reference, a topic) to the connection properties.
	PublishInterface(props properties.Properties) error
	Close() error
}

// InPortConsumer pushes data from the out-port side to a remote provider.
type InPortConsumer interface {
	Init(props properties.Properties) error
	SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners)
	Put(data []byte) dataport.Status
	IsWritable(retry bool) bool
	// SubscribeInterface locates the provider from the connection properties
	SubscribeInterface(props properties.Properties) error
	UnsubscribeInterface(props properties.Properties)
	Close() error
}

// OutPortProvider serves pulled data on the out-port side.
type OutPortProvider interface {
	Init(props properties.Properties) error
	SetBuffer(b buffer.Buffer[[]byte])
	SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners)
	SetConnector(c OutPortConnector)
	PublishInterface(props properties.Properties) error
	Close() error
}

// OutPortConsumer pulls data from a remote provider on the in-port side.
// Received data is also stored in the consumer's buffer.
type OutPortConsumer interface {
	Init(props properties.Properties) error
	SetBuffer(b buffer.Buffer[[]byte])
	SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners)
	Get() (dataport.Status, []byte)
	IsReadable(retry bool) bool
	SubscribeInterface(props properties.Properties) error
	UnsubscribeInterface(props properties.Properties)
	Close() error
}

// DirectSink is implemented by in-process providers that accept values
// without serialization. The in-port connector installs the sink.
type DirectSink interface {
	SetDirectSink(fn func(v any) dataport.Status)
}

// DirectWriter is implemented by consumers whose provider lives in the same
// process. ok is false when the peer has no sink installed and the value
// must travel serialized.
type DirectWriter interface {
	WriteDirect(v any) (st dataport.Status, ok bool)
}
