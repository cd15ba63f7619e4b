// Package listener implements the connector callback hooks fired along the
// data path: buffer writes and reads, sends, receives and connection events.
package listener

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
)

// ReturnCode tells the caller what a listener changed
type ReturnCode int

// Listener results; they combine as bit flags
const (
	NoChange    ReturnCode = 0
	InfoChanged ReturnCode = 1 << 0
	DataChanged ReturnCode = 1 << 1
	BothChanged            = InfoChanged | DataChanged
)

func (r ReturnCode) String() string {
	switch r {
	case NoChange:
		return "NO_CHANGE"
	case InfoChanged:
		return "INFO_CHANGED"
	case DataChanged:
		return "DATA_CHANGED"
	case BothChanged:
		return "BOTH_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// ChangesData reports whether the data flag is set
func (r ReturnCode) ChangesData() bool { return r&DataChanged != 0 }

// DataListenerType enumerates the points where data listeners fire
type DataListenerType int

// Data listener points
const (
	OnBufferWrite DataListenerType = iota
	OnBufferFull
	OnBufferWriteTimeout
	OnBufferOverwrite
	OnBufferRead
	OnSend
	OnReceived
	OnReceiverFull
	OnReceiverTimeout
	OnReceiverError
	DataListenerNum
)

var dataListenerNames = [...]string{
	"ON_BUFFER_WRITE",
	"ON_BUFFER_FULL",
	"ON_BUFFER_WRITE_TIMEOUT",
	"ON_BUFFER_OVERWRITE",
	"ON_BUFFER_READ",
	"ON_SEND",
	"ON_RECEIVED",
	"ON_RECEIVER_FULL",
	"ON_RECEIVER_TIMEOUT",
	"ON_RECEIVER_ERROR",
}

func (t DataListenerType) String() string {
	if t < 0 || t >= DataListenerNum {
		return ""
	}
	return dataListenerNames[t]
}

// ListenerType enumerates the points where plain listeners fire
type ListenerType int

// Plain listener points
const (
	OnBufferEmpty ListenerType = iota
	OnBufferReadTimeout
	OnSenderEmpty
	OnSenderTimeout
	OnSenderError
	OnConnect
	OnDisconnect
	ListenerNum
)

var listenerNames = [...]string{
	"ON_BUFFER_EMPTY",
	"ON_BUFFER_READ_TIMEOUT",
	"ON_SENDER_EMPTY",
	"ON_SENDER_TIMEOUT",
	"ON_SENDER_ERROR",
	"ON_CONNECT",
	"ON_DISCONNECT",
}

func (t ListenerType) String() string {
	if t < 0 || t >= ListenerNum {
		return ""
	}
	return listenerNames[t]
}

// PortType tells a typed listener which marshaling override applies
type PortType int

// Port sides
const (
	OutPortType PortType = iota
	InPortType
)

// DataListener receives the serialized payload and may replace it by
// returning DataChanged with new bytes.
type DataListener interface {
	OnData(info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte)
}

// DataListenerFunc adapts a function to DataListener
type DataListenerFunc func(info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte)

// OnData calls f
func (f DataListenerFunc) OnData(info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
	return f(info, data)
}

// Listener receives connection events without data
type Listener interface {
	OnEvent(info dataport.ConnectorInfo) ReturnCode
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(info dataport.ConnectorInfo) ReturnCode

// OnEvent calls f
func (f ListenerFunc) OnEvent(info dataport.ConnectorInfo) ReturnCode {
	return f(info)
}
