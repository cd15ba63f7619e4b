package transport

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
)

// Notifier fires the connector listeners of one connection and converts
// buffer outcomes into port statuses. Providers and consumers embed it.
// The zero value fires nothing.
type Notifier struct {
	info      dataport.ConnectorInfo
	listeners *listener.ConnectorListeners
}

// SetListener implements the SetListener role method
func (n *Notifier) SetListener(info dataport.ConnectorInfo, listeners *listener.ConnectorListeners) {
	n.info = info
	n.listeners = listeners
}

// Info returns the profile of the connection
func (n *Notifier) Info() dataport.ConnectorInfo { return n.info }

// Data fires a data listener and returns the possibly replaced payload
func (n *Notifier) Data(t listener.DataListenerType, data []byte) []byte {
	_, data = n.listeners.NotifyData(t, n.info, data)
	return data
}

// Event fires a plain listener
func (n *Notifier) Event(t listener.ListenerType) {
	n.listeners.Notify(t, n.info)
}

// Deliver hands pushed data to the in-port connector: ON_RECEIVED fires,
// the connector writes and the outcome is converted with WriteResult.
func (n *Notifier) Deliver(conn InPortConnector, data []byte) (st dataport.Status) {
	defer func() {
		if r := recover(); r != nil {
			st = dataport.UnknownError
		}
	}()
	if conn == nil {
		n.Data(listener.OnReceiverError, data)
		return dataport.PortError
	}
	data = n.Data(listener.OnReceived, data)
	return n.WriteResult(conn.Write(data), data)
}

// WriteResult converts the buffer status of a received write, firing the
// receiver-side listeners.
func (n *Notifier) WriteResult(st buffer.Status, data []byte) dataport.Status {
	switch st {
	case buffer.StatusOK:
		n.Data(listener.OnBufferWrite, data)
		return dataport.PortOK
	case buffer.StatusError:
		n.Data(listener.OnReceiverError, data)
		return dataport.PortError
	case buffer.StatusFull:
		n.Data(listener.OnBufferFull, data)
		n.Data(listener.OnReceiverFull, data)
		return dataport.BufferFull
	case buffer.StatusEmpty:
		return dataport.BufferEmpty
	case buffer.StatusPreconditionNotMet:
		n.Data(listener.OnReceiverError, data)
		return dataport.PortError
	case buffer.StatusTimeout:
		n.Data(listener.OnBufferWriteTimeout, data)
		n.Data(listener.OnReceiverTimeout, data)
		return dataport.BufferTimeout
	default:
		n.Data(listener.OnReceiverError, data)
		return dataport.UnknownError
	}
}

// Serve takes the next item from the out-port connector for a pull request
// and converts the outcome with ReadResult.
func (n *Notifier) Serve(conn OutPortConnector) (st dataport.Status, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			st, data = dataport.UnknownError, nil
		}
	}()
	if conn == nil {
		n.Event(listener.OnSenderError)
		return dataport.UnknownError, nil
	}
	data, bst := conn.Read()
	return n.ReadResult(bst, data)
}

// ReadResult converts the buffer status of a served read, firing the
// sender-side listeners.
func (n *Notifier) ReadResult(st buffer.Status, data []byte) (dataport.Status, []byte) {
	switch st {
	case buffer.StatusOK:
		data = n.Data(listener.OnBufferRead, data)
		data = n.Data(listener.OnSend, data)
		return dataport.PortOK, data
	case buffer.StatusFull:
		return dataport.BufferFull, nil
	case buffer.StatusEmpty:
		n.Event(listener.OnBufferEmpty)
		n.Event(listener.OnSenderEmpty)
		return dataport.BufferEmpty, nil
	case buffer.StatusTimeout:
		n.Event(listener.OnBufferReadTimeout)
		n.Event(listener.OnSenderTimeout)
		return dataport.BufferTimeout, nil
	case buffer.StatusError, buffer.StatusPreconditionNotMet:
		n.Event(listener.OnSenderError)
		return dataport.PortError, nil
	default:
		n.Event(listener.OnSenderError)
		return dataport.UnknownError, nil
	}
}

// Store records data pulled by a consumer in its buffer. The item is written
// and immediately consumed so the buffer keeps the latest value only.
func (n *Notifier) Store(b buffer.Buffer[[]byte], data []byte) []byte {
	data = n.Data(listener.OnReceived, data)
	data = n.Data(listener.OnBufferWrite, data)
	if b == nil {
		return data
	}
	if b.Full() {
		n.Data(listener.OnBufferFull, data)
		n.Data(listener.OnReceiverFull, data)
	}
	b.Put(data)
	b.AdvanceWptr(1)
	b.AdvanceRptr(1)
	return data
}

// PullResult converts what a remote provider answered to a pull, firing the
// sender-side listeners for failures.
func (n *Notifier) PullResult(remote dataport.Status) dataport.Status {
	switch remote {
	case dataport.PortOK:
		return dataport.PortOK
	case dataport.PortError:
		n.Event(listener.OnSenderError)
		return dataport.PortError
	case dataport.BufferEmpty:
		n.Event(listener.OnSenderEmpty)
		return dataport.BufferEmpty
	case dataport.BufferTimeout:
		n.Event(listener.OnSenderTimeout)
		return dataport.BufferTimeout
	default:
		n.Event(listener.OnSenderError)
		return dataport.UnknownError
	}
}

// SendStatus converts what a remote provider answered to a push into the
// status reported by the consumer.
func SendStatus(remote dataport.Status) dataport.Status {
	switch remote {
	case dataport.PortOK, dataport.PortError, dataport.UnknownError:
		return remote
	case dataport.BufferFull:
		return dataport.SendFull
	case dataport.BufferTimeout:
		return dataport.SendTimeout
	default:
		return dataport.PortError
	}
}
