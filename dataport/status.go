// Package dataport holds the vocabulary shared by ports, connectors and
// transports: return statuses, connector profiles and the well-known property keys.
package dataport

// Status is the result of every operation that crosses the port boundary.
// Expected outcomes such as a full buffer are statuses, not errors.
type Status int

const (
	PortOK Status = iota
	PortError
	BufferError
	BufferFull
	BufferEmpty
	BufferTimeout
	SendFull
	SendTimeout
	RecvEmpty
	RecvTimeout
	InvalidArgs
	PreconditionNotMet
	ConnectionLost
	UnknownError
)

var statusNames = [...]string{
	PortOK:             "PORT_OK",
	PortError:          "PORT_ERROR",
	BufferError:        "BUFFER_ERROR",
	BufferFull:         "BUFFER_FULL",
	BufferEmpty:        "BUFFER_EMPTY",
	BufferTimeout:      "BUFFER_TIMEOUT",
	SendFull:           "SEND_FULL",
	SendTimeout:        "SEND_TIMEOUT",
	RecvEmpty:          "RECV_EMPTY",
	RecvTimeout:        "RECV_TIMEOUT",
	InvalidArgs:        "INVALID_ARGS",
	PreconditionNotMet: "PRECONDITION_NOT_MET",
	ConnectionLost:     "CONNECTION_LOST",
	UnknownError:       "UNKNOWN_ERROR",
}

// String returns the wire name of the status, e.g. "BUFFER_FULL".
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN_ERROR"
}

// OK reports whether s is PortOK
func (s Status) OK() bool { return s == PortOK }

// ParseStatus is the inverse of String. Unknown names map to UnknownError.
func ParseStatus(name string) Status {
	for i, n := range statusNames {
		if n == name {
			return Status(i)
		}
	}
	return UnknownError
}
