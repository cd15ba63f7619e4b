// Package serializer maps marshaling type names to codecs that turn port data
// into byte streams and back.
//
// Every codec must be told its byte order before the first call; until then
// Serialize and Deserialize report StatusNotSupportEndian.
package serializer

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// Status is the result of a codec call
type Status int

// Codec results
const (
	StatusOK Status = iota
	StatusError
	StatusNotFound
	StatusNotSupportEndian
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "SERIALIZE_OK"
	case StatusError:
		return "SERIALIZE_ERROR"
	case StatusNotFound:
		return "SERIALIZE_NOTFOUND"
	case StatusNotSupportEndian:
		return "SERIALIZE_NOT_SUPPORT_ENDIAN"
	default:
		return "UNKNOWN"
	}
}

// PortStatus maps a codec failure to the status a port reports. Every failure
// collapses to UNKNOWN_ERROR.
func (s Status) PortStatus() dataport.Status {
	if s == StatusOK {
		return dataport.PortOK
	}
	return dataport.UnknownError
}

// Serializer encodes and decodes one data type.
//
// out passed to Deserialize must be a pointer.
type Serializer interface {
	SetEndian(e cdr.Endian)
	Endian() cdr.Endian
	Serialize(data any) ([]byte, Status)
	Deserialize(b []byte, out any) Status
}

// Factory creates a fresh codec instance
type Factory func() Serializer

// endianState is embedded by codecs to track the configured byte order
type endianState struct {
	endian cdr.Endian
}

func (s *endianState) SetEndian(e cdr.Endian) { s.endian = e }

func (s *endianState) Endian() cdr.Endian { return s.endian }

func (s *endianState) ready() bool { return s.endian != cdr.EndianUnset }

// guard runs fn and converts a panic into StatusError
func guard(fn func() Status) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			st = StatusError
		}
	}()
	return fn()
}
