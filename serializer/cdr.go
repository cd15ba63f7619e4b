package serializer

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// CDRName is the marshaling type of the CORBA CDR codec
const CDRName = "cdr"

// CDR encodes data as plain CDR in the configured byte order
type CDR struct {
	endianState
}

// NewCDR returns a CDR codec with no byte order set
func NewCDR() Serializer {
	return &CDR{}
}

// Serialize encodes data, which must be a cdr.Marshaler or a basic kind
func (c *CDR) Serialize(data any) (out []byte, st Status) {
	if !c.ready() {
		return nil, StatusNotSupportEndian
	}
	st = guard(func() Status {
		b, err := cdr.Marshal(data, c.endian)
		if err != nil {
			return StatusError
		}
		out = b
		return StatusOK
	})
	return out, st
}

// Deserialize decodes b into out
func (c *CDR) Deserialize(b []byte, out any) Status {
	if !c.ready() {
		return StatusNotSupportEndian
	}
	return guard(func() Status {
		if err := cdr.Unmarshal(b, c.endian, out); err != nil {
			return StatusError
		}
		return StatusOK
	})
}

// RegisterCDR adds the global "cdr" codec
func RegisterCDR(r *Registry) {
	r.AddSerializerGlobal(CDRName, NewCDR)
}
