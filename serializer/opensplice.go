package serializer

import (
	"strings"

	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// OpenSpliceName is the marshaling type of the DDS codec
const OpenSpliceName = "opensplice"

// OpenSplice encodes RTC data as encapsulated CDR for DDS topics. Only data
// types with registered message info are accepted.
type OpenSplice struct {
	endianState
	infos *InfoRegistry
}

// Serialize reports StatusNotFound when the data type has no message info
func (c *OpenSplice) Serialize(data any) (out []byte, st Status) {
	if !c.ready() {
		return nil, StatusNotSupportEndian
	}
	if _, ok := c.infos.Get(datatype.TypeName(data)); !ok {
		return nil, StatusNotFound
	}
	st = guard(func() Status {
		enc, err := cdr.NewEncoder(c.endian)
		if err != nil {
			return StatusNotSupportEndian
		}
		defer enc.Release()

		enc.Encapsulate()
		if err := cdr.Encode(enc, data); err != nil {
			return StatusError
		}
		out = enc.Bytes()
		return StatusOK
	})
	return out, st
}

// Deserialize decodes an encapsulated CDR sample into out
func (c *OpenSplice) Deserialize(b []byte, out any) Status {
	if !c.ready() {
		return StatusNotSupportEndian
	}
	return guard(func() Status {
		dec, err := cdr.NewEncapsulatedDecoder(b)
		if err != nil {
			return StatusError
		}
		if err := cdr.Decode(dec, out); err != nil {
			return StatusError
		}
		return StatusOK
	})
}

// DDSTypeName converts a repository id such as "IDL:RTC/TimedLong:1.0" into
// the scoped IDL name "RTC::TimedLong".
func DDSTypeName(repositoryID string) string {
	parts := strings.Split(repositoryID, ":")
	if len(parts) < 2 {
		return repositoryID
	}
	return strings.ReplaceAll(parts[1], "/", "::")
}

// AddOpenSpliceType registers message info for a data type so the DDS codec
// accepts it.
func AddOpenSpliceType(r *Registry, data any, idl string) {
	id := datatype.TypeName(data)
	r.OpenSpliceInfo.Add(id, MessageInfo{DataType: DDSTypeName(id), Definition: idl})
}

// RegisterOpenSplice adds the global "opensplice" codec and message info for
// the basic RTC data types.
func RegisterOpenSplice(r *Registry) {
	infos := r.OpenSpliceInfo
	r.AddSerializerGlobal(OpenSpliceName, func() Serializer { return &OpenSplice{infos: infos} })

	for _, data := range []any{
		datatype.TimedLong{},
		datatype.TimedFloat{},
		datatype.TimedDouble{},
		datatype.TimedString{},
		datatype.TimedOctetSeq{},
		datatype.TimedLongSeq{},
		datatype.TimedDoubleSeq{},
	} {
		AddOpenSpliceType(r, data, "BasicDataType.idl")
	}
}

// RegisterBuiltins registers every built-in codec in a fixed order
func RegisterBuiltins(r *Registry) {
	RegisterCDR(r)
	RegisterROS(r)
	RegisterROS2(r)
	RegisterOpenSplice(r)
}
