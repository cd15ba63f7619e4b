package serializer

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// msgWriter is the subset of an encoder a std_msgs body needs. *cdr.Encoder
// satisfies it, as does the little endian ROS1 writer.
type msgWriter interface {
	WriteOctet(v byte)
	WriteULong(v uint32)
	WriteLong(v int32)
	WriteFloat(v float32)
	WriteDouble(v float64)
	WriteString(s string)
}

type msgReader interface {
	ReadOctet() byte
	ReadULong() uint32
	ReadLong() int32
	ReadFloat() float32
	ReadDouble() float64
	ReadString() string
	Err() error
	Remaining() int
}

var (
	_ msgWriter = (*cdr.Encoder)(nil)
	_ msgReader = (*cdr.Decoder)(nil)
)

type msgKind int

const (
	kindInt32 msgKind = iota
	kindFloat32
	kindFloat64
	kindString
	kindInt32Array
	kindFloat64Array
	kindUInt8Array
)

// stdMsg describes one std_msgs message carrying a single data field
type stdMsg struct {
	name     string
	kind     msgKind
	md5      string
	def      string
	dataType string
}

const multiArrayDef = "MultiArrayLayout layout\n"

var stdMsgs = []stdMsg{
	{name: "std_msgs/Int32", kind: kindInt32, md5: "da5909fbe378aeaf85e547e830cc1bb7",
		def: "int32 data\n", dataType: datatype.TypeName(datatype.TimedLong{})},
	{name: "std_msgs/Float32", kind: kindFloat32, md5: "73fcbf46b49191e672908e50842a83d4",
		def: "float32 data\n", dataType: datatype.TypeName(datatype.TimedFloat{})},
	{name: "std_msgs/Float64", kind: kindFloat64, md5: "fdb28210bfa9d7c91146260178d9a584",
		def: "float64 data\n", dataType: datatype.TypeName(datatype.TimedDouble{})},
	{name: "std_msgs/String", kind: kindString, md5: "992ce8a1687cec8c8bd883ec73ca41d1",
		def: "string data\n", dataType: datatype.TypeName(datatype.TimedString{})},
	{name: "std_msgs/Int32MultiArray", kind: kindInt32Array, md5: "1d99f79f8b325b44fee908053e9c945b",
		def: multiArrayDef + "int32[] data\n", dataType: datatype.TypeName(datatype.TimedLongSeq{})},
	{name: "std_msgs/Float64MultiArray", kind: kindFloat64Array, md5: "4b7d974086d4060e7db4613a7e6c3ba4",
		def: multiArrayDef + "float64[] data\n", dataType: datatype.TypeName(datatype.TimedDoubleSeq{})},
	{name: "std_msgs/UInt8MultiArray", kind: kindUInt8Array, md5: "82373f1612381bb6ee473b5cd6f5d89c",
		def: multiArrayDef + "uint8[] data\n", dataType: datatype.TypeName(datatype.TimedOctetSeq{})},
}

func (m stdMsg) encode(w msgWriter, data any) bool {
	switch m.kind {
	case kindInt32:
		v, ok := int32Value(data)
		if ok {
			w.WriteLong(v)
		}
		return ok
	case kindFloat32:
		v, ok := float32Value(data)
		if ok {
			w.WriteFloat(v)
		}
		return ok
	case kindFloat64:
		v, ok := float64Value(data)
		if ok {
			w.WriteDouble(v)
		}
		return ok
	case kindString:
		v, ok := stringValue(data)
		if ok {
			w.WriteString(v)
		}
		return ok
	case kindInt32Array:
		v, ok := int32sValue(data)
		if ok {
			writeLayout(w)
			w.WriteULong(uint32(len(v)))
			for _, x := range v {
				w.WriteLong(x)
			}
		}
		return ok
	case kindFloat64Array:
		v, ok := float64sValue(data)
		if ok {
			writeLayout(w)
			w.WriteULong(uint32(len(v)))
			for _, x := range v {
				w.WriteDouble(x)
			}
		}
		return ok
	case kindUInt8Array:
		v, ok := bytesValue(data)
		if ok {
			writeLayout(w)
			w.WriteULong(uint32(len(v)))
			for _, x := range v {
				w.WriteOctet(x)
			}
		}
		return ok
	}
	return false
}

func (m stdMsg) decode(r msgReader, out any) bool {
	switch m.kind {
	case kindInt32:
		v := r.ReadLong()
		return r.Err() == nil && setInt32(out, v)
	case kindFloat32:
		v := r.ReadFloat()
		return r.Err() == nil && setFloat32(out, v)
	case kindFloat64:
		v := r.ReadDouble()
		return r.Err() == nil && setFloat64(out, v)
	case kindString:
		v := r.ReadString()
		return r.Err() == nil && setString(out, v)
	case kindInt32Array:
		n, ok := readLayout(r, 4)
		if !ok {
			return false
		}
		v := make([]int32, 0, n)
		for i := 0; i < n; i++ {
			v = append(v, r.ReadLong())
		}
		return r.Err() == nil && setInt32s(out, v)
	case kindFloat64Array:
		n, ok := readLayout(r, 8)
		if !ok {
			return false
		}
		v := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			v = append(v, r.ReadDouble())
		}
		return r.Err() == nil && setFloat64s(out, v)
	case kindUInt8Array:
		n, ok := readLayout(r, 1)
		if !ok {
			return false
		}
		v := make([]byte, 0, n)
		for i := 0; i < n; i++ {
			v = append(v, r.ReadOctet())
		}
		return r.Err() == nil && setBytes(out, v)
	}
	return false
}

// writeLayout writes an empty MultiArrayLayout: no dimensions, zero offset
func writeLayout(w msgWriter) {
	w.WriteULong(0)
	w.WriteULong(0)
}

// readLayout skips a MultiArrayLayout and returns the element count that
// follows it, checked against the bytes left.
func readLayout(r msgReader, elemSize int) (int, bool) {
	dims := r.ReadULong()
	if r.Err() != nil || int(dims) > r.Remaining() {
		return 0, false
	}
	for i := uint32(0); i < dims; i++ {
		_ = r.ReadString()
		_ = r.ReadULong()
		_ = r.ReadULong()
	}
	_ = r.ReadULong()
	n := r.ReadULong()
	if r.Err() != nil || int(n)*elemSize > r.Remaining() {
		return 0, false
	}
	return int(n), true
}

func int32Value(data any) (int32, bool) {
	switch t := data.(type) {
	case int32:
		return t, true
	case datatype.TimedLong:
		return t.Data, true
	case *datatype.TimedLong:
		return t.Data, true
	}
	return 0, false
}

func float32Value(data any) (float32, bool) {
	switch t := data.(type) {
	case float32:
		return t, true
	case datatype.TimedFloat:
		return t.Data, true
	case *datatype.TimedFloat:
		return t.Data, true
	}
	return 0, false
}

func float64Value(data any) (float64, bool) {
	switch t := data.(type) {
	case float64:
		return t, true
	case datatype.TimedDouble:
		return t.Data, true
	case *datatype.TimedDouble:
		return t.Data, true
	}
	return 0, false
}

func stringValue(data any) (string, bool) {
	switch t := data.(type) {
	case string:
		return t, true
	case datatype.TimedString:
		return t.Data, true
	case *datatype.TimedString:
		return t.Data, true
	}
	return "", false
}

func int32sValue(data any) ([]int32, bool) {
	switch t := data.(type) {
	case []int32:
		return t, true
	case datatype.TimedLongSeq:
		return t.Data, true
	case *datatype.TimedLongSeq:
		return t.Data, true
	}
	return nil, false
}

func float64sValue(data any) ([]float64, bool) {
	switch t := data.(type) {
	case []float64:
		return t, true
	case datatype.TimedDoubleSeq:
		return t.Data, true
	case *datatype.TimedDoubleSeq:
		return t.Data, true
	}
	return nil, false
}

func bytesValue(data any) ([]byte, bool) {
	switch t := data.(type) {
	case []byte:
		return t, true
	case datatype.TimedOctetSeq:
		return t.Data, true
	case *datatype.TimedOctetSeq:
		return t.Data, true
	}
	return nil, false
}

func setInt32(out any, v int32) bool {
	switch t := out.(type) {
	case *int32:
		*t = v
	case *datatype.TimedLong:
		t.Data = v
	default:
		return false
	}
	return true
}

func setFloat32(out any, v float32) bool {
	switch t := out.(type) {
	case *float32:
		*t = v
	case *datatype.TimedFloat:
		t.Data = v
	default:
		return false
	}
	return true
}

func setFloat64(out any, v float64) bool {
	switch t := out.(type) {
	case *float64:
		*t = v
	case *datatype.TimedDouble:
		t.Data = v
	default:
		return false
	}
	return true
}

func setString(out any, v string) bool {
	switch t := out.(type) {
	case *string:
		*t = v
	case *datatype.TimedString:
		t.Data = v
	default:
		return false
	}
	return true
}

func setInt32s(out any, v []int32) bool {
	switch t := out.(type) {
	case *[]int32:
		*t = v
	case *datatype.TimedLongSeq:
		t.Data = v
	default:
		return false
	}
	return true
}

func setFloat64s(out any, v []float64) bool {
	switch t := out.(type) {
	case *[]float64:
		*t = v
	case *datatype.TimedDoubleSeq:
		t.Data = v
	default:
		return false
	}
	return true
}

func setBytes(out any, v []byte) bool {
	switch t := out.(type) {
	case *[]byte:
		*t = v
	case *datatype.TimedOctetSeq:
		t.Data = v
	default:
		return false
	}
	return true
}
