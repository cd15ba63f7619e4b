package serializer

import (
	"encoding/binary"
	"math"

	"github.com/valyala/bytebufferpool"

	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// ROSPrefix prefixes the marshaling types of the ROS1 codecs
const ROSPrefix = "ros:"

// ROS encodes one std_msgs message in the ROS1 wire format: a little endian
// 4-byte body length followed by the unaligned little endian body.
type ROS struct {
	endianState
	msg stdMsg
}

// Serialize encodes data as the codec's message type
func (c *ROS) Serialize(data any) (out []byte, st Status) {
	if !c.ready() {
		return nil, StatusNotSupportEndian
	}
	st = guard(func() Status {
		w := &rosWriter{buf: bytebufferpool.Get()}
		defer bytebufferpool.Put(w.buf)

		w.buf.B = append(w.buf.B, 0, 0, 0, 0)
		if !c.msg.encode(w, data) {
			return StatusError
		}
		binary.LittleEndian.PutUint32(w.buf.B[:4], uint32(w.buf.Len()-4))
		out = append([]byte(nil), w.buf.B...)
		return StatusOK
	})
	return out, st
}

// Deserialize decodes a length-prefixed ROS1 message into out
func (c *ROS) Deserialize(b []byte, out any) Status {
	if !c.ready() {
		return StatusNotSupportEndian
	}
	return guard(func() Status {
		if len(b) < 4 {
			return StatusError
		}
		size := binary.LittleEndian.Uint32(b[:4])
		if int(size) > len(b)-4 {
			return StatusError
		}
		r := &rosReader{data: b[4 : 4+size]}
		if !c.msg.decode(r, out) {
			return StatusError
		}
		return StatusOK
	})
}

// RegisterROS adds a "ros:std_msgs/<T>" codec and message info for every
// supported std_msgs type, bound to its matching RTC data type.
func RegisterROS(r *Registry) {
	for _, m := range stdMsgs {
		msg := m
		name := ROSPrefix + msg.name
		r.AddSerializer(name, func() Serializer { return &ROS{msg: msg} }, msg.dataType)
		r.ROSInfo.Add(name, MessageInfo{DataType: msg.name, MD5Sum: msg.md5, Definition: msg.def})
	}
}

type rosWriter struct {
	buf *bytebufferpool.ByteBuffer
}

func (w *rosWriter) WriteOctet(v byte) { w.buf.B = append(w.buf.B, v) }

func (w *rosWriter) WriteULong(v uint32) { w.buf.B = binary.LittleEndian.AppendUint32(w.buf.B, v) }

func (w *rosWriter) WriteLong(v int32) { w.WriteULong(uint32(v)) }

func (w *rosWriter) WriteFloat(v float32) { w.WriteULong(math.Float32bits(v)) }

func (w *rosWriter) WriteDouble(v float64) {
	w.buf.B = binary.LittleEndian.AppendUint64(w.buf.B, math.Float64bits(v))
}

func (w *rosWriter) WriteString(s string) {
	w.WriteULong(uint32(len(s)))
	w.buf.B = append(w.buf.B, s...)
}

type rosReader struct {
	data []byte
	pos  int
	err  error
}

func (r *rosReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = cdr.ErrShortBuffer
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *rosReader) Err() error { return r.err }

func (r *rosReader) Remaining() int { return len(r.data) - r.pos }

func (r *rosReader) ReadOctet() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *rosReader) ReadULong() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *rosReader) ReadLong() int32 { return int32(r.ReadULong()) }

func (r *rosReader) ReadFloat() float32 { return math.Float32frombits(r.ReadULong()) }

func (r *rosReader) ReadDouble() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *rosReader) ReadString() string {
	n := r.ReadULong()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
