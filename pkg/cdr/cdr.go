// Package cdr implements the CORBA Common Data Representation encoding used by the
// corba_cdr and shared_memory transports and by the cdr, ros2 and opensplice
// serializers.
//
// Primitive values are aligned on their natural size relative to the start of the
// stream (or of the encapsulated body). Strings are a ulong length that counts the
// trailing NUL, followed by the bytes and the NUL.
package cdr

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Endian selects the byte order of an encoded stream.
type Endian int

const (
	// EndianUnset means no byte order has been configured yet
	EndianUnset Endian = iota
	// LittleEndian encodes least significant byte first
	LittleEndian
	// BigEndian encodes most significant byte first
	BigEndian
)

// String returns "little", "big" or "unset"
func (e Endian) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unset"
	}
}

// ByteOrder returns the binary.ByteOrder for e, or nil when unset.
func (e Endian) ByteOrder() binary.ByteOrder {
	switch e {
	case LittleEndian:
		return binary.LittleEndian
	case BigEndian:
		return binary.BigEndian
	default:
		return nil
	}
}

// ParseEndian maps "little" and "big" (any case, surrounding spaces ignored).
// Anything else yields EndianUnset.
func ParseEndian(s string) Endian {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little":
		return LittleEndian
	case "big":
		return BigEndian
	default:
		return EndianUnset
	}
}

var (
	// ErrEndianUnset is returned when encoding or decoding without a byte order
	ErrEndianUnset = errors.New("cdr: endian not configured")
	// ErrShortBuffer is returned when a read runs past the end of the data
	ErrShortBuffer = errors.New("cdr: short buffer")
	// ErrUnsupportedType is returned by Marshal and Unmarshal for unknown Go types
	ErrUnsupportedType = errors.New("cdr: unsupported type")
	// ErrInvalidString is returned for strings without a terminating NUL
	ErrInvalidString = errors.New("cdr: invalid string")
)

// Encapsulation header flags
const (
	EncapsulationBE byte = 0x00
	EncapsulationLE byte = 0x01
)

// Encoder writes CDR values into a pooled buffer. Call Release when done.
type Encoder struct {
	buf     *bytebufferpool.ByteBuffer
	order   binary.ByteOrder
	endian  Endian
	origin  int
	scratch [8]byte
}

// NewEncoder returns an encoder for the given byte order. The endian must be set.
func NewEncoder(e Endian) (*Encoder, error) {
	order := e.ByteOrder()
	if order == nil {
		return nil, ErrEndianUnset
	}
	return &Encoder{buf: bytebufferpool.Get(), order: order, endian: e}, nil
}

// Endian returns the encoder's byte order
func (e *Encoder) Endian() Endian { return e.endian }

// Len returns the number of bytes written
func (e *Encoder) Len() int { return e.buf.Len() }

// Bytes returns a copy of the encoded stream
func (e *Encoder) Bytes() []byte {
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.B)
	return out
}

// Release returns the buffer to the pool. The encoder must not be used afterwards.
func (e *Encoder) Release() {
	if e.buf != nil {
		bytebufferpool.Put(e.buf)
		e.buf = nil
	}
}

// Encapsulate writes a 4-byte encapsulation header and makes alignment relative
// to the end of it.
func (e *Encoder) Encapsulate() {
	flag := EncapsulationBE
	if e.endian == LittleEndian {
		flag = EncapsulationLE
	}
	e.buf.B = append(e.buf.B, 0x00, flag, 0x00, 0x00)
	e.origin = e.buf.Len()
}

func (e *Encoder) align(n int) {
	for (e.buf.Len()-e.origin)%n != 0 {
		e.buf.B = append(e.buf.B, 0)
	}
}

// WriteOctet writes a single byte
func (e *Encoder) WriteOctet(v byte) {
	e.buf.B = append(e.buf.B, v)
}

// WriteBool writes a boolean as one octet
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteOctet(1)
		return
	}
	e.WriteOctet(0)
}

// WriteUShort writes an aligned uint16
func (e *Encoder) WriteUShort(v uint16) {
	e.align(2)
	e.order.PutUint16(e.scratch[:2], v)
	e.buf.B = append(e.buf.B, e.scratch[:2]...)
}

// WriteShort writes an aligned int16
func (e *Encoder) WriteShort(v int16) { e.WriteUShort(uint16(v)) }

// WriteULong writes an aligned uint32
func (e *Encoder) WriteULong(v uint32) {
	e.align(4)
	e.order.PutUint32(e.scratch[:4], v)
	e.buf.B = append(e.buf.B, e.scratch[:4]...)
}

// WriteLong writes an aligned int32
func (e *Encoder) WriteLong(v int32) { e.WriteULong(uint32(v)) }

// WriteULongLong writes an aligned uint64
func (e *Encoder) WriteULongLong(v uint64) {
	e.align(8)
	e.order.PutUint64(e.scratch[:8], v)
	e.buf.B = append(e.buf.B, e.scratch[:8]...)
}

// WriteLongLong writes an aligned int64
func (e *Encoder) WriteLongLong(v int64) { e.WriteULongLong(uint64(v)) }

// WriteFloat writes an aligned IEEE 754 float32
func (e *Encoder) WriteFloat(v float32) { e.WriteULong(math.Float32bits(v)) }

// WriteDouble writes an aligned IEEE 754 float64
func (e *Encoder) WriteDouble(v float64) { e.WriteULongLong(math.Float64bits(v)) }

// WriteString writes a NUL terminated string with its length prefix
func (e *Encoder) WriteString(s string) {
	e.WriteULong(uint32(len(s) + 1))
	e.buf.B = append(e.buf.B, s...)
	e.buf.B = append(e.buf.B, 0)
}

// WriteOctetSeq writes a length-prefixed byte sequence
func (e *Encoder) WriteOctetSeq(b []byte) {
	e.WriteULong(uint32(len(b)))
	e.buf.B = append(e.buf.B, b...)
}

// WriteRaw appends bytes without a length prefix or alignment
func (e *Encoder) WriteRaw(b []byte) {
	e.buf.B = append(e.buf.B, b...)
}

// Decoder reads CDR values. The first failure is sticky and reported by Err;
// later reads return zero values.
type Decoder struct {
	data   []byte
	pos    int
	origin int
	order  binary.ByteOrder
	endian Endian
	err    error
}

// NewDecoder returns a decoder over data with the given byte order.
func NewDecoder(data []byte, e Endian) (*Decoder, error) {
	order := e.ByteOrder()
	if order == nil {
		return nil, ErrEndianUnset
	}
	return &Decoder{data: data, order: order, endian: e}, nil
}

// NewEncapsulatedDecoder reads the 4-byte encapsulation header and takes the
// byte order from it.
func NewEncapsulatedDecoder(data []byte) (*Decoder, error) {
	if len(data) < 4 {
		return nil, ErrShortBuffer
	}
	e := BigEndian
	if data[1]&0x01 == EncapsulationLE {
		e = LittleEndian
	}
	return &Decoder{data: data, pos: 4, origin: 4, order: e.ByteOrder(), endian: e}, nil
}

// Endian returns the decoder's byte order
func (d *Decoder) Endian() Endian { return d.endian }

// Err returns the first decoding error
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

func (d *Decoder) align(n int) {
	for (d.pos-d.origin)%n != 0 {
		d.pos++
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

// ReadOctet reads one byte
func (d *Decoder) ReadOctet() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadBool reads a one-octet boolean
func (d *Decoder) ReadBool() bool { return d.ReadOctet() != 0 }

// ReadUShort reads an aligned uint16
func (d *Decoder) ReadUShort() uint16 {
	d.align(2)
	b := d.take(2)
	if b == nil {
		return 0
	}
	return d.order.Uint16(b)
}

// ReadShort reads an aligned int16
func (d *Decoder) ReadShort() int16 { return int16(d.ReadUShort()) }

// ReadULong reads an aligned uint32
func (d *Decoder) ReadULong() uint32 {
	d.align(4)
	b := d.take(4)
	if b == nil {
		return 0
	}
	return d.order.Uint32(b)
}

// ReadLong reads an aligned int32
func (d *Decoder) ReadLong() int32 { return int32(d.ReadULong()) }

// ReadULongLong reads an aligned uint64
func (d *Decoder) ReadULongLong() uint64 {
	d.align(8)
	b := d.take(8)
	if b == nil {
		return 0
	}
	return d.order.Uint64(b)
}

// ReadLongLong reads an aligned int64
func (d *Decoder) ReadLongLong() int64 { return int64(d.ReadULongLong()) }

// ReadFloat reads an aligned float32
func (d *Decoder) ReadFloat() float32 { return math.Float32frombits(d.ReadULong()) }

// ReadDouble reads an aligned float64
func (d *Decoder) ReadDouble() float64 { return math.Float64frombits(d.ReadULongLong()) }

// ReadString reads a length-prefixed NUL terminated string
func (d *Decoder) ReadString() string {
	n := d.ReadULong()
	if d.err != nil {
		return ""
	}
	if n == 0 {
		d.err = ErrInvalidString
		return ""
	}
	b := d.take(int(n))
	if b == nil {
		return ""
	}
	if b[len(b)-1] != 0 {
		d.err = ErrInvalidString
		return ""
	}
	return string(b[:len(b)-1])
}

// ReadOctetSeq reads a length-prefixed byte sequence into a new slice
func (d *Decoder) ReadOctetSeq() []byte {
	n := d.ReadULong()
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadRaw returns the next n bytes without copying
func (d *Decoder) ReadRaw(n int) []byte { return d.take(n) }
