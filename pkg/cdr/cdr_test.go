package cdr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndian(t *testing.T) {
	assert.Equal(t, LittleEndian, ParseEndian("little"))
	assert.Equal(t, BigEndian, ParseEndian(" BIG "))
	assert.Equal(t, EndianUnset, ParseEndian("middle"))
	assert.Equal(t, EndianUnset, ParseEndian(""))
	assert.Equal(t, "unset", EndianUnset.String())
}

func TestEncoder_RequiresEndian(t *testing.T) {
	_, err := NewEncoder(EndianUnset)
	assert.ErrorIs(t, err, ErrEndianUnset)

	_, err = NewDecoder([]byte{1}, EndianUnset)
	assert.ErrorIs(t, err, ErrEndianUnset)

	_, err = Marshal(int32(1), EndianUnset)
	assert.ErrorIs(t, err, ErrEndianUnset)
}

func TestEncoder_Alignment(t *testing.T) {
	enc, err := NewEncoder(LittleEndian)
	require.NoError(t, err)
	defer enc.Release()

	enc.WriteOctet(0xAA)
	enc.WriteLong(1)
	enc.WriteDouble(0)

	// octet, 3 pad, long (4), double at offset 8
	assert.Equal(t, 16, enc.Len())
	assert.Equal(t, []byte{0xAA, 0, 0, 0, 1, 0, 0, 0}, enc.Bytes()[:8])
}

func TestEncoder_ByteOrder(t *testing.T) {
	le, err := Marshal(int32(0x01020304), LittleEndian)
	require.NoError(t, err)
	be, err := Marshal(int32(0x01020304), BigEndian)
	require.NoError(t, err)

	assert.Equal(t, []byte{4, 3, 2, 1}, le)
	assert.Equal(t, []byte{1, 2, 3, 4}, be)
}

func TestEncoder_String(t *testing.T) {
	b, err := Marshal("hi", BigEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 3, 'h', 'i', 0}, b)
}

func TestMarshal_RoundTrip(t *testing.T) {
	values := []struct {
		name string
		in   any
		out  func() any
	}{
		{"bool", true, func() any { return new(bool) }},
		{"octet", uint8(7), func() any { return new(uint8) }},
		{"short", int16(-3), func() any { return new(int16) }},
		{"long", int32(-123456), func() any { return new(int32) }},
		{"ulong", uint32(4000000000), func() any { return new(uint32) }},
		{"longlong", int64(-1) << 40, func() any { return new(int64) }},
		{"float", float32(3.5), func() any { return new(float32) }},
		{"double", 2.718281828, func() any { return new(float64) }},
		{"string", "chatter", func() any { return new(string) }},
		{"octets", []byte{1, 2, 3}, func() any { return new([]byte) }},
		{"longs", []int32{1, -2, 3}, func() any { return new([]int32) }},
		{"doubles", []float64{0.5, 1.5}, func() any { return new([]float64) }},
		{"strings", []string{"a", "bc"}, func() any { return new([]string) }},
	}

	for _, endian := range []Endian{LittleEndian, BigEndian} {
		for _, v := range values {
			t.Run(endian.String()+"/"+v.name, func(t *testing.T) {
				data, err := Marshal(v.in, endian)
				require.NoError(t, err)

				out := v.out()
				require.NoError(t, Unmarshal(data, endian, out))
				got := derefAny(out)
				if diff := cmp.Diff(v.in, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func derefAny(p any) any {
	switch t := p.(type) {
	case *bool:
		return *t
	case *uint8:
		return *t
	case *int16:
		return *t
	case *int32:
		return *t
	case *uint32:
		return *t
	case *int64:
		return *t
	case *float32:
		return *t
	case *float64:
		return *t
	case *string:
		return *t
	case *[]byte:
		return *t
	case *[]int32:
		return *t
	case *[]float64:
		return *t
	case *[]string:
		return *t
	}
	return nil
}

func TestDecoder_ShortBuffer(t *testing.T) {
	var v int64
	err := Unmarshal([]byte{1, 2, 3}, LittleEndian, &v)
	assert.ErrorIs(t, err, ErrShortBuffer)

	var seq []int32
	err = Unmarshal([]byte{0xFF, 0xFF, 0, 0}, LittleEndian, &seq)
	assert.ErrorIs(t, err, ErrShortBuffer)

	var s string
	err = Unmarshal([]byte{2, 0, 0, 0, 'a', 'b'}, LittleEndian, &s)
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestMarshal_UnsupportedType(t *testing.T) {
	_, err := Marshal(struct{}{}, LittleEndian)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	var m map[string]int
	assert.ErrorIs(t, Unmarshal([]byte{0}, LittleEndian, &m), ErrUnsupportedType)
}

func TestEncapsulation(t *testing.T) {
	for _, endian := range []Endian{LittleEndian, BigEndian} {
		enc, err := NewEncoder(endian)
		require.NoError(t, err)
		enc.Encapsulate()
		enc.WriteOctet(1)
		enc.WriteDouble(42.5)
		data := enc.Bytes()
		enc.Release()

		// header(4) + octet + 7 pad + double
		assert.Len(t, data, 4+8+8)

		dec, err := NewEncapsulatedDecoder(data)
		require.NoError(t, err)
		assert.Equal(t, endian, dec.Endian())
		assert.Equal(t, byte(1), dec.ReadOctet())
		assert.Equal(t, 42.5, dec.ReadDouble())
		assert.NoError(t, dec.Err())
	}

	_, err := NewEncapsulatedDecoder([]byte{0, 1})
	assert.ErrorIs(t, err, ErrShortBuffer)
}
