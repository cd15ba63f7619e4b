package cdr

import "fmt"

// Marshaler is implemented by types that encode themselves as CDR
type Marshaler interface {
	MarshalCDR(e *Encoder)
}

// Unmarshaler is implemented by types that decode themselves from CDR
type Unmarshaler interface {
	UnmarshalCDR(d *Decoder)
}

// Marshal encodes v with the given byte order. v is a Marshaler or one of the
// basic kinds: bool, uint8, int16, uint16, int32, uint32, int64, uint64,
// float32, float64, string and slices of those.
func Marshal(v any, e Endian) ([]byte, error) {
	enc, err := NewEncoder(e)
	if err != nil {
		return nil, err
	}
	defer enc.Release()

	if err := Encode(enc, v); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// Encode writes v into enc
func Encode(enc *Encoder, v any) error {
	switch t := v.(type) {
	case Marshaler:
		t.MarshalCDR(enc)
	case bool:
		enc.WriteBool(t)
	case uint8:
		enc.WriteOctet(t)
	case int16:
		enc.WriteShort(t)
	case uint16:
		enc.WriteUShort(t)
	case int32:
		enc.WriteLong(t)
	case uint32:
		enc.WriteULong(t)
	case int64:
		enc.WriteLongLong(t)
	case uint64:
		enc.WriteULongLong(t)
	case float32:
		enc.WriteFloat(t)
	case float64:
		enc.WriteDouble(t)
	case string:
		enc.WriteString(t)
	case []byte:
		enc.WriteOctetSeq(t)
	case []int16:
		writeSeq(enc, t, enc.WriteShort)
	case []int32:
		writeSeq(enc, t, enc.WriteLong)
	case []uint32:
		writeSeq(enc, t, enc.WriteULong)
	case []int64:
		writeSeq(enc, t, enc.WriteLongLong)
	case []float32:
		writeSeq(enc, t, enc.WriteFloat)
	case []float64:
		writeSeq(enc, t, enc.WriteDouble)
	case []string:
		writeSeq(enc, t, enc.WriteString)
	case []bool:
		writeSeq(enc, t, enc.WriteBool)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

func writeSeq[T any](enc *Encoder, items []T, write func(T)) {
	enc.WriteULong(uint32(len(items)))
	for _, item := range items {
		write(item)
	}
}

// Unmarshal decodes data into out, which must be a pointer to a supported kind
// or an Unmarshaler.
func Unmarshal(data []byte, e Endian, out any) error {
	dec, err := NewDecoder(data, e)
	if err != nil {
		return err
	}
	return Decode(dec, out)
}

// Decode reads one value from dec into out
func Decode(dec *Decoder, out any) error {
	switch t := out.(type) {
	case Unmarshaler:
		t.UnmarshalCDR(dec)
	case *bool:
		*t = dec.ReadBool()
	case *uint8:
		*t = dec.ReadOctet()
	case *int16:
		*t = dec.ReadShort()
	case *uint16:
		*t = dec.ReadUShort()
	case *int32:
		*t = dec.ReadLong()
	case *uint32:
		*t = dec.ReadULong()
	case *int64:
		*t = dec.ReadLongLong()
	case *uint64:
		*t = dec.ReadULongLong()
	case *float32:
		*t = dec.ReadFloat()
	case *float64:
		*t = dec.ReadDouble()
	case *string:
		*t = dec.ReadString()
	case *[]byte:
		*t = dec.ReadOctetSeq()
	case *[]int16:
		*t = readSeq(dec, dec.ReadShort)
	case *[]int32:
		*t = readSeq(dec, dec.ReadLong)
	case *[]uint32:
		*t = readSeq(dec, dec.ReadULong)
	case *[]int64:
		*t = readSeq(dec, dec.ReadLongLong)
	case *[]float32:
		*t = readSeq(dec, dec.ReadFloat)
	case *[]float64:
		*t = readSeq(dec, dec.ReadDouble)
	case *[]string:
		*t = readSeq(dec, dec.ReadString)
	case *[]bool:
		*t = readSeq(dec, dec.ReadBool)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, out)
	}
	return dec.Err()
}

func readSeq[T any](dec *Decoder, read func() T) []T {
	n := dec.ReadULong()
	if dec.Err() != nil {
		return nil
	}
	if int(n) > dec.Remaining() {
		dec.err = ErrShortBuffer
		return nil
	}
	items := make([]T, 0, n)
	for i := uint32(0); i < n && dec.Err() == nil; i++ {
		items = append(items, read())
	}
	return items
}
