package transport

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// Operation names served by remote providers
const (
	OpPut         = "put"
	OpGet         = "get"
	OpIsWritable  = "is_writable"
	OpIsReadable  = "is_readable"
	OpOpenMemory  = "open_memory"
	OpCloseMemory = "close_memory"
)

// Results of remote operations are little endian CDR:
//
//	status:  ulong status
//	get:     ulong status, octet-seq data
//	boolean: boolean

// EncodeStatus encodes a status result
func EncodeStatus(st dataport.Status) []byte {
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	enc.WriteULong(uint32(st))
	return enc.Bytes()
}

// DecodeStatus decodes a status result
func DecodeStatus(data []byte) (dataport.Status, error) {
	dec, _ := cdr.NewDecoder(data, cdr.LittleEndian)
	st := dataport.Status(dec.ReadULong())
	if err := dec.Err(); err != nil {
		return dataport.UnknownError, errors.WrapInvalid(err, "transport", "DecodeStatus", "status decode")
	}
	return st, nil
}

// EncodeGet encodes a pull result
func EncodeGet(st dataport.Status, data []byte) []byte {
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	enc.WriteULong(uint32(st))
	enc.WriteOctetSeq(data)
	return enc.Bytes()
}

// DecodeGet decodes a pull result
func DecodeGet(data []byte) (dataport.Status, []byte, error) {
	dec, _ := cdr.NewDecoder(data, cdr.LittleEndian)
	st := dataport.Status(dec.ReadULong())
	out := dec.ReadOctetSeq()
	if err := dec.Err(); err != nil {
		return dataport.UnknownError, nil, errors.WrapInvalid(err, "transport", "DecodeGet", "get result decode")
	}
	return st, out, nil
}

// EncodeBool encodes a probe result
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a probe result; malformed input reads as false
func DecodeBool(data []byte) bool {
	return len(data) == 1 && data[0] != 0
}
