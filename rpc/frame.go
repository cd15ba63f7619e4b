package rpc

import (
	stderrors "errors"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// Reply codes carried in a reply frame
const (
	codeOK uint32 = iota
	codeObjectNotFound
	codeBadOperation
	codeServantError
)

// ErrBadOperation is returned when a servant does not implement an operation
var ErrBadOperation = stderrors.New("bad operation")

// Frames are little endian CDR:
//
//	request: ulong seq, string object, string operation, octet-seq args
//	reply:   ulong seq, ulong code, string message, octet-seq result
type request struct {
	seq    uint32
	object string
	op     string
	args   []byte
}

type reply struct {
	seq     uint32
	code    uint32
	message string
	result  []byte
}

func encodeRequest(req request) []byte {
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	enc.WriteULong(req.seq)
	enc.WriteString(req.object)
	enc.WriteString(req.op)
	enc.WriteOctetSeq(req.args)
	return enc.Bytes()
}

func decodeRequest(data []byte) (request, error) {
	dec, _ := cdr.NewDecoder(data, cdr.LittleEndian)
	req := request{
		seq:    dec.ReadULong(),
		object: dec.ReadString(),
		op:     dec.ReadString(),
		args:   dec.ReadOctetSeq(),
	}
	if err := dec.Err(); err != nil {
		return request{}, errors.WrapInvalid(err, "rpc", "decodeRequest", "request frame decode")
	}
	return req, nil
}

func encodeReply(rep reply) []byte {
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	enc.WriteULong(rep.seq)
	enc.WriteULong(rep.code)
	enc.WriteString(rep.message)
	enc.WriteOctetSeq(rep.result)
	return enc.Bytes()
}

func decodeReply(data []byte) (reply, error) {
	dec, _ := cdr.NewDecoder(data, cdr.LittleEndian)
	rep := reply{
		seq:     dec.ReadULong(),
		code:    dec.ReadULong(),
		message: dec.ReadString(),
		result:  dec.ReadOctetSeq(),
	}
	if err := dec.Err(); err != nil {
		return reply{}, errors.WrapInvalid(err, "rpc", "decodeReply", "reply frame decode")
	}
	return rep, nil
}

// replyFor turns a servant outcome into a reply frame
func replyFor(seq uint32, result []byte, err error) reply {
	switch {
	case err == nil:
		return reply{seq: seq, code: codeOK, result: result}
	case stderrors.Is(err, errors.ErrObjectNotFound):
		return reply{seq: seq, code: codeObjectNotFound, message: err.Error()}
	case stderrors.Is(err, ErrBadOperation):
		return reply{seq: seq, code: codeBadOperation, message: err.Error()}
	default:
		return reply{seq: seq, code: codeServantError, message: err.Error()}
	}
}

// outcome turns a reply frame back into the caller's outcome
func (rep reply) outcome(method string) ([]byte, error) {
	switch rep.code {
	case codeOK:
		return rep.result, nil
	case codeObjectNotFound:
		return nil, errors.Wrap(errors.ErrObjectNotFound, "Broker", method, rep.message)
	case codeBadOperation:
		return nil, errors.WrapInvalid(ErrBadOperation, "Broker", method, rep.message)
	default:
		return nil, errors.WrapFatal(stderrors.New(rep.message), "Broker", method, "remote servant")
	}
}
