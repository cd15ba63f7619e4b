// Package shm implements the shared_memory transport. Payloads travel through
// a memory-mapped segment; only small control calls (open_memory, put, get,
// close_memory) go through the object broker.
//
// Push: the consumer owns the segment. It writes the payload, tells the
// provider to (re)open the segment when it was created or grown, then calls
// put. Pull: the provider owns the segment and answers get with the segment
// address and capacity; the consumer reopens when either changed.
package shm

import (
	"context"
	"log/slog"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
)

// KeyDir overrides the directory holding segment files
const KeyDir = "dataport.shared_memory.dir"

// Register adds the shared_memory factories for both dataflow directions
func Register(r *transport.Registry) error {
	name := dataport.InterfaceSharedMemory
	for _, err := range []error{
		r.AddInPortProvider(name, func(d transport.Deps) (transport.InPortProvider, error) {
			return NewInPortProvider(d.Broker, d.Logger), nil
		}),
		r.AddInPortConsumer(name, func(d transport.Deps) (transport.InPortConsumer, error) {
			return NewInPortConsumer(d.Broker, d.Logger), nil
		}),
		r.AddOutPortProvider(name, func(d transport.Deps) (transport.OutPortProvider, error) {
			return NewOutPortProvider(d.Broker, d.Logger), nil
		}),
		r.AddOutPortConsumer(name, func(d transport.Deps) (transport.OutPortConsumer, error) {
			return NewOutPortConsumer(d.Broker, d.Logger), nil
		}),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// settings are the segment parameters taken from connector properties
type settings struct {
	dir    string
	size   int
	endian cdr.Endian
}

func readSettings(props properties.Properties, logger *slog.Logger) settings {
	s := settings{
		dir:  props.Get(KeyDir, DefaultDir()),
		size: ParseSize(props.Get(dataport.KeySHMSize)),
	}
	endian, err := dataport.ParseEndian(props)
	if err != nil {
		logger.Error("Endian is not set, using little", "error", err)
	}
	if endian == cdr.EndianUnset {
		endian = cdr.LittleEndian
	}
	s.endian = endian
	return s
}

// memory frames are little endian CDR: string address, ulonglong capacity
func encodeMemory(address string, capacity int) []byte {
	enc, _ := cdr.NewEncoder(cdr.LittleEndian)
	defer enc.Release()
	enc.WriteString(address)
	enc.WriteULongLong(uint64(capacity))
	return enc.Bytes()
}

func decodeMemory(dec *cdr.Decoder) (string, int, error) {
	address := dec.ReadString()
	capacity := int(dec.ReadULongLong())
	if err := dec.Err(); err != nil {
		return "", 0, errors.WrapInvalid(err, "shm", "decodeMemory", "memory frame decode")
	}
	return address, capacity, nil
}

// caller invokes the peer servant named by a published reference
type caller struct {
	broker  *rpc.Broker
	logger  *slog.Logger
	ref     rpc.Reference
	timeout time.Duration
}

func (c *caller) call(op string, args []byte) ([]byte, error) {
	if c.ref == "" {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "shm", "call", op)
	}
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.broker.Invoke(ctx, c.ref, op, args)
	if err != nil {
		c.logger.Debug("Shared memory signal failed", "op", op, "error", err)
	}
	return out, err
}

func parseRef(props properties.Properties, key string) (rpc.Reference, error) {
	ref := rpc.Reference(props.Get(key))
	if !ref.Valid() {
		return "", errors.WrapInvalid(errors.ErrObjectNotFound, "shm", "SubscribeInterface", "parse "+key)
	}
	return ref, nil
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
