package listener

import (
	"strings"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
)

// TypedFunc receives decoded data. Returning DataChanged re-encodes the
// returned value in place of the original payload.
type TypedFunc[T any] func(info dataport.ConnectorInfo, data T) (ReturnCode, T)

// Typed decodes the payload with the connector's marshaling type and byte
// order before calling its function. When the payload cannot be decoded the
// function is not called and the payload passes through unchanged.
type Typed[T any] struct {
	registry *serializer.Registry
	portType PortType
	fn       TypedFunc[T]
}

// NewTyped wraps fn as a DataListener
func NewTyped[T any](registry *serializer.Registry, portType PortType, fn TypedFunc[T]) *Typed[T] {
	return &Typed[T]{registry: registry, portType: portType, fn: fn}
}

// OnData implements DataListener
func (t *Typed[T]) OnData(info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
	var value T
	s, err := t.registry.CreateSerializer(t.marshalingType(info), value)
	if err != nil {
		return NoChange, data
	}

	endian, err := dataport.ParseEndian(info.Properties)
	if err != nil || endian == cdr.EndianUnset {
		endian = cdr.LittleEndian
	}
	s.SetEndian(endian)

	if st := s.Deserialize(data, &value); st != serializer.StatusOK {
		return NoChange, data
	}

	code, changed := t.fn(info, value)
	if !code.ChangesData() {
		return code, data
	}
	out, st := s.Serialize(changed)
	if st != serializer.StatusOK {
		return code &^ DataChanged, data
	}
	return code, out
}

func (t *Typed[T]) marshalingType(info dataport.ConnectorInfo) string {
	mt := info.MarshalingType()
	key := "outport.marshaling_type"
	if t.portType == InPortType {
		key = "inport.marshaling_type"
	}
	if override := strings.TrimSpace(info.Properties.Get(key)); override != "" {
		mt = override
	}
	return mt
}
