package port

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// Connection defaults applied when neither the ports nor the caller set them
const (
	DefaultInterfaceType = dataport.InterfaceCorbaCDR
	DefaultDataflowType  = dataport.DataflowPush
)

// Connect builds a connection from out to in and returns its profile.
// Connection properties are layered: out-port defaults, then in-port
// defaults, then props. The returned profile carries the properties both
// connectors were built from, including the published interface references.
func Connect[T any](name string, out *OutPort[T], in *InPort[T], props properties.Properties) (dataport.ConnectorInfo, error) {
	if out == nil || in == nil {
		return dataport.ConnectorInfo{}, errors.WrapInvalid(errors.ErrPortNotFound, "port", "Connect", "port lookup")
	}
	merged := properties.New().
		Merge(out.Properties()).
		Merge(in.Properties()).
		Merge(props)
	if merged.Get(dataport.KeyInterfaceType) == "" {
		merged.Set(dataport.KeyInterfaceType, DefaultInterfaceType)
	}
	if merged.Get(dataport.KeyDataflowType) == "" {
		merged.Set(dataport.KeyDataflowType, DefaultDataflowType)
	}
	merged.Set(dataport.KeyDataType, out.DataType())

	info := dataport.NewConnectorInfo(name, uuid.NewString(), []string{out.Name(), in.Name()}, merged)
	iface := info.InterfaceType()
	transports := out.deps.Transports
	if transports == nil {
		return info, errors.WrapInvalid(errors.ErrMissingConfig, "port", "Connect", "transport registry lookup")
	}

	switch flow := properties.Normalize(merged.Get(dataport.KeyDataflowType)); flow {
	case dataport.DataflowPush:
		if !transports.HasPush(iface) {
			return info, unknownTransport(iface, flow)
		}
		if err := in.publishPush(info); err != nil {
			return info, err
		}
		if err := out.subscribePush(info); err != nil {
			in.Disconnect(info.ID)
			return info, err
		}
	case dataport.DataflowPull:
		if !transports.HasPull(iface) {
			return info, unknownTransport(iface, flow)
		}
		if err := out.publishPull(info); err != nil {
			return info, err
		}
		if err := in.subscribePull(info); err != nil {
			out.Disconnect(info.ID)
			return info, err
		}
	default:
		return info, errors.WrapInvalid(
			fmt.Errorf("%w: dataflow_type %q", errors.ErrInvalidConfig, flow),
			"port", "Connect", "dataflow lookup")
	}

	out.logger.Info("Ports connected",
		"connector", name,
		"connector_id", info.ID,
		"inport", in.Name(),
		"interface_type", iface,
		"dataflow_type", merged.Get(dataport.KeyDataflowType))
	return info, nil
}

// Disconnect removes the connection id from every port given. It returns
// the first status that is not PORT_OK.
func Disconnect(id string, ports ...Port) dataport.Status {
	result := dataport.PortOK
	for _, p := range ports {
		if st := p.Disconnect(id); st != dataport.PortOK && result == dataport.PortOK {
			result = st
		}
	}
	return result
}

func unknownTransport(iface, flow string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %q does not support %s", errors.ErrUnknownTransport, iface, flow),
		"port", "Connect", "transport lookup")
}
