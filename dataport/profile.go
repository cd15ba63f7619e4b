package dataport

import (
	"github.com/google/uuid"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// Property keys used in connector profiles
const (
	KeyInterfaceType    = "dataport.interface_type"
	KeyDataflowType     = "dataport.dataflow_type"
	KeySubscriptionType = "dataport.subscription_type"
	KeyDataType         = "dataport.data_type"
	KeyMarshalingType   = "dataport.marshaling_type"
	KeyIOMode           = "dataport.io_mode"
	KeyBufferType       = "buffer_type"
	KeyEndian           = "serializer.cdr.endian"
	KeySerializerNode   = "serializer"
	KeySHMAddress       = "dataport.shared_memory.address"
	KeySHMSize          = "shem_default_size"
	KeyInPortRef        = "dataport.corba_cdr.inport_ref"
	KeyOutPortRef       = "dataport.corba_cdr.outport_ref"
	KeySyncReadWrite    = "sync_readwrite"
)

// Interface types understood by the transport registry
const (
	InterfaceDirect       = "direct"
	InterfaceCorbaCDR     = "corba_cdr"
	InterfaceSharedMemory = "shared_memory"
	InterfaceCSPChannel   = "csp_channel"
	InterfaceROS          = "ros"
	InterfaceROS2         = "ros2"
	InterfaceOpenSplice   = "opensplice"
)

// Dataflow types
const (
	DataflowPush = "push"
	DataflowPull = "pull"
)

// ConnectorInfo is the profile of one connection.
type ConnectorInfo struct {
	Name       string
	ID         string
	Ports      []string
	Properties properties.Properties
}

// NewConnectorInfo builds a profile, generating an id when id is empty.
func NewConnectorInfo(name, id string, ports []string, props properties.Properties) ConnectorInfo {
	if id == "" {
		id = uuid.NewString()
	}
	if props == nil {
		props = properties.New()
	}
	return ConnectorInfo{Name: name, ID: id, Ports: ports, Properties: props}
}

// Clone returns a deep copy
func (c ConnectorInfo) Clone() ConnectorInfo {
	ports := make([]string, len(c.Ports))
	copy(ports, c.Ports)
	return ConnectorInfo{Name: c.Name, ID: c.ID, Ports: ports, Properties: c.Properties.Clone()}
}

// InterfaceType returns the normalized dataport.interface_type
func (c ConnectorInfo) InterfaceType() string {
	return properties.Normalize(c.Properties.Get(KeyInterfaceType))
}

// MarshalingType returns dataport.marshaling_type, defaulting to "cdr".
func (c ConnectorInfo) MarshalingType() string {
	mt := properties.Normalize(c.Properties.Get(KeyMarshalingType))
	if mt == "" {
		return "cdr"
	}
	return mt
}

// ParseEndian resolves serializer.cdr.endian from a connector's properties.
//
// Without a serializer node the stream is little endian. With the node present
// the endian key must be non-empty; only the first comma separated token is
// honored and an unknown token leaves the endian unset.
func ParseEndian(props properties.Properties) (cdr.Endian, error) {
	if !props.Has(KeySerializerNode) {
		return cdr.LittleEndian, nil
	}
	raw := props.Get(KeyEndian)
	tokens := properties.SplitList(raw)
	if len(tokens) == 0 {
		return cdr.EndianUnset, errors.WrapInvalid(errors.ErrEndianNotSet, "dataport", "ParseEndian", "endian lookup")
	}
	return cdr.ParseEndian(tokens[0]), nil
}
