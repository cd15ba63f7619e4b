package csp

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// Connect connects two CSP ports. The interface type defaults to
// csp_channel when neither the ports nor props name one.
func Connect[T any](name string, out *OutPort[T], in *InPort[T], props properties.Properties) (dataport.ConnectorInfo, error) {
	merged := properties.New().Merge(props)
	if merged.Get(dataport.KeyInterfaceType) == "" &&
		out.Properties().Get(dataport.KeyInterfaceType) == "" &&
		in.Properties().Get(dataport.KeyInterfaceType) == "" {
		merged.Set(dataport.KeyInterfaceType, dataport.InterfaceCSPChannel)
	}
	return port.Connect(name, out.OutPort, in.InPort, merged)
}
