package config

import (
	"encoding/json"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/input/sequence"
	"github.com/OpenRTM/RTM-Tutorial-sub001/output/file"
	"github.com/OpenRTM/RTM-Tutorial-sub001/processor/gain"
)

// Demo component instance names
const (
	DemoSource    = "seqout0"
	DemoProcessor = "gain0"
	DemoSink      = "filein0"
)

// ApplyDemo fills an empty pipeline with a source, a processor and a sink
// driven by one execution context at rate Hz. iface selects the interface
// type of both connections. A configuration that already names components
// is left unchanged.
func (c *Config) ApplyDemo(rate float64, iface, directory string) {
	if len(c.Components) > 0 {
		return
	}

	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	sink := file.DefaultConfig()
	if directory != "" {
		sink.Directory = directory
	}

	c.Components = ComponentConfigs{
		DemoSource: {
			Type:    sequence.TypeName,
			Enabled: true,
			Config:  raw(sequence.Config{Port: "out", Step: 1}),
		},
		DemoProcessor: {
			Type:    gain.TypeName,
			Enabled: true,
			Config:  raw(gain.Config{In: "in", Out: "out", Gain: 2}),
		},
		DemoSink: {
			Type:    file.TypeName,
			Enabled: true,
			Config:  raw(sink),
		},
	}
	c.ExecutionContexts = []ExecutionContextConfig{{
		Rate:       rate,
		Components: []string{DemoSource, DemoProcessor, DemoSink},
	}}

	props := map[string]string{
		dataport.KeyInterfaceType: iface,
		dataport.KeyDataflowType:  dataport.DataflowPush,
	}
	c.Connections = []ConnectionConfig{
		{Name: "source-gain", From: DemoSource + ".out", To: DemoProcessor + ".in", Properties: props},
		{Name: "gain-sink", From: DemoProcessor + ".out", To: DemoSink + ".in", Properties: props},
	}
}
