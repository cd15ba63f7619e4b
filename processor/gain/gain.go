// Package gain provides a processor component that scales TimedLong samples
// from its in-port and writes them to its out-port.
package gain

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// TypeName is the registry name of the processor
const TypeName = "gain"

const maxReadsPerExecute = 64

var validate = validator.New()

// Config holds configuration for the gain processor
type Config struct {
	In     string            `json:"in"     validate:"required"`
	Out    string            `json:"out"    validate:"required,nefield=In"`
	Gain   float64           `json:"gain"`
	Offset int32             `json:"offset"`
	Props  map[string]string `json:"properties"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
	}
	if math.IsNaN(c.Gain) || math.IsInf(c.Gain, 0) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "gain must be finite")
	}
	return nil
}

// DefaultConfig returns the identity configuration
func DefaultConfig() Config {
	return Config{In: "in", Out: "out", Gain: 1}
}

// Processor writes round(v*Gain)+Offset for every sample v it reads,
// keeping the source timestamp. Results saturate at the int32 range.
type Processor struct {
	component.NopLogic

	cfg     Config
	in      *port.InPort[datatype.TimedLong]
	out     *port.OutPort[datatype.TimedLong]
	logger  *slog.Logger
	metrics *gainMetrics
}

// Register adds the processor to registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        TypeName,
		Category:    "processor",
		Description: "Scales TimedLong samples by a constant gain and offset",
		Version:     "1.0.0",
		Factory:     NewComponent,
	})
}

// NewComponent builds a gain processor component from raw configuration
func NewComponent(instance string, rawConfig json.RawMessage, deps component.Dependencies) (*component.Component, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "Processor", "NewComponent", "config")
	}

	m, err := newGainMetrics(deps.MetricsRegistry, instance)
	if err != nil {
		return nil, errors.Wrap(err, "Processor", "NewComponent", "metrics")
	}

	props := properties.FromMap(cfg.Props)
	p := &Processor{
		cfg:     cfg,
		logger:  deps.ComponentLogger(instance),
		metrics: m,
		in:      port.NewInPort[datatype.TimedLong](cfg.In, deps.Ports, port.WithProperties(props)),
		out:     port.NewOutPort[datatype.TimedLong](cfg.Out, deps.Ports, port.WithProperties(props)),
	}

	opts := []component.Option{
		component.WithLogger(deps.Log()),
		component.WithMetrics(deps.MetricsRegistry.CoreMetrics()),
	}
	if deps.NATSClient != nil && deps.NATSClient.Conn() != nil {
		opts = append(opts, component.WithLogPublisher(deps.NATSClient.Conn(), deps.Instance))
	}

	c, err := component.New(instance, p, opts...)
	if err != nil {
		return nil, err
	}
	for _, pt := range []port.Port{p.in, p.out} {
		if err := c.AddPort(pt); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Apply scales one value
func (p *Processor) Apply(v int32) int32 {
	r := math.Round(float64(v)*p.cfg.Gain) + float64(p.cfg.Offset)
	switch {
	case r > math.MaxInt32:
		return math.MaxInt32
	case r < math.MinInt32:
		return math.MinInt32
	}
	return int32(r)
}

// OnExecute scales every sample available. A refused write drops the sample.
func (p *Processor) OnExecute(component.ECID) error {
	start := time.Now()
	written := 0
	for i := 0; i < maxReadsPerExecute && p.in.IsNew(); i++ {
		v, st := p.in.Read()
		if st != dataport.PortOK {
			break
		}
		v.Data = p.Apply(v.Data)
		if st := p.out.Write(v); st != dataport.PortOK {
			p.metrics.recordRefused(st.String())
			p.logger.Debug("Scaled sample refused", "status", st.String())
			continue
		}
		written++
	}
	p.metrics.recordExecute(written, time.Since(start))
	return nil
}
