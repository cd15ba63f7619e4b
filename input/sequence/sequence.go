// Package sequence provides a source component that writes an increasing
// TimedLong sequence to its out-port once per execution.
package sequence

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// TypeName is the registry name of the source
const TypeName = "sequence-out"

var validate = validator.New()

// Config holds configuration for the sequence source
type Config struct {
	Port  string            `json:"port"  validate:"required"`
	Start int32             `json:"start"`
	Step  int32             `json:"step"  validate:"ne=0"`
	Limit int               `json:"limit" validate:"gte=0"` // 0 writes forever
	Props map[string]string `json:"properties"`             // port-level connection defaults
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "struct validation")
	}
	return nil
}

// DefaultConfig returns the default source configuration
func DefaultConfig() Config {
	return Config{Port: "out", Step: 1}
}

// Source writes Start, Start+Step, ... to its out-port
type Source struct {
	component.NopLogic

	cfg    Config
	out    *port.OutPort[datatype.TimedLong]
	logger *slog.Logger

	mu     sync.Mutex
	next   int32
	sent   int
	failed int
	last   dataport.Status
}

// Register adds the source to registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        TypeName,
		Category:    "source",
		Description: "Writes an increasing TimedLong sequence once per execution",
		Version:     "1.0.0",
		Factory:     NewComponent,
	})
}

// NewComponent builds a sequence source component from raw configuration
func NewComponent(instance string, rawConfig json.RawMessage, deps component.Dependencies) (*component.Component, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "Source", "NewComponent", "config")
	}

	logger := deps.ComponentLogger(instance)
	s := &Source{
		cfg:    cfg,
		logger: logger,
		next:   cfg.Start,
		out: port.NewOutPort[datatype.TimedLong](cfg.Port, deps.Ports,
			port.WithProperties(properties.FromMap(cfg.Props))),
	}

	opts := []component.Option{component.WithLogger(deps.Log())}
	if deps.NATSClient != nil && deps.NATSClient.Conn() != nil {
		opts = append(opts, component.WithLogPublisher(deps.NATSClient.Conn(), deps.Instance))
	}
	opts = append(opts, component.WithMetrics(deps.MetricsRegistry.CoreMetrics()))

	c, err := component.New(instance, s, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.AddPort(s.out); err != nil {
		return nil, err
	}
	return c, nil
}

// Out returns the out-port
func (s *Source) Out() *port.OutPort[datatype.TimedLong] { return s.out }

// OnExecute writes the next value. A refused write is retried with the same
// value on the next execution.
func (s *Source) OnExecute(component.ECID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Limit > 0 && s.sent >= s.cfg.Limit {
		return nil
	}
	st := s.out.Write(datatype.TimedLong{Tm: datatype.Now(), Data: s.next})
	s.last = st
	if st != dataport.PortOK {
		s.failed++
		s.logger.Debug("Write refused", "value", s.next, "status", st.String())
		return nil
	}
	s.sent++
	s.next += s.cfg.Step
	return nil
}

// OnDeactivated logs the totals so far
func (s *Source) OnDeactivated(component.ECID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("Sequence paused", "sent", s.sent, "failed", s.failed)
	return nil
}

// Stats returns the number of values sent and refused and the last status
func (s *Source) Stats() (sent, failed int, last dataport.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.failed, s.last
}
