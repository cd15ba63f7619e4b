// Package file provides a sink component that records TimedLong samples
// read from its in-port as JSON to a file.
package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// TypeName is the registry name of the sink
const TypeName = "file-in"

// maxReadsPerExecute bounds how many samples one execution drains
const maxReadsPerExecute = 64

// Config holds configuration for the file sink
type Config struct {
	Port       string            `json:"port"`
	Directory  string            `json:"directory"`
	FilePrefix string            `json:"file_prefix"`
	Format     string            `json:"format"`
	Append     bool              `json:"append"`
	BufferSize int               `json:"buffer_size"`
	Props      map[string]string `json:"properties"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "port is required")
	}
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "directory is required")
	}

	validFormats := map[string]bool{"json": true, "jsonl": true}
	if !validFormats[c.Format] {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: json, jsonl")
	}

	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}
	return nil
}

// DefaultConfig returns default configuration for the file sink
func DefaultConfig() Config {
	return Config{
		Port:       "in",
		Directory:  filepath.Join(os.TempDir(), "rtm"),
		FilePrefix: "samples",
		Format:     "jsonl",
		Append:     true,
		BufferSize: 100,
	}
}

// Record is one sample as written to the file
type Record struct {
	Received time.Time `json:"received"`
	Stamp    time.Time `json:"stamp"`
	Data     int32     `json:"data"`
}

// Sink drains its in-port on every execution and writes what it read
type Sink struct {
	component.NopLogic

	cfg    Config
	in     *port.InPort[datatype.TimedLong]
	logger *slog.Logger

	fileMu sync.Mutex
	file   *os.File
	buffer []Record

	statsMu sync.Mutex
	read    int
	written int
	errors  int
	last    dataport.Status
}

// Register adds the sink to registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        TypeName,
		Category:    "sink",
		Description: "Records TimedLong samples from an in-port to a JSON file",
		Version:     "1.0.0",
		Factory:     NewComponent,
	})
}

// NewComponent builds a file sink component from raw configuration
func NewComponent(instance string, rawConfig json.RawMessage, deps component.Dependencies) (*component.Component, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Sink", "NewComponent", "config unmarshal")
	}

	s := &Sink{
		cfg:    cfg,
		logger: deps.ComponentLogger(instance),
		buffer: make([]Record, 0, cfg.BufferSize),
		in: port.NewInPort[datatype.TimedLong](cfg.Port, deps.Ports,
			port.WithProperties(properties.FromMap(cfg.Props))),
	}

	opts := []component.Option{
		component.WithLogger(deps.Log()),
		component.WithMetrics(deps.MetricsRegistry.CoreMetrics()),
	}
	if deps.NATSClient != nil && deps.NATSClient.Conn() != nil {
		opts = append(opts, component.WithLogPublisher(deps.NATSClient.Conn(), deps.Instance))
	}

	c, err := component.New(instance, s, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.AddPort(s.in); err != nil {
		return nil, err
	}
	return c, nil
}

// In returns the in-port
func (s *Sink) In() *port.InPort[datatype.TimedLong] { return s.in }

// Path returns the output file path
func (s *Sink) Path() string {
	return filepath.Join(s.cfg.Directory, fmt.Sprintf("%s.%s", s.cfg.FilePrefix, s.cfg.Format))
}

// OnInitialize creates the output directory
func (s *Sink) OnInitialize() error {
	if err := os.MkdirAll(s.cfg.Directory, 0o755); err != nil {
		return errors.WrapFatal(err, "Sink", "OnInitialize", "create output directory")
	}
	return nil
}

// OnActivated opens the output file
func (s *Sink) OnActivated(component.ECID) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if s.file != nil {
		return nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if s.cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.Path(), flags, 0o644)
	if err != nil {
		return errors.WrapTransient(err, "Sink", "OnActivated", "open output file")
	}
	s.file = f
	s.logger.Info("File sink opened", "path", s.Path(), "format", s.cfg.Format)
	return nil
}

// OnExecute reads every sample available and flushes once the buffer fills
func (s *Sink) OnExecute(component.ECID) error {
	var batch []Record
	for i := 0; i < maxReadsPerExecute && s.in.IsNew(); i++ {
		v, st := s.in.Read()
		s.setLast(st)
		if st != dataport.PortOK {
			break
		}
		batch = append(batch, Record{Received: time.Now(), Stamp: v.Tm.Time(), Data: v.Data})
	}
	if len(batch) == 0 {
		return nil
	}

	s.statsMu.Lock()
	s.read += len(batch)
	s.statsMu.Unlock()

	s.fileMu.Lock()
	s.buffer = append(s.buffer, batch...)
	full := len(s.buffer) >= s.cfg.BufferSize
	s.fileMu.Unlock()

	if full {
		return s.flush()
	}
	return nil
}

// OnDeactivated flushes buffered samples and closes the file
func (s *Sink) OnDeactivated(component.ECID) error {
	err := s.flush()

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil {
			s.logger.Warn("failed to close output file", "error", cerr, "path", s.Path())
		}
		s.file = nil
	}
	return err
}

// OnAborting closes the file like a deactivation
func (s *Sink) OnAborting(ec component.ECID) error {
	return s.OnDeactivated(ec)
}

func (s *Sink) flush() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if len(s.buffer) == 0 {
		return nil
	}
	records := s.buffer
	s.buffer = make([]Record, 0, s.cfg.BufferSize)

	if s.file == nil {
		s.addStats(0, len(records))
		return errors.WrapFatal(errors.ErrNotStarted, "Sink", "flush", "file is not open")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, r := range records {
		var (
			line []byte
			err  error
		)
		if s.cfg.Format == "json" {
			line, err = json.MarshalIndent(r, "", "  ")
		} else {
			line, err = json.Marshal(r)
		}
		if err != nil {
			s.addStats(0, 1)
			continue
		}
		_, _ = buf.Write(line)
		_ = buf.WriteByte('\n')
	}

	if _, err := s.file.Write(buf.B); err != nil {
		s.addStats(0, len(records))
		return errors.WrapTransient(err, "Sink", "flush", "write records")
	}
	s.addStats(len(records), 0)
	s.logger.Debug("Flush completed", "records", len(records), "bytes", buf.Len())
	return nil
}

func (s *Sink) setLast(st dataport.Status) {
	s.statsMu.Lock()
	s.last = st
	s.statsMu.Unlock()
}

func (s *Sink) addStats(written, failed int) {
	s.statsMu.Lock()
	s.written += written
	s.errors += failed
	s.statsMu.Unlock()
}

// Stats returns samples read, records written, write errors and the last read status
func (s *Sink) Stats() (read, written, failed int, last dataport.Status) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.read, s.written, s.errors, s.last
}
