package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/storage"
)

// TypeName is the registry name of the archive sink
const TypeName = "objectstore-in"

const maxReadsPerExecute = 64

// Sample is one archived TimedLong
type Sample struct {
	Stamp time.Time `json:"stamp"`
	Data  int32     `json:"data"`
}

// Batch is the JSON document stored per object
type Batch struct {
	Component string    `json:"component"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
	Samples   []Sample  `json:"samples"`
}

// Request is a get or list call on the archive subject
type Request struct {
	Action string `json:"action"` // get, list
	Key    string `json:"key,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// Response answers a Request
type Response struct {
	Success bool            `json:"success"`
	Key     string          `json:"key,omitempty"`
	Keys    []string        `json:"keys,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Archiver buffers the samples read from its in-port and writes them to a
// storage.Store in batches of BatchSize. Whatever is pending is written when
// the component is deactivated or aborts.
type Archiver struct {
	component.NopLogic

	name   string
	cfg    Config
	in     *port.InPort[datatype.TimedLong]
	keys   storage.KeyGenerator
	logger *slog.Logger

	client   *natsclient.Client
	registry *metric.MetricsRegistry
	sub      *nats.Subscription

	mu       sync.Mutex
	store    storage.Store
	pending  []Sample
	archived int
	dropped  int
	failures int
}

// Register adds the archive sink to registry
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        TypeName,
		Category:    "sink",
		Description: "Archives TimedLong samples to a NATS JetStream object store",
		Version:     "1.0.0",
		Factory:     NewComponent,
	})
}

// NewComponent builds an archive sink. The bucket is opened on initialisation,
// so a NATS client is required.
func NewComponent(instance string, rawConfig json.RawMessage, deps component.Dependencies) (*component.Component, error) {
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Archiver", "NewComponent",
			"object store archiving requires a NATS connection")
	}
	c, _, err := newComponent(instance, rawConfig, deps, nil)
	return c, err
}

func newComponent(instance string, rawConfig json.RawMessage, deps component.Dependencies, store storage.Store) (*component.Component, *Archiver, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, nil, errors.Wrap(err, "Archiver", "NewComponent", "config")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = instance
	}
	a := &Archiver{
		name:     instance,
		cfg:      cfg,
		keys:     storage.TimeBucketKeys{Prefix: prefix},
		logger:   deps.ComponentLogger(instance),
		client:   deps.NATSClient,
		registry: deps.MetricsRegistry,
		store:    store,
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

	c, err := component.New(instance, a, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := c.AddPort(a.in); err != nil {
		return nil, nil, err
	}
	return c, a, nil
}

// In returns the in-port
func (a *Archiver) In() *port.InPort[datatype.TimedLong] { return a.in }

// OnInitialize opens the bucket and starts serving requests
func (a *Archiver) OnInitialize() error {
	a.mu.Lock()
	if a.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout())
		store, err := NewStore(ctx, a.client, StoreConfig{
			Bucket:    a.cfg.Bucket,
			CacheSize: a.cfg.CacheSize,
			Service:   "objectstore." + a.name,
			Registry:  a.registry,
		})
		cancel()
		if err != nil {
			a.mu.Unlock()
			return errors.Wrap(err, "Archiver", "OnInitialize", "open store")
		}
		a.store = store
	}
	a.mu.Unlock()

	if a.cfg.Subject == "" || a.client == nil {
		return nil
	}
	sub, err := a.client.Subscribe(a.cfg.Subject, a.handleRequest)
	if err != nil {
		return errors.WrapTransient(err, "Archiver", "OnInitialize", "subscribe "+a.cfg.Subject)
	}
	a.sub = sub
	a.logger.Info("Archive API listening", "subject", a.cfg.Subject, "bucket", a.cfg.Bucket)
	return nil
}

// OnFinalize stops serving requests
func (a *Archiver) OnFinalize() error {
	if a.sub == nil {
		return nil
	}
	err := a.client.Unsubscribe(a.sub)
	a.sub = nil
	return err
}

// OnExecute drains the in-port and archives full batches, retrying any
// batch a previous write failed to store
func (a *Archiver) OnExecute(component.ECID) error {
	var read []Sample
	for i := 0; i < maxReadsPerExecute && a.in.IsNew(); i++ {
		v, st := a.in.Read()
		if st != dataport.PortOK {
			break
		}
		read = append(read, Sample{Stamp: v.Tm.Time(), Data: v.Data})
	}

	a.mu.Lock()
	a.pending = append(a.pending, read...)
	if over := len(a.pending) - a.cfg.MaxPending; over > 0 {
		a.pending = a.pending[over:]
		a.dropped += over
		a.logger.Warn("Archive backlog full, dropping oldest samples", "dropped", over)
	}
	a.mu.Unlock()

	a.flush(false)
	return nil
}

// OnDeactivated writes every pending sample
func (a *Archiver) OnDeactivated(component.ECID) error {
	a.flush(true)
	return nil
}

// OnAborting writes pending samples like a deactivation
func (a *Archiver) OnAborting(ec component.ECID) error {
	return a.OnDeactivated(ec)
}

// flush writes full batches, and the partial tail as well when all is set.
// A failed write keeps the batch pending for the next attempt.
func (a *Archiver) flush(all bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for len(a.pending) >= a.cfg.BatchSize || (all && len(a.pending) > 0) {
		n := min(a.cfg.BatchSize, len(a.pending))
		if err := a.put(a.pending[:n]); err != nil {
			a.failures++
			a.logger.Warn("Archive write failed", "error", err, "pending", len(a.pending))
			return
		}
		a.pending = a.pending[n:]
		a.archived += n
	}
}

func (a *Archiver) put(samples []Sample) error {
	if a.store == nil {
		return errors.WrapFatal(errors.ErrNotStarted, "Archiver", "put", "store is not open")
	}
	batch := Batch{
		Component: a.name,
		First:     samples[0].Stamp,
		Last:      samples[len(samples)-1].Stamp,
		Samples:   samples,
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return errors.WrapInvalid(err, "Archiver", "put", "encode batch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout())
	defer cancel()
	key := a.keys.GenerateKey(batch.First)
	if err := a.store.Put(ctx, key, data); err != nil {
		return err
	}
	if s, ok := a.store.(*Store); ok {
		s.metrics.samplesArchived(len(samples))
	}
	a.logger.Debug("Batch archived", "key", key, "samples", len(samples))
	return nil
}

// Stats returns samples archived, samples still pending, samples dropped and failed writes
func (a *Archiver) Stats() (archived, pending, dropped, failures int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archived, len(a.pending), a.dropped, a.failures
}

func (a *Archiver) handleRequest(msg *nats.Msg) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		a.respond(msg, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	a.respond(msg, a.serve(req))
}

func (a *Archiver) serve(req Request) Response {
	a.mu.Lock()
	store := a.store
	a.mu.Unlock()
	if store == nil {
		return Response{Error: "store is not open"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout())
	defer cancel()

	switch req.Action {
	case "get":
		data, err := store.Get(ctx, req.Key)
		if err != nil {
			return Response{Key: req.Key, Error: err.Error()}
		}
		return Response{Success: true, Key: req.Key, Data: data}
	case "list":
		keys, err := store.List(ctx, req.Prefix)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Success: true, Keys: keys}
	default:
		return Response{Error: fmt.Sprintf("unknown action: %q", req.Action)}
	}
}

func (a *Archiver) respond(msg *nats.Msg, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error("Failed to marshal response", "error", err, "subject", msg.Subject)
		return
	}
	if err := msg.Respond(data); err != nil {
		a.logger.Error("Failed to send response", "error", err, "subject", msg.Subject)
	}
}
