package rtm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/panjf2000/ants/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	"github.com/OpenRTM/RTM-Tutorial-sub001/connector"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/port"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/timer"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/corbacdr"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/csp"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/direct"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/pubsub"
	"github.com/OpenRTM/RTM-Tutorial-sub001/transport/shm"
)

// Defaults used when no option overrides them
const (
	DefaultInstance     = "rtm"
	DefaultPoolSize     = 64
	DefaultTickInterval = time.Millisecond
	DefaultRPCPrefix    = rpc.DefaultSubjectPrefix
)

// Option configures a Runtime
type Option func(*options)

type options struct {
	instance      string
	logger        *slog.Logger
	nats          *natsclient.Client
	registry      *metric.MetricsRegistry
	poolSize      int
	tickInterval  time.Duration
	rpcPrefix     string
	wsEndpoint    string
	profileBucket string
	pubsubWorkers int
	pubsubQueue   int
}

// WithInstance names the runtime; it prefixes component log subjects
func WithInstance(name string) Option {
	return func(o *options) { o.instance = name }
}

// WithLogger sets the runtime logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNATS serves remote objects and pub/sub topics over a connected client
func WithNATS(client *natsclient.Client) Option {
	return func(o *options) { o.nats = client }
}

// WithMetricsRegistry exports runtime, buffer and transport metrics
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = r }
}

// WithPoolSize sizes the goroutine pool shared by asynchronous publishers
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithTickInterval sets how often Run advances the runtime timer
func WithTickInterval(d time.Duration) Option {
	return func(o *options) { o.tickInterval = d }
}

// WithRPCPrefix sets the NATS subject prefix remote objects are served under
func WithRPCPrefix(prefix string) Option {
	return func(o *options) { o.rpcPrefix = prefix }
}

// WithWebsocketEndpoint advertises the URL the broker's websocket handler is
// mounted on
func WithWebsocketEndpoint(endpoint string) Option {
	return func(o *options) { o.wsEndpoint = endpoint }
}

// WithProfileBucket records component profiles in the named JetStream KV bucket
func WithProfileBucket(bucket string) Option {
	return func(o *options) { o.profileBucket = bucket }
}

// WithPubSubWorkers sizes the inbound pub/sub worker pool. Each subscriber
// is pinned to one worker so its deliveries stay in order.
func WithPubSubWorkers(workers, queueSize int) Option {
	return func(o *options) {
		o.pubsubWorkers = workers
		o.pubsubQueue = queueSize
	}
}

// Runtime owns the registries every port draws from and the shared
// infrastructure behind them: the timer, the object broker, the publisher
// pool and the pub/sub topic manager.
type Runtime struct {
	instance string
	logger   *slog.Logger
	opts     options

	nats     *natsclient.Client
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	rtm      *runtimeMetrics

	timer       *timer.Timer
	broker      *rpc.Broker
	pool        *ants.Pool
	topics      *pubsub.TopicManager
	serializers *serializer.Registry
	buffers     *buffer.Registry[[]byte]
	publishers  *connector.Publishers
	transports  *transport.Registry
	components  *component.Registry

	mu       sync.Mutex
	ecs      map[component.ECID]*component.ExecutionContext
	nextEC   component.ECID
	profiles *natsclient.KVStore
	running  bool
	closed   bool
}

// New builds a runtime and runs the factory initialisation: ring buffer,
// publishers, transports and serializers, in that order.
func New(opts ...Option) (*Runtime, error) {
	o := options{
		instance:     DefaultInstance,
		logger:       slog.Default(),
		poolSize:     DefaultPoolSize,
		tickInterval: DefaultTickInterval,
		rpcPrefix:    DefaultRPCPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := component.ValidateComponentName(o.instance); err != nil {
		return nil, errors.Wrap(err, "Runtime", "New", "instance name validation")
	}
	logger := o.logger.With("component", "runtime", "instance", o.instance)

	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Runtime", "New", "publisher pool")
	}
	rtmMetrics, err := newRuntimeMetrics(o.registry)
	if err != nil {
		pool.Release()
		return nil, errors.Wrap(err, "Runtime", "New", "runtime metrics")
	}

	r := &Runtime{
		instance:   o.instance,
		logger:     logger,
		opts:       o,
		nats:       o.nats,
		registry:   o.registry,
		metrics:    o.registry.CoreMetrics(),
		rtm:        rtmMetrics,
		pool:       pool,
		components: component.NewRegistry(),
		ecs:        make(map[component.ECID]*component.ExecutionContext),
	}
	r.timer = timer.New(timer.WithLogger(o.logger), timer.WithMetrics(r.metrics))

	brokerOpts := []rpc.Option{rpc.WithLogger(o.logger), rpc.WithMetrics(r.metrics)}
	if o.wsEndpoint != "" {
		brokerOpts = append(brokerOpts, rpc.WithWebsocketEndpoint(o.wsEndpoint))
	}
	r.broker = rpc.NewBroker(brokerOpts...)

	topicOpts := []pubsub.Option{pubsub.WithLogger(o.logger)}
	if o.registry != nil {
		topicOpts = append(topicOpts, pubsub.WithMetricsRegistry(o.registry))
	}
	if o.pubsubWorkers > 0 {
		topicOpts = append(topicOpts, pubsub.WithWorkers(o.pubsubWorkers, o.pubsubQueue))
	}
	r.topics = pubsub.NewTopicManager(o.nats, topicOpts...)

	if err := r.factoryInit(); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) factoryInit() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"ring buffer", r.initBuffers},
		{"publishers", r.initPublishers},
		{"transports", r.initTransports},
		{"serializers", r.initSerializers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return errors.Wrap(err, "Runtime", "factoryInit", step.name)
		}
		r.logger.Debug("Factory initialised", "factory", step.name)
	}
	return nil
}

func (r *Runtime) initBuffers() error {
	r.buffers = buffer.NewRegistry[[]byte]()
	return r.buffers.Add(buffer.RingBufferName,
		buffer.RingBufferFactory[[]byte](r.registry, buffer.WithLogger[[]byte](r.logger)))
}

func (r *Runtime) initPublishers() error {
	r.publishers = connector.NewPublishers(connector.PublisherDeps{
		Pool:   r.pool,
		Timer:  r.timer,
		Logger: r.opts.logger,
	})
	return connector.RegisterPublishers(r.publishers)
}

// initTransports registers the transports. Serializers are created here and
// filled by initSerializers; transports only resolve them per connection.
func (r *Runtime) initTransports() error {
	r.serializers = serializer.NewRegistry(r.opts.logger)
	r.transports = transport.NewRegistry(transport.Deps{
		Broker:          r.broker,
		NATS:            r.nats,
		Serializers:     r.serializers,
		Pool:            r.pool,
		Logger:          r.opts.logger,
		Metrics:         r.metrics,
		MetricsRegistry: r.registry,
	})
	for _, reg := range []struct {
		name string
		fn   func(*transport.Registry) error
	}{
		{"corba_cdr", corbacdr.Register},
		{"direct", direct.Register},
		{"shared_memory", shm.Register},
		{"csp_channel", csp.Register},
		{"pubsub", func(t *transport.Registry) error { return pubsub.Register(t, r.topics) }},
	} {
		if err := reg.fn(r.transports); err != nil {
			return errors.Wrap(err, "Runtime", "initTransports", reg.name)
		}
	}
	return nil
}

func (r *Runtime) initSerializers() error {
	serializer.RegisterBuiltins(r.serializers)
	return nil
}

// Instance returns the runtime instance name
func (r *Runtime) Instance() string { return r.instance }

// Timer returns the runtime timer
func (r *Runtime) Timer() *timer.Timer { return r.timer }

// Broker returns the object broker
func (r *Runtime) Broker() *rpc.Broker { return r.broker }

// Transports returns the transport registry
func (r *Runtime) Transports() *transport.Registry { return r.transports }

// Serializers returns the serializer registry
func (r *Runtime) Serializers() *serializer.Registry { return r.serializers }

// Buffers returns the buffer registry
func (r *Runtime) Buffers() *buffer.Registry[[]byte] { return r.buffers }

// Publishers returns the publisher registry
func (r *Runtime) Publishers() *connector.Publishers { return r.publishers }

// Components returns the component registry
func (r *Runtime) Components() *component.Registry { return r.components }

// PortDeps returns the dependencies ports are built with
func (r *Runtime) PortDeps() port.Deps {
	return port.Deps{
		Transports:  r.transports,
		Buffers:     r.buffers,
		Serializers: r.serializers,
		Publishers:  r.publishers,
		Logger:      r.opts.logger,
		Metrics:     r.metrics,
	}
}

// ComponentDeps returns the dependencies component factories receive
func (r *Runtime) ComponentDeps() component.Dependencies {
	return component.Dependencies{
		Ports:           r.PortDeps(),
		Timer:           r.timer,
		NATSClient:      r.nats,
		MetricsRegistry: r.registry,
		Logger:          r.opts.logger,
		Instance:        r.instance,
	}
}

// CreateComponent builds a component through the registry and initialises it
func (r *Runtime) CreateComponent(typeName, instance string, rawConfig json.RawMessage) (*component.Component, error) {
	c, err := r.components.Create(typeName, instance, rawConfig, r.ComponentDeps())
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(); err != nil {
		r.components.Remove(instance)
		return nil, errors.Wrap(err, "Runtime", "CreateComponent", "initialize "+instance)
	}
	r.rtm.componentCreated(typeName)
	r.rtm.setComponents(len(r.components.Components()))
	return c, nil
}

// NewExecutionContext creates an execution context on the runtime timer
func (r *Runtime) NewExecutionContext(rate float64) (*component.ExecutionContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.WrapFatal(errors.ErrShuttingDown, "Runtime", "NewExecutionContext", "closed check")
	}
	id := r.nextEC
	ec, err := component.NewExecutionContext(id, r.timer, rate, r.opts.logger)
	if err != nil {
		return nil, err
	}
	r.nextEC++
	r.ecs[id] = ec
	r.rtm.setExecutionContexts(len(r.ecs))
	return ec, nil
}

// ExecutionContexts returns the execution contexts ordered by id
func (r *Runtime) ExecutionContexts() []*component.ExecutionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*component.ExecutionContext, 0, len(r.ecs))
	for _, id := range slices.Sorted(maps.Keys(r.ecs)) {
		out = append(out, r.ecs[id])
	}
	return out
}

// Start serves remote objects over NATS when a client is configured, opens
// the profile bucket and launches the pub/sub workers.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.WrapFatal(errors.ErrShuttingDown, "Runtime", "Start", "closed check")
	}
	if r.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runtime", "Start", "running check")
	}
	if r.nats != nil {
		if err := r.broker.ServeNATS(r.nats, r.opts.rpcPrefix); err != nil {
			return errors.Wrap(err, "Runtime", "Start", "serve objects")
		}
		if r.opts.profileBucket != "" {
			bucket, err := r.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
				Bucket:      r.opts.profileBucket,
				Description: "RT component profiles",
			})
			if err != nil {
				return errors.Wrap(err, "Runtime", "Start", "profile bucket")
			}
			r.profiles = natsclient.NewKVStore(bucket)
		}
	}
	if err := r.topics.Start(ctx); err != nil {
		return errors.Wrap(err, "Runtime", "Start", "pub/sub workers")
	}
	r.running = true
	r.logger.Info("Runtime started",
		"nats", r.nats != nil,
		"push_interfaces", r.transports.PushInterfaces(),
		"pull_interfaces", r.transports.PullInterfaces())
	return nil
}

// Run advances the runtime timer until ctx ends
func (r *Runtime) Run(ctx context.Context) error {
	err := r.timer.Run(ctx, r.opts.tickInterval)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RecordProfiles writes every component profile to the profile bucket under
// <instance>.<component>. It does nothing without a bucket.
func (r *Runtime) RecordProfiles(ctx context.Context) error {
	r.mu.Lock()
	kv := r.profiles
	r.mu.Unlock()
	if kv == nil {
		return nil
	}
	comps := r.components.Components()
	for _, name := range slices.Sorted(maps.Keys(comps)) {
		if _, err := kv.PutJSON(ctx, r.instance+"."+name, comps[name].Profile()); err != nil {
			return errors.Wrap(err, "Runtime", "RecordProfiles", "put "+name)
		}
	}
	r.rtm.profilesRecorded(len(comps))
	return nil
}

// Shutdown stops every execution context, finalizes every component and
// releases the shared infrastructure. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ecs := slices.Collect(maps.Values(r.ecs))
	r.mu.Unlock()

	var errs []error
	for _, ec := range ecs {
		for _, c := range ec.Components() {
			if c.State() == component.StateActive {
				if err := ec.DeactivateComponent(c); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if ec.IsRunning() {
			if err := ec.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := r.RecordProfiles(ctx); err != nil {
		r.logger.Warn("Failed to record final profiles", "error", err)
	}
	if err := r.components.FinalizeAll(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, r.release()...)

	r.logger.Info("Runtime shut down")
	return stderrors.Join(errs...)
}

func (r *Runtime) release() []error {
	var errs []error
	if r.topics != nil {
		if err := r.topics.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.broker.Close(); err != nil {
		errs = append(errs, err)
	}
	r.pool.Release()
	return errs
}
