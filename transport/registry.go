package transport

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/rpc"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
)

// Deps are the runtime services a transport may use. Broker is required;
// NATS is nil when the runtime has no message bus.
type Deps struct {
	Broker          *rpc.Broker
	NATS            *natsclient.Client
	Serializers     *serializer.Registry
	Pool            *ants.Pool
	Logger          *slog.Logger
	Metrics         *metric.Metrics
	MetricsRegistry *metric.MetricsRegistry
}

// Factory builds one provider or consumer
type Factory[T any] func(deps Deps) (T, error)

type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f *factories[T]) add(name string, fn Factory[T]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[name]; ok {
		return errors.WrapInvalid(errors.ErrDuplicateName, "TransportRegistry", "Add"+f.kind, "register "+name)
	}
	f.m[name] = fn
	return nil
}

func (f *factories[T]) create(name string, deps Deps) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, errors.WrapInvalid(errors.ErrUnknownTransport, "TransportRegistry", "Create"+f.kind, "lookup "+name)
	}
	return fn(deps)
}

func (f *factories[T]) has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.m[name]
	return ok
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry maps interface types to provider and consumer factories for both
// dataflow directions. It is populated by the runtime at startup.
type Registry struct {
	deps Deps

	inProviders  *factories[InPortProvider]
	inConsumers  *factories[InPortConsumer]
	outProviders *factories[OutPortProvider]
	outConsumers *factories[OutPortConsumer]
}

// NewRegistry returns an empty registry handing deps to every factory
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		deps:         deps,
		inProviders:  newFactories[InPortProvider]("InPortProvider"),
		inConsumers:  newFactories[InPortConsumer]("InPortConsumer"),
		outProviders: newFactories[OutPortProvider]("OutPortProvider"),
		outConsumers: newFactories[OutPortConsumer]("OutPortConsumer"),
	}
}

// Deps returns the services handed to factories
func (r *Registry) Deps() Deps { return r.deps }

// AddInPortProvider registers a push provider factory
func (r *Registry) AddInPortProvider(name string, f Factory[InPortProvider]) error {
	return r.inProviders.add(name, f)
}

// AddInPortConsumer registers a push consumer factory
func (r *Registry) AddInPortConsumer(name string, f Factory[InPortConsumer]) error {
	return r.inConsumers.add(name, f)
}

// AddOutPortProvider registers a pull provider factory
func (r *Registry) AddOutPortProvider(name string, f Factory[OutPortProvider]) error {
	return r.outProviders.add(name, f)
}

// AddOutPortConsumer registers a pull consumer factory
func (r *Registry) AddOutPortConsumer(name string, f Factory[OutPortConsumer]) error {
	return r.outConsumers.add(name, f)
}

// CreateInPortProvider builds the push provider for an interface type
func (r *Registry) CreateInPortProvider(name string) (InPortProvider, error) {
	return r.inProviders.create(name, r.deps)
}

// CreateInPortConsumer builds the push consumer for an interface type
func (r *Registry) CreateInPortConsumer(name string) (InPortConsumer, error) {
	return r.inConsumers.create(name, r.deps)
}

// CreateOutPortProvider builds the pull provider for an interface type
func (r *Registry) CreateOutPortProvider(name string) (OutPortProvider, error) {
	return r.outProviders.create(name, r.deps)
}

// CreateOutPortConsumer builds the pull consumer for an interface type
func (r *Registry) CreateOutPortConsumer(name string) (OutPortConsumer, error) {
	return r.outConsumers.create(name, r.deps)
}

// HasPush reports whether both push roles exist for name
func (r *Registry) HasPush(name string) bool {
	return r.inProviders.has(name) && r.inConsumers.has(name)
}

// HasPull reports whether both pull roles exist for name
func (r *Registry) HasPull(name string) bool {
	return r.outProviders.has(name) && r.outConsumers.has(name)
}

// PushInterfaces lists the interface types usable for push connections
func (r *Registry) PushInterfaces() []string {
	var out []string
	for _, name := range r.inProviders.names() {
		if r.inConsumers.has(name) {
			out = append(out, name)
		}
	}
	return out
}

// PullInterfaces lists the interface types usable for pull connections
func (r *Registry) PullInterfaces() []string {
	var out []string
	for _, name := range r.outProviders.names() {
		if r.outConsumers.has(name) {
			out = append(out, name)
		}
	}
	return out
}
