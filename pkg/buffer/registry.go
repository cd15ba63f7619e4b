package buffer

import (
	"sort"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// RingBufferName is the buffer_type of RingBuffer
const RingBufferName = "ring_buffer"

// Factory builds a buffer for the connector identified by id.
type Factory[T any] func(id string) (Buffer[T], error)

// Registry maps buffer_type names to factories. It is populated once by the
// runtime and read-mostly afterwards.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Add registers a factory. Registering a name twice is an error.
func (r *Registry[T]) Add(name string, f Factory[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateName, "BufferRegistry", "Add", "register "+name)
	}
	r.factories[name] = f
	return nil
}

// Create builds a buffer of the named type
func (r *Registry[T]) Create(name, id string) (Buffer[T], error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownBuffer, "BufferRegistry", "Create", "lookup "+name)
	}
	return f(id)
}

// Has reports whether name is registered
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RingBufferFactory returns a factory for RingBuffer. When registry is non-nil
// each buffer exports metrics labelled with its connector id.
func RingBufferFactory[T any](registry *metric.MetricsRegistry, options ...Option[T]) Factory[T] {
	return func(id string) (Buffer[T], error) {
		opts := append([]Option[T]{}, options...)
		if registry != nil {
			opts = append(opts, WithMetrics[T](registry, id))
		}
		rb, err := NewRingBuffer[T](opts...)
		if err != nil {
			return nil, err
		}
		return rb, nil
	}
}
