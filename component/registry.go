package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Factory builds a component from raw JSON configuration. Factories must
// not perform I/O; that belongs in OnInitialize.
type Factory func(instance string, rawConfig json.RawMessage, deps Dependencies) (*Component, error)

// Registration describes a component type
type Registration struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Factory     Factory `json:"-"`
}

// Registry keeps component factories by type and the instances created from them
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
	instances map[string]*Component
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]*Component),
	}
}

// RegisterFactory adds a component type. Type names are unique.
func (r *Registry) RegisterFactory(reg Registration) error {
	if err := ValidateComponentName(reg.Name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "type name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Registry", "RegisterFactory", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[reg.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: component type %q", errors.ErrDuplicateName, reg.Name),
			"Registry", "RegisterFactory", "duplicate check")
	}
	r.factories[reg.Name] = &reg
	return nil
}

// Create builds a component of the given type and registers it under instance
func (r *Registry) Create(typeName, instance string, rawConfig json.RawMessage, deps Dependencies) (*Component, error) {
	if err := ValidateComponentName(instance); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "instance name validation")
	}
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "config validation")
	}

	r.mu.RLock()
	reg, ok := r.factories[typeName]
	_, taken := r.instances[instance]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown component type %q", typeName), "Registry", "Create", "factory lookup")
	}
	if taken {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: instance %q", errors.ErrDuplicateName, instance),
			"Registry", "Create", "duplicate check")
	}

	c, err := reg.Factory(instance, rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "factory execution")
	}
	if err := r.Add(instance, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Add registers an existing component under name
func (r *Registry) Add(name string, c *Component) error {
	if c == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Registry", "Add", "component validation")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: instance %q", errors.ErrDuplicateName, name),
			"Registry", "Add", "duplicate check")
	}
	r.instances[name] = c
	return nil
}

// Remove unregisters the named instance and returns it
func (r *Registry) Remove(name string) (*Component, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.instances[name]
	delete(r.instances, name)
	return c, ok
}

// Component returns the named instance
func (r *Registry) Component(name string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.instances[name]
	return c, ok
}

// Components returns a copy of the instance map
func (r *Registry) Components() map[string]*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.instances)
}

// Types returns the registered type names, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Registration returns the metadata of a type without its factory
func (r *Registry) Registration(typeName string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[typeName]
	if !ok {
		return Registration{}, false
	}
	out := *reg
	out.Factory = nil
	return out, true
}

// FinalizeAll deactivates and finalizes every instance and empties the
// registry. The first error is returned after all instances were visited.
func (r *Registry) FinalizeAll() error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Component)
	r.mu.Unlock()

	var first error
	for _, name := range slices.Sorted(maps.Keys(instances)) {
		c := instances[name]
		if c.State() == StateActive {
			if err := c.Deactivate(); err != nil && first == nil {
				first = err
			}
		}
		if err := c.Finalize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
