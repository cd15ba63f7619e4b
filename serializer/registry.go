package serializer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/datatype"
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Registry holds codec factories by marshaling type name, either bound to one
// data type or available for every type. Entries for a data type take
// precedence over global ones.
type Registry struct {
	mu     sync.RWMutex
	global map[string]Factory
	typed  map[string]map[string]Factory
	logger *slog.Logger

	// Message descriptions consulted by the pub/sub transports
	ROSInfo        *InfoRegistry
	ROS2Info       *InfoRegistry
	OpenSpliceInfo *InfoRegistry
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		global:         make(map[string]Factory),
		typed:          make(map[string]map[string]Factory),
		logger:         logger.With("component", "serializer-registry"),
		ROSInfo:        NewInfoRegistry(),
		ROS2Info:       NewInfoRegistry(),
		OpenSpliceInfo: NewInfoRegistry(),
	}
}

// AddSerializer registers a codec for one data type, identified by its
// repository id. A later registration under the same name replaces the earlier.
func (r *Registry) AddSerializer(name string, f Factory, dataType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.typed[dataType]
	if !ok {
		byName = make(map[string]Factory)
		r.typed[dataType] = byName
	}
	if _, exists := byName[name]; exists {
		r.logger.Warn("Replacing serializer", "name", name, "data_type", dataType)
	}
	byName[name] = f
}

// AddSerializerGlobal registers a codec usable with any data type. A later
// registration under the same name replaces the earlier.
func (r *Registry) AddSerializerGlobal(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.global[name]; exists {
		r.logger.Warn("Replacing global serializer", "name", name)
	}
	r.global[name] = f
}

// RemoveSerializer drops a codec for a data type
func (r *Registry) RemoveSerializer(name, dataType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.typed[dataType]
	if !ok {
		return false
	}
	if _, ok := byName[name]; !ok {
		return false
	}
	delete(byName, name)
	return true
}

// RemoveSerializerGlobal drops a global codec
func (r *Registry) RemoveSerializerGlobal(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.global[name]; !ok {
		return false
	}
	delete(r.global, name)
	return true
}

// Has reports whether a codec named name can serve data
func (r *Registry) Has(name string, data any) bool {
	_, ok := r.lookup(name, datatype.TypeName(data))
	return ok
}

// CreateSerializer returns a new codec named name for the type of data
func (r *Registry) CreateSerializer(name string, data any) (Serializer, error) {
	dataType := datatype.TypeName(data)
	f, ok := r.lookup(name, dataType)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s for %s", errors.ErrSerializerNotFound, name, dataType),
			"SerializerRegistry", "CreateSerializer", "factory lookup")
	}
	return f(), nil
}

// SerializerList returns the codec names usable with data, sorted
func (r *Registry) SerializerList(data any) []string {
	dataType := datatype.TypeName(data)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for name := range r.typed[dataType] {
		seen[name] = struct{}{}
	}
	for name := range r.global {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name, dataType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.typed[dataType][name]; ok {
		return f, true
	}
	f, ok := r.global[name]
	return f, ok
}
