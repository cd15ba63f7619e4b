package serializer

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MessageInfo describes a pub/sub message type.
type MessageInfo struct {
	// DataType is the wire-level type name, e.g. "std_msgs/Int32"
	DataType string
	// MD5Sum identifies the ROS message definition
	MD5Sum string
	// Definition is the message or IDL source text
	Definition string
}

// InfoRegistry maps a marshaling type name to its message description
type InfoRegistry struct {
	infos cmap.ConcurrentMap[string, MessageInfo]
}

// NewInfoRegistry creates an empty registry
func NewInfoRegistry() *InfoRegistry {
	return &InfoRegistry{infos: cmap.New[MessageInfo]()}
}

// Add registers info under name, replacing any previous entry
func (r *InfoRegistry) Add(name string, info MessageInfo) {
	r.infos.Set(name, info)
}

// Get returns the info for name
func (r *InfoRegistry) Get(name string) (MessageInfo, bool) {
	return r.infos.Get(name)
}

// Remove drops the info for name
func (r *InfoRegistry) Remove(name string) bool {
	if !r.infos.Has(name) {
		return false
	}
	r.infos.Remove(name)
	return true
}

// Names returns every registered name, sorted
func (r *InfoRegistry) Names() []string {
	names := r.infos.Keys()
	sort.Strings(names)
	return names
}

// Matches reports whether a peer's advertised type and checksum agree with the
// info registered under name. An empty checksum or "*" matches anything.
func (r *InfoRegistry) Matches(name, dataType, md5sum string) bool {
	info, ok := r.infos.Get(name)
	if !ok {
		return false
	}
	if dataType != "" && dataType != info.DataType {
		return false
	}
	return md5sum == "" || md5sum == "*" || info.MD5Sum == "" || md5sum == info.MD5Sum
}
