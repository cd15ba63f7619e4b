package listener

import (
	"log/slog"
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
)

// ID is the handle returned when a listener is registered. Removal goes
// through it rather than the listener value: ListenerFunc and
// DataListenerFunc adapters are not comparable, and one value may be
// registered more than once, each registration removed on its own.
type ID uint64

type entry[L any] struct {
	id ID
	l  L
}

// holder keeps listeners in registration order. Notification runs on a
// snapshot so listeners may add or remove registrations while being called.
type holder[L any] struct {
	mu      sync.RWMutex
	entries []entry[L]
}

func (h *holder[L]) add(id ID, l L) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry[L]{id: id, l: l})
}

func (h *holder[L]) remove(id ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (h *holder[L]) snapshot() []entry[L] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return nil
	}
	out := make([]entry[L], len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *holder[L]) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// DataListenerHolder threads a payload through its listeners in order
type DataListenerHolder struct {
	holder[DataListener]
	logger *slog.Logger
}

// Notify calls every listener with the output of the previous one and returns
// the combined code and the final payload. A panicking listener is skipped.
func (h *DataListenerHolder) Notify(info dataport.ConnectorInfo, data []byte) (ReturnCode, []byte) {
	ret := NoChange
	for _, e := range h.snapshot() {
		code, out, ok := h.call(e.l, info, data)
		if !ok {
			continue
		}
		if code.ChangesData() {
			data = out
		}
		ret |= code
	}
	return ret, data
}

func (h *DataListenerHolder) call(l DataListener, info dataport.ConnectorInfo, data []byte) (code ReturnCode, out []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Data listener panicked", "connector", info.Name, "panic", r)
			ok = false
		}
	}()
	code, out = l.OnData(info, data)
	return code, out, true
}

// ListenerHolder calls plain listeners in order
type ListenerHolder struct {
	holder[Listener]
	logger *slog.Logger
}

// Notify calls every listener and returns the combined code
func (h *ListenerHolder) Notify(info dataport.ConnectorInfo) ReturnCode {
	ret := NoChange
	for _, e := range h.snapshot() {
		ret |= h.call(e.l, info)
	}
	return ret
}

func (h *ListenerHolder) call(l Listener, info dataport.ConnectorInfo) (code ReturnCode) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Listener panicked", "connector", info.Name, "panic", r)
			code = NoChange
		}
	}()
	return l.OnEvent(info)
}
