// Package transporttest provides buffer-backed connector stand-ins for
// exercising providers and consumers without building full connectors.
package transporttest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/listener"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/buffer"
)

// Buffer returns a ring buffer of length n that rejects writes when full
func Buffer(t testing.TB, n int) *buffer.RingBuffer[[]byte] {
	t.Helper()
	b, err := buffer.NewRingBuffer[[]byte](
		buffer.WithLength[[]byte](n),
		buffer.WithOverflowPolicy[[]byte](buffer.DropNewest),
	)
	require.NoError(t, err)
	return b
}

// Connector implements both connector roles over one buffer
type Connector struct {
	Buf buffer.Buffer[[]byte]
}

// Write implements transport.InPortConnector
func (c *Connector) Write(data []byte) buffer.Status {
	return c.Buf.Write(data, 0)
}

// IsWritable implements transport.InPortConnector
func (c *Connector) IsWritable(bool) bool { return !c.Buf.Full() }

// Read implements transport.OutPortConnector
func (c *Connector) Read() ([]byte, buffer.Status) {
	return c.Buf.Read(0)
}

// IsReadable implements transport.OutPortConnector
func (c *Connector) IsReadable(bool) bool { return !c.Buf.Empty() }

// Recorder counts listener events by name
type Recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

// Listeners returns connector listeners wired to a new recorder
func Listeners() (*listener.ConnectorListeners, *Recorder) {
	rec := &Recorder{counts: make(map[string]int)}
	ls := listener.NewConnectorListeners()
	for t := listener.DataListenerType(0); t < listener.DataListenerNum; t++ {
		name := t.String()
		ls.AddDataListener(t, listener.DataListenerFunc(func(_ dataport.ConnectorInfo, data []byte) (listener.ReturnCode, []byte) {
			rec.add(name)
			return listener.NoChange, data
		}))
	}
	for t := listener.ListenerType(0); t < listener.ListenerNum; t++ {
		name := t.String()
		ls.AddListener(t, listener.ListenerFunc(func(dataport.ConnectorInfo) listener.ReturnCode {
			rec.add(name)
			return listener.NoChange
		}))
	}
	return ls, rec
}

func (r *Recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

// Count returns how often the named event fired
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}
