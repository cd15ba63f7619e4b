package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// bufferMetrics mirrors Statistics into Prometheus. Each buffer registers
// its own collectors under service prefix, labelled component=prefix.
type bufferMetrics struct {
	registry *metric.MetricsRegistry
	prefix   string
	names    []string

	writes, reads, peeks       prometheus.Counter
	overflows, drops, timeouts prometheus.Counter
	size, utilization          prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{registry: registry, prefix: prefix}
	labels := prometheus.Labels{"component": prefix}

	counter := func(dst *prometheus.Counter, name, help string) error {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm", Subsystem: "buffer", Name: name + "_total",
			Help: help, ConstLabels: labels,
		})
		if err := registry.RegisterCounter(prefix, "buffer_"+name, c); err != nil {
			return err
		}
		m.names = append(m.names, "buffer_"+name)
		*dst = c
		return nil
	}
	gauge := func(dst *prometheus.Gauge, name, help string) error {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtm", Subsystem: "buffer", Name: name,
			Help: help, ConstLabels: labels,
		})
		if err := registry.RegisterGauge(prefix, "buffer_"+name, g); err != nil {
			return err
		}
		m.names = append(m.names, "buffer_"+name)
		*dst = g
		return nil
	}

	for _, err := range []error{
		counter(&m.writes, "writes", "Elements written"),
		counter(&m.reads, "reads", "Elements read and advanced past"),
		counter(&m.peeks, "peeks", "Reads that did not advance"),
		counter(&m.overflows, "overflows", "Writes that found the buffer full"),
		counter(&m.drops, "drops", "Elements discarded by the full policy"),
		counter(&m.timeouts, "timeouts", "Blocking writes or reads that gave up"),
		gauge(&m.size, "size", "Elements buffered"),
		gauge(&m.utilization, "utilization", "Fill level as a fraction of capacity"),
	} {
		if err != nil {
			m.unregister()
			return nil, err
		}
	}
	return m, nil
}

func (m *bufferMetrics) recordWrite(fill, capacity int) {
	m.writes.Inc()
	m.updateSize(fill, capacity)
}

func (m *bufferMetrics) recordRead(fill, capacity int) {
	m.reads.Inc()
	m.updateSize(fill, capacity)
}

func (m *bufferMetrics) recordPeek()     { m.peeks.Inc() }
func (m *bufferMetrics) recordOverflow() { m.overflows.Inc() }
func (m *bufferMetrics) recordTimeout()  { m.timeouts.Inc() }
func (m *bufferMetrics) recordDrop()     { m.drops.Inc() }

func (m *bufferMetrics) updateSize(fill, capacity int) {
	m.size.Set(float64(fill))
	m.utilization.Set(float64(fill) / float64(capacity))
}

// unregister removes whatever newBufferMetrics managed to register
func (m *bufferMetrics) unregister() {
	for _, name := range m.names {
		m.registry.Unregister(m.prefix, name)
	}
}
