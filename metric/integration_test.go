package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bufferMetrics mirrors what a connector registers for its ring buffer
type bufferMetrics struct {
	service string
	writes  prometheus.Counter
	fill    prometheus.Gauge
}

func newBufferMetrics(service string) *bufferMetrics {
	return &bufferMetrics{
		service: service,
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm", Subsystem: "test_buffer", Name: "writes_total",
			Help: "Elements written",
		}),
		fill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtm", Subsystem: "test_buffer", Name: "fill",
			Help: "Elements buffered",
		}),
	}
}

func (b *bufferMetrics) register(r MetricsRegistrar) error {
	if err := r.RegisterCounter(b.service, "writes_total", b.writes); err != nil {
		return err
	}
	return r.RegisterGauge(b.service, "fill", b.fill)
}

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestServiceMetrics_AlongsideCore(t *testing.T) {
	r := NewMetricsRegistry()
	b := newBufferMetrics("conn0")
	require.NoError(t, b.register(r))

	b.writes.Add(4)
	b.fill.Set(2)
	r.CoreMetrics().RecordComponentState("comp0", 2)
	r.CoreMetrics().RecordWrite("conn0", "PORT_OK")

	names := gatheredNames(t, r)
	for _, want := range []string{
		"rtm_test_buffer_writes_total",
		"rtm_test_buffer_fill",
		"rtm_component_state",
		"rtm_connector_writes_total",
	} {
		assert.True(t, names[want], want)
	}
	assert.True(t, r.Registered("conn0", "fill"))
}

func TestServiceMetrics_Conflicts(t *testing.T) {
	t.Run("same service", func(t *testing.T) {
		r := NewMetricsRegistry()
		require.NoError(t, newBufferMetrics("conn0").register(r))
		err := newBufferMetrics("conn0").register(r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("same descriptor under another service", func(t *testing.T) {
		r := NewMetricsRegistry()
		require.NoError(t, newBufferMetrics("conn0").register(r))
		err := newBufferMetrics("conn1").register(r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prometheus conflict")
		assert.False(t, r.Registered("conn1", "writes_total"))
	})
}

func TestServiceMetrics_Unregister(t *testing.T) {
	r := NewMetricsRegistry()
	b := newBufferMetrics("conn0")
	require.NoError(t, b.register(r))
	b.writes.Inc()

	assert.True(t, r.Unregister("conn0", "writes_total"))
	assert.False(t, r.Unregister("conn0", "writes_total"))

	names := gatheredNames(t, r)
	assert.False(t, names["rtm_test_buffer_writes_total"])
	assert.True(t, names["rtm_test_buffer_fill"])

	// The name is free again once unregistered
	assert.NoError(t, r.RegisterCounter("conn0", "writes_total", b.writes))
}
