package metric

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry_RegisterKinds(t *testing.T) {
	cases := []struct {
		name     string
		register func(r *MetricsRegistry) error
	}{
		{"kind_counter", func(r *MetricsRegistry) error {
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: "kind_counter", Help: "h"})
			c.Inc()
			return r.RegisterCounter("svc", "kind_counter", c)
		}},
		{"kind_gauge", func(r *MetricsRegistry) error {
			g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "kind_gauge", Help: "h"})
			g.Set(42)
			return r.RegisterGauge("svc", "kind_gauge", g)
		}},
		{"kind_histogram", func(r *MetricsRegistry) error {
			h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "kind_histogram", Help: "h"})
			h.Observe(1.5)
			return r.RegisterHistogram("svc", "kind_histogram", h)
		}},
		{"kind_counter_vec", func(r *MetricsRegistry) error {
			v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "kind_counter_vec", Help: "h"}, []string{"port"})
			v.WithLabelValues("in").Inc()
			return r.RegisterCounterVec("svc", "kind_counter_vec", v)
		}},
		{"kind_gauge_vec", func(r *MetricsRegistry) error {
			v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "kind_gauge_vec", Help: "h"}, []string{"port"})
			v.WithLabelValues("in").Set(1)
			return r.RegisterGaugeVec("svc", "kind_gauge_vec", v)
		}},
		{"kind_histogram_vec", func(r *MetricsRegistry) error {
			v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "kind_histogram_vec", Help: "h"}, []string{"port"})
			v.WithLabelValues("in").Observe(0.1)
			return r.RegisterHistogramVec("svc", "kind_histogram_vec", v)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewMetricsRegistry()
			require.NoError(t, tc.register(r))
			assert.True(t, r.Registered("svc", tc.name))
			assert.True(t, gatheredNames(t, r)[tc.name])

			assert.True(t, r.Unregister("svc", tc.name))
			assert.False(t, gatheredNames(t, r)[tc.name])
		})
	}
}

func TestMetricsRegistry_DescriptorConflict(t *testing.T) {
	r := NewMetricsRegistry()
	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "shared_counter", Help: "h"})
	second := prometheus.NewCounter(prometheus.CounterOpts{Name: "shared_counter", Help: "h"})

	require.NoError(t, r.RegisterCounter("a", "shared_counter", first))
	err := r.RegisterCounter("b", "shared_counter", second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_ConcurrentRegister(t *testing.T) {
	r := NewMetricsRegistry()
	const n = 10

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_counter_%d", i)
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "h"})
			assert.NoError(t, r.RegisterCounter("svc", name, c))
		}()
	}
	wg.Wait()

	found := 0
	for name := range gatheredNames(t, r) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			found++
		}
	}
	assert.Equal(t, n, found)
}

func TestMetricsRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewMetricsRegistry()

	// Vector metrics don't appear in Gather() until they have at least one value set
	coreMetrics := registry.CoreMetrics()
	coreMetrics.RecordConnectorOpened("direct")
	coreMetrics.RecordWrite("conn0", "PORT_OK")
	coreMetrics.RecordRead("conn0", "BUFFER_EMPTY")
	coreMetrics.RecordListener("ON_BUFFER_WRITE")
	coreMetrics.RecordTransport("corba_cdr", "put", "PORT_OK", 2*time.Millisecond)
	coreMetrics.RecordComponentState("ConsoleIn0", 2)
	coreMetrics.RecordError("ConsoleIn0", "transport")

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	expectedCoreMetrics := []string{
		"rtm_connector_active",
		"rtm_connector_writes_total",
		"rtm_connector_reads_total",
		"rtm_listener_invocations_total",
		"rtm_transport_calls_total",
		"rtm_transport_duration_seconds",
		"rtm_component_state",
		"rtm_timer_ticks_total",
		"rtm_errors_total",
		"rtm_nats_connected",
		"rtm_nats_rtt_milliseconds",
		"rtm_nats_reconnects_total",
		"rtm_nats_circuit_breaker",
	}

	foundMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		foundMetrics[mf.GetName()] = true
	}

	for _, expectedMetric := range expectedCoreMetrics {
		assert.True(t, foundMetrics[expectedMetric],
			"core metric %s should be initialized", expectedMetric)
	}
}

func TestMetricsRegistry_GetCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	coreMetrics := registry.CoreMetrics()
	assert.NotNil(t, coreMetrics)

	assert.NotNil(t, coreMetrics.ConnectorsActive)
	assert.NotNil(t, coreMetrics.ConnectorWrites)
	assert.NotNil(t, coreMetrics.ConnectorReads)
	assert.NotNil(t, coreMetrics.ListenerCalls)
	assert.NotNil(t, coreMetrics.TransportCalls)
	assert.NotNil(t, coreMetrics.TransportDuration)
	assert.NotNil(t, coreMetrics.ComponentState)
	assert.NotNil(t, coreMetrics.TimerTicks)
	assert.NotNil(t, coreMetrics.ErrorsTotal)
	assert.NotNil(t, coreMetrics.NATSConnected)
	assert.NotNil(t, coreMetrics.NATSCircuitBreaker)
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordConnectorOpened("shared_memory")
	coreMetrics.RecordConnectorOpened("shared_memory")
	coreMetrics.RecordConnectorClosed("shared_memory")
	assert.Equal(t, 1.0, testutil.ToFloat64(coreMetrics.ConnectorsActive.WithLabelValues("shared_memory")))

	coreMetrics.RecordWrite("conn0", "PORT_OK")
	coreMetrics.RecordWrite("conn0", "PORT_OK")
	coreMetrics.RecordWrite("conn0", "SEND_FULL")
	assert.Equal(t, 2.0, testutil.ToFloat64(coreMetrics.ConnectorWrites.WithLabelValues("conn0", "PORT_OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coreMetrics.ConnectorWrites.WithLabelValues("conn0", "SEND_FULL")))

	coreMetrics.RecordTimerTick()
	coreMetrics.RecordTimerTick()
	assert.Equal(t, 2.0, testutil.ToFloat64(coreMetrics.TimerTicks))

	coreMetrics.RecordComponentState("c0", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(coreMetrics.ComponentState.WithLabelValues("c0")))

	coreMetrics.RecordNATSStatus(true)
	coreMetrics.RecordNATSRTT(50 * time.Millisecond)
	coreMetrics.RecordNATSReconnect()
	coreMetrics.RecordCircuitBreakerState(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(coreMetrics.NATSConnected))
	assert.Equal(t, 50.0, testutil.ToFloat64(coreMetrics.NATSRTT))
	assert.Equal(t, 1.0, testutil.ToFloat64(coreMetrics.NATSCircuitBreaker))
}

func TestCoreMetrics_NilSafe(t *testing.T) {
	var registry *MetricsRegistry
	coreMetrics := registry.CoreMetrics()
	assert.Nil(t, coreMetrics)

	assert.NotPanics(t, func() {
		coreMetrics.RecordConnectorOpened("direct")
		coreMetrics.RecordWrite("c", "PORT_OK")
		coreMetrics.RecordTransport("direct", "put", "PORT_OK", time.Millisecond)
		coreMetrics.RecordTimerTick()
		coreMetrics.RecordNATSStatus(false)
	})
}

func TestMetricsRegistry_Registered(t *testing.T) {
	registry := NewMetricsRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tracked_gauge", Help: "tracked"})

	assert.False(t, registry.Registered("svc", "tracked_gauge"))
	require.NoError(t, registry.RegisterGauge("svc", "tracked_gauge", gauge))
	assert.True(t, registry.Registered("svc", "tracked_gauge"))
	assert.True(t, registry.Unregister("svc", "tracked_gauge"))
	assert.False(t, registry.Registered("svc", "tracked_gauge"))
	assert.False(t, registry.Unregister("svc", "tracked_gauge"))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordTimerTick()

	server := NewServer(0, "", registry)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "rtm_timer_ticks_total"))
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServer_StartRequiresRegistry(t *testing.T) {
	server := NewServer(0, "", nil)
	err := server.Start(context.Background())
	assert.Error(t, err)
}
