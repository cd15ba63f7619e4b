package rtm

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// runtimeMetrics holds Prometheus metrics for runtime bookkeeping
type runtimeMetrics struct {
	created    *prometheus.CounterVec // By component type
	components prometheus.Gauge
	contexts   prometheus.Gauge
	profiles   prometheus.Counter
}

// newRuntimeMetrics registers the runtime metrics; a nil registry disables them
func newRuntimeMetrics(registry *metric.MetricsRegistry) (*runtimeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &runtimeMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "runtime",
			Name:      "components_created_total",
			Help:      "Components created through the registry",
		}, []string{"type"}),

		components: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtm",
			Subsystem: "runtime",
			Name:      "components",
			Help:      "Components currently registered",
		}),

		contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtm",
			Subsystem: "runtime",
			Name:      "execution_contexts",
			Help:      "Execution contexts created",
		}),

		profiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtm",
			Subsystem: "runtime",
			Name:      "profiles_recorded_total",
			Help:      "Component profiles written to the profile bucket",
		}),
	}

	if err := registry.RegisterCounterVec("runtime", "components_created", m.created); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("runtime", "components", m.components); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("runtime", "execution_contexts", m.contexts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("runtime", "profiles_recorded", m.profiles); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *runtimeMetrics) componentCreated(typeName string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(typeName).Inc()
}

func (m *runtimeMetrics) setComponents(n int) {
	if m != nil {
		m.components.Set(float64(n))
	}
}

func (m *runtimeMetrics) setExecutionContexts(n int) {
	if m != nil {
		m.contexts.Set(float64(n))
	}
}

func (m *runtimeMetrics) profilesRecorded(n int) {
	if m != nil {
		m.profiles.Add(float64(n))
	}
}
