package gain

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// gainMetrics holds Prometheus metrics for one gain processor instance
type gainMetrics struct {
	samples  prometheus.Counter
	refused  *prometheus.CounterVec // By write status
	duration prometheus.Histogram
}

// newGainMetrics registers the metrics of one instance; a nil registry disables them
func newGainMetrics(registry *metric.MetricsRegistry, instance string) (*gainMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"component": instance}
	m := &gainMetrics{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rtm",
			Subsystem:   "gain",
			Name:        "samples_total",
			Help:        "Samples scaled and written",
			ConstLabels: labels,
		}),

		refused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rtm",
			Subsystem:   "gain",
			Name:        "refused_total",
			Help:        "Scaled samples the out-port refused",
			ConstLabels: labels,
		}, []string{"status"}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rtm",
			Subsystem:   "gain",
			Name:        "execute_duration_seconds",
			Help:        "Time spent draining and scaling per execution",
			Buckets:     []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			ConstLabels: labels,
		}),
	}

	service := "gain." + instance
	if err := registry.RegisterCounter(service, "samples", m.samples); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(service, "refused", m.refused); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(service, "execute_duration", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gainMetrics) recordExecute(written int, duration time.Duration) {
	if m == nil {
		return
	}
	m.samples.Add(float64(written))
	m.duration.Observe(duration.Seconds())
}

func (m *gainMetrics) recordRefused(status string) {
	if m == nil {
		return
	}
	m.refused.WithLabelValues(status).Inc()
}
