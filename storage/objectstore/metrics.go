package objectstore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// storeMetrics holds Prometheus metrics for one store
type storeMetrics struct {
	ops      *prometheus.CounterVec   // By operation
	latency  *prometheus.HistogramVec // By operation
	errors   *prometheus.CounterVec   // By operation
	archived prometheus.Counter
}

// newStoreMetrics registers the store metrics under service; a nil registry disables them
func newStoreMetrics(registry *metric.MetricsRegistry, service, bucket string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"bucket": bucket, "store": service}
	m := &storeMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rtm",
			Subsystem:   "objectstore",
			Name:        "operations_total",
			Help:        "Object store operations",
			ConstLabels: labels,
		}, []string{"operation"}), // put, get, list, delete

		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "rtm",
			Subsystem:   "objectstore",
			Name:        "operation_duration_seconds",
			Help:        "Object store operation duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"operation"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rtm",
			Subsystem:   "objectstore",
			Name:        "operation_errors_total",
			Help:        "Object store operations that failed",
			ConstLabels: labels,
		}, []string{"operation"}),

		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rtm",
			Subsystem:   "objectstore",
			Name:        "samples_archived_total",
			Help:        "Samples written to the object store",
			ConstLabels: labels,
		}),
	}

	if err := registry.RegisterCounterVec(service, "objectstore_operations", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(service, "objectstore_duration", m.latency); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(service, "objectstore_errors", m.errors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "objectstore_archived", m.archived); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *storeMetrics) observe(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(operation).Inc()
	m.latency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *storeMetrics) samplesArchived(n int) {
	if m != nil {
		m.archived.Add(float64(n))
	}
}
