package worker

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

const metricsService = "worker_pool"

var durationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	processed  prometheus.Counter
	failed     prometheus.Counter
	dropped    prometheus.Counter
	duration   *prometheus.HistogramVec
}

// newPoolMetrics names every collector "<prefix>_<metric>". Registration
// failures are logged; the collectors still count so Stats stay in step.
func newPoolMetrics(registry *metric.MetricsRegistry, prefix string, logger *slog.Logger) *poolMetrics {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{Name: prefix + "_queue_depth", Help: "Items waiting for a worker"}),
		submitted:  prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_submitted_total", Help: "Items accepted by Submit"}),
		processed:  prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_processed_total", Help: "Items handed to the processor"}),
		failed:     prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_failed_total", Help: "Items whose processor returned an error or panicked"}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_dropped_total", Help: "Items refused because the queue was full"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_processing_duration_seconds",
			Help:    "Processor run time",
			Buckets: durationBuckets,
		}, []string{"status"}),
	}

	register := map[string]func() error{
		"queue_depth":                 func() error { return registry.RegisterGauge(metricsService, prefix+"_queue_depth", m.queueDepth) },
		"submitted_total":             func() error { return registry.RegisterCounter(metricsService, prefix+"_submitted_total", m.submitted) },
		"processed_total":             func() error { return registry.RegisterCounter(metricsService, prefix+"_processed_total", m.processed) },
		"failed_total":                func() error { return registry.RegisterCounter(metricsService, prefix+"_failed_total", m.failed) },
		"dropped_total":               func() error { return registry.RegisterCounter(metricsService, prefix+"_dropped_total", m.dropped) },
		"processing_duration_seconds": func() error { return registry.RegisterHistogramVec(metricsService, prefix+"_processing_duration_seconds", m.duration) },
	}
	for name, fn := range register {
		if err := fn(); err != nil {
			logger.Warn("Worker pool metric not registered", "metric", prefix+"_"+name, "error", err)
		}
	}
	return m
}

func (m *poolMetrics) accepted(depth int) {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *poolMetrics) refused() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *poolMetrics) done(depth int, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.failed.Inc()
	}
	m.processed.Inc()
	m.queueDepth.Set(float64(depth))
	m.duration.WithLabelValues(status).Observe(seconds)
}
