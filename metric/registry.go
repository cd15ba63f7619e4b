package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// MetricsRegistrar is the registration surface handed to components that
// own metrics of their own.
type MetricsRegistrar interface {
	RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error
	RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(serviceName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(serviceName, metricName string) bool
}

// MetricsRegistry owns the Prometheus registry of one runtime. Service
// metrics are tracked under "<service>.<metric>" so they can be removed
// again when the owning component finalizes.
type MetricsRegistry struct {
	prom    *prometheus.Registry
	Metrics *Metrics

	mu      sync.RWMutex
	tracked map[string]prometheus.Collector
}

// NewMetricsRegistry returns a registry holding the core runtime metrics
// and the Go and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:    prometheus.NewRegistry(),
		Metrics: NewMetrics(),
		tracked: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(r.Metrics.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the core runtime metrics. A nil registry yields nil,
// and every Record method on a nil *Metrics is a no-op.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}

// Registered reports whether a service metric is tracked under the given name
func (r *MetricsRegistry) Registered(serviceName, metricName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tracked[trackKey(serviceName, metricName)]
	return ok
}

func trackKey(serviceName, metricName string) string {
	return serviceName + "." + metricName
}

// register tracks c under service.metric and adds it to Prometheus. A name
// already tracked, or a descriptor Prometheus already knows, is invalid.
func (r *MetricsRegistry) register(method, serviceName, metricName string, c prometheus.Collector) error {
	key := trackKey(serviceName, metricName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.tracked[key]; dup {
		return errors.WrapInvalid(errors.ErrDuplicateName, "MetricsRegistry", method,
			fmt.Sprintf("metric %s already registered for service %s", metricName, serviceName))
	}

	if err := r.prom.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method, "prometheus register")
	}
	r.tracked[key] = c
	return nil
}

// RegisterCounter registers a counter for a service
func (r *MetricsRegistry) RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", serviceName, metricName, counter)
}

// RegisterGauge registers a gauge for a service
func (r *MetricsRegistry) RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", serviceName, metricName, gauge)
}

// RegisterHistogram registers a histogram for a service
func (r *MetricsRegistry) RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", serviceName, metricName, histogram)
}

// RegisterCounterVec registers a labelled counter for a service
func (r *MetricsRegistry) RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", serviceName, metricName, counterVec)
}

// RegisterGaugeVec registers a labelled gauge for a service
func (r *MetricsRegistry) RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", serviceName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a labelled histogram for a service
func (r *MetricsRegistry) RegisterHistogramVec(
	serviceName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", serviceName, metricName, histogramVec)
}

// Unregister removes a service metric. It reports false when the name is
// not tracked or Prometheus no longer knows the collector.
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	key := trackKey(serviceName, metricName)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.tracked[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.tracked, key)
	return true
}
