package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

type cacheMetrics struct {
	lookups   *prometheus.CounterVec // result=hit|miss
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, service string) (*cacheMetrics, error) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   "rtm",
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"cache": service},
		}
	}
	m := &cacheMetrics{
		lookups:   prometheus.NewCounterVec(prometheus.CounterOpts(opts("lookups_total", "Cache lookups by result")), []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts(opts("evictions_total", "Entries evicted for capacity"))),
		size:      prometheus.NewGauge(prometheus.GaugeOpts(opts("entries", "Entries currently cached"))),
	}

	for _, err := range []error{
		registry.RegisterCounterVec(service, "cache_lookups", m.lookups),
		registry.RegisterCounter(service, "cache_evictions", m.evictions),
		registry.RegisterGauge(service, "cache_entries", m.size),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) lookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) evicted(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

func (m *cacheMetrics) resize(n int) {
	if m != nil {
		m.size.Set(float64(n))
	}
}
