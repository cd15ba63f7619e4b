// Package cache provides a thread-safe LRU cache with statistics and
// optional Prometheus metrics.
package cache

import (
	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// Config describes an LRU cache
type Config[V any] struct {
	// Capacity is the maximum number of entries, at least 1
	Capacity int
	// Registry and Service export statistics when both are set
	Registry *metric.MetricsRegistry
	Service  string
	// OnEvict runs after an entry is evicted, deleted or cleared, outside
	// the cache lock
	OnEvict func(key string, value V)
}

// New creates an LRU cache from cfg
func New[V any](cfg Config[V]) (*LRU[V], error) {
	if cfg.Capacity < 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "New", "capacity must be positive")
	}
	c := &LRU[V]{
		capacity: cfg.Capacity,
		index:    make(map[string]*node[V], cfg.Capacity),
		stats:    &Statistics{},
		onEvict:  cfg.OnEvict,
	}
	c.head.prev, c.head.next = &c.head, &c.head

	if cfg.Registry != nil && cfg.Service != "" {
		m, err := newCacheMetrics(cfg.Registry, cfg.Service)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "register metrics")
		}
		c.metrics = m
	}
	return c, nil
}
