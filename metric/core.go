package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every runtime metric.
const Namespace = "rtm"

// Metrics contains the runtime-level metrics shared by connectors, transports and components
type Metrics struct {
	// Connector metrics
	ConnectorsActive  *prometheus.GaugeVec
	ConnectorWrites   *prometheus.CounterVec
	ConnectorReads    *prometheus.CounterVec
	ListenerCalls     *prometheus.CounterVec
	TransportCalls    *prometheus.CounterVec
	TransportDuration *prometheus.HistogramVec

	// Component metrics
	ComponentState *prometheus.GaugeVec
	TimerTicks     prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all runtime metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectorsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "connector",
				Name:      "active",
				Help:      "Number of open connectors by interface type",
			},
			[]string{"interface_type"},
		),

		ConnectorWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "connector",
				Name:      "writes_total",
				Help:      "Total connector writes by resulting port status",
			},
			[]string{"connector", "status"},
		),

		ConnectorReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "connector",
				Name:      "reads_total",
				Help:      "Total connector reads by resulting port status",
			},
			[]string{"connector", "status"},
		),

		ListenerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "listener",
				Name:      "invocations_total",
				Help:      "Total connector listener invocations by event type",
			},
			[]string{"type"},
		),

		TransportCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "calls_total",
				Help:      "Total transport operations",
			},
			[]string{"transport", "operation", "status"},
		),

		TransportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "duration_seconds",
				Help:      "Transport operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "operation"},
		),

		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "state",
				Help:      "Component lifecycle state (0=created, 1=inactive, 2=active, 3=error, 4=finalized)",
			},
			[]string{"component"},
		),

		TimerTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "timer",
				Name:      "ticks_total",
				Help:      "Total timer ticks dispatched",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectorsActive,
		c.ConnectorWrites,
		c.ConnectorReads,
		c.ListenerCalls,
		c.TransportCalls,
		c.TransportDuration,
		c.ComponentState,
		c.TimerTicks,
		c.ErrorsTotal,
		c.NATSConnected,
		c.NATSRTT,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	}
}

// RecordConnectorOpened increments the active connector gauge
func (c *Metrics) RecordConnectorOpened(interfaceType string) {
	if c == nil {
		return
	}
	c.ConnectorsActive.WithLabelValues(interfaceType).Inc()
}

// RecordConnectorClosed decrements the active connector gauge
func (c *Metrics) RecordConnectorClosed(interfaceType string) {
	if c == nil {
		return
	}
	c.ConnectorsActive.WithLabelValues(interfaceType).Dec()
}

// RecordWrite counts a connector write with its port status name
func (c *Metrics) RecordWrite(connector, status string) {
	if c == nil {
		return
	}
	c.ConnectorWrites.WithLabelValues(connector, status).Inc()
}

// RecordRead counts a connector read with its port status name
func (c *Metrics) RecordRead(connector, status string) {
	if c == nil {
		return
	}
	c.ConnectorReads.WithLabelValues(connector, status).Inc()
}

// RecordListener counts a listener dispatch
func (c *Metrics) RecordListener(eventType string) {
	if c == nil {
		return
	}
	c.ListenerCalls.WithLabelValues(eventType).Inc()
}

// RecordTransport counts a transport operation and records its latency
func (c *Metrics) RecordTransport(transport, operation, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.TransportCalls.WithLabelValues(transport, operation, status).Inc()
	c.TransportDuration.WithLabelValues(transport, operation).Observe(duration.Seconds())
}

// RecordComponentState updates the lifecycle state gauge
func (c *Metrics) RecordComponentState(component string, state int) {
	if c == nil {
		return
	}
	c.ComponentState.WithLabelValues(component).Set(float64(state))
}

// RecordTimerTick increments the timer tick counter
func (c *Metrics) RecordTimerTick() {
	if c == nil {
		return
	}
	c.TimerTicks.Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	if c == nil {
		return
	}
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	if c == nil {
		return
	}
	c.NATSCircuitBreaker.Set(float64(state))
}
