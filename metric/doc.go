// Package metric provides Prometheus-based metrics collection and an HTTP
// exposition server for the component runtime.
//
// The package offers a centralized registry holding the core runtime metrics
// (connectors, transports, listeners, component state, NATS health) together
// with metrics registered by individual parts of the runtime, such as the
// per-connector buffer gauges.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Stop()
//
//	core := registry.CoreMetrics()
//	core.RecordConnectorOpened("direct")
//	core.RecordWrite("conn0", "PORT_OK")
//
// Every Record method tolerates a nil *Metrics, so code paths that were built
// without a registry need no guards.
//
// # Core Metrics
//
// All core metrics use the namespace "rtm":
//
//   - rtm_connector_active{interface_type}
//   - rtm_connector_writes_total{connector,status}
//   - rtm_connector_reads_total{connector,status}
//   - rtm_listener_invocations_total{type}
//   - rtm_transport_calls_total{transport,operation,status}
//   - rtm_transport_duration_seconds{transport,operation}
//   - rtm_component_state{component}
//   - rtm_timer_ticks_total
//   - rtm_errors_total{component,type}
//   - rtm_nats_connected, rtm_nats_rtt_milliseconds, rtm_nats_reconnects_total,
//     rtm_nats_circuit_breaker
//
// # Registering Metrics
//
// Parts of the runtime register their own collectors through the
// MetricsRegistrar interface, keyed by an owner name and a metric name.
// Registering the same key twice is rejected, and Unregister removes the
// collector from the Prometheus registry so that a closed connector leaves
// nothing behind.
//
// # Thread Safety
//
// Registration is mutex protected. Recording is lock-free.
package metric
