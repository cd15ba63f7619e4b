// Package health reports host and component health.
//
// Status is the unit of health: healthy, degraded or unhealthy, with an
// optional list of sub-statuses. Aggregate folds sub-statuses: any
// unhealthy makes the aggregate unhealthy, otherwise any degraded makes it
// degraded. Monitor stores statuses by name and is safe for concurrent use.
//
// Components map to statuses by lifecycle state. ACTIVE and INACTIVE are
// healthy, CREATED is degraded and ERROR is unhealthy.
//
// Checker serves HTTP endpoints:
//
//	/live    goroutine threshold
//	/ready   liveness plus NATS connection, free disk space and components
//	/status  aggregate JSON status, 503 when unhealthy
//
// Example:
//
//	checker := health.NewChecker(health.NewMonitor(),
//		health.WithNATS(client),
//		health.WithDiskSpace("/var/lib/rtm", 64<<20),
//		health.WithComponents(rt.Components().Components),
//		health.WithMetricsRegistry(registry))
//	srv := &http.Server{Addr: ":8080", Handler: checker.Handler()}
//
// Error messages passed to FromError have URLs, paths, addresses, ports and
// credentials replaced with placeholders.
package health
