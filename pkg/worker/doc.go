// Package worker provides a bounded, generic worker pool.
//
// The pub/sub transports use it to move inbound messages off the NATS
// delivery goroutine: a subscription handler submits each message and a
// fixed set of workers hands it to the connector. Submit never blocks; a
// full queue returns ErrQueueFull so the caller can fire its receiver-full
// listeners instead of stalling the subscription.
//
// Statistics are always tracked with atomics. Prometheus metrics are opt-in
// through WithMetricsRegistry:
//
//	pool := worker.NewPool(4, 256, deliver,
//	    worker.WithMetricsRegistry[inbound](registry, "rtm_pubsub_inbound"),
//	    worker.WithLogger[inbound](logger),
//	)
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(time.Second)
//
// A panicking processor is recovered, counted as failed and logged; the
// worker keeps running.
package worker
