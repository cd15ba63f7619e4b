// Package natsclient wraps the NATS Go client for the port runtime.
//
// The client adds a circuit breaker in front of connection attempts and
// remote requests: after a threshold of consecutive failures (default 5) the
// circuit opens and calls fail fast with ErrCircuitOpen until the backoff
// elapses. Each opening doubles the backoff up to a maximum.
//
// Remote transports use the client in three ways:
//
//   - Request/reply carries object invocations for the corba_cdr,
//     shared_memory and csp_channel transports (see package rpc).
//   - Subscribe and PublishMsg carry ros, ros2 and opensplice topics, with the
//     message type and checksum in headers.
//   - JetStream streams back reliable ros2 topics; a key-value bucket backs the
//     object naming directory.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithMetrics(registry.CoreMetrics()),
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	reply, err := client.Request(ctx, "rtm.obj.1234", payload)
//
// Integration tests start a NATS server with testcontainers (NewTestClient)
// and are behind the integration build tag.
package natsclient
