// Package rtm assembles a runtime: the registries ports are built from, the
// timer driving execution contexts and publishers, the object broker that
// carries remote transports, and the component registry.
//
// New runs the factory initialisation in a fixed order. The ring buffer is
// registered first, then the flush, new and periodic publishers, then the
// corba_cdr, direct, shared_memory, csp_channel and pub/sub transports, and
// finally the cdr, ros, ros2 and opensplice serializers.
//
// A typical host:
//
//	rt, err := rtm.New(rtm.WithNATS(client), rtm.WithMetricsRegistry(reg))
//	if err != nil {
//		return err
//	}
//	if err := rt.Start(ctx); err != nil {
//		return err
//	}
//	go rt.Run(ctx)
//	defer rt.Shutdown(context.Background())
//
// Without a NATS client, remote objects are reached only in-process or over
// the broker's websocket handler, and pub/sub topics loop back to local
// subscribers.
package rtm
