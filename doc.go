// Package openrtm is the root of a data port runtime for RT components.
//
// Components exchange timed samples through typed in-ports and out-ports.
// Connecting two ports negotiates a connector: a transport pair chosen by
// interface type (corba_cdr, direct, shared_memory, csp_channel or a pub/sub
// topic), a ring buffer, and a serializer when data crosses a process
// boundary. Execution contexts drive component logic at a fixed rate from a
// shared timer.
//
// # Packages
//
// Core runtime:
//   - rtm: factory initialisation, the timer loop and shutdown
//   - component: lifecycle, execution contexts and the factory registry
//   - port, csp: typed data ports and CSP channel ports
//   - connector, listener: connectors, publishers and callback hooks
//   - transport/...: provider and consumer implementations
//   - serializer, pkg/cdr, datatype: marshaling of timed data types
//   - pkg/buffer, properties, dataport, timer, fsm: supporting pieces
//   - rpc: the object broker behind corba_cdr
//
// Host:
//   - cmd/rtcd: the daemon; loads config, creates components, connects them
//   - config: layered configuration with NATS KV distribution
//   - health, metric, natsclient, pkg/tlsutil: operations surface
//   - componentregistry: bundled components (input/sequence,
//     processor/gain, output/file, storage/objectstore)
//
// Shared utilities live in errors, pkg/retry, pkg/worker and pkg/cache.
package openrtm
