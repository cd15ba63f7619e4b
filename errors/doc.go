// Package errors provides the error classification used across the port runtime.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid (bad
// input or configuration, do not retry) and Fatal (stop using the resource). The
// classes let connectors decide between retrying on the next cycle and refusing
// to reach a usable state.
//
// Setup APIs (registries, connector construction, configuration loading) return
// errors from this package. Data-path operations such as Write, Read, Put and Get
// never return errors; they report a dataport.Status so callers branch on the
// status vocabulary instead of inspecting raw transport faults.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Classification-aware wrappers:
//
//	errors.WrapTransient(err, "Broker", "Invoke", "remote call")
//	errors.WrapInvalid(err, "OutPortPushConnector", "Init", "endian parse")
//	errors.WrapFatal(err, "Segment", "Create", "mmap")
//
// # Standard Error Variables
//
//   - Lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrInvalidState
//   - Connectivity: ErrConnectionLost, ErrConnectionTimeout, ErrObjectNotFound
//   - Wiring: ErrUnknownTransport, ErrUnknownBuffer, ErrSerializerNotFound, ErrEndianNotSet
//   - Shared memory: ErrSegmentClosed, ErrSegmentTooSmall, ErrInvalidSize
//
// # Panics at Transport Boundaries
//
// Codec or listener panics are recovered at the transport plugin boundary and turned
// into a fatal classified error with FromPanic, then logged and mapped to
// UNKNOWN_ERROR:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        logger.Error("put failed", "error", errors.FromPanic(r, "InPortSHMProvider", "Put"))
//	        status = dataport.UnknownError
//	    }
//	}()
//
// # Classification Without Wrapping
//
// Errors that were never wrapped are classified by sentinel (errors.Is) and
// then by message fragment, so "remote call timeout" from a third-party
// client still counts as transient. Classify checks transient first, then
// fatal, then invalid.
package errors
