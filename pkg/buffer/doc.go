// Package buffer provides the connector ring buffer.
//
// A RingBuffer holds up to Length items between a write cursor and a read
// cursor. Full and empty are derived from the fill count, never stored as flags.
//
// Two styles of access are supported:
//
//   - Write / Read store or take one item and move the cursor, applying the
//     configured full and empty policies.
//   - Put / Get stage or peek at the cursor; AdvanceWptr / AdvanceRptr commit.
//     Publishers use Get + AdvanceRptr so an item is only consumed once it was
//     delivered.
//
// # Policies
//
// write.full_policy:
//
//   - overwrite (default): the oldest unread item is dropped
//   - do_nothing: Write returns StatusFull
//   - block: Write waits up to write.timeout and returns StatusTimeout
//
// read.empty_policy:
//
//   - do_nothing (default): Read returns StatusEmpty
//   - readback: Read returns the last item read again
//   - block: Read waits up to read.timeout and returns StatusTimeout
//
// Timeouts are given in seconds ("0.5") or as Go durations ("500ms"). A zero
// timeout blocks without bound.
//
// # Example
//
//	rb, _ := buffer.NewRingBuffer[[]byte]()
//	rb.Init(properties.Properties{"length": "16", "write.full_policy": "block"})
//
//	if st := rb.Write(payload, buffer.UseDefault); st != buffer.StatusOK {
//	    // StatusTimeout after write.timeout
//	}
//
// Statistics are always collected. Prometheus metrics are exported when the
// buffer is created with WithMetrics; Close unregisters them.
package buffer
