// Package retry runs an operation until it succeeds, a bounded number of
// attempts is used up, or the context ends.
//
// The delay schedule is an exponential backoff from
// github.com/cenkalti/backoff/v4. Config bounds it with MaxAttempts and
// optional 25% jitter. Three presets cover the runtime's callers:
//
//	DefaultConfig  3 attempts,  100ms..5s
//	Quick         10 attempts,  50ms..1s  (KV updates, CSP readiness probes)
//	Persistent    30 attempts, 200ms..10s (RPC carrier dial)
//
// An operation that knows a failure is final returns NonRetryable(err); Do
// stops at once and the error still unwraps to err:
//
//	conn, err := retry.DoWithResult(ctx, retry.Persistent(), func() (*websocket.Conn, error) {
//		c, _, err := dialer.DialContext(ctx, url, nil)
//		if errors.Is(err, websocket.ErrBadHandshake) {
//			return nil, retry.NonRetryable(err)
//		}
//		return c, err
//	})
//
// Every call builds its own backoff state, so a Config value may be shared
// between goroutines.
package retry
