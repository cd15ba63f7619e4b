// Package rpc is the object broker behind the remote data port transports.
//
// A Servant is activated on a Broker and gets a Reference naming the carrier
// that reaches it. Three carriers exist:
//
//   - local: the broker's own table; always tried first, so a reference to a
//     servant hosted by the calling broker never leaves the process.
//   - nats: request/reply on <prefix>.<broker id>.<object id> (ServeNATS).
//   - ws: request/reply frames over a websocket mounted with Handler.
//
// Requests and replies are little endian CDR frames carrying a sequence
// number, the object id, the operation name and opaque argument bytes.
// Servant panics are recovered and reported to the caller as fatal errors.
package rpc
