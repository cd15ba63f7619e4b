package rpc

import (
	"strings"
)

// Reference addresses a servant. The scheme names the carrier that reaches it:
//
//	local:<id>                    same process, dispatched through the broker table
//	nats:<prefix>.<id>            NATS request/reply
//	ws://host:port/path#<id>      websocket (wss:// accepted)
type Reference string

// Carrier schemes
const (
	SchemeLocal = "local"
	SchemeNATS  = "nats"
	SchemeWS    = "ws"
	SchemeWSS   = "wss"
)

// LocalReference builds a local reference for id
func LocalReference(id string) Reference {
	return Reference(SchemeLocal + ":" + id)
}

// NATSReference builds a NATS reference on subject prefix.id
func NATSReference(prefix, id string) Reference {
	return Reference(SchemeNATS + ":" + prefix + "." + id)
}

// WebsocketReference builds a websocket reference on endpoint
func WebsocketReference(endpoint, id string) Reference {
	return Reference(endpoint + "#" + id)
}

// Scheme returns the carrier scheme, or "" for a malformed reference
func (r Reference) Scheme() string {
	s := string(r)
	if strings.HasPrefix(s, "ws://") {
		return SchemeWS
	}
	if strings.HasPrefix(s, "wss://") {
		return SchemeWSS
	}
	scheme, _, ok := strings.Cut(s, ":")
	if !ok {
		return ""
	}
	return scheme
}

// ObjectID returns the servant id carried by the reference
func (r Reference) ObjectID() string {
	s := string(r)
	switch r.Scheme() {
	case SchemeLocal:
		return strings.TrimPrefix(s, SchemeLocal+":")
	case SchemeNATS:
		subject := strings.TrimPrefix(s, SchemeNATS+":")
		if i := strings.LastIndexByte(subject, '.'); i >= 0 {
			return subject[i+1:]
		}
		return subject
	case SchemeWS, SchemeWSS:
		if _, id, ok := strings.Cut(s, "#"); ok {
			return id
		}
	}
	return ""
}

// Subject returns the NATS subject of a nats reference
func (r Reference) Subject() string {
	return strings.TrimPrefix(string(r), SchemeNATS+":")
}

// Endpoint returns the websocket URL of a ws reference without the object id
func (r Reference) Endpoint() string {
	endpoint, _, _ := strings.Cut(string(r), "#")
	return endpoint
}

// Valid reports whether the reference names a known carrier and an object
func (r Reference) Valid() bool {
	switch r.Scheme() {
	case SchemeLocal, SchemeNATS, SchemeWS, SchemeWSS:
		return r.ObjectID() != ""
	}
	return false
}

func (r Reference) String() string { return string(r) }
