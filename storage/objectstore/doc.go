// Package objectstore archives TimedLong samples to a NATS JetStream object
// store bucket.
//
// The objectstore-in sink owns one in-port. Every execution drains up to 64
// samples; each time batch_size samples are pending they are written as one
// JSON Batch under a time-bucketed key:
//
//	<key_prefix>/YYYY/MM/DD/HH/<first sample unix nanos>.json
//
// key_prefix defaults to the component instance name. A failed write keeps
// the batch pending and is retried on the next execution; beyond max_pending
// samples the oldest are dropped. Pending samples are written on deactivation.
//
// Configuration:
//
//	{
//	  "port": "in",
//	  "bucket": "RTM_SAMPLES",
//	  "batch_size": 100,
//	  "max_pending": 10000,
//	  "cache_size": 128,
//	  "timeout_ms": 5000,
//	  "subject": "rtm.archive.sink0",
//	  "properties": {"dataport.interface_type": "corba_cdr"}
//	}
//
// When subject is set the sink answers JSON requests on it:
//
//	{"action": "list", "prefix": "sink0/2026/"}
//	{"action": "get", "key": "sink0/2026/10/17/09/1792227600000000000.json"}
//
// Store can also be used on its own as a storage.Store; archived objects are
// immutable, so reads after the first are served from its LRU cache.
package objectstore
