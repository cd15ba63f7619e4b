// Package file provides a sink component that records TimedLong samples to a file.
//
// The sink owns one in-port. Every execution drains the samples its
// connectors hold and buffers them; the buffer is written once it holds
// buffer_size records and again when the component is deactivated or aborts.
//
// Configuration:
//
//	{
//	  "port": "in",
//	  "directory": "/var/lib/rtm",
//	  "file_prefix": "samples",
//	  "format": "jsonl",
//	  "append": true,
//	  "buffer_size": 100,
//	  "properties": {"buffer.length": "32"}
//	}
//
// The file is "<directory>/<file_prefix>.<format>". Format "jsonl" writes one
// record per line; "json" writes each record indented. The directory is
// created on initialisation and the file is opened on activation.
package file
