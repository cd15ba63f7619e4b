// Package storage defines the key/value backend archiving components write
// to and the keys they write under. objectstore.Store implements it over a
// NATS JetStream object store.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is a key/value backend for binary objects.
//
// Keys are hierarchical paths separated by "/". Implementations must be safe
// for concurrent use.
type Store interface {
	// Put stores data at key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexicographic order.
	// An empty prefix lists every key.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// KeyGenerator names the object holding a batch whose first sample was
// stamped at first.
type KeyGenerator interface {
	GenerateKey(first time.Time) string
}

// TimeBucketKeys generates "<prefix>/YYYY/MM/DD/HH/<unix nanos>.json" keys in UTC
type TimeBucketKeys struct {
	Prefix string
}

// GenerateKey implements KeyGenerator
func (g TimeBucketKeys) GenerateKey(first time.Time) string {
	t := first.UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%02d/%d.json", t.Year(), t.Month(), t.Day(), t.Hour(), t.UnixNano())
	prefix := strings.Trim(g.Prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
