package natsclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/retry"
)

var (
	ErrKVKeyNotFound = stderrors.New("kv: key not found")
	ErrKVKeyExists   = stderrors.New("kv: key already exists")
)

// KVEntry is a stored value and the revision it was written at
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions tunes a KVStore. Zero Timeout and MaxValueSize disable the
// respective limit.
type KVOptions struct {
	Timeout      time.Duration
	MaxValueSize int
	Retry        retry.Config
}

// DefaultKVOptions returns 5s per call, 64KiB values and quick retries for Put
func DefaultKVOptions() KVOptions {
	return KVOptions{Timeout: 5 * time.Second, MaxValueSize: 64 << 10, Retry: retry.Quick()}
}

// KVStore bounds each call on a JetStream bucket by a timeout and maps the
// bucket's errors onto ErrKVKeyNotFound and ErrKVKeyExists.
type KVStore struct {
	bucket jetstream.KeyValue
	opts   KVOptions
}

// NewKVStore wraps bucket, starting from DefaultKVOptions
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	kv := &KVStore{bucket: bucket, opts: DefaultKVOptions()}
	for _, opt := range opts {
		opt(&kv.opts)
	}
	return kv
}

func (kv *KVStore) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, kv.opts.Timeout)
}

// kvError maps bucket errors on key to the package sentinels
func kvError(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsKVNotFoundError(err):
		return ErrKVKeyNotFound
	case IsKVConflictError(err):
		return ErrKVKeyExists
	default:
		return fmt.Errorf("kv %s %s: %w", op, key, err)
	}
}

func (kv *KVStore) fits(key string, value []byte) error {
	if limit := kv.opts.MaxValueSize; limit > 0 && len(value) > limit {
		return fmt.Errorf("kv %s: value of %d bytes exceeds %d", key, len(value), limit)
	}
	return nil
}

func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.bounded(ctx)
	defer cancel()

	e, err := kv.bucket.Get(ctx, key)
	if err != nil {
		return nil, kvError("get", key, err)
	}
	return &KVEntry{Key: e.Key(), Value: e.Value(), Revision: e.Revision()}, nil
}

// Put writes value at key unconditionally and retries transient failures
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := kv.fits(key, value); err != nil {
		return 0, err
	}
	ctx, cancel := kv.bounded(ctx)
	defer cancel()

	return retry.DoWithResult(ctx, kv.opts.Retry, func() (uint64, error) {
		rev, err := kv.bucket.Put(ctx, key, value)
		return rev, kvError("put", key, err)
	})
}

// PutJSON marshals v and writes it at key
func (kv *KVStore) PutJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("kv %s: marshal: %w", key, err)
	}
	return kv.Put(ctx, key, data)
}

// Create writes value only if key holds nothing, else ErrKVKeyExists
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := kv.fits(key, value); err != nil {
		return 0, err
	}
	ctx, cancel := kv.bounded(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	return rev, kvError("create", key, err)
}

func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.bounded(ctx)
	defer cancel()
	return kvError("delete", key, kv.bucket.Delete(ctx, key))
}

// Keys lists the bucket's keys. An empty bucket is not an error.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.bounded(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if stderrors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, kvError("keys", "", err)
}

// IsKVNotFoundError reports missing or deleted keys, including server
// errors that only carry the JetStream error code
func IsKVNotFoundError(err error) bool {
	return matches(err,
		[]error{ErrKVKeyNotFound, jetstream.ErrKeyNotFound, jetstream.ErrKeyDeleted},
		"key not found", "10037")
}

// IsKVConflictError reports an existing key or a moved revision
func IsKVConflictError(err error) bool {
	return matches(err,
		[]error{ErrKVKeyExists, jetstream.ErrKeyExists},
		"wrong last sequence", "key exists", "10071", "10058")
}

func matches(err error, targets []error, fragments ...string) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if stderrors.Is(err, t) {
			return true
		}
	}
	msg := err.Error()
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
