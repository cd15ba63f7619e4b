package objectstore

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
	"github.com/OpenRTM/RTM-Tutorial-sub001/natsclient"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cache"
	"github.com/OpenRTM/RTM-Tutorial-sub001/storage"
)

var _ storage.Store = (*Store)(nil)

// StoreConfig configures a Store
type StoreConfig struct {
	Bucket    string
	CacheSize int    // Objects kept in the read cache; 0 disables it
	Service   string // Metrics service name; also prefixes the cache metrics
	Registry  *metric.MetricsRegistry
}

// Store implements storage.Store over a JetStream object store bucket.
// Objects are immutable once archived, so reads are served from an LRU
// cache after the first fetch.
type Store struct {
	bucket  string
	objects jetstream.ObjectStore
	cache   *cache.LRU[[]byte]
	metrics *storeMetrics
}

// NewStore opens the bucket, creating it when it does not exist
func NewStore(ctx context.Context, client *natsclient.Client, cfg StoreConfig) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Store", "NewStore", "nats client is required")
	}
	js, err := client.JetStream()
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "NewStore", "jetstream context")
	}
	objects, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: "Archived component samples",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "NewStore", "open object store bucket")
	}
	return newStore(objects, cfg)
}

func newStore(objects jetstream.ObjectStore, cfg StoreConfig) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Store", "NewStore", "bucket is required")
	}

	s := &Store{bucket: cfg.Bucket, objects: objects}

	if cfg.CacheSize > 0 {
		c, err := cache.New(cache.Config[[]byte]{Capacity: cfg.CacheSize, Registry: cfg.Registry, Service: cfg.Service})
		if err != nil {
			return nil, errors.Wrap(err, "Store", "NewStore", "create read cache")
		}
		s.cache = c
	}

	if cfg.Service != "" {
		m, err := newStoreMetrics(cfg.Registry, cfg.Service, cfg.Bucket)
		if err != nil {
			return nil, errors.Wrap(err, "Store", "NewStore", "register metrics")
		}
		s.metrics = m
	}
	return s, nil
}

// Bucket returns the bucket name
func (s *Store) Bucket() string { return s.bucket }

// Put stores data at key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.objects.PutBytes(ctx, key, data)
	s.metrics.observe("put", time.Since(start).Seconds(), err)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Put", "put object "+key)
	}
	if s.cache != nil {
		_, _ = s.cache.Set(key, data)
	}
	return nil
}

// Get returns the object at key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			return data, nil
		}
	}

	start := time.Now()
	data, err := s.objects.GetBytes(ctx, key)
	s.metrics.observe("get", time.Since(start).Seconds(), err)
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, errors.WrapInvalid(err, "Store", "Get", "object "+key)
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "Get", "get object "+key)
	}
	if s.cache != nil {
		_, _ = s.cache.Set(key, data)
	}
	return data, nil
}

// List returns the live keys starting with prefix, sorted
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	infos, err := s.objects.List(ctx)
	if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
		err = nil
	}
	s.metrics.observe("list", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "List", "list objects")
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		keys = append(keys, info.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key; a missing key is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.cache != nil {
		_, _ = s.cache.Delete(key)
	}

	start := time.Now()
	err := s.objects.Delete(ctx, key)
	if stderrors.Is(err, jetstream.ErrObjectNotFound) {
		err = nil
	}
	s.metrics.observe("delete", time.Since(start).Seconds(), err)
	if err != nil {
		return errors.WrapTransient(err, "Store", "Delete", "delete object "+key)
	}
	return nil
}

// CacheStats returns the read cache statistics, nil when caching is disabled
func (s *Store) CacheStats() *cache.Statistics {
	if s.cache == nil {
		return nil
	}
	return s.cache.Stats()
}
