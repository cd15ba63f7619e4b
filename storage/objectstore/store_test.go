package objectstore

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/metric"
)

// fakeObjects implements the part of jetstream.ObjectStore a Store uses
type fakeObjects struct {
	jetstream.ObjectStore

	mu      sync.Mutex
	objects map[string][]byte
	deleted map[string]bool
	gets    int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, deleted: map[string]bool{}}
}

func (f *fakeObjects) PutBytes(_ context.Context, name string, data []byte) (*jetstream.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = append([]byte(nil), data...)
	delete(f.deleted, name)
	return &jetstream.ObjectInfo{ObjectMeta: jetstream.ObjectMeta{Name: name}, Size: uint64(len(data))}, nil
}

func (f *fakeObjects) GetBytes(_ context.Context, name string, _ ...jetstream.GetObjectOpt) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.objects[name]
	if !ok || f.deleted[name] {
		return nil, jetstream.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjects) List(_ context.Context, _ ...jetstream.ListObjectsOpt) ([]*jetstream.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.objects) == 0 {
		return nil, jetstream.ErrNoObjectsFound
	}
	names := make([]string, 0, len(f.objects))
	for name := range f.objects {
		names = append(names, name)
	}
	// Reverse order so List has to sort
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	infos := make([]*jetstream.ObjectInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, &jetstream.ObjectInfo{ObjectMeta: jetstream.ObjectMeta{Name: name}, Deleted: f.deleted[name]})
	}
	return infos, nil
}

func (f *fakeObjects) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[name]; !ok || f.deleted[name] {
		return jetstream.ErrObjectNotFound
	}
	f.deleted[name] = true
	return nil
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(context.Background(), nil, StoreConfig{Bucket: "b"})
	assert.True(t, errors.IsInvalid(err))

	_, err = newStore(newFakeObjects(), StoreConfig{})
	assert.True(t, errors.IsInvalid(err))
}

func TestStore_PutGetCached(t *testing.T) {
	objects := newFakeObjects()
	registry := metric.NewMetricsRegistry()
	s, err := newStore(objects, StoreConfig{Bucket: "b", CacheSize: 4, Service: "objectstore.test", Registry: registry})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a/1.json", []byte(`{"n":1}`)))

	// Put primes the cache
	data, err := s.Get(ctx, "a/1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))
	assert.Equal(t, 0, objects.gets)

	objects.objects["a/2.json"] = []byte(`{"n":2}`)
	for range 2 {
		data, err = s.Get(ctx, "a/2.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(data))
	}
	assert.Equal(t, 1, objects.gets, "second read served from cache")
	assert.Equal(t, int64(2), s.CacheStats().Hits())

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.IsInvalid(err))

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.ops.WithLabelValues("put")))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.ops.WithLabelValues("get")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.errors.WithLabelValues("get")))

	hist := findHistogram(t, registry, "rtm_objectstore_operation_duration_seconds", "get")
	assert.Equal(t, uint64(2), hist.GetSampleCount())
}

func findHistogram(t *testing.T, registry *metric.MetricsRegistry, name, operation string) *dto.Histogram {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "operation" && lp.GetValue() == operation {
					return m.GetHistogram()
				}
			}
		}
	}
	t.Fatalf("histogram %s{operation=%q} not found", name, operation)
	return nil
}

func TestStore_ListAndDelete(t *testing.T) {
	objects := newFakeObjects()
	s, err := newStore(objects, StoreConfig{Bucket: "b"})
	require.NoError(t, err)
	assert.Nil(t, s.CacheStats())
	ctx := context.Background()

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys, "empty bucket is not an error")

	for _, k := range []string{"x/1", "x/2", "y/1"} {
		require.NoError(t, s.Put(ctx, k, []byte("{}")))
	}
	keys, err = s.List(ctx, "x/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/1", "x/2"}, keys)

	require.NoError(t, s.Delete(ctx, "x/1"))
	require.NoError(t, s.Delete(ctx, "x/1"), "deleting twice is not an error")

	keys, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/2", "y/1"}, keys)
}
