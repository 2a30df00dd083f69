package blobstore

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/octoterra/internal/cache"
	"github.com/hupe1980/octoterra/resource"
)

// CachingStore keeps recently read blobs in memory in front of another
// store. Region files are read whole, so whole blobs are cached.
// Concurrent misses on the same name share one read from the inner store.
type CachingStore struct {
	inner BlobStore
	cache *cache.LRU[string, []byte]
	group singleflight.Group
}

// NewCachingStore wraps inner with a cache of capacity bytes. rc, if not nil,
// accounts the cached bytes.
func NewCachingStore(inner BlobStore, capacity int64, rc *resource.Controller) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: cache.NewLRU[string](capacity, func(b []byte) int64 { return int64(len(b)) }, rc),
	}
}

// Open returns the cached blob, loading it from the inner store on a miss.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	if data, ok := s.cache.Get(name); ok {
		return &bytesBlob{data: data}, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		data, err := ReadAll(ctx, s.inner, name)
		if err != nil {
			return nil, err
		}
		s.cache.Set(name, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return &bytesBlob{data: v.([]byte)}, nil
}

// Put writes through to the inner store and refreshes the cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	if err := s.inner.Put(ctx, name, data); err != nil {
		return err
	}
	s.cache.Set(name, append([]byte(nil), data...))
	return nil
}

// Delete removes the blob from both the cache and the inner store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns the cache hit and miss counters.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}
