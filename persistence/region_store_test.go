package persistence

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/region"
	"github.com/hupe1980/octoterra/resource"
)

func regionBytes(t *testing.T) []byte {
	t.Helper()
	c, err := region.New(region.DefaultLayout())
	require.NoError(t, err)
	return c.SerializeFull()
}

func TestBlobRegionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	key := region.Key{Name: "Overworld", X: -2, Y: 0, Z: 5}
	data := regionBytes(t)

	for _, kind := range []compress.Kind{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			blobs := blobstore.NewMemoryStore()
			s := NewBlobRegionStore(blobs, func(o *Options) {
				o.Compression = kind
				o.Resources = resource.NewController(resource.Config{IOBytesPerSec: 1 << 30})
			})

			// 1. Missing regions.
			_, err := s.ReadRegion(ctx, key)
			require.ErrorIs(t, err, ErrNotFound)

			// 2. Write and read back.
			name, err := s.WriteRegion(ctx, key, data)
			require.NoError(t, err)
			assert.Equal(t, "R_Overworld_-2_0_5.rgn"+kind.Extension(), name)

			got, err := s.ReadRegion(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			stored, err := blobstore.ReadAll(ctx, blobs, name)
			require.NoError(t, err)
			if kind != compress.None {
				assert.Less(t, len(stored), len(data))
			}

			// 3. Delete.
			require.NoError(t, s.DeleteRegion(ctx, key))
			_, err = s.ReadRegion(ctx, key)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobRegionStore_CompressionChange(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	key := region.Key{Name: "Overworld"}
	data := regionBytes(t)

	// 1. A region saved uncompressed is readable after switching to zstd.
	_, err := NewBlobRegionStore(blobs).WriteRegion(ctx, key, data)
	require.NoError(t, err)

	zs := NewBlobRegionStore(blobs, func(o *Options) { o.Compression = compress.Zstd })
	got, err := zs.ReadRegion(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// 2. Rewriting removes the old form.
	_, err = zs.WriteRegion(ctx, key, data)
	require.NoError(t, err)
	names, err := blobs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"R_Overworld_0_0_0.rgn.zst"}, names)
}

func TestBlobRegionStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	key := region.Key{Name: "Overworld"}
	require.NoError(t, blobs.Put(ctx, BlobName(key, compress.LZ4), []byte{1, 2}))

	s := NewBlobRegionStore(blobs, func(o *Options) { o.Compression = compress.LZ4 })
	_, err := s.ReadRegion(ctx, key)
	require.ErrorIs(t, err, compress.ErrCorrupt)
}

func TestBlobRegionStore_ListRegions(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewBlobRegionStore(blobs)

	for _, k := range []region.Key{
		{Name: "Overworld", X: 1},
		{Name: "Overworld", X: -1, Z: 3},
		{Name: "Overworld_Deep"},
		{Name: "Nether"},
	} {
		_, err := s.WriteRegion(ctx, k, []byte{0})
		require.NoError(t, err)
	}
	// A stray compressed duplicate and unrelated blobs.
	require.NoError(t, blobs.Put(ctx, "R_Overworld_1_0_0.rgn.lz4", bytes.Repeat([]byte{0}, 8)))
	require.NoError(t, blobs.Put(ctx, "R_Overworld_notes.txt", []byte("x")))

	keys, err := s.ListRegions(ctx, "Overworld")
	require.NoError(t, err)
	assert.Equal(t, []region.Key{
		{Name: "Overworld", X: -1, Z: 3},
		{Name: "Overworld", X: 1},
	}, keys)
}

func TestBlobRegionStore_ListRegionsDottedName(t *testing.T) {
	ctx := context.Background()
	s := NewBlobRegionStore(blobstore.NewMemoryStore(), func(o *Options) { o.Compression = compress.Zstd })

	key := region.Key{Name: "My.World", X: 2, Y: -1}
	_, err := s.WriteRegion(ctx, key, regionBytes(t))
	require.NoError(t, err)

	keys, err := s.ListRegions(ctx, "My.World")
	require.NoError(t, err)
	assert.Equal(t, []region.Key{key}, keys)
}
