package octoterra

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/field"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/internal/fs"
	"github.com/hupe1980/octoterra/material"
	"github.com/hupe1980/octoterra/mesh"
	"github.com/hupe1980/octoterra/octree"
	"github.com/hupe1980/octoterra/persistence"
	"github.com/hupe1980/octoterra/region"
)

var timeZero = time.UnixMilli(1)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.RegionChunksXZ = 2
	cfg.RegionChunksY = 1
	return cfg
}

func openWorld(t *testing.T, optFns ...Option) *World {
	t.Helper()
	w, err := Open(context.Background(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestOpen_EmptyWorld(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t)

	assert.Equal(t, DefaultConfig(), w.Config())
	assert.Equal(t, uint64(0), w.Manifest().ID)

	res, err := w.Lookup(ctx, 10, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, material.Air, res.Material)
	assert.False(t, res.Found)
	assert.Zero(t, res.Density)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSideVoxels = 12

	_, err := Open(context.Background(), WithConfig(cfg))
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(context.Background(), WithCompression("brotli"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWorld_SetVoxelAndLookup(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t)

	// 1. Edit a voxel just below zero on x.
	require.NoError(t, w.SetVoxel(ctx, -0.1, 0.2, 0.3, material.Rock))

	loc := w.Locate(-0.1, 0.2, 0.3)
	assert.Equal(t, region.Key{Name: "Overworld", X: -1, Y: 0, Z: 0}, loc.Region)
	assert.Equal(t, 7, loc.ChunkX)
	assert.Equal(t, 15, loc.VoxelX)

	// 2. The whole voxel answers rock.
	res, err := w.Lookup(ctx, -1.4, 1.4, 0.1)
	require.NoError(t, err)
	assert.Equal(t, material.Rock, res.Material)
	assert.Equal(t, 1.0, res.Density)
	assert.True(t, res.Found)

	// 3. Its neighbours stay air.
	res, err = w.Lookup(ctx, -1.6, 0.2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, material.Air, res.Material)
	res, err = w.Lookup(ctx, 0.1, 0.2, 0.3)
	require.NoError(t, err)
	assert.Equal(t, material.Air, res.Material)

	// 4. The reserved marker is rejected.
	require.ErrorIs(t, w.SetVoxel(ctx, 0, 0, 0, octree.Sentinel), ErrInvalidMaterial)
}

func TestWorld_FlushAndReopen(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	w, err := Open(ctx, WithBlobStore(blobs))
	require.NoError(t, err)
	require.NoError(t, w.SetVoxel(ctx, 5, 5, 5, material.Water))
	require.NoError(t, w.Flush(ctx))

	key := region.Key{Name: "Overworld"}
	m := w.Manifest()
	require.Equal(t, uint64(1), m.ID)
	entry, ok := m.Region(key)
	require.True(t, ok)
	assert.Equal(t, "R_Overworld_0_0_0.rgn", entry.Blob)
	assert.Equal(t, 1, entry.Chunks)

	// A clean flush writes nothing.
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, uint64(1), w.Manifest().ID)
	require.NoError(t, w.Close())

	_, err = w.Lookup(ctx, 5, 5, 5)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, w.Close())

	w2, err := Open(ctx, WithBlobStore(blobs))
	require.NoError(t, err)
	defer w2.Close()

	res, err := w2.Lookup(ctx, 5, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, material.Water, res.Material)
	require.NoError(t, w2.VerifyRegion(ctx, key))

	keys, err := w2.StoredRegions(ctx, "Overworld")
	require.NoError(t, err)
	assert.Equal(t, []region.Key{key}, keys)
}

func TestWorld_ConfigMismatch(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	w, err := Open(ctx, WithBlobStore(blobs))
	require.NoError(t, err)
	require.NoError(t, w.SetVoxel(ctx, 1, 1, 1, material.Rock))
	require.NoError(t, w.Close())

	cfg := DefaultConfig()
	cfg.VoxelSizeMeters = 2
	_, err = Open(ctx, WithBlobStore(blobs), WithConfig(cfg))
	require.ErrorIs(t, err, ErrConfigMismatch)

	// Compression is not part of the geometry.
	w, err = Open(ctx, WithBlobStore(blobs), WithCompression("lz4"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestWorld_Compression(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	w, err := Open(ctx, WithBlobStore(blobs), WithCompression("zstd"), WithGenerator(field.NewFlat(4.5)))
	require.NoError(t, err)
	_, err = w.Generate(ctx, ChunkRef{Region: region.Key{Name: "Overworld"}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := blobs.List(ctx, "R_")
	require.NoError(t, err)
	assert.Equal(t, []string{"R_Overworld_0_0_0.rgn.zst"}, names)

	// A world configured for another codec still reads the region.
	w, err = Open(ctx, WithBlobStore(blobs), WithCompression("lz4"))
	require.NoError(t, err)
	defer w.Close()

	res, err := w.Lookup(ctx, 0.1, 3.8, 0.1)
	require.NoError(t, err)
	assert.Equal(t, material.Grass, res.Material)
}

func TestWorld_Generate(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t, WithConfig(smallConfig()), WithGenerator(field.NewFlat(4.5)))

	ref := ChunkRef{Region: region.Key{Name: "Overworld"}, Index: 0}
	root, err := w.Generate(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, octree.Validate(root))
	assert.True(t, octree.IsPruned(root))

	tests := []struct {
		y    float64
		want uint8
	}{
		{0.5, material.Ground},
		{3.8, material.Grass},
		{5.0, material.Air},
		{20, material.Air},
	}
	for _, tt := range tests {
		res, err := w.Lookup(ctx, 0.1, tt.y, 0.1)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Material, "y=%g", tt.y)
	}

	n, err := w.GenerateRegion(ctx, ref.Region)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.GenerateRegion(ctx, ref.Region)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorld_GenerateWithoutGenerator(t *testing.T) {
	w := openWorld(t)
	_, err := w.Generate(context.Background(), ChunkRef{Region: region.Key{Name: "Overworld"}})
	require.ErrorIs(t, err, ErrNoGenerator)
}

func TestWorld_GenerateIndexOutOfRange(t *testing.T) {
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)))
	_, err := w.Generate(context.Background(), ChunkRef{Region: region.Key{Name: "Overworld"}, Index: 128})

	var ce *ErrChunkIndex
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 128, ce.Index)
	assert.ErrorIs(t, err, region.ErrIndexOutOfRange)
}

func TestWorld_SetVoxelStartsFromGenerator(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)))

	require.NoError(t, w.SetVoxel(ctx, 10, 10, 10, material.Rock))

	res, err := w.Lookup(ctx, 10, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, material.Rock, res.Material)

	// The rest of the chunk kept the generated ground.
	res, err = w.Lookup(ctx, 2, 0.5, 2)
	require.NoError(t, err)
	assert.Equal(t, material.Ground, res.Material)
}

func TestWorld_UpdateChunk(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t)
	key := region.Key{Name: "Overworld"}

	root := octree.NewLeaf(0, material.Rock)
	require.NoError(t, w.UpdateChunk(ctx, key, 0, root))

	got, err := w.ChunkRoot(ctx, key, 0)
	require.NoError(t, err)
	assert.True(t, octree.Equal(root, got))

	// Updates invalidate the cached tree.
	require.NoError(t, w.UpdateChunk(ctx, key, 0, octree.NewLeaf(0, material.Water)))
	got, err = w.ChunkRoot(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, material.Water, got.Material)

	require.NoError(t, w.UpdateChunk(ctx, key, 0, nil))
	got, err = w.ChunkRoot(ctx, key, 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = w.UpdateChunk(ctx, key, 200, root)
	var ce *ErrChunkIndex
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 128, ce.Total)
}

func TestWorld_CorruptChunkReadsAsAir(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	key := region.Key{Name: "Overworld"}

	c, err := region.New(region.DefaultLayout())
	require.NoError(t, err)
	require.NoError(t, c.SetChunkBytes(0, []byte{255, 3, 3, 3}, timeZero))
	require.NoError(t, c.SetChunkBytes(1, []byte{material.Rock}, timeZero))
	_, err = persistence.NewBlobRegionStore(blobs).WriteRegion(ctx, key, c.SerializeFull())
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	w := openWorld(t, WithBlobStore(blobs), WithMetricsCollector(metrics))

	res, err := w.Lookup(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, material.Air, res.Material)
	assert.True(t, res.Found)

	res, err = w.Lookup(ctx, 25, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, material.Rock, res.Material)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CorruptionCount)
	assert.Equal(t, int64(2), stats.LookupCount)
	assert.Equal(t, int64(1), stats.RegionLoadCount)
}

func TestWorld_UpdateChunkReservedMaterialWritesAir(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}
	w := openWorld(t, WithLogger(logger), WithMetricsCollector(metrics))
	key := region.Key{Name: "Overworld"}

	// 1. A leaf carrying the sentinel material is stored as air with a warning.
	require.NoError(t, w.UpdateChunk(ctx, key, 0, octree.NewLeaf(0, octree.Sentinel)))

	root, err := w.ChunkRoot(ctx, key, 0)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, material.Air, root.Material)
	assert.Contains(t, buf.String(), "leaf carries reserved material")
	assert.Contains(t, buf.String(), "level=WARN")

	// 2. Coercion is not a substitution of the whole chunk.
	assert.Zero(t, metrics.GetStats().CorruptionCount)
}

func TestWorld_UpdateChunkMalformedRootWritesAir(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}
	w := openWorld(t, WithLogger(logger), WithMetricsCollector(metrics))
	key := region.Key{Name: "Overworld"}

	// 1. An internal node without children does not fail the write.
	require.NoError(t, w.UpdateChunk(ctx, key, 3, &octree.Node{Kind: octree.Internal}))

	// 2. The chunk now holds a single air leaf.
	root, err := w.ChunkRoot(ctx, key, 3)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.True(t, octree.Equal(octree.AirRoot(), root))
	assert.Contains(t, buf.String(), "octree encode failed, writing air")
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Equal(t, int64(1), metrics.GetStats().CorruptionCount)
}

// gatedRegionStore counts reads and holds reads of one region until the
// gate is closed.
type gatedRegionStore struct {
	persistence.RegionStore
	gated region.Key
	gate  chan struct{}
	reads sync.Map // region.Key -> *atomic.Int64
}

func (s *gatedRegionStore) ReadRegion(ctx context.Context, key region.Key) ([]byte, error) {
	n, _ := s.reads.LoadOrStore(key, new(atomic.Int64))
	n.(*atomic.Int64).Add(1)
	if key == s.gated {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.RegionStore.ReadRegion(ctx, key)
}

func (s *gatedRegionStore) readCount(key region.Key) int64 {
	n, ok := s.reads.Load(key)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load()
}

func TestWorld_ConcurrentLoadsShareOneRead(t *testing.T) {
	ctx := context.Background()
	gated := region.Key{Name: "Overworld"}
	other := region.Key{Name: "Overworld", X: 1}
	store := &gatedRegionStore{
		RegionStore: persistence.NewBlobRegionStore(blobstore.NewMemoryStore()),
		gated:       gated,
		gate:        make(chan struct{}),
	}
	w := openWorld(t, WithRegionStore(store))

	// 1. Sixteen lookups against the same unloaded region.
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Lookup(ctx, 1, 1, 1)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return store.readCount(gated) == 1 },
		time.Second, time.Millisecond)

	// 2. Another region loads while the first is still blocked.
	res, err := w.Lookup(ctx, 200, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, material.Air, res.Material)
	assert.Equal(t, int64(1), store.readCount(other))

	// 3. Releasing the read completes every waiter with one shared read.
	close(store.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), store.readCount(gated))
}

func TestWorld_VerifyRegionDetectsTampering(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	key := region.Key{Name: "Overworld"}

	w, err := Open(ctx, WithBlobStore(blobs))
	require.NoError(t, err)
	require.NoError(t, w.SetVoxel(ctx, 1, 1, 1, material.Rock))
	require.NoError(t, w.Close())

	raw, err := blobstore.ReadAll(ctx, blobs, "R_Overworld_0_0_0.rgn")
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, blobs.Put(ctx, "R_Overworld_0_0_0.rgn", raw))

	metrics := &BasicMetricsCollector{}
	w = openWorld(t, WithBlobStore(blobs), WithMetricsCollector(metrics))

	err = w.VerifyRegion(ctx, key)
	var rc *ErrRegionCorrupt
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, key, rc.Key)

	// Loading still succeeds; the mismatch is counted.
	_, err = w.Lookup(ctx, 1, 1, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, metrics.GetStats().CorruptionCount, int64(1))
}

func TestWorld_FlushFailureKeepsRegionDirty(t *testing.T) {
	ctx := context.Background()
	ffs := fs.NewFaultyFS(nil)
	blobs := blobstore.NewLocalStore(t.TempDir(), func(o *blobstore.LocalOptions) { o.FileSystem = ffs })

	metrics := &BasicMetricsCollector{}
	w := openWorld(t, WithBlobStore(blobs), WithMetricsCollector(metrics))
	require.NoError(t, w.SetVoxel(ctx, 1, 1, 1, material.Rock))

	// 1. Region writes fail.
	ffs.AddRule("R_", fs.Fault{FailOnSync: true})
	err := w.Flush(ctx)
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, int64(1), metrics.GetStats().RegionSaveErrors)

	// 2. The region stays dirty and saves once the fault clears.
	ffs.ClearRules()
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, uint64(1), w.Manifest().ID)

	raw, err := blobstore.ReadAll(ctx, blobs, "R_Overworld_0_0_0.rgn")
	require.NoError(t, err)
	require.NoError(t, region.Verify(region.DefaultLayout(), raw))
}

func TestWorld_Evict(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t)

	require.NoError(t, w.SetVoxel(ctx, 1, 1, 1, material.Rock))
	require.NoError(t, w.SetVoxel(ctx, 200, 1, 1, material.Water))
	require.Len(t, w.LoadedRegions(), 2)

	near := region.Key{Name: "Overworld"}
	require.NoError(t, w.Evict(ctx, func(k region.Key) bool { return k == near }))
	assert.Equal(t, []region.Key{near}, w.LoadedRegions())

	// Evicted regions were saved and reload on demand.
	res, err := w.Lookup(ctx, 200, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, material.Water, res.Material)
	require.Len(t, w.LoadedRegions(), 2)

	require.NoError(t, w.Evict(ctx, nil))
	assert.Empty(t, w.LoadedRegions())
}

func TestWorld_ClearedRegionIsDeleted(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	w := openWorld(t, WithBlobStore(blobs))
	key := region.Key{Name: "Overworld"}

	require.NoError(t, w.SetVoxel(ctx, 1, 1, 1, material.Rock))
	require.NoError(t, w.Flush(ctx))
	_, ok := w.Manifest().Region(key)
	require.True(t, ok)

	require.NoError(t, w.UpdateChunk(ctx, key, 0, nil))
	require.NoError(t, w.Flush(ctx))

	_, ok = w.Manifest().Region(key)
	assert.False(t, ok)
	_, err := blobstore.ReadAll(ctx, blobs, persistence.BlobName(key, compress.None))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestWorld_MeshChunk(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)))
	ground := ChunkRef{Region: region.Key{Name: "Overworld"}, Index: 0}
	sky := ChunkRef{Region: region.Key{Name: "Overworld"}, Index: 64}

	// 1. Never written: sampled from the generator.
	m, err := w.MeshChunk(ctx, ground)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NoError(t, m.Validate())
	for i := 0; i < m.VertexCount(); i++ {
		assert.InDelta(t, 4.5, m.Vertex(i)[1], 1e-4)
	}

	m, err = w.MeshChunk(ctx, sky)
	require.NoError(t, err)
	assert.Nil(t, m)

	// 2. Stored: sampled from the tree.
	_, err = w.Generate(ctx, ground)
	require.NoError(t, err)
	m, err = w.MeshChunk(ctx, ground)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NoError(t, m.Validate())
	for i := 0; i < m.TriangleCount(); i++ {
		assert.Greater(t, m.FaceNormal(i)[1], float32(0))
	}
}

func TestWorld_MeshChunks(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)), WithMeshWorkers(2), WithMetricsCollector(metrics))

	key := region.Key{Name: "Overworld"}
	refs := []ChunkRef{{Region: key, Index: 0}, {Region: key, Index: 1}, {Region: key, Index: 64}, {Region: key, Index: 0}}

	meshes, err := w.MeshChunks(ctx, refs)
	require.NoError(t, err)
	require.Len(t, meshes, 2)
	assert.Contains(t, meshes, ChunkRef{Region: key, Index: 1})
	assert.Equal(t, int64(3), metrics.GetStats().MeshCount)
}

func TestWorld_MeshBatchCancel(t *testing.T) {
	ctx := context.Background()
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)), WithMeshWorkers(1))

	key := region.Key{Name: "Overworld"}
	refs := make([]ChunkRef, 0, 16)
	for i := 0; i < 16; i++ {
		refs = append(refs, ChunkRef{Region: key, Index: i})
	}

	var (
		mu  sync.Mutex
		got []ChunkRef
	)
	b := w.StartMeshing(ctx, refs, func(ref ChunkRef, _ *mesh.Mesh) {
		mu.Lock()
		got = append(got, ref)
		mu.Unlock()
	})
	last := refs[len(refs)-1]
	canceled := b.Cancel(last)
	require.NoError(t, b.Wait())

	if canceled {
		assert.NotContains(t, got, last)
	}
	assert.False(t, b.Cancel(last))
	assert.False(t, b.Cancel(ChunkRef{Region: key, Index: 100}))
}

func TestWorld_MeshChunksCanceled(t *testing.T) {
	w := openWorld(t, WithGenerator(field.NewFlat(4.5)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.MeshChunks(ctx, []ChunkRef{{Region: region.Key{Name: "Overworld"}}})
	require.True(t, errors.Is(err, context.Canceled))
}
