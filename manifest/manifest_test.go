package manifest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/octoterra/blobstore"
	"github.com/hupe1980/octoterra/codec"
	"github.com/hupe1980/octoterra/region"
)

func TestStore_LoadEmpty(t *testing.T) {
	s := NewStore(blobstore.NewMemoryStore())
	m, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.ID)
	assert.Empty(t, m.Regions)
	assert.Equal(t, CurrentVersion, m.Version)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	s := NewStore(blobs)

	key := region.Key{Name: "Overworld", X: -1, Y: 0, Z: 2}
	data := []byte("region bytes")

	// 1. Save a first version.
	m, err := s.Load(ctx)
	require.NoError(t, err)
	m.World = World{Name: "Overworld", VoxelSize: 1.5, ChunkSide: 16, MaxDepth: 9, ChunksX: 8, ChunksY: 2, ChunksZ: 8}
	m.PutRegion(NewRegion(key, key.FileName(), data, 3, time.UnixMilli(1700000000000)))
	require.NoError(t, s.Save(ctx, m))
	assert.Equal(t, uint64(1), m.ID)

	// 2. Reload through another store with a different codec.
	loaded, err := NewStore(blobs, func(o *Options) { o.Codec = codec.JSON{} }).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.World, loaded.World)
	assert.Equal(t, "go-json", loaded.Codec)

	r, ok := loaded.Region(key)
	require.True(t, ok)
	assert.Equal(t, "R_Overworld_-1_0_2.rgn", r.Blob)
	assert.Equal(t, 3, r.Chunks)
	require.NoError(t, r.Verify(data))
	assert.ErrorIs(t, r.Verify([]byte("region bytez")), ErrChecksumMismatch)
	assert.ErrorIs(t, r.Verify(data[:4]), ErrChecksumMismatch)
	assert.True(t, r.SavedAt.Equal(time.UnixMilli(1700000000000)))

	// 3. Later saves prune old manifests.
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(ctx, m))
	}
	assert.Equal(t, uint64(5), m.ID)
	names, err := blobs.List(ctx, FilePrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"MANIFEST-000003.json", "MANIFEST-000004.json", "MANIFEST-000005.json"}, names)

	current, err := blobstore.ReadAll(ctx, blobs, CurrentName)
	require.NoError(t, err)
	assert.Equal(t, "MANIFEST-000005.json", string(current))
}

type noDeleteStore struct {
	*blobstore.MemoryStore
}

func (s noDeleteStore) Delete(context.Context, string) error {
	return errors.New("delete refused")
}

func TestStore_SaveSurvivesPruneFailure(t *testing.T) {
	ctx := context.Background()
	blobs := noDeleteStore{blobstore.NewMemoryStore()}
	var buf bytes.Buffer
	s := NewStore(blobs, func(o *Options) {
		o.Keep = 0
		o.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	})

	m := &Manifest{}
	require.NoError(t, s.Save(ctx, m))

	// 1. The second save commits CURRENT but cannot delete MANIFEST-000001.
	require.NoError(t, s.Save(ctx, m))
	assert.Equal(t, uint64(2), m.ID)
	assert.Contains(t, buf.String(), "manifest prune failed")
	assert.Contains(t, buf.String(), "delete refused")

	// 2. The committed manifest is live.
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.ID)

	names, err := blobs.List(ctx, FilePrefix)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestStore_UnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, CurrentName, []byte("MANIFEST-000001.json")))
	require.NoError(t, blobs.Put(ctx, "MANIFEST-000001.json", []byte(`{"version":99}`)))

	_, err := NewStore(blobs).Load(ctx)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestStore_DanglingCurrent(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	require.NoError(t, blobs.Put(ctx, CurrentName, []byte("MANIFEST-000007.json")))

	_, err := NewStore(blobs).Load(ctx)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestManifest_Regions(t *testing.T) {
	var m Manifest
	keys := []region.Key{
		{Name: "a", X: 1}, {Name: "a", X: 0}, {Name: "a", Y: 1}, {Name: "B"},
	}
	for _, k := range keys {
		m.PutRegion(Region{Name: k.Name, X: k.X, Y: k.Y, Z: k.Z, Blob: k.ID()})
	}
	m.PutRegion(Region{Name: "a", X: 1, Blob: "replaced"})

	var blobs []string
	for _, r := range m.Regions {
		blobs = append(blobs, r.Blob)
	}
	assert.Equal(t, []string{"R_B_0_0_0", "R_a_0_0_0", "replaced", "R_a_0_1_0"}, blobs)

	c := m.Clone()
	assert.True(t, m.RemoveRegion(region.Key{Name: "a"}))
	assert.False(t, m.RemoveRegion(region.Key{Name: "a"}))
	assert.Len(t, m.Regions, 3)
	assert.Len(t, c.Regions, 4)

	_, ok := m.Region(region.Key{Name: "B"})
	assert.True(t, ok)
}
