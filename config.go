package octoterra

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/hupe1980/octoterra/accessor"
	"github.com/hupe1980/octoterra/internal/compress"
	"github.com/hupe1980/octoterra/manifest"
	"github.com/hupe1980/octoterra/region"
)

// Config describes the world grid. It is persisted in the world manifest and
// must not change once regions were written.
type Config struct {
	// VoxelSizeMeters is the edge length of one voxel.
	VoxelSizeMeters float64
	// ChunkSideVoxels is the number of voxels along a chunk edge. Must be a
	// power of two.
	ChunkSideVoxels int
	// ExtraDetailLevels allows octree descent below a single voxel.
	ExtraDetailLevels int
	// RegionChunksXZ and RegionChunksY size the chunk grid of one region.
	RegionChunksXZ int
	RegionChunksY  int
	// DefaultRegionName is the world dimension chunk lookups use.
	DefaultRegionName string
	// IsoSurfaceThreshold shifts generator densities before classification.
	IsoSurfaceThreshold float64
	// Compression names the codec applied to written regions: "none",
	// "lz4" or "zstd".
	Compression string
	// Seed is recorded with the world for generators that need one.
	Seed int64
}

// DefaultConfig returns 1.5 m voxels in 16-voxel chunks, with 8x2x8 chunk
// regions.
func DefaultConfig() Config {
	return Config{
		VoxelSizeMeters:   1.5,
		ChunkSideVoxels:   16,
		ExtraDetailLevels: 5,
		RegionChunksXZ:    8,
		RegionChunksY:     2,
		DefaultRegionName: "Overworld",
		Compression:       "none",
	}
}

// MaxDepth returns the deepest octree level, log2(ChunkSideVoxels) plus the
// extra detail levels.
func (c Config) MaxDepth() int {
	return bits.Len(uint(c.ChunkSideVoxels)) - 1 + c.ExtraDetailLevels
}

// ChunkSizeMeters returns the edge length of a chunk.
func (c Config) ChunkSizeMeters() float64 {
	return c.VoxelSizeMeters * float64(c.ChunkSideVoxels)
}

// Layout returns the chunk grid of one region.
func (c Config) Layout() region.Layout {
	return region.Layout{ChunksX: c.RegionChunksXZ, ChunksY: c.RegionChunksY, ChunksZ: c.RegionChunksXZ}
}

// TotalChunks returns the number of chunks per region.
func (c Config) TotalChunks() int { return c.Layout().TotalChunks() }

// RegionSizeMeters returns the horizontal and vertical extent of a region.
func (c Config) RegionSizeMeters() (xz, y float64) {
	cs := c.ChunkSizeMeters()
	return cs * float64(c.RegionChunksXZ), cs * float64(c.RegionChunksY)
}

// GridResolution returns the number of density samples per axis a chunk
// mesh needs, one more than the chunk side.
func (c Config) GridResolution() int { return c.ChunkSideVoxels + 1 }

// Geometry returns the accessor view of the grid.
func (c Config) Geometry() accessor.Geometry {
	return accessor.Geometry{
		VoxelSize: c.VoxelSizeMeters,
		ChunkSide: c.ChunkSideVoxels,
		MaxDepth:  c.MaxDepth(),
		Layout:    c.Layout(),
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if !(c.VoxelSizeMeters > 0) {
		return fmt.Errorf("%w: voxel size %g must be positive", ErrInvalidConfig, c.VoxelSizeMeters)
	}
	if c.ChunkSideVoxels < 2 || c.ChunkSideVoxels&(c.ChunkSideVoxels-1) != 0 {
		return fmt.Errorf("%w: chunk side %d must be a power of two >= 2", ErrInvalidConfig, c.ChunkSideVoxels)
	}
	if c.ExtraDetailLevels < 0 {
		return fmt.Errorf("%w: extra detail levels %d", ErrInvalidConfig, c.ExtraDetailLevels)
	}
	if d := c.MaxDepth(); d > 16 {
		return fmt.Errorf("%w: max depth %d exceeds 16", ErrInvalidConfig, d)
	}
	if c.RegionChunksXZ < 1 || c.RegionChunksY < 1 {
		return fmt.Errorf("%w: region of %dx%dx%d chunks", ErrInvalidConfig, c.RegionChunksXZ, c.RegionChunksY, c.RegionChunksXZ)
	}
	if n := c.TotalChunks(); n > 65535 {
		return fmt.Errorf("%w: %d chunks per region exceeds 65535", ErrInvalidConfig, n)
	}
	if c.DefaultRegionName == "" || strings.ContainsAny(c.DefaultRegionName, "./\\") {
		return fmt.Errorf("%w: region name %q", ErrInvalidConfig, c.DefaultRegionName)
	}
	if _, err := compress.ParseKind(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) manifestWorld() manifest.World {
	return manifest.World{
		Name:        c.DefaultRegionName,
		VoxelSize:   c.VoxelSizeMeters,
		ChunkSide:   c.ChunkSideVoxels,
		MaxDepth:    c.MaxDepth(),
		ChunksX:     c.RegionChunksXZ,
		ChunksY:     c.RegionChunksY,
		ChunksZ:     c.RegionChunksXZ,
		Compression: c.Compression,
		Seed:        c.Seed,
	}
}

// checkManifest compares the geometry recorded in w with c. Compression and
// seed may change between sessions; regions in any codec stay readable.
func (c Config) checkManifest(w manifest.World) error {
	want := c.manifestWorld()
	if w.VoxelSize != want.VoxelSize || w.ChunkSide != want.ChunkSide || w.MaxDepth != want.MaxDepth ||
		w.ChunksX != want.ChunksX || w.ChunksY != want.ChunksY || w.ChunksZ != want.ChunksZ {
		return fmt.Errorf("%w: stored %+v, configured %+v", ErrConfigMismatch, w, want)
	}
	return nil
}
