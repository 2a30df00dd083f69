// Package accessor translates world coordinates into region, chunk and voxel
// coordinates and resolves point queries against chunk octrees.
package accessor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hupe1980/octoterra/internal/coord"
	"github.com/hupe1980/octoterra/octree"
	"github.com/hupe1980/octoterra/region"
)

// ErrMissingChild reports an internal node without the child a traversal
// needed. Lookup logs it and answers air.
var ErrMissingChild = errors.New("accessor: missing child")

// ChunkProvider supplies decoded chunk roots. A nil root with a nil error
// means the chunk is absent, which reads as air.
type ChunkProvider interface {
	ChunkRoot(ctx context.Context, key region.Key, chunkIndex int) (*octree.Node, error)
}

// ChunkProviderFunc adapts a function to ChunkProvider.
type ChunkProviderFunc func(ctx context.Context, key region.Key, chunkIndex int) (*octree.Node, error)

// ChunkRoot implements ChunkProvider.
func (f ChunkProviderFunc) ChunkRoot(ctx context.Context, key region.Key, chunkIndex int) (*octree.Node, error) {
	return f(ctx, key, chunkIndex)
}

// Geometry describes the world grid.
type Geometry struct {
	// VoxelSize is the edge length of one voxel in meters.
	VoxelSize float64
	// ChunkSide is the number of voxels along a chunk edge.
	ChunkSide int
	// MaxDepth bounds octree descent. Levels past log2(ChunkSide) subdivide
	// a single voxel.
	MaxDepth int
	// Layout is the chunk grid of one region.
	Layout region.Layout
}

// ChunkSizeMeters returns the edge length of a chunk in meters.
func (g Geometry) ChunkSizeMeters() float64 { return g.VoxelSize * float64(g.ChunkSide) }

// Validate checks the geometry.
func (g Geometry) Validate() error {
	if g.VoxelSize <= 0 || math.IsNaN(g.VoxelSize) || math.IsInf(g.VoxelSize, 0) {
		return fmt.Errorf("accessor: invalid voxel size %g", g.VoxelSize)
	}
	if g.ChunkSide < 1 {
		return fmt.Errorf("accessor: invalid chunk side %d", g.ChunkSide)
	}
	if g.MaxDepth < 0 {
		return fmt.Errorf("accessor: invalid max depth %d", g.MaxDepth)
	}
	return g.Layout.Validate()
}

// Location is a world point resolved into the region grid.
type Location struct {
	Region region.Key
	// ChunkX, ChunkY, ChunkZ are the chunk coordinates inside the region.
	ChunkX, ChunkY, ChunkZ int
	ChunkIndex             int
	// VoxelX, VoxelY, VoxelZ are the voxel coordinates inside the chunk.
	VoxelX, VoxelY, VoxelZ int
	// LocalX, LocalY, LocalZ are the position inside the chunk in voxel
	// units, in [0, ChunkSide).
	LocalX, LocalY, LocalZ float64
}

// Result is the answer to a point query.
type Result struct {
	Material uint8
	// Density is 0 for air and 1 for any solid material.
	Density float64
	// Depth is the level of the node that answered.
	Depth int
	// Found is false when the chunk is absent.
	Found bool
}

// Options configures an Accessor.
type Options struct {
	// RegionName selects the world dimension queried. Defaults to "Overworld".
	RegionName string
	// Logger receives missing-child warnings. Nil discards.
	Logger *slog.Logger
}

// Accessor answers point queries in world space.
// It is safe for concurrent use if its ChunkProvider is.
type Accessor struct {
	provider ChunkProvider
	geom     Geometry
	name     string
	logger   *slog.Logger
}

// New returns an Accessor reading chunks from provider.
func New(provider ChunkProvider, geom Geometry, optFns ...func(o *Options)) (*Accessor, error) {
	if provider == nil {
		return nil, errors.New("accessor: nil chunk provider")
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	opts := Options{RegionName: "Overworld"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Accessor{
		provider: provider,
		geom:     geom,
		name:     opts.RegionName,
		logger:   opts.Logger,
	}, nil
}

// Geometry returns the accessor's world grid.
func (a *Accessor) Geometry() Geometry { return a.geom }

// Locate resolves the world point (x, y, z), in meters, into the region grid.
func (a *Accessor) Locate(x, y, z float64) Location {
	return Locate(a.geom, a.name, x, y, z)
}

// Locate resolves the world point (x, y, z) for the named dimension.
func Locate(g Geometry, name string, x, y, z float64) Location {
	// Chunk and voxel both derive from one rounded voxel coordinate.
	side := g.ChunkSide
	vx := coord.FloorInt(x / g.VoxelSize)
	vy := coord.FloorInt(y / g.VoxelSize)
	vz := coord.FloorInt(z / g.VoxelSize)
	acx := coord.FloorDiv(vx, side)
	acy := coord.FloorDiv(vy, side)
	acz := coord.FloorDiv(vz, side)

	loc := Location{
		Region: region.Key{
			Name: name,
			X:    coord.FloorDiv(acx, g.Layout.ChunksX),
			Y:    coord.FloorDiv(acy, g.Layout.ChunksY),
			Z:    coord.FloorDiv(acz, g.Layout.ChunksZ),
		},
		ChunkX: coord.FloorMod(acx, g.Layout.ChunksX),
		ChunkY: coord.FloorMod(acy, g.Layout.ChunksY),
		ChunkZ: coord.FloorMod(acz, g.Layout.ChunksZ),
		VoxelX: coord.FloorMod(vx, side),
		VoxelY: coord.FloorMod(vy, side),
		VoxelZ: coord.FloorMod(vz, side),
	}
	loc.ChunkIndex = g.Layout.Index(loc.ChunkX, loc.ChunkY, loc.ChunkZ)

	fside := float64(side)
	loc.LocalX = localVoxel(x/g.VoxelSize, loc.VoxelX, fside)
	loc.LocalY = localVoxel(y/g.VoxelSize, loc.VoxelY, fside)
	loc.LocalZ = localVoxel(z/g.VoxelSize, loc.VoxelZ, fside)
	return loc
}

// localVoxel keeps the fractional part of v on top of the integer voxel so
// that rounding in the float modulo can never move the point into a
// neighbouring voxel.
func localVoxel(v float64, voxel int, side float64) float64 {
	frac := v - math.Floor(v)
	l := float64(voxel) + frac
	if l >= side {
		l = math.Nextafter(side, 0)
	}
	return l
}

// Lookup returns the material and density at the world point (x, y, z).
// Absent chunks answer air with Found false. Provider errors are returned.
func (a *Accessor) Lookup(ctx context.Context, x, y, z float64) (Result, error) {
	loc := a.Locate(x, y, z)
	return a.LookupLocation(ctx, loc)
}

// LookupLocation is Lookup for an already resolved Location.
func (a *Accessor) LookupLocation(ctx context.Context, loc Location) (Result, error) {
	root, err := a.provider.ChunkRoot(ctx, loc.Region, loc.ChunkIndex)
	if err != nil {
		return Result{}, err
	}
	if root == nil {
		return Result{Material: octree.Air}, nil
	}
	res, err := Traverse(root, float64(a.geom.ChunkSide), a.geom.MaxDepth, loc.LocalX, loc.LocalY, loc.LocalZ)
	if err != nil {
		a.logger.WarnContext(ctx, "octree traversal hit a missing child",
			"region", loc.Region.String(),
			"chunk", loc.ChunkIndex,
			"depth", res.Depth,
			"error", err,
		)
		return Result{Material: octree.Air, Depth: res.Depth, Found: true}, nil
	}
	return res, nil
}

// Traverse descends root, a chunk of edge length side voxels, to the node
// containing the local point (x, y, z). Descent stops at a leaf or at
// maxDepth. A nil child on the path yields ErrMissingChild together with the
// depth reached.
func Traverse(root *octree.Node, side float64, maxDepth int, x, y, z float64) (Result, error) {
	n := root
	depth := root.Level
	size := side
	for n.Kind == octree.Internal && depth < maxDepth {
		half := size / 2
		ux, uy, uz := x >= half, y >= half, z >= half
		if ux {
			x -= half
		}
		if uy {
			y -= half
		}
		if uz {
			z -= half
		}
		next := n.Children[octree.ChildIndex(ux, uy, uz)]
		if next == nil {
			return Result{Depth: depth, Found: true}, fmt.Errorf("%w: level %d", ErrMissingChild, depth)
		}
		n = next
		depth++
		size = half
	}
	return newResult(n, depth), nil
}

func newResult(n *octree.Node, depth int) Result {
	// An internal node cut off by maxDepth has no material of its own.
	m := n.Material
	if n.Kind == octree.Internal {
		m = octree.Air
	}
	r := Result{Material: m, Depth: depth, Found: true}
	if m != octree.Air {
		r.Density = 1
	}
	return r
}
