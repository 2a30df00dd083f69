// Package grid holds dense density and material samples of one chunk, the
// input of surface extraction.
package grid

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/hupe1980/octoterra/accessor"
	"github.com/hupe1980/octoterra/field"
	"github.com/hupe1980/octoterra/octree"
)

// Grid is a cube of Res samples per axis. Sample (x, y, z) sits at
// Origin + (x, y, z)*Spacing and is stored at x + z*Res + y*Res*Res.
type Grid struct {
	Res      int
	Origin   r3.Vector
	Spacing  float64
	Density  []float32
	Material []uint8
}

// New returns a grid of res samples per axis filled with air.
func New(res int, origin r3.Vector, spacing float64) (*Grid, error) {
	if res < 2 {
		return nil, fmt.Errorf("grid: resolution %d below 2", res)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("grid: invalid spacing %g", spacing)
	}
	n := res * res * res
	g := &Grid{
		Res:      res,
		Origin:   origin,
		Spacing:  spacing,
		Density:  make([]float32, n),
		Material: make([]uint8, n),
	}
	for i := range g.Density {
		g.Density[i] = 1
	}
	return g, nil
}

// Validate checks that a hand-built grid is consistent with its resolution.
func (g *Grid) Validate() error {
	if g == nil {
		return fmt.Errorf("grid: nil grid")
	}
	if g.Res < 2 {
		return fmt.Errorf("grid: resolution %d below 2", g.Res)
	}
	n := g.Res * g.Res * g.Res
	if len(g.Density) != n {
		return fmt.Errorf("grid: %d density samples for resolution %d", len(g.Density), g.Res)
	}
	if len(g.Material) != n {
		return fmt.Errorf("grid: %d material samples for resolution %d", len(g.Material), g.Res)
	}
	return nil
}

// Index returns the slot of sample (x, y, z).
func (g *Grid) Index(x, y, z int) int { return x + z*g.Res + y*g.Res*g.Res }

// In reports whether (x, y, z) is a valid sample coordinate.
func (g *Grid) In(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Res && y < g.Res && z < g.Res
}

// At returns the density and material of sample (x, y, z).
func (g *Grid) At(x, y, z int) (float32, uint8) {
	i := g.Index(x, y, z)
	return g.Density[i], g.Material[i]
}

// Set stores one sample.
func (g *Grid) Set(x, y, z int, density float32, material uint8) {
	i := g.Index(x, y, z)
	g.Density[i] = density
	g.Material[i] = material
}

// Position returns the world position of sample (x, y, z).
func (g *Grid) Position(x, y, z int) r3.Vector {
	return g.Origin.Add(r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)}.Mul(g.Spacing))
}

// HasSurface reports whether the grid contains both solid and air samples.
func (g *Grid) HasSurface() bool {
	var solid, air bool
	for _, d := range g.Density {
		if d > 0 {
			air = true
		} else {
			solid = true
		}
		if solid && air {
			return true
		}
	}
	return false
}

// FromSampler fills a grid by evaluating s at every sample position.
// ctx is checked once per horizontal layer.
func FromSampler(ctx context.Context, s field.Sampler, origin r3.Vector, res int, spacing float64) (*Grid, error) {
	g, err := New(res, origin, spacing)
	if err != nil {
		return nil, err
	}
	for y := 0; y < res; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for z := 0; z < res; z++ {
			for x := 0; x < res; x++ {
				p := g.Position(x, y, z)
				smp := s.Sample(p.X, p.Y, p.Z)
				g.Set(x, y, z, float32(smp.Density), smp.Material)
			}
		}
	}
	return g, nil
}

// Neighbor resolves voxels outside the chunk, given in chunk-local voxel
// coordinates. ok is false when the neighbour is unknown.
type Neighbor func(x, y, z int) (material uint8, ok bool)

// OctreeOptions configures FromOctree.
type OctreeOptions struct {
	// MaxDepth bounds descent. Defaults to 64.
	MaxDepth int
	// Neighbor supplies the samples on the far faces, which belong to the
	// adjacent chunks. Without it those samples repeat the chunk's own edge.
	Neighbor Neighbor
}

// FromOctree samples a chunk tree into a grid of side+1 samples per axis.
// Sample (x, y, z) takes the voxel whose minimum corner it is; solid voxels
// get density -1 and air +1.
func FromOctree(root *octree.Node, side int, origin r3.Vector, voxelSize float64, optFns ...func(o *OctreeOptions)) (*Grid, error) {
	opts := OctreeOptions{MaxDepth: 64}
	for _, fn := range optFns {
		fn(&opts)
	}
	if root == nil {
		root = octree.AirRoot()
	}
	g, err := New(side+1, origin, voxelSize)
	if err != nil {
		return nil, err
	}
	fside := float64(side)
	for y := 0; y <= side; y++ {
		for z := 0; z <= side; z++ {
			for x := 0; x <= side; x++ {
				var m uint8
				if (x == side || y == side || z == side) && opts.Neighbor != nil {
					nm, ok := opts.Neighbor(x, y, z)
					if !ok {
						nm = voxelAt(root, fside, opts.MaxDepth, min(x, side-1), min(y, side-1), min(z, side-1))
					}
					m = nm
				} else {
					m = voxelAt(root, fside, opts.MaxDepth, min(x, side-1), min(y, side-1), min(z, side-1))
				}
				d := float32(1)
				if m != octree.Air {
					d = -1
				}
				g.Set(x, y, z, d, m)
			}
		}
	}
	return g, nil
}

func voxelAt(root *octree.Node, side float64, maxDepth, x, y, z int) uint8 {
	res, err := accessor.Traverse(root, side, maxDepth, float64(x)+0.5, float64(y)+0.5, float64(z)+0.5)
	if err != nil {
		return octree.Air
	}
	return res.Material
}
