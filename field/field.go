// Package field provides implicit density fields used to generate terrain.
//
// Density is a signed distance: negative below the surface (solid), positive
// above it (air), zero on the surface.
package field

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/hupe1980/octoterra/material"
	"github.com/hupe1980/octoterra/octree"
)

// Sample is the field value at one point.
type Sample struct {
	Density  float64
	Material uint8
}

// Solid reports whether the sample lies on or below the surface.
func (s Sample) Solid() bool { return s.Density <= 0 }

// Sampler evaluates a field at world coordinates in meters.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(x, y, z float64) Sample
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(x, y, z float64) Sample

// Sample implements Sampler.
func (f SamplerFunc) Sample(x, y, z float64) Sample { return f(x, y, z) }

// Strata assigns materials by depth below the surface.
type Strata struct {
	// TopDepth is the thickness of the surface layer.
	TopDepth float64
	// MidDepth is the depth at which the deep layer starts.
	MidDepth float64
	Top      uint8
	Mid      uint8
	Deep     uint8
}

// DefaultStrata is one meter of grass over four meters of ground over rock.
func DefaultStrata() Strata {
	return Strata{
		TopDepth: 1,
		MidDepth: 5,
		Top:      material.Grass,
		Mid:      material.Ground,
		Deep:     material.Rock,
	}
}

// Material returns the material at the given signed density.
func (s Strata) Material(density float64) uint8 {
	if density > 0 {
		return material.Air
	}
	depth := -density
	switch {
	case depth <= s.TopDepth:
		return s.Top
	case depth <= s.MidDepth:
		return s.Mid
	default:
		return s.Deep
	}
}

// Flat is a horizontal ground plane.
type Flat struct {
	Height float64
	Strata Strata
}

// NewFlat returns a plane at height with the default strata.
func NewFlat(height float64) *Flat {
	return &Flat{Height: height, Strata: DefaultStrata()}
}

// Sample implements Sampler.
func (f *Flat) Sample(_, y, _ float64) Sample {
	d := y - f.Height
	return Sample{Density: d, Material: f.Strata.Material(d)}
}

// Sphere is a solid ball, mostly useful in tests.
type Sphere struct {
	Center   r3.Vector
	Radius   float64
	Material uint8
}

// Sample implements Sampler.
func (s *Sphere) Sample(x, y, z float64) Sample {
	d := r3.Vector{X: x, Y: y, Z: z}.Sub(s.Center).Norm() - s.Radius
	if d > 0 {
		return Sample{Density: d, Material: material.Air}
	}
	return Sample{Density: d, Material: s.Material}
}

// Gradient estimates the density gradient of s at p by central differences
// with step h.
func Gradient(s Sampler, p r3.Vector, h float64) r3.Vector {
	dx := s.Sample(p.X+h, p.Y, p.Z).Density - s.Sample(p.X-h, p.Y, p.Z).Density
	dy := s.Sample(p.X, p.Y+h, p.Z).Density - s.Sample(p.X, p.Y-h, p.Z).Density
	dz := s.Sample(p.X, p.Y, p.Z+h).Density - s.Sample(p.X, p.Y, p.Z-h).Density
	return r3.Vector{X: dx, Y: dy, Z: dz}.Mul(1 / (2 * h))
}

// ChunkMaterial returns an octree.MaterialFunc that samples s for the chunk
// whose minimum corner is origin, in meters. The function receives
// chunk-local voxel coordinates.
func ChunkMaterial(s Sampler, origin r3.Vector, voxelSize float64) octree.MaterialFunc {
	return func(x, y, z float64) uint8 {
		smp := s.Sample(origin.X+x*voxelSize, origin.Y+y*voxelSize, origin.Z+z*voxelSize)
		if !smp.Solid() {
			return octree.Air
		}
		if smp.Material == octree.Air || smp.Material == octree.Sentinel {
			return material.Ground
		}
		return smp.Material
	}
}

// ChunkUniform returns an octree uniform-cube test for s. A cube is uniform
// when the field at its centre is farther from the surface than the cube's
// half diagonal, which holds for fields with gradient magnitude at most
// lipschitz.
func ChunkUniform(s Sampler, origin r3.Vector, voxelSize, lipschitz float64) func(x, y, z, size float64) (uint8, bool) {
	if lipschitz <= 0 {
		lipschitz = 1
	}
	mat := ChunkMaterial(s, origin, voxelSize)
	return func(x, y, z, size float64) (uint8, bool) {
		half := size / 2
		cx, cy, cz := x+half, y+half, z+half
		smp := s.Sample(origin.X+cx*voxelSize, origin.Y+cy*voxelSize, origin.Z+cz*voxelSize)
		reach := math.Sqrt(3) * half * voxelSize * lipschitz
		if math.Abs(smp.Density) <= reach {
			return 0, false
		}
		if smp.Density > 0 {
			return octree.Air, true
		}
		// Strata can still vary inside a solid cube.
		m := mat(cx, cy, cz)
		for _, c := range [8][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1}} {
			if mat(x+c[0]*size, y+c[1]*size, z+c[2]*size) != m {
				return 0, false
			}
		}
		return m, true
	}
}
