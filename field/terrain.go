package field

import (
	perlin "github.com/aquilax/go-perlin"
)

// TerrainOptions configures a Terrain.
type TerrainOptions struct {
	// BaseHeight is the lowest surface height in meters.
	BaseHeight float64
	// Amplitude is the maximum height added on top of BaseHeight.
	Amplitude float64
	// Scale converts meters to noise space.
	Scale float64
	// Alpha and Beta shape the perlin octave sum.
	Alpha float64
	Beta  float64
	// Octaves is the number of noise octaves.
	Octaves int32
	Seed    int64
	Strata  Strata
}

// DefaultTerrainOptions returns rolling hills between 10 and 30 meters.
func DefaultTerrainOptions() TerrainOptions {
	return TerrainOptions{
		BaseHeight: 10,
		Amplitude:  20,
		Scale:      1.0 / 100,
		Alpha:      2,
		Beta:       2,
		Octaves:    3,
		Seed:       1,
		Strata:     DefaultStrata(),
	}
}

// Terrain is a perlin-noise heightfield with layered materials.
type Terrain struct {
	opts  TerrainOptions
	noise *perlin.Perlin
}

// NewTerrain returns a heightfield terrain.
func NewTerrain(optFns ...func(o *TerrainOptions)) *Terrain {
	opts := DefaultTerrainOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Octaves <= 0 {
		opts.Octaves = 1
	}
	return &Terrain{
		opts:  opts,
		noise: perlin.NewPerlin(opts.Alpha, opts.Beta, opts.Octaves, opts.Seed),
	}
}

// Height returns the surface height at (x, z).
func (t *Terrain) Height(x, z float64) float64 {
	n := t.noise.Noise2D(x*t.opts.Scale, z*t.opts.Scale)
	// Noise2D is roughly in [-1, 1].
	u := n*0.5 + 0.5
	if u < 0 {
		u = 0
	} else if u > 1 {
		u = 1
	}
	return t.opts.BaseHeight + u*t.opts.Amplitude
}

// Sample implements Sampler.
func (t *Terrain) Sample(x, y, z float64) Sample {
	d := y - t.Height(x, z)
	return Sample{Density: d, Material: t.opts.Strata.Material(d)}
}
