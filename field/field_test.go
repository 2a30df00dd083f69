package field

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/octoterra/material"
	"github.com/hupe1980/octoterra/octree"
)

func TestStrata(t *testing.T) {
	s := DefaultStrata()
	require.Equal(t, material.Air, s.Material(0.1))
	require.Equal(t, material.Grass, s.Material(0))
	require.Equal(t, material.Grass, s.Material(-1))
	require.Equal(t, material.Ground, s.Material(-3))
	require.Equal(t, material.Rock, s.Material(-10))
}

func TestFlat(t *testing.T) {
	f := NewFlat(11)
	require.Equal(t, Sample{Density: 1, Material: material.Air}, f.Sample(5, 12, -3))
	smp := f.Sample(0, 0, 0)
	require.True(t, smp.Solid())
	require.Equal(t, material.Rock, smp.Material)
}

func TestTerrain_Deterministic(t *testing.T) {
	a := NewTerrain()
	b := NewTerrain()
	for _, p := range [][2]float64{{0, 0}, {12.5, -40}, {1000, 3}} {
		ha := a.Height(p[0], p[1])
		require.Equal(t, ha, b.Height(p[0], p[1]))
		require.GreaterOrEqual(t, ha, 10.0)
		require.LessOrEqual(t, ha, 30.0)

		require.True(t, a.Sample(p[0], ha-2, p[1]).Solid())
		require.False(t, a.Sample(p[0], ha+2, p[1]).Solid())
	}
}

func TestGradient_Sphere(t *testing.T) {
	s := &Sphere{Center: r3.Vector{X: 1, Y: 2, Z: 3}, Radius: 4, Material: material.Rock}
	g := Gradient(s, r3.Vector{X: 6, Y: 2, Z: 3}, 0.01)
	require.InDelta(t, 1, g.X, 1e-6)
	require.InDelta(t, 0, g.Y, 1e-6)
	require.InDelta(t, 0, g.Z, 1e-6)
}

func TestChunkUniform_MatchesFullBuild(t *testing.T) {
	s := &Sphere{Center: r3.Vector{X: 12, Y: 12, Z: 12}, Radius: 9, Material: material.Rock}
	origin := r3.Vector{}
	mat := ChunkMaterial(s, origin, 1.5)

	full := octree.Build(16, mat)
	fast := octree.Build(16, mat, func(o *octree.BuildOptions) {
		o.Uniform = ChunkUniform(s, origin, 1.5, 1)
	})
	require.True(t, octree.Equal(full, fast))
	require.True(t, octree.IsPruned(fast))
	require.False(t, fast.IsLeaf())
}
