// Package mesh extracts triangle meshes from density grids with Dual
// Contouring: one vertex per cell that straddles the surface, joined into
// quads across every grid edge the surface crosses.
package mesh

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/hupe1980/octoterra/grid"
	"github.com/hupe1980/octoterra/material"
)

// Options configures Extract.
type Options struct {
	// Palette colours the vertices. Defaults to material.Default().
	Palette *material.Palette
	// SingularTolerance is the relative cutoff below which QEF singular
	// values are ignored. Defaults to 0.1.
	SingularTolerance float64
}

// Extract triangulates the surface of g. It returns a nil mesh when the grid
// produces no vertex. ctx is checked once per horizontal layer of cells.
//
// Corners with positive density are on the air side. Faces wind
// counter-clockwise when viewed from the air side.
func Extract(ctx context.Context, g *grid.Grid, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{SingularTolerance: 0.1}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Palette == nil {
		opts.Palette = material.Default()
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}

	e := extractor{g: g, cells: g.Res - 1, opts: opts}
	if err := e.placeVertices(ctx); err != nil {
		return nil, err
	}
	if e.mesh.VertexCount() == 0 {
		return nil, nil
	}
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	return &e.mesh, nil
}

type extractor struct {
	g      *grid.Grid
	cells  int
	opts   Options
	vertex []int32
	mesh   Mesh
	q      qef
}

func (e *extractor) cellIndex(x, y, z int) int {
	return x + z*e.cells + y*e.cells*e.cells
}

func (e *extractor) density(x, y, z int) float64 {
	return float64(e.g.Density[e.g.Index(x, y, z)])
}

func (e *extractor) placeVertices(ctx context.Context) error {
	n := e.cells
	e.vertex = make([]int32, n*n*n)
	for i := range e.vertex {
		e.vertex[i] = -1
	}

	for y := 0; y < n; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for z := 0; z < n; z++ {
			for x := 0; x < n; x++ {
				e.placeVertex(x, y, z)
			}
		}
	}
	return nil
}

// caseCode returns the corner sign mask of cell (x, y, z) and its densities.
func (e *extractor) caseCode(x, y, z int) (uint8, [8]float64) {
	var code uint8
	var d [8]float64
	for i, o := range cornerOffsets {
		d[i] = e.density(x+o[0], y+o[1], z+o[2])
		if d[i] > 0 {
			code |= 1 << i
		}
	}
	return code, d
}

func (e *extractor) placeVertex(x, y, z int) {
	code, d := e.caseCode(x, y, z)
	if code == 0 || code == 0xFF {
		return
	}

	base := r3.Vector{X: float64(x), Y: float64(y), Z: float64(z)}
	counts := make(map[uint8]int, 4)
	e.q.reset()
	for _, edge := range cellEdges {
		a, b := edge[0], edge[1]
		if (d[a] > 0) == (d[b] > 0) {
			continue
		}
		t := d[a] / (d[a] - d[b])
		pa := base.Add(corner(a))
		pb := base.Add(corner(b))
		p := pa.Add(pb.Sub(pa).Mul(t))
		e.q.add(p, normalize(e.gradient(p)))

		inside := a
		if d[a] > 0 {
			inside = b
		}
		o := cornerOffsets[inside]
		counts[e.g.Material[e.g.Index(x+o[0], y+o[1], z+o[2])]]++
	}

	v, _, ok := e.q.solve(e.opts.SingularTolerance)
	if !ok || !inCell(v, base) {
		v = e.q.massPoint()
	}

	nrm := normalize(e.gradient(v))
	if nrm.Norm2() == 0 {
		var sum r3.Vector
		for _, qn := range e.q.normals {
			sum = sum.Add(qn)
		}
		nrm = normalize(sum)
		if nrm.Norm2() == 0 {
			nrm = r3.Vector{Y: 1}
		}
	}

	mat := majority(counts)
	world := e.g.Origin.Add(v.Mul(e.g.Spacing))
	rgba := e.opts.Palette.Lookup(mat).RGBA()

	e.vertex[e.cellIndex(x, y, z)] = int32(e.mesh.VertexCount())
	e.mesh.Positions = append(e.mesh.Positions, float32(world.X), float32(world.Y), float32(world.Z))
	e.mesh.Normals = append(e.mesh.Normals, float32(nrm.X), float32(nrm.Y), float32(nrm.Z))
	e.mesh.Colors = append(e.mesh.Colors, rgba[:]...)
	e.mesh.Materials = append(e.mesh.Materials, mat)
}

func (e *extractor) connect(ctx context.Context) error {
	res := e.g.Res
	for y := 0; y < res; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for z := 0; z < res; z++ {
			for x := 0; x < res; x++ {
				d0 := e.density(x, y, z)
				for axis := 0; axis < 3; axis++ {
					nx, ny, nz := x, y, z
					switch axis {
					case 0:
						nx++
					case 1:
						ny++
					case 2:
						nz++
					}
					if !e.g.In(nx, ny, nz) {
						continue
					}
					d1 := e.density(nx, ny, nz)
					if (d0 > 0) == (d1 > 0) {
						continue
					}
					e.emitQuad(axis, x, y, z, d1 > 0)
				}
			}
		}
	}
	return nil
}

// emitQuad joins the vertices of the four cells around the grid edge that
// starts at (x, y, z) along axis. outward is true when the edge runs from the
// solid side to the air side.
func (e *extractor) emitQuad(axis, x, y, z int, outward bool) {
	var quad [4]uint32
	for i, o := range quadRings[axis] {
		cx, cy, cz := x+o[0], y+o[1], z+o[2]
		if cx < 0 || cy < 0 || cz < 0 || cx >= e.cells || cy >= e.cells || cz >= e.cells {
			return
		}
		v := e.vertex[e.cellIndex(cx, cy, cz)]
		if v < 0 {
			return
		}
		quad[i] = uint32(v)
	}
	if !outward {
		quad[1], quad[3] = quad[3], quad[1]
	}
	e.mesh.Indices = append(e.mesh.Indices,
		quad[0], quad[1], quad[2],
		quad[0], quad[2], quad[3],
	)
}

// gradient returns the density gradient at p, in grid units, by trilinear
// interpolation of central differences at the surrounding samples.
func (e *extractor) gradient(p r3.Vector) r3.Vector {
	last := float64(e.g.Res - 1)
	p.X = math.Min(math.Max(p.X, 0), last)
	p.Y = math.Min(math.Max(p.Y, 0), last)
	p.Z = math.Min(math.Max(p.Z, 0), last)

	x0 := min(int(p.X), e.g.Res-2)
	y0 := min(int(p.Y), e.g.Res-2)
	z0 := min(int(p.Z), e.g.Res-2)
	fx, fy, fz := p.X-float64(x0), p.Y-float64(y0), p.Z-float64(z0)

	var out r3.Vector
	for _, o := range cornerOffsets {
		w := weight(fx, o[0]) * weight(fy, o[1]) * weight(fz, o[2])
		if w == 0 {
			continue
		}
		out = out.Add(e.sampleGradient(x0+o[0], y0+o[1], z0+o[2]).Mul(w))
	}
	return out
}

// sampleGradient estimates the gradient at a grid sample, falling back to
// one-sided differences on the grid faces.
func (e *extractor) sampleGradient(x, y, z int) r3.Vector {
	return r3.Vector{
		X: e.diff(x, y, z, 1, 0, 0),
		Y: e.diff(x, y, z, 0, 1, 0),
		Z: e.diff(x, y, z, 0, 0, 1),
	}
}

func (e *extractor) diff(x, y, z, dx, dy, dz int) float64 {
	hi, lo := 1, 1
	if !e.g.In(x+dx, y+dy, z+dz) {
		hi = 0
	}
	if !e.g.In(x-dx, y-dy, z-dz) {
		lo = 0
	}
	if hi+lo == 0 {
		return 0
	}
	a := e.density(x+hi*dx, y+hi*dy, z+hi*dz)
	b := e.density(x-lo*dx, y-lo*dy, z-lo*dz)
	return (a - b) / float64(hi+lo)
}

func weight(f float64, bit int) float64 {
	if bit == 1 {
		return f
	}
	return 1 - f
}

func corner(i int) r3.Vector {
	o := cornerOffsets[i]
	return r3.Vector{X: float64(o[0]), Y: float64(o[1]), Z: float64(o[2])}
}

func normalize(v r3.Vector) r3.Vector {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) {
		return r3.Vector{}
	}
	return v.Mul(1 / n)
}

func inCell(v, base r3.Vector) bool {
	const eps = 1e-9
	return v.X >= base.X-eps && v.X <= base.X+1+eps &&
		v.Y >= base.Y-eps && v.Y <= base.Y+1+eps &&
		v.Z >= base.Z-eps && v.Z <= base.Z+1+eps
}

// majority returns the most frequent material, preferring the lowest id on
// ties.
func majority(counts map[uint8]int) uint8 {
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	best, bestCount := uint8(0), -1
	for _, id := range ids {
		if c := counts[uint8(id)]; c > bestCount {
			best, bestCount = uint8(id), c
		}
	}
	return best
}
