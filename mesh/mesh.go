package mesh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is an indexed triangle list ready for upload to a renderer.
// Positions and Normals hold three floats per vertex, Colors four.
type Mesh struct {
	Positions []float32
	Normals   []float32
	Colors    []float32
	Materials []uint8
	Indices   []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Positions) / 3 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i int) mgl32.Vec3 {
	return mgl32.Vec3{m.Positions[3*i], m.Positions[3*i+1], m.Positions[3*i+2]}
}

// Normal returns the normal of vertex i.
func (m *Mesh) Normal(i int) mgl32.Vec3 {
	return mgl32.Vec3{m.Normals[3*i], m.Normals[3*i+1], m.Normals[3*i+2]}
}

// Color returns the RGBA colour of vertex i.
func (m *Mesh) Color(i int) mgl32.Vec4 {
	return mgl32.Vec4{m.Colors[4*i], m.Colors[4*i+1], m.Colors[4*i+2], m.Colors[4*i+3]}
}

// Triangle returns the vertex indices of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c uint32) {
	return m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]
}

// FaceNormal returns the unnormalized geometric normal of triangle i,
// following its winding.
func (m *Mesh) FaceNormal(i int) mgl32.Vec3 {
	a, b, c := m.Triangle(i)
	p0, p1, p2 := m.Vertex(int(a)), m.Vertex(int(b)), m.Vertex(int(c))
	return p1.Sub(p0).Cross(p2.Sub(p0))
}

// Bounds returns the axis-aligned bounding box of all vertices.
func (m *Mesh) Bounds() (lo, hi mgl32.Vec3) {
	n := m.VertexCount()
	if n == 0 {
		return lo, hi
	}
	lo, hi = m.Vertex(0), m.Vertex(0)
	for i := 1; i < n; i++ {
		v := m.Vertex(i)
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], v[k])
			hi[k] = max(hi[k], v[k])
		}
	}
	return lo, hi
}

// Translate moves every vertex by d.
func (m *Mesh) Translate(d mgl32.Vec3) {
	for i := 0; i < len(m.Positions); i += 3 {
		m.Positions[i] += d[0]
		m.Positions[i+1] += d[1]
		m.Positions[i+2] += d[2]
	}
}

// Validate checks that the arrays agree in length and that every index
// refers to a vertex.
func (m *Mesh) Validate() error {
	if len(m.Positions)%3 != 0 {
		return fmt.Errorf("mesh: %d position floats", len(m.Positions))
	}
	n := m.VertexCount()
	if len(m.Normals) != 3*n {
		return fmt.Errorf("mesh: %d normal floats for %d vertices", len(m.Normals), n)
	}
	if len(m.Colors) != 4*n {
		return fmt.Errorf("mesh: %d colour floats for %d vertices", len(m.Colors), n)
	}
	if len(m.Materials) != n {
		return fmt.Errorf("mesh: %d materials for %d vertices", len(m.Materials), n)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh: %d indices", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("mesh: index %d at %d out of range", idx, i)
		}
	}
	return nil
}
