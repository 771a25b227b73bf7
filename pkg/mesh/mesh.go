// Package mesh provides the canonical in-memory mesh representation shared by
// the format adapters and the optimization engine.
package mesh

import (
	"fmt"
	gomath "math"
)

// Mesh is a flat vertex-position buffer plus a flat triangle-index buffer.
//
// Vertices holds x,y,z triples. Indices holds triangles as index triples; an
// index i refers to the vertex triple Vertices[3*i : 3*i+3].
type Mesh struct {
	Vertices []float32
	Indices  []uint32
}

// New creates a mesh from vertex and index buffers and checks its invariants.
// The buffers are owned by the returned mesh.
func New(vertices []float32, indices []uint32) (*Mesh, error) {
	m := &Mesh{Vertices: vertices, Indices: indices}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// VertexCount returns the number of complete vertex triples.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of complete index triples.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty reports whether the mesh has no vertices or no triangles.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0 || len(m.Indices) == 0
}

// Position returns the position of vertex i.
func (m *Mesh) Position(i uint32) [3]float32 {
	b := int(i) * 3
	return [3]float32{m.Vertices[b], m.Vertices[b+1], m.Vertices[b+2]}
}

// Triangle returns the three vertex indices of triangle t.
func (m *Mesh) Triangle(t int) [3]uint32 {
	b := t * 3
	return [3]uint32{m.Indices[b], m.Indices[b+1], m.Indices[b+2]}
}

// SizeBytes returns the size of both buffers in bytes.
func (m *Mesh) SizeBytes() int {
	return len(m.Vertices)*4 + len(m.Indices)*4
}

// Check verifies the buffer invariants: both lengths are multiples of 3 and
// every index addresses an existing vertex. It returns an InvalidInput error
// describing the first violation.
func (m *Mesh) Check() error {
	if m == nil {
		return InvalidInput("check", "nil mesh")
	}
	if len(m.Vertices)%3 != 0 {
		return InvalidInput("check", "vertex buffer length %d is not a multiple of 3", len(m.Vertices))
	}
	if len(m.Indices)%3 != 0 {
		return InvalidInput("check", "index buffer length %d is not a multiple of 3", len(m.Indices))
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Indices {
		if idx >= n {
			return InvalidInput("check", "index %d at position %d is out of bounds (vertex count: %d)", idx, i, n)
		}
	}
	return nil
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Indices:  make([]uint32, len(m.Indices)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Indices, m.Indices)
	return out
}

// String returns a short description like "mesh(8 vertices, 12 triangles)".
func (m *Mesh) String() string {
	return fmt.Sprintf("mesh(%d vertices, %d triangles)", m.VertexCount(), m.TriangleCount())
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Size returns the box extent on each axis.
func (b Bounds) Size() [3]float32 {
	return [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Bounds computes the bounding box of all vertices. ok is false for a mesh
// without vertices.
func (m *Mesh) Bounds() (b Bounds, ok bool) {
	if m.VertexCount() == 0 {
		return Bounds{}, false
	}
	inf := float32(gomath.Inf(1))
	b = Bounds{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		for k := 0; k < 3; k++ {
			v := m.Vertices[i+k]
			if v < b.Min[k] {
				b.Min[k] = v
			}
			if v > b.Max[k] {
				b.Max[k] = v
			}
		}
	}
	return b, true
}

// UsedVertexCount returns how many distinct vertices are referenced by the
// index buffer.
func (m *Mesh) UsedVertexCount() int {
	seen := make([]bool, m.VertexCount())
	used := 0
	for _, idx := range m.Indices {
		if int(idx) < len(seen) && !seen[idx] {
			seen[idx] = true
			used++
		}
	}
	return used
}

// Compact returns a copy of the mesh without unreferenced vertices. The
// surviving vertices keep their relative order and indices are remapped.
func (m *Mesh) Compact() *Mesh {
	remap := make([]int64, m.VertexCount())
	for i := range remap {
		remap[i] = -1
	}
	for _, idx := range m.Indices {
		remap[idx] = 0
	}

	out := &Mesh{
		Vertices: make([]float32, 0, len(m.Vertices)),
		Indices:  make([]uint32, len(m.Indices)),
	}
	for v := range remap {
		if remap[v] < 0 {
			continue
		}
		remap[v] = int64(len(out.Vertices) / 3)
		out.Vertices = append(out.Vertices, m.Vertices[v*3:v*3+3]...)
	}
	for i, idx := range m.Indices {
		out.Indices[i] = uint32(remap[idx])
	}
	return out
}
