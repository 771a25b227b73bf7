// Package weld merges vertices that lie within a distance tolerance of each
// other.
package weld

import (
	gomath "math"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// cellKey identifies a quantization cell. Axes flagged in raw hold the bit
// pattern of the coordinate instead of a cell number; that is always the case
// for tolerance 0, and otherwise for coordinates whose cell number does not
// fit an int64 (NaN, infinities and values far beyond the tolerance).
type cellKey struct {
	cell [3]int64
	raw  uint8
}

// Weld returns a copy of m where vertices falling into the same tolerance
// cell are merged. Each coordinate c is quantized to floor(c/tolerance); the
// first vertex seen in a cell represents it and later vertices in that cell
// are remapped to it. Tolerance 0 merges bit-identical positions only, with
// +0 and -0 treated as equal; the same exact matching applies to any axis
// whose cell number overflows int64, NaN included.
//
// No triangle is removed, so triangles may become degenerate. Welding an
// already welded mesh with the same tolerance returns an equal mesh.
func Weld(m *mesh.Mesh, tolerance float32) (*mesh.Mesh, error) {
	if err := mesh.ValidateTolerance(tolerance); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}

	n := m.VertexCount()
	cells := make(map[cellKey]uint32, n)
	remap := make([]uint32, n)
	out := &mesh.Mesh{
		Vertices: make([]float32, 0, len(m.Vertices)),
		Indices:  make([]uint32, len(m.Indices)),
	}

	for v := 0; v < n; v++ {
		p := m.Vertices[v*3 : v*3+3]
		key := keyFor(p, tolerance)
		if rep, ok := cells[key]; ok {
			remap[v] = rep
			continue
		}
		rep := uint32(len(out.Vertices) / 3)
		cells[key] = rep
		remap[v] = rep
		out.Vertices = append(out.Vertices, p...)
	}

	for i, idx := range m.Indices {
		out.Indices[i] = remap[idx]
	}
	return out, nil
}

func keyFor(p []float32, tolerance float32) cellKey {
	var key cellKey
	t := float64(tolerance)
	for k := 0; k < 3; k++ {
		if tolerance != 0 {
			q := gomath.Floor(float64(p[k]) / t)
			if q >= minCell && q < maxCell {
				key.cell[k] = int64(q)
				continue
			}
		}
		c := p[k]
		if c == 0 {
			c = 0 // fold -0
		}
		key.cell[k] = int64(gomath.Float32bits(c))
		key.raw |= 1 << k
	}
	return key
}

// Cell numbers in [minCell, maxCell) convert to int64 exactly.
const (
	minCell = -(1 << 63)
	maxCell = 1 << 63
)

// Count returns how many distinct cells the vertices of m occupy, which is
// the vertex count Weld would produce.
func Count(m *mesh.Mesh, tolerance float32) int {
	cells := make(map[cellKey]struct{}, m.VertexCount())
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		cells[keyFor(m.Vertices[i:i+3], tolerance)] = struct{}{}
	}
	return len(cells)
}
