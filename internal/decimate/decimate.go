// Package decimate implements the portable triangle-count reduction.
//
// The portable decimator selects a subset of the input triangles and never
// moves a vertex. It is fast and predictable but does not minimize geometric
// error; the accelerated decimator in package accel collapses edges under a
// quadric error metric instead.
package decimate

import (
	gomath "math"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Options controls triangle selection.
type Options struct {
	// PreserveTopology keeps the first target triangles in order. When false
	// the kept triangles are spread uniformly across the index buffer.
	PreserveTopology bool
}

// OptionsFrom extracts the decimation options from an optimization config.
func OptionsFrom(cfg mesh.OptConfig) Options {
	return Options{PreserveTopology: cfg.PreserveTopology}
}

// Target returns the number of triangles a decimation of n triangles with the
// given ratio must produce: round(n*ratio) clamped to [1, n].
func Target(n int, ratio float32) int {
	target := int(gomath.Round(float64(n) * float64(ratio)))
	if target < 1 {
		target = 1
	}
	if target > n {
		target = n
	}
	return target
}

// Decimate returns a copy of m that keeps Target(n, ratio) of its n
// triangles. The vertex buffer is copied unchanged.
func Decimate(m *mesh.Mesh, ratio float32, opts Options) (*mesh.Mesh, error) {
	if err := mesh.ValidateRatio(ratio); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	n := m.TriangleCount()
	if n == 0 {
		return nil, mesh.Processing("decimate", "mesh has no triangles")
	}

	target := Target(n, ratio)
	out := &mesh.Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Indices:  make([]uint32, 0, target*3),
	}
	copy(out.Vertices, m.Vertices)

	if opts.PreserveTopology {
		out.Indices = append(out.Indices, m.Indices[:target*3]...)
		return out, nil
	}

	for i := 0; i < target; i++ {
		t := i * n / target
		out.Indices = append(out.Indices, m.Indices[t*3:t*3+3]...)
	}
	return out, nil
}
