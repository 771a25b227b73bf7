package accel

import (
	meshmath "github.com/Faultbox/meshjuice/pkg/math"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

const (
	minClusterResolution = 1
	maxClusterResolution = 1 << 16
)

// clusterDecimate snaps vertices to a uniform grid and merges each occupied
// cell into the mean of its vertices. It picks the coarsest resolution that
// keeps at least target faces, then trims the surplus in order. Returns
// ErrFallback when even the finest grid cannot keep target faces.
func clusterDecimate(m *mesh.Mesh, target int) (*mesh.Mesh, error) {
	b, ok := m.Bounds()
	if !ok {
		return nil, ErrFallback
	}
	extent := meshmath.FromArray(b.Size()).MaxComponent()
	if extent <= 0 {
		return nil, ErrFallback
	}
	origin := meshmath.FromArray(b.Min)

	// Grow until the grid is fine enough.
	hi := 8
	best := cluster(m, origin, extent/float32(hi))
	for best.TriangleCount() < target {
		hi *= 2
		if hi > maxClusterResolution {
			return nil, ErrFallback
		}
		best = cluster(m, origin, extent/float32(hi))
	}

	// Bisect for the coarsest grid that still keeps enough faces.
	lo := minClusterResolution
	for lo < hi {
		mid := (lo + hi) / 2
		candidate := cluster(m, origin, extent/float32(mid))
		if candidate.TriangleCount() >= target {
			hi, best = mid, candidate
		} else {
			lo = mid + 1
		}
	}
	return enforceTarget(best, target), nil
}

// cluster merges vertices per grid cell and drops faces that collapse or
// duplicate an already emitted face.
func cluster(m *mesh.Mesh, origin meshmath.Vec3, cell float32) *mesh.Mesh {
	n := m.VertexCount()
	cells := make(map[[3]int32]uint32, n)
	remap := make([]uint32, n)
	var sums []meshmath.Vec3
	var counts []float32

	for v := 0; v < n; v++ {
		p := meshmath.FromSlice(m.Vertices[v*3:])
		key := meshmath.CellIndex(p, origin, cell)
		id, ok := cells[key]
		if !ok {
			id = uint32(len(sums))
			cells[key] = id
			sums = append(sums, meshmath.Vec3{})
			counts = append(counts, 0)
		}
		remap[v] = id
		sums[id] = sums[id].Add(p)
		counts[id]++
	}

	out := &mesh.Mesh{
		Vertices: make([]float32, 0, len(sums)*3),
		Indices:  make([]uint32, 0, len(m.Indices)),
	}
	for i, s := range sums {
		mean := s.Scale(1 / counts[i])
		out.Vertices = append(out.Vertices, mean.X, mean.Y, mean.Z)
	}

	seen := make(map[[3]uint32]struct{}, m.TriangleCount())
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a, b, c := remap[tri[0]], remap[tri[1]], remap[tri[2]]
		if a == b || b == c || a == c {
			continue
		}
		key := canonicalFace(a, b, c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Indices = append(out.Indices, a, b, c)
	}
	return out.Compact()
}

// canonicalFace rotates a face so its smallest index comes first, keeping the
// winding.
func canonicalFace(a, b, c uint32) [3]uint32 {
	switch {
	case a <= b && a <= c:
		return [3]uint32{a, b, c}
	case b <= a && b <= c:
		return [3]uint32{b, c, a}
	default:
		return [3]uint32{c, a, b}
	}
}
