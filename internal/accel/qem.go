package accel

import (
	"github.com/Faultbox/meshjuice/internal/decimate"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// QEM is the in-process accelerated backend. It decimates by quadric error
// edge collapse (or grid clustering, depending on the Algorithm hint) and
// reorders triangles with Forsyth's vertex cache scoring. Welding is left to
// the portable implementation.
type QEM struct{}

// NewQEM returns the in-process accelerator.
func NewQEM() *QEM { return &QEM{} }

// Name returns "qem".
func (*QEM) Name() string { return "qem" }

// Init is a no-op.
func (*QEM) Init() error { return nil }

// Close is a no-op.
func (*QEM) Close() error { return nil }

// CanAccelerate reports support for decimation and vertex-cache reordering.
func (*QEM) CanAccelerate(op Op) bool {
	return op&(OpDecimate|OpVertexCache) == op
}

// Weld is not accelerated.
func (*QEM) Weld(*mesh.Mesh, float32) (*mesh.Mesh, error) {
	return nil, ErrFallback
}

// Decimate reduces m to exactly decimate.Target(n, ratio) triangles.
//
// AlgorithmQEM places merged vertices at the quadric optimum,
// AlgorithmEdgeCollapse at the cheaper endpoint or the midpoint, and
// AlgorithmVertexClustering snaps vertices to a uniform grid. When the
// surface cannot be collapsed far enough the surplus faces are dropped in
// index order.
func (*QEM) Decimate(m *mesh.Mesh, ratio float32, cfg mesh.OptConfig) (*mesh.Mesh, error) {
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
	target := decimate.Target(n, ratio)
	if target == n {
		return m.Clone(), nil
	}

	if cfg.Algorithm == mesh.AlgorithmVertexClustering {
		return clusterDecimate(m, target)
	}

	c := newCollapser(m, cfg.Algorithm == mesh.AlgorithmQEM, cfg.PreserveTopology)
	c.run(target)
	return enforceTarget(c.mesh(), target), nil
}

// OptimizeVertexCache reorders triangles with Forsyth scoring.
func (*QEM) OptimizeVertexCache(m *mesh.Mesh) (*mesh.Mesh, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	return forsyth(m, forsythCacheSize), nil
}

// enforceTarget drops trailing faces beyond target and compacts vertices.
func enforceTarget(m *mesh.Mesh, target int) *mesh.Mesh {
	if m.TriangleCount() <= target {
		return m
	}
	m.Indices = m.Indices[:target*3]
	return m.Compact()
}
