package accel

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// probeMesh is a closed tetrahedron: small enough to run instantly, large
// enough to exercise every operation.
func probeMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []float32{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		Indices: []uint32{
			0, 2, 1,
			0, 1, 3,
			1, 2, 3,
			0, 3, 2,
		},
	}
}

// SelfTest runs every operation a supports on a tiny mesh and checks the
// results. ErrFallback answers are accepted.
func SelfTest(a Accelerator) error {
	in := probeMesh()
	verify := map[Op]func(*mesh.Mesh) error{
		OpWeld:        func(*mesh.Mesh) error { return nil },
		OpDecimate:    func(out *mesh.Mesh) error { return expectTriangles(out, 2) },
		OpVertexCache: func(out *mesh.Mesh) error { return expectTriangles(out, 4) },
	}
	calls := map[Op]func(Accelerator) (*mesh.Mesh, error){
		OpWeld: func(a Accelerator) (*mesh.Mesh, error) { return a.Weld(in, 0) },
		OpDecimate: func(a Accelerator) (*mesh.Mesh, error) {
			return a.Decimate(in, 0.5, mesh.DefaultOptConfig())
		},
		OpVertexCache: func(a Accelerator) (*mesh.Mesh, error) { return a.OptimizeVertexCache(in) },
	}

	for _, op := range []Op{OpWeld, OpDecimate, OpVertexCache} {
		if !a.CanAccelerate(op) {
			continue
		}
		_, err := attempt(a, op, verify[op], calls[op])
		if err != nil && !errors.Is(err, ErrFallback) {
			return fmt.Errorf("self-test %s: %w", op, err)
		}
	}
	return nil
}

func expectTriangles(m *mesh.Mesh, n int) error {
	if m.TriangleCount() != n {
		return fmt.Errorf("got %d triangles, want %d", m.TriangleCount(), n)
	}
	return nil
}

// Probe returns the first candidate that initializes and passes SelfTest, or
// nil when none does. Candidates that fail are closed. Nil candidates are
// skipped.
func Probe(log *zap.Logger, candidates ...Accelerator) Accelerator {
	if log == nil {
		log = zap.NewNop()
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if err := c.Init(); err != nil {
			log.Info("accelerator unavailable", zap.String("accelerator", c.Name()), zap.Error(err))
			continue
		}
		if err := SelfTest(c); err != nil {
			log.Warn("accelerator failed self-test", zap.String("accelerator", c.Name()), zap.Error(err))
			_ = c.Close()
			continue
		}
		log.Debug("accelerator selected", zap.String("accelerator", c.Name()))
		return c
	}
	log.Debug("no accelerator available, using portable implementation")
	return nil
}
