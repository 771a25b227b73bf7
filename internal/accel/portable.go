package accel

import (
	"github.com/Faultbox/meshjuice/internal/decimate"
	"github.com/Faultbox/meshjuice/internal/vcache"
	"github.com/Faultbox/meshjuice/internal/weld"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Portable is the reference implementation of every operation. It is always
// available and is what the strategy falls back to.
type Portable struct{}

// Name returns "portable".
func (Portable) Name() string { return "portable" }

// Init is a no-op.
func (Portable) Init() error { return nil }

// Close is a no-op.
func (Portable) Close() error { return nil }

// CanAccelerate reports true for every operation.
func (Portable) CanAccelerate(Op) bool { return true }

// Weld runs the grid-quantization welder.
func (Portable) Weld(m *mesh.Mesh, tolerance float32) (*mesh.Mesh, error) {
	return weld.Weld(m, tolerance)
}

// Decimate runs the selection decimator. The Algorithm hint is ignored.
func (Portable) Decimate(m *mesh.Mesh, ratio float32, cfg mesh.OptConfig) (*mesh.Mesh, error) {
	return decimate.Decimate(m, ratio, decimate.OptionsFrom(cfg))
}

// OptimizeVertexCache runs the greedy FIFO reordering.
func (Portable) OptimizeVertexCache(m *mesh.Mesh) (*mesh.Mesh, error) {
	return vcache.Optimize(m)
}
