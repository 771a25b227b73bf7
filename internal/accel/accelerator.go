// Package accel dispatches mesh algorithms to an accelerated implementation
// with a transparent fallback to the portable one.
package accel

import (
	"errors"
	"strings"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// ErrFallback indicates the accelerator cannot handle this call. The
// strategy transparently runs the portable implementation instead.
var ErrFallback = errors.New("accel: falling back to portable implementation")

// Op describes an algorithm for capability checking.
type Op uint32

const (
	// OpWeld represents vertex welding.
	OpWeld Op = 1 << iota

	// OpDecimate represents triangle-count reduction.
	OpDecimate

	// OpVertexCache represents vertex-cache reordering.
	OpVertexCache
)

// OpAll is the set of every operation.
const OpAll = OpWeld | OpDecimate | OpVertexCache

func (o Op) String() string {
	var names []string
	if o&OpWeld != 0 {
		names = append(names, "weld")
	}
	if o&OpDecimate != 0 {
		names = append(names, "decimate")
	}
	if o&OpVertexCache != 0 {
		names = append(names, "vertex-cache")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Accelerator is an alternate implementation of the mesh algorithms.
//
// Implementations have the same contracts as the portable algorithms: they
// never modify their input and return a new mesh. Any error, including
// ErrFallback, makes the strategy discard the attempt and run the portable
// implementation.
type Accelerator interface {
	// Name returns the accelerator name (e.g., "native", "qem").
	Name() string

	// Init acquires resources. Called once by Probe.
	Init() error

	// Close releases resources.
	Close() error

	// CanAccelerate reports whether the accelerator supports op. This is a
	// fast check used to skip the accelerator entirely.
	CanAccelerate(op Op) bool

	// Weld merges vertices within tolerance.
	Weld(m *mesh.Mesh, tolerance float32) (*mesh.Mesh, error)

	// Decimate reduces the triangle count to round(n*ratio) clamped to
	// [1, n]. cfg carries the PreserveTopology and Algorithm hints.
	Decimate(m *mesh.Mesh, ratio float32, cfg mesh.OptConfig) (*mesh.Mesh, error)

	// OptimizeVertexCache reorders triangles for cache locality.
	OptimizeVertexCache(m *mesh.Mesh) (*mesh.Mesh, error)
}
