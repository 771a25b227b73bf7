package accel

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/internal/decimate"
	"github.com/Faultbox/meshjuice/internal/logger"
	"github.com/Faultbox/meshjuice/internal/metrics"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Strategy runs each operation on the accelerator when one is present and
// supports it, and on the portable implementation otherwise. A failed
// accelerated attempt is discarded and the portable implementation runs
// instead; only the final attempt's error reaches the caller.
//
// A Strategy is immutable and safe for concurrent use.
type Strategy struct {
	accel    Accelerator // nil means portable only
	portable Portable
	metrics  *metrics.Counters
	log      *zap.Logger
}

// NewStrategy returns a strategy dispatching to a. A nil a gives a
// portable-only strategy.
func NewStrategy(a Accelerator) *Strategy {
	return &Strategy{accel: a}
}

// WithMetrics returns a copy of s recording into c.
func (s *Strategy) WithMetrics(c *metrics.Counters) *Strategy {
	cp := *s
	cp.metrics = c
	return &cp
}

// WithLogger returns a copy of s logging to l.
func (s *Strategy) WithLogger(l *zap.Logger) *Strategy {
	cp := *s
	cp.log = l
	return &cp
}

// Accelerator returns the selected accelerator, or nil.
func (s *Strategy) Accelerator() Accelerator {
	return s.accel
}

// Metrics returns the sink the strategy records into, possibly nil.
func (s *Strategy) Metrics() *metrics.Counters {
	return s.metrics
}

// Name returns the accelerator name, or "portable".
func (s *Strategy) Name() string {
	if s.accel == nil {
		return s.portable.Name()
	}
	return s.accel.Name()
}

// Describe explains which implementation serves each operation.
func (s *Strategy) Describe() string {
	if s.accel == nil {
		return "portable: decimation keeps a subset of the original triangles without moving vertices"
	}
	var ops Op
	for _, op := range []Op{OpWeld, OpDecimate, OpVertexCache} {
		if s.accel.CanAccelerate(op) {
			ops |= op
		}
	}
	return fmt.Sprintf("%s: accelerated %s, portable fallback for the rest; "+
		"accelerated decimation collapses edges under a quadric error metric "+
		"and preserves shape better than the portable subset selection", s.accel.Name(), ops)
}

// Close releases the accelerator.
func (s *Strategy) Close() error {
	if s.accel == nil {
		return nil
	}
	return s.accel.Close()
}

func (s *Strategy) logger() *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.Named("accel")
}

// Weld merges vertices within tolerance.
func (s *Strategy) Weld(m *mesh.Mesh, tolerance float32) (*mesh.Mesh, error) {
	if err := mesh.ValidateTolerance(tolerance); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	verify := func(out *mesh.Mesh) error {
		if out.TriangleCount() != m.TriangleCount() {
			return fmt.Errorf("welding changed triangle count from %d to %d", m.TriangleCount(), out.TriangleCount())
		}
		if out.VertexCount() > m.VertexCount() {
			return fmt.Errorf("welding grew vertex count from %d to %d", m.VertexCount(), out.VertexCount())
		}
		return nil
	}
	return s.run(OpWeld, m, verify,
		func(a Accelerator) (*mesh.Mesh, error) { return a.Weld(m, tolerance) })
}

// Decimate reduces m to round(n*ratio) triangles clamped to [1, n].
func (s *Strategy) Decimate(m *mesh.Mesh, ratio float32, cfg mesh.OptConfig) (*mesh.Mesh, error) {
	if err := mesh.ValidateRatio(ratio); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	if m.TriangleCount() == 0 {
		return nil, mesh.Processing("decimate", "mesh has no triangles")
	}
	target := decimate.Target(m.TriangleCount(), ratio)
	verify := func(out *mesh.Mesh) error {
		if out.TriangleCount() != target {
			return fmt.Errorf("decimation produced %d triangles, want %d", out.TriangleCount(), target)
		}
		return nil
	}
	return s.run(OpDecimate, m, verify,
		func(a Accelerator) (*mesh.Mesh, error) { return a.Decimate(m, ratio, cfg) })
}

// OptimizeVertexCache reorders triangles for cache locality.
func (s *Strategy) OptimizeVertexCache(m *mesh.Mesh) (*mesh.Mesh, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	verify := func(out *mesh.Mesh) error {
		if len(out.Indices) != len(m.Indices) {
			return fmt.Errorf("reordering changed index count from %d to %d", len(m.Indices), len(out.Indices))
		}
		if !sameTriangles(m.Indices, out.Indices) {
			return errors.New("reordering is not a permutation of the input triangles")
		}
		return nil
	}
	return s.run(OpVertexCache, m, verify,
		func(a Accelerator) (*mesh.Mesh, error) { return a.OptimizeVertexCache(m) })
}

// sameTriangles reports whether a and b hold the same multiset of
// triangles. Each triangle is rotated to start at its smallest index, so a
// reordering may rotate corners but not flip winding.
func sameTriangles(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	ta, tb := canonicalTriangles(a), canonicalTriangles(b)
	for i := range ta {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

func canonicalTriangles(indices []uint32) [][3]uint32 {
	tris := make([][3]uint32, len(indices)/3)
	for t := range tris {
		i0, i1, i2 := indices[t*3], indices[t*3+1], indices[t*3+2]
		switch {
		case i1 < i0 && i1 <= i2:
			i0, i1, i2 = i1, i2, i0
		case i2 < i0 && i2 < i1:
			i0, i1, i2 = i2, i0, i1
		}
		tris[t] = [3]uint32{i0, i1, i2}
	}
	slices.SortFunc(tris, func(x, y [3]uint32) int {
		for k := 0; k < 3; k++ {
			if c := cmp.Compare(x[k], y[k]); c != 0 {
				return c
			}
		}
		return 0
	})
	return tris
}

// run dispatches one operation. call is invoked with the accelerator first
// and with the portable implementation when that attempt fails.
func (s *Strategy) run(op Op, in *mesh.Mesh, verify func(*mesh.Mesh) error,
	call func(Accelerator) (*mesh.Mesh, error)) (*mesh.Mesh, error) {
	start := time.Now()

	if s.accel != nil && s.accel.CanAccelerate(op) {
		s.metrics.Accelerated()
		out, err := attempt(s.accel, op, verify, call)
		if err == nil {
			s.metrics.Operation(in.SizeBytes(), time.Since(start))
			return out, nil
		}
		s.metrics.Fallback()
		log := s.logger()
		if errors.Is(err, ErrFallback) {
			log.Debug("accelerator declined, using portable path",
				zap.String("op", op.String()), zap.String("accelerator", s.accel.Name()))
		} else {
			log.Warn("accelerated path failed, using portable path",
				zap.String("op", op.String()), zap.String("accelerator", s.accel.Name()), zap.Error(err))
		}
	}

	out, err := call(s.portable)
	if err != nil {
		s.metrics.Failure()
		return nil, err
	}
	s.metrics.Operation(in.SizeBytes(), time.Since(start))
	return out, nil
}

// attempt runs call on a and checks its output. Panics are recovered into
// AcceleratedPath errors.
func attempt(a Accelerator, op Op, verify func(*mesh.Mesh) error,
	call func(Accelerator) (*mesh.Mesh, error)) (out *mesh.Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = mesh.AcceleratedPath(op.String(), fmt.Errorf("%s panicked: %v", a.Name(), r))
		}
	}()

	out, err = call(a)
	if err != nil {
		if errors.Is(err, ErrFallback) {
			return nil, err
		}
		return nil, mesh.AcceleratedPath(op.String(), err)
	}
	if out == nil {
		return nil, mesh.AcceleratedPath(op.String(), fmt.Errorf("%s returned no mesh", a.Name()))
	}
	if err := out.Check(); err != nil {
		return nil, mesh.AcceleratedPath(op.String(), fmt.Errorf("%s returned an invalid mesh: %w", a.Name(), err))
	}
	if err := verify(out); err != nil {
		return nil, mesh.AcceleratedPath(op.String(), err)
	}
	return out, nil
}
