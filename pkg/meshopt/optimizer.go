// Package meshopt is the entry point of the optimization engine. An
// Optimizer runs the fixed pipeline weld, decimate, vertex-cache optimize on
// a mesh.Mesh and can round-trip encoded mesh files through it.
//
// Decimation quality depends on the backend. The accelerated backends
// collapse edges under a quadric error metric and move vertices to keep the
// surface shape. The portable backend keeps a subset of the original
// triangles without moving any vertex; it honours the same triangle-count
// contract and always yields a valid mesh, but coarse ratios visibly open
// holes. Stats.Backend and Strategy.Describe report which one ran.
package meshopt

import (
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/internal/accel"
	"github.com/Faultbox/meshjuice/internal/logger"
	"github.com/Faultbox/meshjuice/internal/metrics"
	"github.com/Faultbox/meshjuice/pkg/formats"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Optimizer runs optimization pipelines. It holds no per-call state and is
// safe for concurrent use.
type Optimizer struct {
	strategy *accel.Strategy
	metrics  *metrics.Counters
	log      *zap.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithStrategy sets the execution strategy. The default is DefaultStrategy().
func WithStrategy(s *accel.Strategy) Option {
	return func(o *Optimizer) {
		o.strategy = s
	}
}

// WithMetrics records every stage into c.
func WithMetrics(c *metrics.Counters) Option {
	return func(o *Optimizer) {
		o.metrics = c
	}
}

// WithLogger sets the logger for pipeline and fallback messages.
func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) {
		o.log = l
	}
}

// New returns an Optimizer. Without WithStrategy the process-wide
// DefaultStrategy is used, which probes the backends on first use.
func New(opts ...Option) *Optimizer {
	o := &Optimizer{}
	for _, opt := range opts {
		opt(o)
	}
	if o.strategy == nil {
		o.strategy = DefaultStrategy()
	}
	if o.metrics != nil {
		o.strategy = o.strategy.WithMetrics(o.metrics)
	}
	if o.log != nil {
		o.strategy = o.strategy.WithLogger(o.log)
	} else {
		o.log = logger.Named("meshopt")
	}
	return o
}

// Strategy returns the execution strategy in use.
func (o *Optimizer) Strategy() *accel.Strategy {
	return o.strategy
}

// Optimize runs the pipeline on m and returns a new mesh. m is never
// modified. Stages disabled by cfg pass the mesh through unchanged.
// Optimize does not run the validator.
func (o *Optimizer) Optimize(m *mesh.Mesh, cfg mesh.OptConfig) (*mesh.Mesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}

	cur := m
	var err error
	if cfg.WeldVertices {
		if cur, err = o.strategy.Weld(cur, cfg.VertexTolerance); err != nil {
			return nil, err
		}
		o.log.Debug("welded", zap.Int("vertices_before", m.VertexCount()),
			zap.Int("vertices_after", cur.VertexCount()))
	}
	if cfg.TargetRatio < 1 {
		before := cur.TriangleCount()
		if cur, err = o.strategy.Decimate(cur, cfg.TargetRatio, cfg); err != nil {
			return nil, err
		}
		o.log.Debug("decimated", zap.Int("triangles_before", before),
			zap.Int("triangles_after", cur.TriangleCount()),
			zap.Stringer("algorithm", cfg.Algorithm))
	}
	if cfg.OptimizeVertexCache {
		if cur, err = o.strategy.OptimizeVertexCache(cur); err != nil {
			return nil, err
		}
		o.log.Debug("reordered for vertex cache", zap.Int("triangles", cur.TriangleCount()))
	}

	if cur == m {
		return m.Clone(), nil
	}
	return cur, nil
}

// OptimizeWithStats is Optimize plus a summary of the run.
func (o *Optimizer) OptimizeWithStats(m *mesh.Mesh, cfg mesh.OptConfig) (*mesh.Mesh, mesh.Stats, error) {
	start := time.Now()
	out, err := o.Optimize(m, cfg)
	if err != nil {
		return nil, mesh.Stats{}, err
	}
	stats := mesh.NewStats(m, out, time.Since(start))
	stats.Backend = o.strategy.Name()
	return out, stats, nil
}

// Validate reports problems with m. It is independent of Optimize.
func (o *Optimizer) Validate(m *mesh.Mesh) mesh.ValidationReport {
	return mesh.Validate(m)
}

// OptimizeBytes decodes data, optimizes the mesh and encodes it in the
// detected format, using data as the template so the output keeps the
// input's flavour. Decoding failures are mesh.ErrInvalidFormat errors.
func (o *Optimizer) OptimizeBytes(data []byte, cfg mesh.OptConfig) ([]byte, mesh.Stats, error) {
	m, f, err := formats.Decode(data)
	if err != nil {
		return nil, mesh.Stats{}, err
	}
	out, stats, err := o.OptimizeWithStats(m, cfg)
	if err != nil {
		return nil, mesh.Stats{}, err
	}
	encoded, err := formats.Encode(out, f, data)
	if err != nil {
		return nil, mesh.Stats{}, err
	}
	o.log.Debug("optimized file", zap.Stringer("format", f), zap.Int("bytes_in", len(data)),
		zap.Int("bytes_out", len(encoded)))
	return encoded, stats, nil
}
