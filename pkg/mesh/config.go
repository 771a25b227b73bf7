package mesh

import (
	"fmt"
	gomath "math"
	"strings"
)

// Algorithm is a decimation hint. It selects how the accelerated decimator
// places collapsed vertices; the portable decimator ignores it.
type Algorithm int

const (
	AlgorithmQEM              Algorithm = iota // quadric error metrics
	AlgorithmEdgeCollapse                      // endpoint/midpoint edge collapse
	AlgorithmVertexClustering                  // uniform grid clustering
)

// String returns the algorithm's configuration name.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmQEM:
		return "qem"
	case AlgorithmEdgeCollapse:
		return "edge-collapse"
	case AlgorithmVertexClustering:
		return "vertex-clustering"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// ParseAlgorithm parses an algorithm name as produced by String.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qem", "quadric", "quadric-error-metrics":
		return AlgorithmQEM, nil
	case "edge-collapse", "edge":
		return AlgorithmEdgeCollapse, nil
	case "vertex-clustering", "cluster", "clustering":
		return AlgorithmVertexClustering, nil
	}
	return 0, InvalidInput("parse algorithm", "unknown simplification algorithm %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OptConfig configures one optimization run.
type OptConfig struct {
	// TargetRatio is the fraction of triangles to keep, in (0, 1].
	// 1 disables decimation.
	TargetRatio float32
	// VertexTolerance is the welding distance; 0 merges exact duplicates only.
	VertexTolerance float32
	// PreserveTopology selects ordered truncation in the portable decimator
	// and boundary-preserving quadrics in the accelerated one.
	PreserveTopology    bool
	WeldVertices        bool
	OptimizeVertexCache bool
	Algorithm           Algorithm
}

// DefaultOptConfig returns the default optimization settings.
func DefaultOptConfig() OptConfig {
	return OptConfig{
		TargetRatio:         0.5,
		VertexTolerance:     1e-6,
		PreserveTopology:    true,
		WeldVertices:        true,
		OptimizeVertexCache: true,
		Algorithm:           AlgorithmQEM,
	}
}

// Validate checks value ranges.
func (c OptConfig) Validate() error {
	if err := ValidateRatio(c.TargetRatio); err != nil {
		return err
	}
	if err := ValidateTolerance(c.VertexTolerance); err != nil {
		return err
	}
	if c.Algorithm < AlgorithmQEM || c.Algorithm > AlgorithmVertexClustering {
		return InvalidInput("config", "unknown simplification algorithm %d", int(c.Algorithm))
	}
	return nil
}

// ValidateRatio checks that ratio lies in (0, 1].
func ValidateRatio(ratio float32) error {
	if gomath.IsNaN(float64(ratio)) || ratio <= 0 || ratio > 1 {
		return InvalidInput("config", "target ratio %v must be in (0, 1]", ratio)
	}
	return nil
}

// ValidateTolerance checks that tolerance is a finite non-negative number.
func ValidateTolerance(tolerance float32) error {
	t := float64(tolerance)
	if gomath.IsNaN(t) || gomath.IsInf(t, 0) || tolerance < 0 {
		return InvalidInput("config", "vertex tolerance %v must be non-negative", tolerance)
	}
	return nil
}
