package mesh

import (
	"fmt"
	"time"
)

// Stats summarizes one optimization run.
type Stats struct {
	OriginalVertices   int
	OptimizedVertices  int
	OriginalTriangles  int
	OptimizedTriangles int
	Elapsed            time.Duration
	Backend            string // implementation that produced the result
}

// NewStats records the counts of the input and output meshes.
func NewStats(original, optimized *Mesh, elapsed time.Duration) Stats {
	return Stats{
		OriginalVertices:   original.VertexCount(),
		OptimizedVertices:  optimized.VertexCount(),
		OriginalTriangles:  original.TriangleCount(),
		OptimizedTriangles: optimized.TriangleCount(),
		Elapsed:            elapsed,
	}
}

// VertexReductionPercent returns the removed share of vertices in percent.
func (s Stats) VertexReductionPercent() float64 {
	return reductionPercent(s.OriginalVertices, s.OptimizedVertices)
}

// TriangleReductionPercent returns the removed share of triangles in percent.
func (s Stats) TriangleReductionPercent() float64 {
	return reductionPercent(s.OriginalTriangles, s.OptimizedTriangles)
}

func reductionPercent(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}

// String formats a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("vertices %d -> %d (%.1f%%), triangles %d -> %d (%.1f%%) in %v",
		s.OriginalVertices, s.OptimizedVertices, s.VertexReductionPercent(),
		s.OriginalTriangles, s.OptimizedTriangles, s.TriangleReductionPercent(),
		s.Elapsed.Round(time.Microsecond))
}
