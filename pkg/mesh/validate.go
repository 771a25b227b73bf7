package mesh

import (
	"fmt"
	gomath "math"
)

// ValidationReport is the result of Validate.
type ValidationReport struct {
	Errors        []string // non-empty means the mesh is unusable
	Warnings      []string // non-fatal observations
	IsValid       bool
	VertexCount   int
	TriangleCount int
}

// Validate checks the structural integrity of a mesh. Every check runs; a
// failing check never hides the result of another one. Validate does not
// modify the mesh.
func Validate(m *Mesh) ValidationReport {
	report := ValidationReport{
		VertexCount:   len(m.Vertices) / 3,
		TriangleCount: len(m.Indices) / 3,
	}

	checkVertices(m, &report)
	checkIndices(m, &report)

	report.IsValid = len(report.Errors) == 0
	return report
}

func checkVertices(m *Mesh, report *ValidationReport) {
	if len(m.Vertices) == 0 {
		report.Errors = append(report.Errors, "mesh has no vertices")
		return
	}
	if len(m.Vertices)%3 != 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("vertex buffer length %d is not divisible by 3", len(m.Vertices)))
		return
	}

	for i, v := range m.Vertices {
		f := float64(v)
		if gomath.IsNaN(f) || gomath.IsInf(f, 0) {
			report.Errors = append(report.Errors, fmt.Sprintf("invalid vertex value at index %d: %v", i, v))
			break // first occurrence only
		}
	}
}

func checkIndices(m *Mesh, report *ValidationReport) {
	if len(m.Indices) == 0 {
		report.Warnings = append(report.Warnings, "mesh has no indices (point cloud?)")
		return
	}

	if len(m.Indices)%3 != 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("index buffer length %d is not divisible by 3", len(m.Indices)))
	}

	vertexCount := uint32(len(m.Vertices) / 3)
	for i, idx := range m.Indices {
		if idx >= vertexCount {
			report.Errors = append(report.Errors,
				fmt.Sprintf("index %d at position %d is out of bounds (vertex count: %d)", idx, i, vertexCount))
			break
		}
	}

	degenerate := 0
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if a == b || b == c || a == c {
			degenerate++
		}
	}
	if degenerate > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d degenerate triangles found", degenerate))
	}
}
