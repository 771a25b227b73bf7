package weld

import (
	"errors"
	gomath "math"
	"reflect"
	"testing"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

func TestWeld_DistinctVerticesUnchanged(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	}

	got, err := Weld(m, 0.001)
	if err != nil {
		t.Fatalf("Weld() error = %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Errorf("Weld() = %+v, want %+v", got, m)
	}
}

func TestWeld_MergesDuplicates(t *testing.T) {
	// Two triangles of a quad stored unindexed: six vertices, four unique.
	m := &mesh.Mesh{
		Vertices: []float32{
			0, 0, 0, 1, 0, 0, 1, 1, 0,
			0, 0, 0, 1, 1, 0, 0, 1, 0,
		},
		Indices: []uint32{0, 1, 2, 3, 4, 5},
	}

	got, err := Weld(m, 0)
	if err != nil {
		t.Fatalf("Weld() error = %v", err)
	}
	if got.VertexCount() != 4 {
		t.Errorf("VertexCount = %d, want 4", got.VertexCount())
	}
	want := []uint32{0, 1, 2, 0, 2, 3}
	if !reflect.DeepEqual(got.Indices, want) {
		t.Errorf("Indices = %v, want %v", got.Indices, want)
	}
	if got.TriangleCount() != m.TriangleCount() {
		t.Error("welding must not remove triangles")
	}
	if err := got.Check(); err != nil {
		t.Errorf("output breaks invariants: %v", err)
	}
}

func TestWeld_Tolerance(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []float32{
			0.1002, 0, 0,
			0.1006, 0, 0, // same 0.001 cell as the first
			0.1020, 0, 0, // next cell
		},
		Indices: []uint32{0, 1, 2},
	}

	tests := []struct {
		name      string
		tolerance float32
		want      int
	}{
		{"exact", 0, 3},
		{"fine", 0.001, 2},
		{"coarse", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Weld(m, tt.tolerance)
			if err != nil {
				t.Fatalf("Weld() error = %v", err)
			}
			if got.VertexCount() != tt.want {
				t.Errorf("VertexCount = %d, want %d", got.VertexCount(), tt.want)
			}
			if Count(m, tt.tolerance) != tt.want {
				t.Errorf("Count = %d, want %d", Count(m, tt.tolerance), tt.want)
			}
			if got.TriangleCount() != 1 {
				t.Errorf("TriangleCount = %d, want 1", got.TriangleCount())
			}
		})
	}
}

func TestWeld_CellOverflow(t *testing.T) {
	nan := float32(gomath.NaN())
	inf := float32(gomath.Inf(1))

	tests := []struct {
		name      string
		vertices  []float32
		tolerance float32
		want      int
	}{
		{"far apart beyond int64 cells", []float32{1e13, 0, 0, 2e13, 0, 0, 0, 0, 0}, 1e-6, 3},
		{"identical beyond int64 cells", []float32{1e13, 0, 0, 1e13, 0, 0, 0, 0, 0}, 1e-6, 2},
		{"nan apart from huge negative", []float32{nan, 0, 0, -1e30, 0, 0, 0, 0, 0}, 1, 3},
		{"same nan merges", []float32{nan, 0, 0, nan, 0, 0, 0, 0, 0}, 1, 2},
		{"infinities", []float32{inf, 0, 0, -inf, 0, 0, 3e38, 0, 0}, 1e-3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mesh.Mesh{Vertices: tt.vertices, Indices: []uint32{0, 1, 2}}
			got, err := Weld(m, tt.tolerance)
			if err != nil {
				t.Fatalf("Weld() error = %v", err)
			}
			if got.VertexCount() != tt.want {
				t.Errorf("VertexCount = %d, want %d", got.VertexCount(), tt.want)
			}
			if n := Count(m, tt.tolerance); n != tt.want {
				t.Errorf("Count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestKeyFor_RawFlagSeparatesCells(t *testing.T) {
	// 1e30/1e-12 overflows int64, so x is keyed on its bit pattern. An
	// in-range cell with that same number must still be a different key.
	got := keyFor([]float32{1e30, 0, 0}, 1e-12)
	cell := cellKey{cell: [3]int64{int64(gomath.Float32bits(1e30)), 0, 0}}

	if got.raw != 1 {
		t.Errorf("raw = %b, want 1", got.raw)
	}
	if got.cell != cell.cell {
		t.Errorf("cell = %v, want %v", got.cell, cell.cell)
	}
	if got == cell {
		t.Error("raw key equals the integer cell key")
	}
}

func TestWeld_SignedZero(t *testing.T) {
	negZero := float32(0)
	negZero = -negZero
	m := &mesh.Mesh{
		Vertices: []float32{0, 0, 0, negZero, 0, 0, 1, 0, 0},
		Indices:  []uint32{0, 1, 2},
	}

	got, err := Weld(m, 0)
	if err != nil {
		t.Fatalf("Weld() error = %v", err)
	}
	if got.VertexCount() != 2 {
		t.Errorf("VertexCount = %d, want 2", got.VertexCount())
	}
}

func TestWeld_Idempotent(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []float32{
			0, 0, 0, 0.0004, 0, 0, 0.5, 0.5, 0,
			1, 0, 0, 1.0001, 0.0001, 0, 0, 1, 0,
		},
		Indices: []uint32{0, 2, 5, 1, 3, 2, 4, 2, 3},
	}

	for _, tol := range []float32{0, 0.001, 0.3} {
		once, err := Weld(m, tol)
		if err != nil {
			t.Fatalf("Weld(%v) error = %v", tol, err)
		}
		twice, err := Weld(once, tol)
		if err != nil {
			t.Fatalf("second Weld(%v) error = %v", tol, err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("tolerance %v: welding is not idempotent\n once: %+v\ntwice: %+v", tol, once, twice)
		}
		if once.VertexCount() > m.VertexCount() {
			t.Errorf("tolerance %v: vertex count grew", tol)
		}
	}
}

func TestWeld_Errors(t *testing.T) {
	valid := &mesh.Mesh{Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 0, 0}}

	tests := []struct {
		name      string
		mesh      *mesh.Mesh
		tolerance float32
	}{
		{"negative tolerance", valid, -0.1},
		{"index out of bounds", &mesh.Mesh{Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 1, 2}}, 0.1},
		{"ragged vertices", &mesh.Mesh{Vertices: []float32{0, 0}}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Weld(tt.mesh, tt.tolerance)
			if !errors.Is(err, mesh.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestWeld_DoesNotMutateInput(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []float32{0, 0, 0, 0, 0, 0, 1, 0, 0},
		Indices:  []uint32{0, 1, 2},
	}
	before := m.Clone()
	if _, err := Weld(m, 0); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, before) {
		t.Error("Weld modified its input")
	}
}
