package accel

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// quadric is a symmetric 4x4 error quadric stored as its upper triangle:
// a2 ab ac ad b2 bc bd c2 cd d2.
type quadric [10]float64

// planeQuadric returns the fundamental quadric of the plane n·p + d = 0
// scaled by weight. n must be unit length.
func planeQuadric(n r3.Vec, d, weight float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{
		weight * a * a, weight * a * b, weight * a * c, weight * a * d,
		weight * b * b, weight * b * c, weight * b * d,
		weight * c * c, weight * c * d,
		weight * d * d,
	}
}

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q quadric) plus(o quadric) quadric {
	q.add(o)
	return q
}

// eval returns the squared distance error vᵀQv for v = (p, 1).
func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// minDeterminant guards the 3x3 solve against near singular quadrics such as
// those of flat or cylindrical neighbourhoods.
const minDeterminant = 1e-12

// optimum returns the position minimizing the quadric error. ok is false when
// the system is singular.
func (q quadric) optimum() (p r3.Vec, ok bool) {
	a := mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	if math.Abs(mat.Det(a)) < minDeterminant {
		return r3.Vec{}, false
	}
	b := mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return r3.Vec{}, false
	}
	p = r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if !finite(p) {
		return r3.Vec{}, false
	}
	return p, true
}

// facePlane returns the unit normal and offset of triangle a, b, c. ok is
// false for zero-area triangles.
func facePlane(a, b, c r3.Vec) (n r3.Vec, d float64, ok bool) {
	cross := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(cross)
	if l == 0 || math.IsNaN(l) {
		return r3.Vec{}, 0, false
	}
	n = r3.Scale(1/l, cross)
	return n, -r3.Dot(n, a), true
}

func finite(p r3.Vec) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
