// Package math holds the float32 vector helpers shared by the format
// adapters, the clustering decimator and the CLI. Positions are read
// straight out of a mesh vertex buffer, so everything stays in float32;
// the quadric solver works in float64 with gonum instead.
package math

import "math"

// Vec3 is a position or direction in model space.
type Vec3 struct {
	X, Y, Z float32
}

// FromArray converts a mesh position.
func FromArray(p [3]float32) Vec3 {
	return Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// FromSlice reads the x,y,z triple starting at s[0]. It panics if s is
// shorter than 3.
func FromSlice(s []float32) Vec3 {
	_ = s[2]
	return Vec3{X: s[0], Y: s[1], Z: s[2]}
}

func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

func (v Vec3) Scale(k float32) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

func (v Vec3) Dot(w Vec3) float32 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// Cross follows the right-hand rule, so a counter-clockwise triangle's edge
// cross product points out of its front face.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		X: v.Y*w.Z - v.Z*w.Y,
		Y: v.Z*w.X - v.X*w.Z,
		Z: v.X*w.Y - v.Y*w.X,
	}
}

// Length is computed in float64 to keep tiny facets from underflowing.
func (v Vec3) Length() float32 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return float32(math.Sqrt(x*x + y*y + z*z))
}

// Normalize returns v scaled to unit length. The zero vector, which is what
// a degenerate facet produces, stays zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Min and Max are component-wise; together they grow a bounding box.
func (v Vec3) Min(w Vec3) Vec3 {
	return Vec3{X: min(v.X, w.X), Y: min(v.Y, w.Y), Z: min(v.Z, w.Z)}
}

func (v Vec3) Max(w Vec3) Vec3 {
	return Vec3{X: max(v.X, w.X), Y: max(v.Y, w.Y), Z: max(v.Z, w.Z)}
}

// MaxComponent returns the largest coordinate, e.g. the longest side of a
// bounding box size.
func (v Vec3) MaxComponent() float32 {
	return max(v.X, v.Y, v.Z)
}
