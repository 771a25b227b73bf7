package math

// TriangleNormal returns the unit normal of the counter-clockwise triangle
// a, b, c. Degenerate triangles yield the zero vector.
func TriangleNormal(a, b, c Vec3) Vec3 {
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// TriangleArea returns the area of triangle a, b, c.
func TriangleArea(a, b, c Vec3) float32 {
	return b.Sub(a).Cross(c.Sub(a)).Length() * 0.5
}

// CellIndex returns the integer grid cell containing p for a uniform grid
// with the given origin and cell size. size must be positive.
func CellIndex(p, origin Vec3, size float32) [3]int32 {
	d := p.Sub(origin).Scale(1 / size)
	return [3]int32{floor32(d.X), floor32(d.Y), floor32(d.Z)}
}

func floor32(f float32) int32 {
	i := int32(f)
	if float32(i) > f {
		i--
	}
	return i
}
