// STL reader and writer, ASCII and binary.
package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	meshmath "github.com/Faultbox/meshjuice/pkg/math"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50 // normal + 3 vertices (12 float32) + attribute uint16
)

// STL format errors.
var (
	ErrTruncatedSTLData = errors.New("truncated STL data")
	ErrInvalidSTLFacet  = errors.New("invalid STL facet")
)

// ParseSTL reads binary or ASCII STL. STL stores a triangle soup, so the
// returned mesh has three vertices per facet; welding reindexes it.
func ParseSTL(data []byte) (*mesh.Mesh, error) {
	if isBinarySTL(data) {
		return parseSTLBinary(data)
	}
	return parseSTLASCII(data)
}

func parseSTLBinary(data []byte) (*mesh.Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, ErrTruncatedSTLData
	}
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	body := data[stlHeaderSize+4:]
	if len(body) < n*stlTriangleSize {
		return nil, fmt.Errorf("%w: %d triangles need %d bytes, have %d",
			ErrTruncatedSTLData, n, n*stlTriangleSize, len(body))
	}

	m := &mesh.Mesh{
		Vertices: make([]float32, 0, n*9),
		Indices:  make([]uint32, 0, n*3),
	}
	for t := 0; t < n; t++ {
		rec := body[t*stlTriangleSize:]
		// Skip the stored normal (12 bytes); it is recomputed on write.
		for k := 0; k < 9; k++ {
			bits := binary.LittleEndian.Uint32(rec[12+k*4:])
			m.Vertices = append(m.Vertices, math.Float32frombits(bits))
		}
		base := uint32(t * 3)
		m.Indices = append(m.Indices, base, base+1, base+2)
	}
	return m, nil
}

func parseSTLASCII(data []byte) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	corners := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			corners = 0
		case "vertex":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: %w: vertex needs 3 coordinates", line, ErrInvalidSTLFacet)
			}
			for _, f := range fields[1:4] {
				c, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w: %v", line, ErrInvalidSTLFacet, err)
				}
				m.Vertices = append(m.Vertices, float32(c))
			}
			corners++
		case "endfacet":
			if corners != 3 {
				return nil, fmt.Errorf("line %d: %w: %d vertices", line, ErrInvalidSTLFacet, corners)
			}
			base := uint32(m.VertexCount() - 3)
			m.Indices = append(m.Indices, base, base+1, base+2)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(m.Vertices) != len(m.Indices)*3 {
		return nil, fmt.Errorf("%w: unterminated facet", ErrTruncatedSTLData)
	}
	return m, nil
}

// stlHeader returns the 80-byte header of a binary STL template, or a
// default header.
func stlHeader(template []byte) []byte {
	if isBinarySTL(template) {
		return template[:stlHeaderSize]
	}
	return []byte("meshjuice binary STL")
}

// stlSolidName returns the name on the "solid" line of an ASCII STL.
func stlSolidName(template []byte) string {
	first, _, _ := bytes.Cut(template, []byte("\n"))
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(first)), "solid"))
	if name == "" {
		return "meshjuice"
	}
	return name
}

func facetNormal(m *mesh.Mesh, t int) meshmath.Vec3 {
	tri := m.Triangle(t)
	return meshmath.TriangleNormal(
		meshmath.FromArray(m.Position(tri[0])),
		meshmath.FromArray(m.Position(tri[1])),
		meshmath.FromArray(m.Position(tri[2])),
	)
}

// WriteSTLBinary writes m as binary STL. header is truncated or zero padded
// to 80 bytes. Facet normals are recomputed from the vertices.
func WriteSTLBinary(w io.Writer, m *mesh.Mesh, header []byte) error {
	n := m.TriangleCount()
	buf := make([]byte, stlHeaderSize+4, stlHeaderSize+4+n*stlTriangleSize)
	copy(buf[:stlHeaderSize], header)
	binary.LittleEndian.PutUint32(buf[stlHeaderSize:], uint32(n))

	var rec [stlTriangleSize]byte
	for t := 0; t < n; t++ {
		normal := facetNormal(m, t)
		putVec(rec[0:], normal)
		tri := m.Triangle(t)
		for k, v := range tri {
			putVec(rec[12+k*12:], meshmath.FromArray(m.Position(v)))
		}
		binary.LittleEndian.PutUint16(rec[48:], 0)
		buf = append(buf, rec[:]...)
	}
	_, err := w.Write(buf)
	return err
}

func putVec(b []byte, v meshmath.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}

// WriteSTLASCII writes m as ASCII STL.
func WriteSTLASCII(w io.Writer, m *mesh.Mesh, name string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for t := 0; t < m.TriangleCount(); t++ {
		n := facetNormal(m, t)
		fmt.Fprintf(bw, "  facet normal %s %s %s\n", formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Z))
		bw.WriteString("    outer loop\n")
		for _, v := range m.Triangle(t) {
			p := m.Position(v)
			fmt.Fprintf(bw, "      vertex %s %s %s\n", formatFloat(p[0]), formatFloat(p[1]), formatFloat(p[2]))
		}
		bw.WriteString("    endloop\n")
		bw.WriteString("  endfacet\n")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}
