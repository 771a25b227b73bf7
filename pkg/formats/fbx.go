// ASCII FBX geometry reader and writer.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// FBX format errors.
var (
	ErrInvalidFBXArray = errors.New("invalid FBX array")
	ErrNoFBXGeometry   = errors.New("no FBX geometry")
	ErrUnterminatedFBX = errors.New("unterminated FBX block")
)

const (
	fbxVerticesKey = "Vertices:"
	fbxPolygonKey  = "PolygonVertexIndex:"
)

// fbxArray collects the numbers of one property array. Both the 7.x form
// ("Vertices: *N { a: ... }") and the 6.x form ("Vertices: 1,2,3" with
// comma-led continuation lines) are accepted.
type fbxArray struct {
	lines []string
	pos   int
}

func (a *fbxArray) read(first string) ([]float64, error) {
	var values []float64
	if _, rest, ok := strings.Cut(first, "{"); ok {
		line := rest
		for {
			body, _, closed := strings.Cut(line, "}")
			body = strings.TrimPrefix(strings.TrimSpace(body), "a:")
			vs, err := parseFBXNumbers(body)
			if err != nil {
				return nil, err
			}
			values = append(values, vs...)
			if closed {
				return values, nil
			}
			if a.pos >= len(a.lines) {
				return nil, ErrUnterminatedFBX
			}
			line = a.lines[a.pos]
			a.pos++
		}
	}

	vs, err := parseFBXNumbers(first)
	if err != nil {
		return nil, err
	}
	values = append(values, vs...)
	for a.pos < len(a.lines) {
		line := strings.TrimSpace(a.lines[a.pos])
		if !strings.HasPrefix(line, ",") {
			break
		}
		a.pos++
		vs, err := parseFBXNumbers(line)
		if err != nil {
			return nil, err
		}
		values = append(values, vs...)
	}
	return values, nil
}

func parseFBXNumbers(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFBXArray, f)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseFBX reads every Vertices and PolygonVertexIndex array of an ASCII FBX
// document into one mesh. A negative polygon index i closes the polygon and
// stands for vertex -i-1. Polygons are fan triangulated.
func ParseFBX(data []byte) (*mesh.Mesh, error) {
	arr := &fbxArray{lines: strings.Split(string(data), "\n")}
	m := &mesh.Mesh{}
	base := -1

	for arr.pos < len(arr.lines) {
		line := strings.TrimSpace(arr.lines[arr.pos])
		arr.pos++
		switch {
		case strings.HasPrefix(line, fbxVerticesKey):
			values, err := arr.read(strings.TrimPrefix(line, fbxVerticesKey))
			if err != nil {
				return nil, fmt.Errorf("vertices: %w", err)
			}
			if len(values)%3 != 0 {
				return nil, fmt.Errorf("vertices: %w: %d values", ErrInvalidFBXArray, len(values))
			}
			base = m.VertexCount()
			for _, v := range values {
				m.Vertices = append(m.Vertices, float32(v))
			}
		case strings.HasPrefix(line, fbxPolygonKey):
			if base < 0 {
				return nil, fmt.Errorf("%w: polygon indices before vertices", ErrInvalidFBXArray)
			}
			values, err := arr.read(strings.TrimPrefix(line, fbxPolygonKey))
			if err != nil {
				return nil, fmt.Errorf("polygon indices: %w", err)
			}
			if m.Indices, err = appendFBXPolygons(m.Indices, values, base); err != nil {
				return nil, err
			}
		}
	}
	if base < 0 {
		return nil, ErrNoFBXGeometry
	}
	return m, nil
}

func appendFBXPolygons(indices []uint32, values []float64, base int) ([]uint32, error) {
	corners := make([]uint32, 0, 8)
	for _, v := range values {
		i := int(v)
		end := i < 0
		if end {
			i = -i - 1
		}
		corners = append(corners, uint32(base+i))
		if end {
			if len(corners) < 3 {
				return nil, fmt.Errorf("%w: polygon with %d corners", ErrInvalidFBXArray, len(corners))
			}
			indices = appendFan(indices, corners)
			corners = corners[:0]
		}
	}
	if len(corners) != 0 {
		return nil, fmt.Errorf("%w: unterminated polygon", ErrInvalidFBXArray)
	}
	return indices, nil
}

// WriteFBX writes m as ASCII FBX. With an ASCII FBX template, every line is
// kept except the geometry: the first Vertices and PolygonVertexIndex arrays
// receive the whole mesh, later ones are emptied, and Edges and LayerElement
// blocks, which index the old polygons, are dropped. Without a template a
// minimal FBX 7.4 document is written.
func WriteFBX(w io.Writer, m *mesh.Mesh, template []byte) error {
	bw := bufio.NewWriter(w)
	if len(template) == 0 || isBinaryFBX(template) {
		writeFBXDocument(bw, m)
		return bw.Flush()
	}
	if !bytes.Contains(template, []byte(fbxVerticesKey)) {
		return fmt.Errorf("%w: template has no vertices", ErrNoFBXGeometry)
	}

	arr := &fbxArray{lines: strings.Split(string(template), "\n")}
	wroteVertices, wroteIndices := false, false
	for arr.pos < len(arr.lines) {
		raw := arr.lines[arr.pos]
		line := strings.TrimSpace(raw)
		indent := raw[:len(raw)-len(strings.TrimLeft(raw, " \t"))]
		arr.pos++

		switch {
		case strings.HasPrefix(line, fbxVerticesKey):
			if _, err := arr.read(strings.TrimPrefix(line, fbxVerticesKey)); err != nil {
				return err
			}
			if wroteVertices {
				writeFBXArray(bw, indent, "Vertices", nil)
				continue
			}
			writeFBXArray(bw, indent, "Vertices", fbxVertexValues(m))
			wroteVertices = true
		case strings.HasPrefix(line, fbxPolygonKey):
			if _, err := arr.read(strings.TrimPrefix(line, fbxPolygonKey)); err != nil {
				return err
			}
			if wroteIndices {
				writeFBXArray(bw, indent, "PolygonVertexIndex", nil)
				continue
			}
			writeFBXArray(bw, indent, "PolygonVertexIndex", fbxPolygonValues(m))
			wroteIndices = true
		case strings.HasPrefix(line, "Edges:"):
			if _, err := arr.read(strings.TrimPrefix(line, "Edges:")); err != nil {
				return err
			}
		case strings.HasPrefix(line, "LayerElement") || strings.HasPrefix(line, "Layer:"):
			if err := arr.skipBlock(line); err != nil {
				return err
			}
		default:
			bw.WriteString(raw)
			if arr.pos < len(arr.lines) {
				bw.WriteByte('\n')
			}
		}
	}
	if !wroteIndices {
		return fmt.Errorf("%w: template has no polygon indices", ErrNoFBXGeometry)
	}
	return bw.Flush()
}

// skipBlock advances past a brace-delimited block opened on line.
func (a *fbxArray) skipBlock(line string) error {
	depth := strings.Count(line, "{") - strings.Count(line, "}")
	for depth > 0 {
		if a.pos >= len(a.lines) {
			return ErrUnterminatedFBX
		}
		l := a.lines[a.pos]
		a.pos++
		depth += strings.Count(l, "{") - strings.Count(l, "}")
	}
	return nil
}

func fbxVertexValues(m *mesh.Mesh) []string {
	out := make([]string, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = formatFloat(v)
	}
	return out
}

func fbxPolygonValues(m *mesh.Mesh) []string {
	out := make([]string, len(m.Indices))
	for i, idx := range m.Indices {
		if i%3 == 2 {
			out[i] = strconv.FormatInt(-int64(idx)-1, 10)
		} else {
			out[i] = strconv.FormatUint(uint64(idx), 10)
		}
	}
	return out
}

func writeFBXArray(bw *bufio.Writer, indent, key string, values []string) {
	fmt.Fprintf(bw, "%s%s: *%d {\n", indent, key, len(values))
	fmt.Fprintf(bw, "%s\ta: %s\n", indent, strings.Join(values, ","))
	fmt.Fprintf(bw, "%s}\n", indent)
}

func writeFBXDocument(bw *bufio.Writer, m *mesh.Mesh) {
	bw.WriteString("; FBX 7.4.0 project file\n")
	bw.WriteString("; Created by meshjuice\n")
	bw.WriteString("FBXHeaderExtension:  {\n\tFBXHeaderVersion: 1003\n\tFBXVersion: 7400\n}\n")
	bw.WriteString("Objects:  {\n")
	bw.WriteString("\tGeometry: 1000, \"Geometry::mesh\", \"Mesh\" {\n")
	writeFBXArray(bw, "\t\t", "Vertices", fbxVertexValues(m))
	writeFBXArray(bw, "\t\t", "PolygonVertexIndex", fbxPolygonValues(m))
	bw.WriteString("\t\tGeometryVersion: 124\n")
	bw.WriteString("\t}\n")
	bw.WriteString("}\n")
}
