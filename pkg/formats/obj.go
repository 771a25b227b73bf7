// Wavefront OBJ reader and writer.
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

// OBJ format errors.
var (
	ErrInvalidOBJVertex = errors.New("invalid OBJ vertex")
	ErrInvalidOBJFace   = errors.New("invalid OBJ face")
)

// ParseOBJ reads vertex positions ("v x y z [w]") and faces ("f a b c ...")
// from OBJ text. Face corners may use the v, v/vt, v//vn and v/vt/vn forms;
// only the position index is kept. Negative indices count back from the
// most recent vertex. Polygons are fan triangulated. Other statements are
// ignored.
func ParseOBJ(data []byte) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: %w: need 3 coordinates", line, ErrInvalidOBJVertex)
			}
			for _, f := range fields[1:4] {
				c, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w: %v", line, ErrInvalidOBJVertex, err)
				}
				m.Vertices = append(m.Vertices, float32(c))
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: %w: need at least 3 corners", line, ErrInvalidOBJFace)
			}
			corners := make([]uint32, 0, len(fields)-1)
			for _, f := range fields[1:] {
				idx, err := objIndex(f, m.VertexCount())
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				corners = append(corners, idx)
			}
			m.Indices = appendFan(m.Indices, corners)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// objIndex resolves one face corner to a zero-based vertex index.
func objIndex(corner string, vertexCount int) (uint32, error) {
	if slash := strings.IndexByte(corner, '/'); slash >= 0 {
		corner = corner[:slash]
	}
	i, err := strconv.Atoi(corner)
	if err != nil {
		return 0, fmt.Errorf("%w: corner %q", ErrInvalidOBJFace, corner)
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += vertexCount
	default:
		return 0, fmt.Errorf("%w: index 0 is not valid", ErrInvalidOBJFace)
	}
	if i < 0 || i >= vertexCount {
		return 0, fmt.Errorf("%w: corner %q out of range (vertex count %d)", ErrInvalidOBJFace, corner, vertexCount)
	}
	return uint32(i), nil
}

// appendFan triangulates a convex polygon around its first corner.
func appendFan(indices []uint32, corners []uint32) []uint32 {
	for k := 1; k+1 < len(corners); k++ {
		indices = append(indices, corners[0], corners[k], corners[k+1])
	}
	return indices
}

// WriteOBJ writes m as OBJ text with 1-based indices.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# meshjuice: %d vertices, %d triangles\n", m.VertexCount(), m.TriangleCount())
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		bw.WriteString("v ")
		bw.WriteString(formatFloat(m.Vertices[i]))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(m.Vertices[i+1]))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(m.Vertices[i+2]))
		bw.WriteByte('\n')
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		fmt.Fprintf(bw, "f %d %d %d\n", m.Indices[i]+1, m.Indices[i+1]+1, m.Indices[i+2]+1)
	}
	return bw.Flush()
}

// formatFloat prints the shortest text that parses back to f.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
