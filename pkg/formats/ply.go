// Stanford PLY reader and writer.
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

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// PLY format errors.
var (
	ErrInvalidPLYHeader   = errors.New("invalid PLY header")
	ErrTruncatedPLYData   = errors.New("truncated PLY data")
	ErrUnsupportedPLYType = errors.New("unsupported PLY property type")
)

// PLYEncoding is the body encoding named in a PLY header.
type PLYEncoding string

const (
	PLYASCII              PLYEncoding = "ascii"
	PLYBinaryLittleEndian PLYEncoding = "binary_little_endian"
	PLYBinaryBigEndian    PLYEncoding = "binary_big_endian"
)

// plyProperty is one scalar or list property of an element.
type plyProperty struct {
	name      string
	typ       string // scalar type, or item type for lists
	countType string // non-empty for list properties
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	encoding PLYEncoding
	elements []plyElement
	size     int // header length in bytes including end_header line
}

var plyTypeSizes = map[string]int{
	"char": 1, "uchar": 1, "int8": 1, "uint8": 1,
	"short": 2, "ushort": 2, "int16": 2, "uint16": 2,
	"int": 4, "uint": 4, "int32": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

func parsePLYHeader(data []byte) (*plyHeader, error) {
	end := bytes.Index(data, []byte("end_header"))
	if end < 0 {
		return nil, fmt.Errorf("%w: missing end_header", ErrInvalidPLYHeader)
	}
	nl := bytes.IndexByte(data[end:], '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: missing newline after end_header", ErrInvalidPLYHeader)
	}
	h := &plyHeader{size: end + nl + 1}

	lines := strings.Split(string(data[:end]), "\n")
	for i, raw := range lines {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		if i == 0 {
			if fields[0] != "ply" {
				return nil, fmt.Errorf("%w: missing magic", ErrInvalidPLYHeader)
			}
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: bad format line", ErrInvalidPLYHeader)
			}
			h.encoding = PLYEncoding(fields[1])
		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: bad element line %q", ErrInvalidPLYHeader, raw)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad element count %q", ErrInvalidPLYHeader, fields[2])
			}
			h.elements = append(h.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrInvalidPLYHeader)
			}
			var p plyProperty
			if len(fields) >= 5 && fields[1] == "list" {
				p = plyProperty{countType: fields[2], typ: fields[3], name: fields[4]}
			} else if len(fields) >= 3 {
				p = plyProperty{typ: fields[1], name: fields[2]}
			} else {
				return nil, fmt.Errorf("%w: bad property line %q", ErrInvalidPLYHeader, raw)
			}
			for _, t := range []string{p.typ, p.countType} {
				if _, ok := plyTypeSizes[t]; t != "" && !ok {
					return nil, fmt.Errorf("%w: %q", ErrUnsupportedPLYType, t)
				}
			}
			el := &h.elements[len(h.elements)-1]
			el.props = append(el.props, p)
		}
	}

	switch h.encoding {
	case PLYASCII, PLYBinaryLittleEndian, PLYBinaryBigEndian:
	default:
		return nil, fmt.Errorf("%w: encoding %q", ErrInvalidPLYHeader, h.encoding)
	}
	return h, nil
}

// plyIsASCII reports whether data is a PLY file with an ASCII body.
func plyIsASCII(data []byte) bool {
	h, err := parsePLYHeader(data)
	return err == nil && h.encoding == PLYASCII
}

// plyValues yields numeric property values from a PLY body.
type plyValues interface {
	next(typ string) (float64, error)
	// maxRows bounds how many rows of el the unread body can still hold.
	maxRows(el plyElement) int
}

type plyASCIIReader struct {
	fields []string
	pos    int
}

// maxRows counts one field per property, the least an ASCII row can use.
func (r *plyASCIIReader) maxRows(el plyElement) int {
	return (len(r.fields) - r.pos) / len(el.props)
}

func (r *plyASCIIReader) next(string) (float64, error) {
	if r.pos >= len(r.fields) {
		return 0, ErrTruncatedPLYData
	}
	v, err := strconv.ParseFloat(r.fields[r.pos], 64)
	r.pos++
	if err != nil {
		return 0, fmt.Errorf("invalid PLY value: %w", err)
	}
	return v, nil
}

type plyBinaryReader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

// maxRows assumes every list in el is empty, the shortest row possible.
func (r *plyBinaryReader) maxRows(el plyElement) int {
	row := 0
	for _, p := range el.props {
		if p.countType != "" {
			row += plyTypeSizes[p.countType]
		} else {
			row += plyTypeSizes[p.typ]
		}
	}
	return (len(r.data) - r.pos) / row
}

func (r *plyBinaryReader) next(typ string) (float64, error) {
	size := plyTypeSizes[typ]
	if r.pos+size > len(r.data) {
		return 0, ErrTruncatedPLYData
	}
	b := r.data[r.pos : r.pos+size]
	r.pos += size
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(r.order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(r.order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(r.order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(r.order.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(r.order.Uint32(b))), nil
	default:
		return math.Float64frombits(r.order.Uint64(b)), nil
	}
}

// ParsePLY reads the x, y, z properties of the "vertex" element and the
// vertex_indices (or vertex_index) list of the "face" element. Faces with
// more than three corners are fan triangulated. Other elements and
// properties are skipped.
func ParsePLY(data []byte) (*mesh.Mesh, error) {
	h, err := parsePLYHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[h.size:]

	var src plyValues
	switch h.encoding {
	case PLYASCII:
		src = &plyASCIIReader{fields: strings.Fields(string(body))}
	case PLYBinaryLittleEndian:
		src = &plyBinaryReader{data: body, order: binary.LittleEndian}
	default:
		src = &plyBinaryReader{data: body, order: binary.BigEndian}
	}

	m := &mesh.Mesh{}
	for _, el := range h.elements {
		if len(el.props) == 0 {
			if el.name == "vertex" && el.count > 0 {
				return nil, fmt.Errorf("%w: vertex element needs x, y and z", ErrInvalidPLYHeader)
			}
			// Rows without properties occupy no bytes.
			continue
		}
		// Header counts are untrusted; bound them by the body before any
		// allocation is sized from them.
		if el.count > src.maxRows(el) {
			return nil, fmt.Errorf("%w: %d %s rows declared, body holds at most %d",
				ErrTruncatedPLYData, el.count, el.name, src.maxRows(el))
		}
		switch el.name {
		case "vertex":
			if err := readPLYVertices(src, el, m); err != nil {
				return nil, err
			}
		case "face":
			if err := readPLYFaces(src, el, m); err != nil {
				return nil, err
			}
		default:
			for i := 0; i < el.count; i++ {
				if err := skipPLYRow(src, el); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

func readPLYVertices(src plyValues, el plyElement, m *mesh.Mesh) error {
	axis := map[string]int{"x": 0, "y": 1, "z": 2}
	seen := 0
	for _, p := range el.props {
		if _, ok := axis[p.name]; ok && p.countType == "" {
			seen++
		}
	}
	if seen != 3 {
		return fmt.Errorf("%w: vertex element needs x, y and z", ErrInvalidPLYHeader)
	}

	m.Vertices = make([]float32, 0, el.count*3)
	for i := 0; i < el.count; i++ {
		var pos [3]float32
		for _, p := range el.props {
			if p.countType != "" {
				if err := skipPLYList(src, p); err != nil {
					return err
				}
				continue
			}
			v, err := src.next(p.typ)
			if err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
			if k, ok := axis[p.name]; ok {
				pos[k] = float32(v)
			}
		}
		m.Vertices = append(m.Vertices, pos[0], pos[1], pos[2])
	}
	return nil
}

func readPLYFaces(src plyValues, el plyElement, m *mesh.Mesh) error {
	m.Indices = make([]uint32, 0, el.count*3)
	corners := make([]uint32, 0, 8)
	for i := 0; i < el.count; i++ {
		for _, p := range el.props {
			if p.countType == "" {
				if _, err := src.next(p.typ); err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				continue
			}
			if p.name != "vertex_indices" && p.name != "vertex_index" {
				if err := skipPLYList(src, p); err != nil {
					return err
				}
				continue
			}
			n, err := src.next(p.countType)
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			corners = corners[:0]
			for k := 0; k < int(n); k++ {
				v, err := src.next(p.typ)
				if err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				if v < 0 {
					return fmt.Errorf("face %d: negative vertex index %v", i, v)
				}
				corners = append(corners, uint32(v))
			}
			m.Indices = appendFan(m.Indices, corners)
		}
	}
	return nil
}

func skipPLYRow(src plyValues, el plyElement) error {
	for _, p := range el.props {
		if p.countType != "" {
			if err := skipPLYList(src, p); err != nil {
				return err
			}
			continue
		}
		if _, err := src.next(p.typ); err != nil {
			return err
		}
	}
	return nil
}

func skipPLYList(src plyValues, p plyProperty) error {
	n, err := src.next(p.countType)
	if err != nil {
		return err
	}
	for k := 0; k < int(n); k++ {
		if _, err := src.next(p.typ); err != nil {
			return err
		}
	}
	return nil
}

// WritePLY writes m with float vertices and "list uchar int" faces. Big
// endian output is not produced; it is written as little endian.
func WritePLY(w io.Writer, m *mesh.Mesh, enc PLYEncoding) error {
	if enc != PLYASCII {
		enc = PLYBinaryLittleEndian
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat %s 1.0\ncomment meshjuice\n", enc)
	fmt.Fprintf(bw, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", m.VertexCount())
	fmt.Fprintf(bw, "element face %d\nproperty list uchar int vertex_indices\nend_header\n", m.TriangleCount())

	if enc == PLYASCII {
		for i := 0; i+2 < len(m.Vertices); i += 3 {
			fmt.Fprintf(bw, "%s %s %s\n", formatFloat(m.Vertices[i]), formatFloat(m.Vertices[i+1]), formatFloat(m.Vertices[i+2]))
		}
		for i := 0; i+2 < len(m.Indices); i += 3 {
			fmt.Fprintf(bw, "3 %d %d %d\n", m.Indices[i], m.Indices[i+1], m.Indices[i+2])
		}
		return bw.Flush()
	}

	var b [4]byte
	for _, v := range m.Vertices {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		bw.Write(b[:])
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		bw.WriteByte(3)
		for _, idx := range m.Indices[i : i+3] {
			binary.LittleEndian.PutUint32(b[:], idx)
			bw.Write(b[:])
		}
	}
	return bw.Flush()
}
