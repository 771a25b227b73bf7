package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

func triangleMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	}
}

func quadMesh() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0.5},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
}

// createTestSTL creates a binary STL with one facet per triangle of m.
func createTestSTL(header string, m *mesh.Mesh) []byte {
	buf := new(bytes.Buffer)
	var h [stlHeaderSize]byte
	copy(h[:], header)
	buf.Write(h[:])
	binary.Write(buf, binary.LittleEndian, uint32(m.TriangleCount()))
	for t := 0; t < m.TriangleCount(); t++ {
		binary.Write(buf, binary.LittleEndian, [3]float32{0, 0, 1})
		for _, v := range m.Triangle(t) {
			binary.Write(buf, binary.LittleEndian, m.Position(v))
		}
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

const testASCIIFBX = `; FBX 7.4.0 project file
Objects:  {
	Geometry: 1, "Geometry::tri", "Mesh" {
		Vertices: *9 {
			a: 0,0,0,1,0,0,0,1,0
		}
		PolygonVertexIndex: *3 {
			a: 0,1,-3
		}
		LayerElementNormal: 0 {
			Normals: *9 {
				a: 0,0,1,0,0,1,0,0,1
			}
		}
		GeometryVersion: 124
	}
}
`

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"glb", []byte("glTF\x02\x00\x00\x00rest"), FormatGLB},
		{"gltf", []byte(`{"asset": {"version": "2.0"}, "meshes": []}`), FormatGLTF},
		{"binary stl", createTestSTL("solid but binary", triangleMesh()), FormatSTL},
		{"ascii stl", []byte("solid cube\nfacet normal 0 0 1\n"), FormatSTL},
		{"ply", []byte("ply\nformat ascii 1.0\n"), FormatPLY},
		{"binary fbx", []byte("Kaydara FBX Binary  \x00"), FormatFBX},
		{"ascii fbx", []byte(testASCIIFBX), FormatFBX},
		{"obj", []byte("# exported\nv 0 0 0\nv 1 0 0\n"), FormatOBJ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.data)
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDetect_Errors(t *testing.T) {
	if _, err := Detect([]byte("tiny")); !errors.Is(err, ErrTooSmall) {
		t.Errorf("expected ErrTooSmall, got %v", err)
	}
	if _, err := Detect([]byte("this is just some text")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"model.OBJ":         FormatOBJ,
		"dir/part.stl":      FormatSTL,
		"scan.ply":          FormatPLY,
		"rig.fbx":           FormatFBX,
		"scene.gltf":        FormatGLTF,
		"scene.glb":         FormatGLB,
		"notes.txt":         FormatUnknown,
		"no_extension_here": FormatUnknown,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %s, want %s", path, got, want)
		}
	}
	if FormatGLB.Supported() || !FormatPLY.Supported() {
		t.Error("unexpected Supported() result")
	}
	if FormatSTL.Extension() != ".stl" {
		t.Errorf("expected .stl, got %s", FormatSTL.Extension())
	}
}

func TestParseFBX_PolygonEnd(t *testing.T) {
	m, err := ParseFBX([]byte(testASCIIFBX))
	if err != nil {
		t.Fatalf("ParseFBX failed: %v", err)
	}
	if !reflect.DeepEqual(m.Indices, []uint32{0, 1, 2}) {
		t.Errorf("expected indices [0 1 2], got %v", m.Indices)
	}
	if m.VertexCount() != 3 {
		t.Errorf("expected 3 vertices, got %d", m.VertexCount())
	}
}

func TestParseFBX_Version6Arrays(t *testing.T) {
	data := []byte("; FBX 6.1.0 project file\n" +
		"\tVertices: 0,0,0,1,0,0\n" +
		"\t\t,1,1,0,0,1,0\n" +
		"\tPolygonVertexIndex: 0,1,2,-4\n")

	m, err := ParseFBX(data)
	if err != nil {
		t.Fatalf("ParseFBX failed: %v", err)
	}
	if !reflect.DeepEqual(m.Indices, []uint32{0, 1, 2, 0, 2, 3}) {
		t.Errorf("expected fan-triangulated quad, got %v", m.Indices)
	}
}

func TestParseFBX_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"no geometry", "; FBX 7.4.0 project file\nObjects: {\n}\n", ErrNoFBXGeometry},
		{"unterminated polygon", "Vertices: *9 {\na: 0,0,0,1,0,0,0,1,0\n}\nPolygonVertexIndex: *3 {\na: 0,1,2\n}\n", ErrInvalidFBXArray},
		{"two-corner polygon", "Vertices: *9 {\na: 0,0,0,1,0,0,0,1,0\n}\nPolygonVertexIndex: *2 {\na: 0,-2\n}\n", ErrInvalidFBXArray},
		{"bad number", "Vertices: *3 {\na: 0,x,0\n}\n", ErrInvalidFBXArray},
		{"open block", "Vertices: *3 {\na: 0,0,0\n", ErrUnterminatedFBX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFBX([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWriteFBX_Template(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFBX(&buf, quadMesh(), []byte(testASCIIFBX)); err != nil {
		t.Fatalf("WriteFBX failed: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "; FBX 7.4.0 project file\n") {
		t.Error("template header not preserved")
	}
	if !strings.Contains(out, "GeometryVersion: 124") {
		t.Error("template properties not preserved")
	}
	if strings.Contains(out, "LayerElementNormal") {
		t.Error("stale layer element was kept")
	}

	m, err := ParseFBX(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseFBX of written file failed: %v", err)
	}
	if !reflect.DeepEqual(m, quadMesh()) {
		t.Errorf("round trip mismatch: got %+v", m)
	}
}

func TestParseOBJ(t *testing.T) {
	data := []byte(`# quad with normals and uvs
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0.5
vt 0 0
vn 0 0 1
usemtl none
f 1/1/1 2//1 3 -1
`)
	m, err := ParseOBJ(data)
	if err != nil {
		t.Fatalf("ParseOBJ failed: %v", err)
	}
	if !reflect.DeepEqual(m, quadMesh()) {
		t.Errorf("expected %+v, got %+v", quadMesh(), m)
	}
}

func TestParseOBJ_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"short vertex", "v 1 2\n", ErrInvalidOBJVertex},
		{"bad coordinate", "v 1 two 3\n", ErrInvalidOBJVertex},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n", ErrInvalidOBJFace},
		{"out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n", ErrInvalidOBJFace},
		{"two corners", "v 0 0 0\nv 1 0 0\nf 1 2\n", ErrInvalidOBJFace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseOBJ([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseSTL_Binary(t *testing.T) {
	m, err := ParseSTL(createTestSTL("test", quadMesh()))
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}
	if m.VertexCount() != 6 || m.TriangleCount() != 2 {
		t.Fatalf("expected 6 vertices and 2 triangles, got %v", m)
	}
	if m.Position(4) != [3]float32{1, 1, 0} {
		t.Errorf("unexpected vertex 4: %v", m.Position(4))
	}
}

func TestParseSTL_ASCII(t *testing.T) {
	data := []byte(`solid part
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid part
`)
	m, err := ParseSTL(data)
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}
	if !reflect.DeepEqual(m, triangleMesh()) {
		t.Errorf("expected %+v, got %+v", triangleMesh(), m)
	}

	short := []byte("solid x\nfacet normal 0 0 1\nvertex 0 0 0\nvertex 1 0 0\nendfacet\nendsolid x\n")
	if _, err := ParseSTL(short); !errors.Is(err, ErrInvalidSTLFacet) {
		t.Errorf("expected ErrInvalidSTLFacet, got %v", err)
	}
}

func TestWriteSTLBinary_Normals(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSTLBinary(&buf, triangleMesh(), []byte("hdr")); err != nil {
		t.Fatalf("WriteSTLBinary failed: %v", err)
	}
	data := buf.Bytes()
	if len(data) != stlHeaderSize+4+stlTriangleSize {
		t.Fatalf("unexpected size %d", len(data))
	}
	if string(data[:3]) != "hdr" || data[3] != 0 {
		t.Error("header not padded as expected")
	}
	nz := math.Float32frombits(binary.LittleEndian.Uint32(data[stlHeaderSize+4+8:]))
	if nz != 1 {
		t.Errorf("expected normal z = 1, got %f", nz)
	}
}

func TestParsePLY_BinarySkipsExtraProperties(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString("ply\nformat binary_little_endian 1.0\n")
	buf.WriteString("element vertex 3\nproperty float x\nproperty float y\nproperty float z\nproperty uchar red\n")
	buf.WriteString("element face 1\nproperty uchar flags\nproperty list uchar int vertex_indices\n")
	buf.WriteString("element material 1\nproperty double shine\n")
	buf.WriteString("end_header\n")
	for _, p := range [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}} {
		binary.Write(buf, binary.LittleEndian, p)
		buf.WriteByte(255)
	}
	buf.WriteByte(7)
	buf.WriteByte(3)
	binary.Write(buf, binary.LittleEndian, [3]int32{0, 1, 2})
	binary.Write(buf, binary.LittleEndian, float64(0.5))

	m, err := ParsePLY(buf.Bytes())
	if err != nil {
		t.Fatalf("ParsePLY failed: %v", err)
	}
	if !reflect.DeepEqual(m, triangleMesh()) {
		t.Errorf("expected %+v, got %+v", triangleMesh(), m)
	}
}

func TestParsePLY_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"no end_header", "ply\nformat ascii 1.0\n", ErrInvalidPLYHeader},
		{"bad encoding", "ply\nformat utf8 1.0\nend_header\n", ErrInvalidPLYHeader},
		{"bad type", "ply\nformat ascii 1.0\nelement vertex 1\nproperty quad x\nend_header\n", ErrUnsupportedPLYType},
		{"missing z", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nend_header\n0 0\n", ErrInvalidPLYHeader},
		{"truncated body", "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n1\n", ErrTruncatedPLYData},
		{"vertex count beyond body", "ply\nformat ascii 1.0\nelement vertex 999999999999\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n", ErrTruncatedPLYData},
		{"face count beyond body", "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 4000000000\nproperty list uchar int vertex_indices\nend_header\n0 0 0 1 0 0 0 1 0\n3 0 1 2\n", ErrTruncatedPLYData},
		{"binary count beyond body", "ply\nformat binary_little_endian 1.0\nelement vertex 999999999999\nproperty float x\nproperty float y\nproperty float z\nend_header\n\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", ErrTruncatedPLYData},
		{"vertex without properties", "ply\nformat ascii 1.0\nelement vertex 5\nend_header\n", ErrInvalidPLYHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePLY([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	asciiSTL := []byte("solid named\nendsolid named\n")
	asciiPLY := []byte("ply\nformat ascii 1.0\nend_header\n")

	tests := []struct {
		name      string
		format    Format
		template  []byte
		welded    bool // false for formats that store a triangle soup
		wantASCII string
	}{
		{"obj", FormatOBJ, nil, true, "v 0 0 0"},
		{"stl binary", FormatSTL, nil, false, ""},
		{"stl ascii", FormatSTL, asciiSTL, false, "solid named"},
		{"ply binary", FormatPLY, nil, true, "binary_little_endian"},
		{"ply ascii", FormatPLY, asciiPLY, true, "format ascii"},
		{"fbx", FormatFBX, nil, true, "PolygonVertexIndex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := quadMesh()
			data, err := Encode(in, tt.format, tt.template)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if tt.wantASCII != "" && !bytes.Contains(data, []byte(tt.wantASCII)) {
				t.Errorf("output does not contain %q", tt.wantASCII)
			}

			out, f, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if f != tt.format {
				t.Errorf("detected %s, want %s", f, tt.format)
			}
			if out.TriangleCount() != in.TriangleCount() {
				t.Fatalf("expected %d triangles, got %d", in.TriangleCount(), out.TriangleCount())
			}
			if tt.welded && !reflect.DeepEqual(out, in) {
				t.Errorf("expected %+v, got %+v", in, out)
			}
			for tri := 0; tri < in.TriangleCount(); tri++ {
				a, b := in.Triangle(tri), out.Triangle(tri)
				for k := range a {
					if in.Position(a[k]) != out.Position(b[k]) {
						t.Errorf("triangle %d corner %d: expected %v, got %v",
							tri, k, in.Position(a[k]), out.Position(b[k]))
					}
				}
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, _, err := Decode([]byte("Kaydara FBX Binary  \x00\x1a\x00")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, _, err := Decode([]byte("glTF\x02\x00\x00\x00")); !errors.Is(err, mesh.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}

	// Parses, but references a vertex that does not exist.
	bad := []byte("ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n3 0 1 2\n")
	if _, _, err := Decode(bad); !errors.Is(err, mesh.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestEncode_Unsupported(t *testing.T) {
	if _, err := Encode(triangleMesh(), FormatGLB, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseUnchecked_KeepsBrokenIndices(t *testing.T) {
	bad := []byte("ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1 7\n")

	m, err := ParseUnchecked(bad, FormatPLY)
	if err != nil {
		t.Fatalf("ParseUnchecked failed: %v", err)
	}
	report := mesh.Validate(m)
	if report.IsValid || len(report.Errors) != 1 {
		t.Errorf("expected exactly one validation error, got %+v", report)
	}
}

func TestDecode_OversizedPLYCount(t *testing.T) {
	data := []byte("ply\nformat ascii 1.0\nelement vertex 999999999999\n" +
		"property float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n")

	_, f, err := Decode(data)
	if f != FormatPLY {
		t.Errorf("expected PLY, got %s", f)
	}
	if !errors.Is(err, mesh.ErrInvalidFormat) || !errors.Is(err, ErrTruncatedPLYData) {
		t.Errorf("expected an invalid format error wrapping ErrTruncatedPLYData, got %v", err)
	}
}
