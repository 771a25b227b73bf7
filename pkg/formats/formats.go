// Package formats converts mesh file bytes to and from mesh.Mesh.
//
// Supported for decoding and encoding: Wavefront OBJ, STL (ASCII and
// binary), PLY (ASCII and binary little endian) and ASCII FBX. glTF, GLB and
// binary FBX are recognized by Detect but cannot be decoded.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Detection errors.
var (
	ErrUnknownFormat     = errors.New("unknown mesh format")
	ErrUnsupportedFormat = errors.New("mesh format not supported")
	ErrTooSmall          = errors.New("file too small")
)

// Format identifies a mesh file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatOBJ
	FormatSTL
	FormatPLY
	FormatFBX
	FormatGLTF
	FormatGLB
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "OBJ"
	case FormatSTL:
		return "STL"
	case FormatPLY:
		return "PLY"
	case FormatFBX:
		return "FBX"
	case FormatGLTF:
		return "glTF"
	case FormatGLB:
		return "GLB"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// Extension returns the conventional file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatOBJ:
		return ".obj"
	case FormatSTL:
		return ".stl"
	case FormatPLY:
		return ".ply"
	case FormatFBX:
		return ".fbx"
	case FormatGLTF:
		return ".gltf"
	case FormatGLB:
		return ".glb"
	default:
		return ""
	}
}

// Supported reports whether the format can be decoded and encoded.
func (f Format) Supported() bool {
	switch f {
	case FormatOBJ, FormatSTL, FormatPLY, FormatFBX:
		return true
	}
	return false
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		return FormatOBJ
	case ".stl":
		return FormatSTL
	case ".ply":
		return FormatPLY
	case ".fbx":
		return FormatFBX
	case ".gltf":
		return FormatGLTF
	case ".glb":
		return FormatGLB
	}
	return FormatUnknown
}

// Detect identifies the format of data from its signature.
func Detect(data []byte) (Format, error) {
	if len(data) < 8 {
		return FormatUnknown, ErrTooSmall
	}

	switch {
	case bytes.HasPrefix(data, []byte("glTF")):
		return FormatGLB, nil
	case bytes.HasPrefix(data, []byte("{")) && len(data) > 20 && looksLikeGLTF(data):
		return FormatGLTF, nil
	case isBinarySTL(data):
		// Checked before ASCII: binary headers may start with "solid".
		return FormatSTL, nil
	case bytes.HasPrefix(data, []byte("solid ")) || bytes.HasPrefix(data, []byte("solid\n")):
		return FormatSTL, nil
	case bytes.HasPrefix(data, []byte("ply\n")) || bytes.HasPrefix(data, []byte("ply\r\n")):
		return FormatPLY, nil
	case bytes.HasPrefix(data, []byte("Kaydara FBX Binary")),
		bytes.HasPrefix(data, []byte("Autodesk FBX")),
		bytes.HasPrefix(data, []byte("; FBX ")):
		return FormatFBX, nil
	case looksLikeOBJ(data):
		return FormatOBJ, nil
	}
	return FormatUnknown, ErrUnknownFormat
}

func looksLikeGLTF(data []byte) bool {
	head := data[:min(len(data), 1024)]
	return bytes.Contains(head, []byte(`"asset"`)) && bytes.Contains(head, []byte(`"version"`))
}

func looksLikeOBJ(data []byte) bool {
	if len(data) <= 10 {
		return false
	}
	head := data[:min(len(data), 512)]
	for _, kw := range []string{"v ", "vn ", "vt ", "f "} {
		if bytes.HasPrefix(head, []byte(kw)) || bytes.Contains(head, []byte("\n"+kw)) {
			return true
		}
	}
	return false
}

// isBinarySTL reports whether data has the exact size of a binary STL with
// the triangle count stored at offset 80.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == uint64(stlHeaderSize+4)+uint64(n)*stlTriangleSize
}

func isBinaryFBX(data []byte) bool {
	return bytes.HasPrefix(data, []byte("Kaydara FBX Binary"))
}

// Decode detects the format of data and parses it. Parse failures are
// returned as mesh.ErrInvalidFormat errors.
func Decode(data []byte) (*mesh.Mesh, Format, error) {
	f, err := Detect(data)
	if err != nil {
		return nil, FormatUnknown, mesh.InvalidFormat("decode", err)
	}
	m, err := DecodeAs(data, f)
	return m, f, err
}

// DecodeAs parses data as format f and checks the mesh invariants.
func DecodeAs(data []byte, f Format) (*mesh.Mesh, error) {
	m, err := ParseUnchecked(data, f)
	if err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, mesh.InvalidFormat("decode "+strings.ToLower(f.String()), err)
	}
	return m, nil
}

// ParseUnchecked parses data as format f without checking index bounds or
// coordinates, so that mesh.Validate can report every problem of a broken
// file.
func ParseUnchecked(data []byte, f Format) (*mesh.Mesh, error) {
	var (
		m   *mesh.Mesh
		err error
	)
	switch f {
	case FormatOBJ:
		m, err = ParseOBJ(data)
	case FormatSTL:
		m, err = ParseSTL(data)
	case FormatPLY:
		m, err = ParsePLY(data)
	case FormatFBX:
		if isBinaryFBX(data) {
			err = fmt.Errorf("%w: binary FBX", ErrUnsupportedFormat)
		} else {
			m, err = ParseFBX(data)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, mesh.InvalidFormat("decode "+strings.ToLower(f.String()), err)
	}
	return m, nil
}

// Encode serializes m as format f. template is the original file, if any:
// STL and PLY keep its ASCII or binary flavour and FBX keeps every line
// outside the geometry arrays.
func Encode(m *mesh.Mesh, f Format, template []byte) ([]byte, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatOBJ:
		err = WriteOBJ(&buf, m)
	case FormatSTL:
		if len(template) > 0 && !isBinarySTL(template) {
			err = WriteSTLASCII(&buf, m, stlSolidName(template))
		} else {
			err = WriteSTLBinary(&buf, m, stlHeader(template))
		}
	case FormatPLY:
		enc := PLYBinaryLittleEndian
		if len(template) > 0 && plyIsASCII(template) {
			enc = PLYASCII
		}
		err = WritePLY(&buf, m, enc)
	case FormatFBX:
		err = WriteFBX(&buf, m, template)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, mesh.InvalidFormat("encode "+strings.ToLower(f.String()), err)
	}
	return buf.Bytes(), nil
}
