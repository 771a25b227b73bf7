// Package native binds the optional hotspot library (libmeshjuice_hotspots)
// at runtime and exposes it as an accelerator. The library is loaded with
// purego, so no C toolchain is needed to build this package.
//
// Every buffer the library allocates crosses back into Go inside a Result,
// which copies the data out and frees the foreign allocation exactly once.
package native

import (
	"bytes"
	"errors"
	"fmt"
	"unsafe"

	"github.com/Faultbox/meshjuice/internal/accel"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Exported symbol names.
const (
	symWeld        = "mj_weld_vertices"
	symDecimate    = "mj_decimate_mesh"
	symVertexCache = "mj_optimize_vertex_cache"
	symFree        = "mj_free_result"
	symABIVersion  = "mj_abi_version"
)

// ABIVersion is the library interface version this package speaks.
const ABIVersion = 1

// Status codes returned by the kernels.
const (
	statusOK           int32 = 0
	statusInvalidInput int32 = 1
	statusProcessing   int32 = 2
	statusUnsupported  int32 = 3
)

// Decimation flags.
const (
	flagPreserveTopology uint32 = 1 << 0
	// Bits 8-15 carry the mesh.Algorithm value.
	flagAlgorithmShift = 8
)

// cResult mirrors struct mj_result:
//
//	struct mj_result {
//	    float    *vertices;
//	    uint32_t *indices;
//	    size_t    vertex_len;  /* number of floats */
//	    size_t    index_len;   /* number of indices */
//	    int32_t   status;
//	    int32_t   reserved;
//	    char      message[256];
//	};
type cResult struct {
	Vertices  unsafe.Pointer
	Indices   unsafe.Pointer
	VertexLen uintptr
	IndexLen  uintptr
	Status    int32
	_         int32
	Message   [256]byte
}

func (r *cResult) message() string {
	msg := r.Message[:]
	if i := bytes.IndexByte(msg, 0); i >= 0 {
		msg = msg[:i]
	}
	return string(msg)
}

// kernelFunc is the shared signature of the three kernels:
//
//	int32_t kernel(const float *vertices, size_t vertex_len,
//	               const uint32_t *indices, size_t index_len,
//	               float param, uint32_t flags, struct mj_result *out);
type kernelFunc func(vertices *float32, vertexLen uintptr, indices *uint32, indexLen uintptr,
	param float32, flags uint32, out *cResult) int32

// functions is the bound symbol table. It is read-only once loaded.
type functions struct {
	weld        kernelFunc
	decimate    kernelFunc
	vertexCache kernelFunc
	free        func(out *cResult)
	abiVersion  func() uint32 // optional
}

// Errors reported by the loader.
var (
	ErrNotLoaded   = errors.New("native: library not loaded")
	ErrUnsupported = errors.New("native: dynamic loading is not supported on this platform")
	ErrABI         = errors.New("native: incompatible library ABI")
)

// statusError converts a non-zero kernel status into an engine error.
func statusError(op string, status int32, msg string) error {
	switch status {
	case statusInvalidInput:
		return mesh.InvalidInput(op, "native: %s", msg)
	case statusProcessing:
		return mesh.Processing(op, "native: %s", msg)
	case statusUnsupported:
		return accel.ErrFallback
	default:
		return mesh.AcceleratedPath(op, fmt.Errorf("status %d: %s", status, msg))
	}
}

func decimateFlags(cfg mesh.OptConfig) uint32 {
	var flags uint32
	if cfg.PreserveTopology {
		flags |= flagPreserveTopology
	}
	flags |= uint32(cfg.Algorithm) << flagAlgorithmShift
	return flags
}
