package native

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// ErrReleased is returned when a Result is read after Close.
var ErrReleased = errors.New("native: result already released")

// Result owns one buffer pair allocated by the library. It is the only type
// that touches the foreign pointers: Mesh copies the data into Go memory and
// Close hands the allocation back exactly once, however often it is called.
//
// A Result has a single owner and must not be used concurrently.
type Result struct {
	raw      cResult
	free     func(*cResult)
	released atomic.Bool
}

// newResult takes ownership of raw. free is called once by Close.
func newResult(raw cResult, free func(*cResult)) *Result {
	return &Result{raw: raw, free: free}
}

// Status returns the kernel status stored in the result.
func (r *Result) Status() int32 {
	return r.raw.Status
}

// Message returns the kernel's diagnostic message.
func (r *Result) Message() string {
	return r.raw.message()
}

// Mesh copies the result buffers into a new Go-owned mesh.
func (r *Result) Mesh() (*mesh.Mesh, error) {
	if r.released.Load() {
		return nil, ErrReleased
	}
	vl, il := int(r.raw.VertexLen), int(r.raw.IndexLen)
	if vl < 0 || il < 0 {
		return nil, fmt.Errorf("native: buffer lengths %d/%d overflow", r.raw.VertexLen, r.raw.IndexLen)
	}
	if (vl > 0 && r.raw.Vertices == nil) || (il > 0 && r.raw.Indices == nil) {
		return nil, errors.New("native: result reports data but holds a null buffer")
	}

	out := &mesh.Mesh{
		Vertices: make([]float32, vl),
		Indices:  make([]uint32, il),
	}
	if vl > 0 {
		copy(out.Vertices, unsafe.Slice((*float32)(r.raw.Vertices), vl))
	}
	if il > 0 {
		copy(out.Indices, unsafe.Slice((*uint32)(r.raw.Indices), il))
	}
	return out, nil
}

// Close releases the foreign allocation. Only the first call has an effect.
func (r *Result) Close() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	if r.free != nil {
		r.free(&r.raw)
	}
	r.raw.Vertices = nil
	r.raw.Indices = nil
	r.raw.VertexLen = 0
	r.raw.IndexLen = 0
	return nil
}

// Released reports whether Close has been called.
func (r *Result) Released() bool {
	return r.released.Load()
}
