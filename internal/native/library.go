package native

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Faultbox/meshjuice/internal/accel"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Library is an accelerator backed by the hotspot shared library.
//
// Init loads the library; after that the symbol table is read-only and the
// kernels may be called concurrently. Close must not race with kernel calls.
type Library struct {
	path string

	mu     sync.Mutex
	fns    *functions
	unload func() error
}

var _ accel.Accelerator = (*Library)(nil)

// New returns an unloaded library. An empty path searches the platform's
// default library locations for DefaultLibraryName.
func New(path string) *Library {
	if path == "" {
		path = DefaultLibraryName()
	}
	return &Library{path: path}
}

// DefaultLibraryName returns the platform file name of the hotspot library.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libmeshjuice_hotspots.dylib"
	case "windows":
		return "meshjuice_hotspots.dll"
	default:
		return "libmeshjuice_hotspots.so"
	}
}

// Path returns the library path or name being loaded.
func (l *Library) Path() string { return l.path }

// Name returns "native".
func (l *Library) Name() string { return "native" }

// Init loads the library and binds its symbols.
func (l *Library) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns != nil {
		return nil
	}
	fns, unload, err := load(l.path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", l.path, err)
	}
	if fns.abiVersion != nil {
		if v := fns.abiVersion(); v != ABIVersion {
			_ = unload()
			return fmt.Errorf("%w: library speaks version %d, want %d", ErrABI, v, ABIVersion)
		}
	}
	l.fns, l.unload = fns, unload
	return nil
}

// Close unloads the library. It is safe to call more than once.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		return nil
	}
	l.fns = nil
	unload := l.unload
	l.unload = nil
	if unload != nil {
		return unload()
	}
	return nil
}

// CanAccelerate reports which kernels the loaded library exports.
func (l *Library) CanAccelerate(op accel.Op) bool {
	fns := l.fns
	if fns == nil {
		return false
	}
	var have accel.Op
	if fns.weld != nil {
		have |= accel.OpWeld
	}
	if fns.decimate != nil {
		have |= accel.OpDecimate
	}
	if fns.vertexCache != nil {
		have |= accel.OpVertexCache
	}
	return have&op == op
}

// Weld runs mj_weld_vertices.
func (l *Library) Weld(m *mesh.Mesh, tolerance float32) (*mesh.Mesh, error) {
	return l.call("weld", func(f *functions) kernelFunc { return f.weld }, m, tolerance, 0)
}

// Decimate runs mj_decimate_mesh.
func (l *Library) Decimate(m *mesh.Mesh, ratio float32, cfg mesh.OptConfig) (*mesh.Mesh, error) {
	return l.call("decimate", func(f *functions) kernelFunc { return f.decimate }, m, ratio, decimateFlags(cfg))
}

// OptimizeVertexCache runs mj_optimize_vertex_cache.
func (l *Library) OptimizeVertexCache(m *mesh.Mesh) (*mesh.Mesh, error) {
	return l.call("optimize vertex cache", func(f *functions) kernelFunc { return f.vertexCache }, m, 0, 0)
}

func (l *Library) call(op string, pick func(*functions) kernelFunc, m *mesh.Mesh, param float32, flags uint32) (*mesh.Mesh, error) {
	fns := l.fns
	if fns == nil {
		return nil, ErrNotLoaded
	}
	kernel := pick(fns)
	if kernel == nil {
		return nil, accel.ErrFallback
	}

	var raw cResult
	status := kernel(firstFloat(m.Vertices), uintptr(len(m.Vertices)),
		firstIndex(m.Indices), uintptr(len(m.Indices)), param, flags, &raw)
	runtime.KeepAlive(m)

	res := newResult(raw, fns.free)
	defer res.Close()

	if status != statusOK {
		return nil, statusError(op, status, res.Message())
	}
	return res.Mesh()
}

// firstFloat returns a pointer to the first element, or nil for an empty
// slice so the kernel never sees a dangling pointer.
func firstFloat(s []float32) *float32 {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}

func firstIndex(s []uint32) *uint32 {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}
