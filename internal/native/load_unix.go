//go:build darwin || linux

package native

import (
	"errors"
	"fmt"

	"github.com/ebitengine/purego"
)

// load opens the shared library and binds its kernels. A missing kernel is
// left nil and reported through CanAccelerate; mj_free_result is mandatory.
func load(path string) (*functions, func() error, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, nil, err
	}
	unload := func() error { return purego.Dlclose(handle) }

	fns := &functions{}
	if _, err := purego.Dlsym(handle, symFree); err != nil {
		_ = unload()
		return nil, nil, fmt.Errorf("missing symbol %s: %w", symFree, err)
	}
	purego.RegisterLibFunc(&fns.free, handle, symFree)

	bindKernel(handle, symWeld, &fns.weld)
	bindKernel(handle, symDecimate, &fns.decimate)
	bindKernel(handle, symVertexCache, &fns.vertexCache)

	if sym, err := purego.Dlsym(handle, symABIVersion); err == nil {
		purego.RegisterFunc(&fns.abiVersion, sym)
	}

	if fns.weld == nil && fns.decimate == nil && fns.vertexCache == nil {
		_ = unload()
		return nil, nil, errors.New("library exports no kernels")
	}
	return fns, unload, nil
}

func bindKernel(handle uintptr, name string, fn *kernelFunc) {
	sym, err := purego.Dlsym(handle, name)
	if err != nil {
		return
	}
	purego.RegisterFunc(fn, sym)
}
