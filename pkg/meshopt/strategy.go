package meshopt

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/internal/accel"
	"github.com/Faultbox/meshjuice/internal/logger"
	"github.com/Faultbox/meshjuice/internal/native"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Backend names accepted by NewStrategy.
const (
	BackendAuto     = "auto"
	BackendNative   = "native"
	BackendQEM      = "qem"
	BackendPortable = "portable"
)

// Environment variables read by DefaultStrategy.
const (
	EnvBackend   = "MESHJUICE_BACKEND"
	EnvNativeLib = "MESHJUICE_NATIVE_LIB"
)

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{BackendAuto, BackendNative, BackendQEM, BackendPortable}
}

// NewStrategy probes the requested backend and returns a strategy for it.
// "auto" tries the native library at libPath, then the in-process QEM
// backend. A forced backend that fails its probe degrades to portable with
// a warning rather than an error, so a missing library never stops work.
func NewStrategy(backend, libPath string) (*accel.Strategy, error) {
	log := logger.Named("probe")

	var candidates []accel.Accelerator
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendAuto, "":
		candidates = []accel.Accelerator{native.New(libPath), accel.NewQEM()}
	case BackendNative:
		candidates = []accel.Accelerator{native.New(libPath)}
	case BackendQEM:
		candidates = []accel.Accelerator{accel.NewQEM()}
	case BackendPortable:
		log.Info("using portable backend")
		return accel.NewStrategy(nil), nil
	default:
		return nil, mesh.InvalidInput("select backend", "unknown backend %q (want one of %s)",
			backend, strings.Join(Backends(), ", "))
	}

	selected := accel.Probe(log, candidates...)
	if selected == nil {
		log.Warn("no accelerated backend available, using portable backend",
			zap.String("requested", backend))
		return accel.NewStrategy(nil), nil
	}
	log.Info("selected backend", zap.String("backend", selected.Name()))
	return accel.NewStrategy(selected), nil
}

var (
	defaultOnce     sync.Once
	defaultStrategy *accel.Strategy
)

// DefaultStrategy returns the process-wide strategy, probing on first use.
// The backend comes from MESHJUICE_BACKEND ("auto" when unset) and the
// native library path from MESHJUICE_NATIVE_LIB.
func DefaultStrategy() *accel.Strategy {
	defaultOnce.Do(func() {
		s, err := NewStrategy(os.Getenv(EnvBackend), os.Getenv(EnvNativeLib))
		if err != nil {
			logger.Warn("ignoring "+EnvBackend, zap.Error(err))
			s, _ = NewStrategy(BackendAuto, os.Getenv(EnvNativeLib))
		}
		defaultStrategy = s
	})
	return defaultStrategy
}
