package meshopt

import (
	"errors"
	"testing"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

const missingLibrary = "/nonexistent/libmeshjuice_hotspots_missing.so"

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{BackendPortable, "portable"},
		{BackendQEM, "qem"},
		{"  QEM ", "qem"},
		{BackendAuto, "qem"}, // native library is missing
		{"", "qem"},
		{BackendNative, "portable"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := NewStrategy(tt.backend, missingLibrary)
			if err != nil {
				t.Fatalf("NewStrategy failed: %v", err)
			}
			defer s.Close()
			if s.Name() != tt.want {
				t.Errorf("expected backend %q, got %q", tt.want, s.Name())
			}
		})
	}
}

func TestNewStrategy_Unknown(t *testing.T) {
	if _, err := NewStrategy("gpu", ""); !errors.Is(err, mesh.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDefaultStrategy_Cached(t *testing.T) {
	a := DefaultStrategy()
	b := DefaultStrategy()
	if a == nil || a != b {
		t.Error("expected the same strategy on every call")
	}
	if New().Strategy() != a {
		t.Error("New() without options should use the default strategy")
	}
}
