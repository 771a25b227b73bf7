package config

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// parseFlags registers the config flags on a fresh flag set and parses args.
func parseFlags(t *testing.T, args ...string) *Flags {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("failed to parse flags %v: %v", args, err)
	}
	return f
}

func TestDefault(t *testing.T) {
	cfg := Default()

	// Mesh defaults mirror the engine defaults
	if got := cfg.ToOptConfig(); got != mesh.DefaultOptConfig() {
		t.Errorf("expected engine defaults, got %+v", got)
	}

	if cfg.Accel.Backend != "auto" {
		t.Errorf("expected backend 'auto', got %s", cfg.Accel.Backend)
	}
	if cfg.Batch.Suffix != "_optimized" {
		t.Errorf("expected suffix '_optimized', got %s", cfg.Batch.Suffix)
	}
	if cfg.WorkerCount() < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.WorkerCount())
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, FileName)

	yamlContent := `
mesh:
  target_ratio: 0.3
  vertex_tolerance: 0.01
  preserve_topology: false
  weld_vertices: false
  algorithm: vertex-clustering

accel:
  backend: portable
  native_lib: /opt/lib/libmeshjuice_hotspots.so

batch:
  workers: 3
  output_dir: out

logging:
  level: debug
  format: json
  log_file: "meshjuice.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Mesh.TargetRatio != 0.3 {
		t.Errorf("expected target ratio 0.3, got %f", cfg.Mesh.TargetRatio)
	}
	if cfg.Mesh.VertexTolerance != 0.01 {
		t.Errorf("expected tolerance 0.01, got %f", cfg.Mesh.VertexTolerance)
	}
	if cfg.Mesh.PreserveTopology || cfg.Mesh.WeldVertices {
		t.Error("expected preserve_topology and weld_vertices to be false")
	}
	// Not in file, keeps default
	if !cfg.Mesh.OptimizeVertexCache {
		t.Error("expected optimize_vertex_cache to keep its default")
	}
	if cfg.Mesh.Algorithm != mesh.AlgorithmVertexClustering {
		t.Errorf("expected vertex-clustering, got %s", cfg.Mesh.Algorithm)
	}
	if cfg.Accel.Backend != "portable" {
		t.Errorf("expected backend 'portable', got %s", cfg.Accel.Backend)
	}
	if cfg.Accel.NativeLib != "/opt/lib/libmeshjuice_hotspots.so" {
		t.Errorf("unexpected native lib %s", cfg.Accel.NativeLib)
	}
	if cfg.Batch.Workers != 3 || cfg.WorkerCount() != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.OutputDir != "out" {
		t.Errorf("expected output dir 'out', got %s", cfg.Batch.OutputDir)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Logging.LogFile != "meshjuice.log" {
		t.Errorf("expected log file 'meshjuice.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":    "mesh:\n  target_ratio: not a number\n  invalid syntax here\n",
		"algorithm": "mesh:\n  algorithm: marching-cubes\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "invalid.yaml")
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if err := loadFromFile(Default(), configPath); err == nil {
				t.Error("expected error loading invalid YAML, got nil")
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/meshjuice.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	// No config file exists - should return empty
	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("mesh:\n  target_ratio: 0.9\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Errorf("expected to find %s in current directory", FileName)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug flag",
			args: []string{"-debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "ratio flag",
			args: []string{"-ratio", "0.2"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.TargetRatio != 0.2 {
					t.Errorf("expected ratio 0.2, got %f", cfg.Mesh.TargetRatio)
				}
			},
		},
		{
			name: "reduction converts to ratio",
			args: []string{"-ratio", "0.9", "-reduction", "0.75"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.TargetRatio != 0.25 {
					t.Errorf("expected ratio 0.25, got %f", cfg.Mesh.TargetRatio)
				}
			},
		},
		{
			name: "disable stages",
			args: []string{"-weld=false", "-vcache=false", "-preserve-topology=false"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.WeldVertices || cfg.Mesh.OptimizeVertexCache || cfg.Mesh.PreserveTopology {
					t.Errorf("expected stages disabled, got %+v", cfg.Mesh)
				}
			},
		},
		{
			name: "unset bool flags keep config",
			args: nil,
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Mesh.WeldVertices || !cfg.Mesh.OptimizeVertexCache {
					t.Errorf("expected stages enabled, got %+v", cfg.Mesh)
				}
			},
		},
		{
			name: "algorithm and tolerance",
			args: []string{"-algorithm", "edge-collapse", "-tolerance", "0"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.Algorithm != mesh.AlgorithmEdgeCollapse {
					t.Errorf("expected edge-collapse, got %s", cfg.Mesh.Algorithm)
				}
				if cfg.Mesh.VertexTolerance != 0 {
					t.Errorf("expected tolerance 0, got %f", cfg.Mesh.VertexTolerance)
				}
			},
		},
		{
			name: "backend and batch flags",
			args: []string{"-backend", "qem", "-native-lib", "lib.so", "-workers", "8",
				"-output-dir", "dist", "-suffix", "", "-overwrite"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Accel.Backend != "qem" || cfg.Accel.NativeLib != "lib.so" {
					t.Errorf("unexpected accel config %+v", cfg.Accel)
				}
				want := BatchConfig{Workers: 8, OutputDir: "dist", Suffix: "", Overwrite: true}
				if cfg.Batch != want {
					t.Errorf("expected %+v, got %+v", want, cfg.Batch)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := applyFlags(cfg, parseFlags(t, tt.args...)); err != nil {
				t.Fatalf("applyFlags failed: %v", err)
			}
			tt.verify(t, cfg)
		})
	}
}

func TestApplyFlags_BadAlgorithm(t *testing.T) {
	if err := applyFlags(Default(), parseFlags(t, "-algorithm", "voxel")); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)

	yamlContent := `
mesh:
  target_ratio: 0.4
  vertex_tolerance: 0.5
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Flag overrides the file
	cfg, err := Load(parseFlags(t, "-config", configPath, "-ratio", "0.8"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Mesh.TargetRatio != 0.8 {
		t.Errorf("expected ratio 0.8 from flag, got %f", cfg.Mesh.TargetRatio)
	}
	// Tolerance comes from the file since no flag overrides it
	if cfg.Mesh.VertexTolerance != 0.5 {
		t.Errorf("expected tolerance 0.5 from file, got %f", cfg.Mesh.VertexTolerance)
	}
	// Defaults fill the rest
	if cfg.Accel.Backend != "auto" {
		t.Errorf("expected default backend, got %s", cfg.Accel.Backend)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	if _, err := Load(parseFlags(t, "-config", filepath.Join(t.TempDir(), "none.yaml"))); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
	if _, err := Load(parseFlags(t, "-config", "", "-ratio", "1.5")); err == nil {
		t.Error("expected error for ratio above 1")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Mesh.TargetRatio = 0
	cfg.Accel.Backend = "gpu"
	cfg.Batch.Workers = -1
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if n := len(multierr.Errors(err)); n != 5 {
		t.Errorf("expected 5 errors, got %d: %v", n, err)
	}
}

func TestValidate_SuffixGuard(t *testing.T) {
	cfg := Default()
	cfg.Batch.Suffix = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for an empty suffix that would overwrite inputs")
	}
	cfg.Batch.Overwrite = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error with overwrite set: %v", err)
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Mesh.Algorithm = mesh.AlgorithmEdgeCollapse
	cfg.Mesh.TargetRatio = 0.125
	cfg.Batch.OutputDir = "optimized"

	path := filepath.Join(t.TempDir(), "nested", FileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := &Config{}
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestLoadFromFile_StrictAndEmpty(t *testing.T) {
	dir := t.TempDir()

	typo := filepath.Join(dir, "typo.yaml")
	if err := os.WriteFile(typo, []byte("mesh:\n  target_raito: 0.3\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if err := loadFromFile(Default(), typo); err == nil {
		t.Error("expected error for an unknown key")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, empty); err != nil {
		t.Fatalf("empty file should load, got %v", err)
	}
	if cfg.Mesh != Default().Mesh {
		t.Errorf("empty file changed the config: %+v", cfg.Mesh)
	}
}

func TestLoad_EnvConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte("accel:\n  backend: qem\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv(EnvConfig, path)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Accel.Backend != "qem" {
		t.Errorf("expected backend from %s, got %q", EnvConfig, cfg.Accel.Backend)
	}

	// An explicit -config wins over the environment.
	other := filepath.Join(t.TempDir(), "flag.yaml")
	if err := os.WriteFile(other, []byte("accel:\n  backend: portable\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	cfg, err = Load(parseFlags(t, "-config", other))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Accel.Backend != "portable" {
		t.Errorf("expected -config to win, got %q", cfg.Accel.Backend)
	}
}
