// Package config handles meshjuice configuration loading and management.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Config holds all meshjuice settings.
type Config struct {
	Mesh    MeshConfig    `yaml:"mesh"`
	Accel   AccelConfig   `yaml:"accel"`
	Batch   BatchConfig   `yaml:"batch"`
	Logging LoggingConfig `yaml:"logging"`
}

// MeshConfig holds the optimization pipeline settings.
type MeshConfig struct {
	TargetRatio         float32        `yaml:"target_ratio"` // fraction of triangles to keep
	VertexTolerance     float32        `yaml:"vertex_tolerance"`
	PreserveTopology    bool           `yaml:"preserve_topology"`
	WeldVertices        bool           `yaml:"weld_vertices"`
	OptimizeVertexCache bool           `yaml:"optimize_vertex_cache"`
	Algorithm           mesh.Algorithm `yaml:"algorithm"`
}

// AccelConfig selects the execution backend.
type AccelConfig struct {
	Backend   string `yaml:"backend"`    // auto, native, qem or portable
	NativeLib string `yaml:"native_lib"` // empty searches the default library name
}

// BatchConfig holds settings for processing many files.
type BatchConfig struct {
	Workers   int    `yaml:"workers"`    // 0 uses one worker per CPU
	OutputDir string `yaml:"output_dir"` // empty writes next to the input
	Suffix    string `yaml:"suffix"`     // appended to the file stem
	Overwrite bool   `yaml:"overwrite"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // console or json
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opt := mesh.DefaultOptConfig()
	return &Config{
		Mesh: MeshConfig{
			TargetRatio:         opt.TargetRatio,
			VertexTolerance:     opt.VertexTolerance,
			PreserveTopology:    opt.PreserveTopology,
			WeldVertices:        opt.WeldVertices,
			OptimizeVertexCache: opt.OptimizeVertexCache,
			Algorithm:           opt.Algorithm,
		},
		Accel: AccelConfig{
			Backend: "auto",
		},
		Batch: BatchConfig{
			Workers: 0,
			Suffix:  "_optimized",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			LogFile: "",
		},
	}
}

// ToOptConfig converts the mesh settings for the optimizer.
func (c *Config) ToOptConfig() mesh.OptConfig {
	return mesh.OptConfig{
		TargetRatio:         c.Mesh.TargetRatio,
		VertexTolerance:     c.Mesh.VertexTolerance,
		PreserveTopology:    c.Mesh.PreserveTopology,
		WeldVertices:        c.Mesh.WeldVertices,
		OptimizeVertexCache: c.Mesh.OptimizeVertexCache,
		Algorithm:           c.Mesh.Algorithm,
	}
}

// WorkerCount returns the effective number of batch workers.
func (c *Config) WorkerCount() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	return runtime.NumCPU()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	err = multierr.Append(err, c.ToOptConfig().Validate())

	switch strings.ToLower(c.Accel.Backend) {
	case "auto", "native", "qem", "portable":
	default:
		err = multierr.Append(err, fmt.Errorf("accel.backend: unknown backend %q", c.Accel.Backend))
	}
	if c.Batch.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("batch.workers: %d must not be negative", c.Batch.Workers))
	}
	if c.Batch.OutputDir == "" && c.Batch.Suffix == "" && !c.Batch.Overwrite {
		err = multierr.Append(err, fmt.Errorf("batch: an empty suffix without output_dir overwrites inputs; set overwrite: true"))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return err
}
