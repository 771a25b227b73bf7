package config

import "flag"

// Flags holds the command-line overrides registered on a flag set. Only
// flags that were set on the command line override the config.
type Flags struct {
	fs *flag.FlagSet

	config    *string
	debug     *bool
	ratio     *float64
	reduction *float64
	tolerance *float64
	algorithm *string
	preserve  *bool
	weld      *bool
	vcache    *bool
	backend   *string
	nativeLib *string
	workers   *int
	outputDir *string
	suffix    *string
	overwrite *bool
	logLevel  *string
	logFile   *string
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		fs:        fs,
		config:    fs.String("config", "", "Path to config file"),
		debug:     fs.Bool("debug", false, "Enable debug logging"),
		ratio:     fs.Float64("ratio", 0, "Fraction of triangles to keep, in (0, 1]"),
		reduction: fs.Float64("reduction", 0, "Fraction of triangles to remove, in [0, 1); overrides -ratio"),
		tolerance: fs.Float64("tolerance", 0, "Vertex welding distance"),
		algorithm: fs.String("algorithm", "", "Decimation algorithm: qem, edge-collapse or vertex-clustering"),
		preserve:  fs.Bool("preserve-topology", true, "Keep mesh boundaries while decimating"),
		weld:      fs.Bool("weld", true, "Merge duplicate vertices"),
		vcache:    fs.Bool("vcache", true, "Reorder triangles for vertex cache locality"),
		backend:   fs.String("backend", "", "Execution backend: auto, native, qem or portable"),
		nativeLib: fs.String("native-lib", "", "Path to the native hotspot library"),
		workers:   fs.Int("workers", 0, "Number of batch workers (0 = one per CPU)"),
		outputDir: fs.String("output-dir", "", "Directory for optimized files"),
		suffix:    fs.String("suffix", "", "Suffix appended to optimized file names"),
		overwrite: fs.Bool("overwrite", false, "Replace input files in place"),
		logLevel:  fs.String("log-level", "", "Log level: debug, info, warn or error"),
		logFile:   fs.String("log-file", "", "Write logs to a rotated file"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// isSet reports whether the named flag was given on the command line.
func (f *Flags) isSet(name string) bool {
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) error {
	if f == nil {
		return nil
	}
	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.isSet("ratio") {
		cfg.Mesh.TargetRatio = float32(*f.ratio)
	}
	if f.isSet("reduction") {
		cfg.Mesh.TargetRatio = float32(1 - *f.reduction)
	}
	if f.isSet("tolerance") {
		cfg.Mesh.VertexTolerance = float32(*f.tolerance)
	}
	if f.isSet("algorithm") {
		if err := cfg.Mesh.Algorithm.UnmarshalText([]byte(*f.algorithm)); err != nil {
			return err
		}
	}
	if f.isSet("preserve-topology") {
		cfg.Mesh.PreserveTopology = *f.preserve
	}
	if f.isSet("weld") {
		cfg.Mesh.WeldVertices = *f.weld
	}
	if f.isSet("vcache") {
		cfg.Mesh.OptimizeVertexCache = *f.vcache
	}
	if *f.backend != "" {
		cfg.Accel.Backend = *f.backend
	}
	if *f.nativeLib != "" {
		cfg.Accel.NativeLib = *f.nativeLib
	}
	if *f.workers > 0 {
		cfg.Batch.Workers = *f.workers
	}
	if *f.outputDir != "" {
		cfg.Batch.OutputDir = *f.outputDir
	}
	if f.isSet("suffix") {
		cfg.Batch.Suffix = *f.suffix
	}
	if *f.overwrite {
		cfg.Batch.Overwrite = true
	}
	if *f.logLevel != "" {
		cfg.Logging.Level = *f.logLevel
	}
	if *f.logFile != "" {
		cfg.Logging.LogFile = *f.logFile
	}
	return nil
}
