// meshjuice is a CLI for optimizing, validating and inspecting 3D mesh files.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/internal/accel"
	"github.com/Faultbox/meshjuice/internal/batch"
	"github.com/Faultbox/meshjuice/internal/config"
	"github.com/Faultbox/meshjuice/internal/logger"
	"github.com/Faultbox/meshjuice/internal/metrics"
	"github.com/Faultbox/meshjuice/internal/vcache"
	"github.com/Faultbox/meshjuice/internal/weld"
	"github.com/Faultbox/meshjuice/pkg/formats"
	meshmath "github.com/Faultbox/meshjuice/pkg/math"
	"github.com/Faultbox/meshjuice/pkg/mesh"
	"github.com/Faultbox/meshjuice/pkg/meshopt"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "optimize", "opt":
		cmdOptimize(args)
	case "validate", "check":
		cmdValidate(args)
	case "info":
		cmdInfo(args)
	case "batch":
		cmdBatch(args)
	case "init":
		cmdInit(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshjuice - mesh optimization toolkit

Usage:
  meshjuice <command> [options]

Commands:
  optimize [options] <in> [out]   Weld, decimate and cache-optimize a mesh file
  validate <file>                 Check mesh structure and report problems
  info [options] <file>           Show format, counts, bounds and backend
  batch [options] <dir|file>...   Optimize many files with a worker pool
  init [path]                     Write a default config file

Supported formats: OBJ, STL (ASCII/binary), PLY (ASCII/binary), ASCII FBX.
Output "-" writes to stdout. Run "meshjuice <command> -h" for options.

Examples:
  meshjuice optimize -ratio 0.25 ship.obj ship_lod.obj
  meshjuice optimize -reduction 0.9 -backend portable scan.ply -
  meshjuice validate part.stl
  meshjuice batch -workers 8 -output-dir dist -recursive assets/`)
}

// session is the state shared by commands after flags are parsed.
type session struct {
	cfg      *config.Config
	opt      *meshopt.Optimizer
	strategy *accel.Strategy
	counters *metrics.Counters
}

// setup loads config with priority defaults < file < flags, initializes
// logging and selects the execution backend.
func setup(cfg *config.Config) *session {
	err := logger.InitWithOptions(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: true,
		File:    fileConfig(cfg.Logging.LogFile),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	logger.Sugar.Debugf("Config: %+v", cfg)

	strategy, err := meshopt.NewStrategy(cfg.Accel.Backend, cfg.Accel.NativeLib)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	counters := metrics.New()
	return &session{
		cfg:      cfg,
		strategy: strategy,
		counters: counters,
		opt:      meshopt.New(meshopt.WithStrategy(strategy), meshopt.WithMetrics(counters)),
	}
}

func (s *session) close() {
	logger.Debug("metrics", zap.Stringer("snapshot", s.counters.Snapshot()))
	if err := s.strategy.Close(); err != nil {
		logger.Warn("closing backend", zap.Error(err))
	}
	logger.Sync()
}

func fileConfig(path string) logger.FileConfig {
	if path == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(path)
}

func parseConfig(fs *flag.FlagSet, args []string) *config.Config {
	flags := config.RegisterFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdOptimize(args []string) {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	cfg := parseConfig(fs, args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshjuice optimize [options] <in> [out]")
		os.Exit(1)
	}
	input := fs.Arg(0)
	output := fs.Arg(1)
	if output == "" {
		output = batch.OutputPath(input, batch.Config{Suffix: cfg.Batch.Suffix})
	}

	s := setup(cfg)
	defer s.close()

	data, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out, stats, err := s.opt.OptimizeBytes(data, cfg.ToOptConfig())
	if err != nil {
		logger.Error("optimization failed", zap.String("input", input), zap.Error(err))
		os.Exit(1)
	}

	if err := writeOutput(output, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("optimized", zap.String("input", input), zap.String("output", output),
		zap.String("backend", stats.Backend), zap.Stringer("stats", stats))
	if output != "-" {
		fmt.Printf("%s -> %s\n", input, output)
		fmt.Printf("  %s\n", stats)
		fmt.Printf("  backend: %s\n", s.strategy.Describe())
	}
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readMesh(path string) (*mesh.Mesh, formats.Format, []byte) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m, f, err := formats.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
		os.Exit(1)
	}
	return m, f, data
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshjuice validate <file>...")
		os.Exit(1)
	}

	failed := false
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
			continue
		}
		f, _ := formats.Detect(data)
		// Decode without the structural check so the report can list every
		// problem.
		m, err := formats.ParseUnchecked(data, f)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed = true
			continue
		}
		report := mesh.Validate(m)
		printReport(os.Stdout, path, f, report)
		if !report.IsValid {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printReport(w io.Writer, path string, f formats.Format, r mesh.ValidationReport) {
	status := "valid"
	if !r.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s (%s): %s, %d vertices, %d triangles\n", path, f, status, r.VertexCount, r.TriangleCount)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error:   %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	cfg := parseConfig(fs, args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshjuice info [options] <file>")
		os.Exit(1)
	}

	s := setup(cfg)
	defer s.close()

	m, f, data := readMesh(fs.Arg(0))
	fmt.Printf("File:      %s\n", fs.Arg(0))
	fmt.Printf("Format:    %s\n", f)
	fmt.Printf("Size:      %.2f KB\n", float64(len(data))/1024)
	fmt.Printf("Vertices:  %d (%d referenced)\n", m.VertexCount(), m.UsedVertexCount())
	fmt.Printf("Triangles: %d\n", m.TriangleCount())
	if b, ok := m.Bounds(); ok {
		size := b.Size()
		fmt.Printf("Bounds:    min %v max %v size %v\n", b.Min, b.Max, size)
	}
	fmt.Printf("Area:      %.4f\n", surfaceArea(m))
	fmt.Printf("Welded:    %d vertices at tolerance %g\n", weld.Count(m, cfg.Mesh.VertexTolerance), cfg.Mesh.VertexTolerance)
	fmt.Printf("ACMR:      %.3f (cache %d)\n", vcache.ACMR(m.Indices, vcache.DefaultCacheSize), vcache.DefaultCacheSize)
	fmt.Printf("Memory:    %.2f KB\n", float64(m.SizeBytes())/1024)
	fmt.Printf("Backend:   %s\n", s.strategy.Describe())
}

// surfaceArea sums the triangle areas of a checked mesh.
func surfaceArea(m *mesh.Mesh) float64 {
	var total float64
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a := meshmath.FromArray(m.Position(tri[0]))
		b := meshmath.FromArray(m.Position(tri[1]))
		c := meshmath.FromArray(m.Position(tri[2]))
		total += float64(meshmath.TriangleArea(a, b, c))
	}
	return total
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	recursive := fs.Bool("recursive", false, "Descend into subdirectories")
	progress := fs.Duration("progress", 2*time.Second, "Progress log interval (0 = off)")
	cfg := parseConfig(fs, args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshjuice batch [options] <dir|file>...")
		os.Exit(1)
	}

	s := setup(cfg)
	defer s.close()

	var paths []string
	for _, root := range fs.Args() {
		found, err := batch.Collect(root, *recursive)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		fmt.Println("No mesh files found")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting batch", zap.Int("files", len(paths)), zap.Int("workers", cfg.WorkerCount()),
		zap.String("backend", s.strategy.Name()))
	start := time.Now()
	results := batch.Run(ctx, s.opt, batch.Config{
		Workers:   cfg.WorkerCount(),
		OutputDir: cfg.Batch.OutputDir,
		Suffix:    cfg.Batch.Suffix,
		Overwrite: cfg.Batch.Overwrite,
		Options:   cfg.ToOptConfig(),
		Progress:  *progress,
		Log:       logger.Named("batch"),
	}, paths)

	for _, r := range results {
		switch {
		case r.Skipped:
		case r.Err != nil:
			fmt.Printf("FAIL %s: %v\n", r.Input, r.Err)
		default:
			fmt.Printf("ok   %s -> %s (%s)\n", r.Input, r.Output, r.Stats)
		}
	}

	sum, err := batch.Summarize(results)
	snap := s.counters.Snapshot()
	fmt.Printf("\n%d succeeded, %d failed, %d skipped in %v\n",
		sum.Succeeded, sum.Failed, sum.Skipped, time.Since(start).Round(time.Millisecond))
	fmt.Printf("Engine: %s (%.2f MB/s)\n", snap, snap.Throughput())
	if err != nil || sum.Skipped > 0 {
		os.Exit(1)
	}
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(args)

	cfg := config.Default()
	path := fs.Arg(0)
	if path == "" {
		path = config.FileName
	}
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: %s exists (use -force to replace it)\n", path)
		os.Exit(1)
	}
	if err := cfg.SaveTo(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}
