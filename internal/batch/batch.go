// Package batch optimizes many mesh files with a fixed worker pool.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshjuice/pkg/formats"
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Optimizer turns an encoded mesh file into an optimized one of the same
// format. *meshopt.Optimizer implements it.
type Optimizer interface {
	OptimizeBytes(data []byte, cfg mesh.OptConfig) ([]byte, mesh.Stats, error)
}

// Config holds all shared settings for a batch run.
type Config struct {
	Workers   int
	OutputDir string // empty writes next to each input
	Suffix    string // appended to the file stem, e.g. "_optimized"
	Overwrite bool   // allow an output path equal to its input
	Options   mesh.OptConfig
	Progress  time.Duration // interval of progress log lines, 0 disables
	Log       *zap.Logger
}

// Result holds the outcome of processing one file.
type Result struct {
	Input   string
	Output  string
	Stats   mesh.Stats
	Skipped bool // not started because the run was cancelled
	Err     error
}

// Run processes all paths using a worker pool and returns one result per
// path, in input order. Once ctx is cancelled no further files are
// started; files already being processed finish.
func Run(ctx context.Context, o Optimizer, cfg Config, paths []string) []Result {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	total := len(paths)
	results := make([]Result, total)
	for i, p := range paths {
		results[i] = Result{Input: p, Skipped: true, Err: context.Canceled}
	}
	var processed atomic.Int64
	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	if cfg.Progress > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Progress)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					p := processed.Load()
					if p > 0 {
						rate := float64(p) / time.Since(start).Seconds()
						log.Info("progress", zap.Int64("done", p), zap.Int("total", total),
							zap.String("rate", fmt.Sprintf("%.1f files/sec", rate)))
					}
				}
			}
		}()
	}

	// Worker pool
	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = processFile(o, cfg, paths[idx])
				processed.Add(1)
			}
		}()
	}

	// Send work
dispatch:
	for i := range paths {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	wg.Wait()
	close(done)

	if err := ctx.Err(); err != nil {
		for i := range results {
			if results[i].Skipped {
				results[i].Err = err
			}
		}
		log.Warn("batch cancelled", zap.Int64("done", processed.Load()), zap.Int("total", total))
	}
	return results
}

func processFile(o Optimizer, cfg Config, input string) Result {
	res := Result{Input: input, Output: OutputPath(input, cfg)}

	if !cfg.Overwrite && sameFile(res.Input, res.Output) {
		res.Err = fmt.Errorf("output %s would overwrite the input", res.Output)
		return res
	}

	data, err := os.ReadFile(input)
	if err != nil {
		res.Err = err
		return res
	}

	out, stats, err := o.OptimizeBytes(data, cfg.Options)
	if err != nil {
		res.Err = err
		return res
	}
	res.Stats = stats

	if err := os.MkdirAll(filepath.Dir(res.Output), 0755); err != nil {
		res.Err = err
		return res
	}
	if err := os.WriteFile(res.Output, out, 0644); err != nil {
		res.Err = err
		return res
	}
	return res
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// OutputPath returns where the optimized copy of input is written.
func OutputPath(input string, cfg Config) string {
	dir, base := filepath.Split(input)
	if cfg.OutputDir != "" {
		dir = cfg.OutputDir
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+cfg.Suffix+ext)
}

// Collect returns the decodable mesh files under root, sorted. Files are
// recognized by extension. A root that is a file is returned as is.
func Collect(root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if formats.FormatFromPath(path).Supported() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Summary counts the results by outcome.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize counts results and joins the errors of failed files.
func Summarize(results []Result) (Summary, error) {
	var s Summary
	var err error
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Err != nil:
			s.Failed++
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Input, r.Err))
		default:
			s.Succeeded++
		}
	}
	return s, err
}
