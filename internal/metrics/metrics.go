// Package metrics provides an injectable sink for engine performance
// counters.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Counters accumulates engine statistics. All methods are safe for concurrent
// use and a nil *Counters discards every update, so stages can record
// unconditionally.
type Counters struct {
	operations     atomic.Int64
	accelerated    atomic.Int64
	fallbacks      atomic.Int64
	failures       atomic.Int64
	bytesProcessed atomic.Int64
	elapsedNanos   atomic.Int64
}

// New returns zeroed counters.
func New() *Counters {
	return &Counters{}
}

// Operation records one completed algorithm run over a mesh of the given size.
func (c *Counters) Operation(bytes int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.operations.Add(1)
	c.bytesProcessed.Add(int64(bytes))
	c.elapsedNanos.Add(int64(elapsed))
}

// Accelerated records a call dispatched to the accelerated implementation.
func (c *Counters) Accelerated() {
	if c == nil {
		return
	}
	c.accelerated.Add(1)
}

// Fallback records an accelerated attempt that was discarded in favour of
// the portable implementation.
func (c *Counters) Fallback() {
	if c == nil {
		return
	}
	c.fallbacks.Add(1)
}

// Failure records an operation that returned an error to the caller.
func (c *Counters) Failure() {
	if c == nil {
		return
	}
	c.failures.Add(1)
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	if c == nil {
		return
	}
	c.operations.Store(0)
	c.accelerated.Store(0)
	c.fallbacks.Store(0)
	c.failures.Store(0)
	c.bytesProcessed.Store(0)
	c.elapsedNanos.Store(0)
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Operations     int64
	Accelerated    int64
	Fallbacks      int64
	Failures       int64
	BytesProcessed int64
	Elapsed        time.Duration
}

// Snapshot reads all counters. Each field is read atomically; the snapshot as
// a whole is not.
func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Operations:     c.operations.Load(),
		Accelerated:    c.accelerated.Load(),
		Fallbacks:      c.fallbacks.Load(),
		Failures:       c.failures.Load(),
		BytesProcessed: c.bytesProcessed.Load(),
		Elapsed:        time.Duration(c.elapsedNanos.Load()),
	}
}

// Throughput returns processed megabytes per second, or 0 before any work.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesProcessed) / (1 << 20) / s.Elapsed.Seconds()
}

func (s Snapshot) String() string {
	return fmt.Sprintf("ops=%d accelerated=%d fallbacks=%d failures=%d bytes=%d elapsed=%v",
		s.Operations, s.Accelerated, s.Fallbacks, s.Failures, s.BytesProcessed, s.Elapsed)
}
