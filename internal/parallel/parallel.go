// Package parallel provides the goroutine worker pool the CPU kernels are
// dispatched on. Work is split into contiguous index ranges, one goroutine
// per range; every index is visited exactly once.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Workers returns the number of goroutines For would start for n items.
func (cfg Config) Workers(n int) int {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		return 1
	}
	chunk := cfg.chunkSize(n)
	return (n + chunk - 1) / chunk
}

func (cfg Config) chunkSize(n int) int {
	workers := max(cfg.NumWorkers, 1)
	return max((n+workers-1)/workers, cfg.MinChunkSize, 1)
}

// ForRange executes f(start, end) over disjoint ranges covering [0, n).
// Kernels use it to hoist per-range setup out of the element loop.
func ForRange(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	if cfg.Workers(n) == 1 {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	chunk := cfg.chunkSize(n)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// ForBatch optimized for batch*channels iteration pattern.
// Common in CNN operations like Conv2D.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	n := batch * channels
	For(n, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
