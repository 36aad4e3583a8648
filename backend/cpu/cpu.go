// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the CPU compute backend.
package cpu

import (
	internalcpu "github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/tensor"
)

// Backend represents the CPU backend implementation.
//
// Kernels are plain Go loops fanned out over a goroutine worker pool. The
// neighborhood operators use one logical worker per output element.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls the worker pool used by the kernels.
type ParallelConfig = parallel.Config

// Compile-time checks that Backend implements the backend interfaces.
var (
	_ tensor.LayerBackend        = (*Backend)(nil)
	_ tensor.NeighborhoodBackend = (*Backend)(nil)
)

// New creates a new CPU backend with one worker per CPU.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    win, _ := tensor.NewWindow(3, 1, 1, 1)
//	    out, err := backend.Subtraction2ZeroPad(x1, x2, win)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with an explicit worker pool.
// A disabled Config runs every kernel on the calling goroutine.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns the worker pool configuration New uses.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}
