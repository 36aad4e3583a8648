// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for the neighborhood operators.
//
// The differencing and aggregation kernels run as WGSL compute shaders.
// WGSL has no f64, so only float32 tensors are accepted. The native bindings
// are wired on Windows; on other platforms IsAvailable reports false and New
// returns an error.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vision/autodiff"
//	    "github.com/born-ml/vision/backend/webgpu"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    backend := autodiff.New(gpu)
//	    out, err := backend.Subtraction2ZeroPad(x1, x2, win)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/vision/internal/backend/webgpu"
	"github.com/born-ml/vision/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.NeighborhoodBackend.
var _ tensor.NeighborhoodBackend = (*Backend)(nil)

// New creates a new WebGPU backend.
//
// This function initializes the WebGPU device and returns a backend
// ready for the neighborhood kernels. Call Release() when done to free GPU
// resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
