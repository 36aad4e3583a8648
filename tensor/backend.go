// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/vision/internal/tensor"

// Backend defines the interface that all compute backends must implement.
//
// Implementations:
//   - backend/cpu: Pure Go over a goroutine worker pool
//   - backend/webgpu: WGSL compute shaders via WebGPU (Windows builds)
//
// Decorator backends for additional functionality:
//   - autodiff: Records neighborhood operations on a gradient tape
type Backend = tensor.Backend

// LayerBackend extends Backend with the CNN layers used by the backbones:
// convolution, max pooling, ReLU, batch norm, L2 norm, adaptive average
// pooling and channel concatenation.
type LayerBackend = tensor.LayerBackend

// NeighborhoodBackend extends Backend with the differencing and aggregation
// kernels and their gradients.
//
// Example:
//
//	backend := cpu.New()
//	win, _ := tensor.NewWindow(3, 1, 1, 1)
//	out, err := backend.Subtraction2ZeroPad(x1, x2, win)
type NeighborhoodBackend = tensor.NeighborhoodBackend

// ConvConfig describes a 2D convolution.
type ConvConfig = tensor.ConvConfig

// PoolConfig describes a 2D max pooling window.
type PoolConfig = tensor.PoolConfig
