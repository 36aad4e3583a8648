// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor types shared by every vision component.
//
// # Overview
//
// A RawTensor is a dense, row-major buffer tagged with a shape, a data type
// and a device. Feature maps are rank 4 in (N, C, H, W) order.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/nn"
//	    "github.com/born-ml/vision/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x1 := tensor.RandN(tensor.Shape{1, 8, 16, 16}, tensor.Float32, tensor.CPU, nil)
//	    x2 := tensor.RandN(tensor.Shape{1, 8, 16, 16}, tensor.Float32, tensor.CPU, nil)
//
//	    // (1, 8, 9, 256): one difference per kernel tap and output pixel
//	    out, err := nn.Subtraction2ZeroPad(backend, x1, x2, 3, 1, 1, 1)
//	}
//
// # Kernel descriptors
//
// Kernel size, stride, padding and dilation accept either an int or a
// two-element [2]int / []int and normalise to a Pair:
//
//	win, err := tensor.NewWindow(3, 1, [2]int{1, 2}, 1)
//
// # Supported Data Types
//
// Float32 and Float64 carry feature data. Int32, Int64, Uint8 and Bool are
// storage types used by state dicts and optimizer buffers.
//
// # Backends
//
// Backend is the minimum a compute device provides. LayerBackend adds the
// layers CNN backbones need, and NeighborhoodBackend adds the differencing
// and aggregation kernels.
package tensor
