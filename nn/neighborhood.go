// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Subtraction2ZeroPad computes, for every window position, the difference
// between the centre pixel of x1 and each neighbour of x2. The result has
// shape [N, C, KH*KW, OH*OW]; taps outside the image read as zero.
//
// Example:
//
//	// 3x3 window, stride 1, padding 1, dilation 1
//	diff, err := nn.Subtraction2ZeroPad(backend, x1, x2, 3, 1, 1, 1)
//	if errors.Is(err, autodiff.ErrUnsupportedDevice) {
//	    // no kernel for the tensors' device
//	}
func Subtraction2ZeroPad(backend tensor.Backend, x1, x2 *tensor.RawTensor, kernel, stride, padding, dilation any) (*tensor.RawTensor, error) {
	return nn.Subtraction2ZeroPad(backend, x1, x2, kernel, stride, padding, dilation)
}

// Aggregation applies a per-position weighted sum over each pixel's
// neighborhood.
type Aggregation = nn.Aggregation

// NewAggregation creates an aggregation module with a fixed window and
// border policy (tensor.PadZero or tensor.PadReflect).
//
// Example:
//
//	agg := nn.NewAggregation(3, 1, 1, 1, tensor.PadReflect, backend)
//	out, err := agg.Forward(x, w) // x [N,C,H,W], w [N,C/g,9,H*W]
func NewAggregation(kernel, stride, padding, dilation any, padMode tensor.PadMode, backend tensor.Backend) *Aggregation {
	return nn.NewAggregation(kernel, stride, padding, dilation, padMode, backend)
}
