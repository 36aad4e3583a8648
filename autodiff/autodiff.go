// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode differentiation for the
// neighborhood operators.
//
// A Backend wraps any tensor.NeighborhoodBackend and records each
// differencing or aggregation call on a gradient tape. Backward walks the
// tape in reverse and accumulates one gradient per input tensor.
//
// Example:
//
//	import (
//	    "github.com/born-ml/vision/autodiff"
//	    "github.com/born-ml/vision/backend/cpu"
//	    "github.com/born-ml/vision/tensor"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    win, _ := tensor.NewWindow(3, 1, 1, 1)
//	    y, err := backend.Subtraction2ZeroPad(x1, x2, win)
//
//	    grads := autodiff.Backward(y, backend)
//	    dx1, dx2 := grads[x1], grads[x2]
//	}
package autodiff

import (
	"github.com/born-ml/vision/internal/autodiff"
	"github.com/born-ml/vision/internal/autodiff/ops"
	"github.com/born-ml/vision/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.NeighborhoodBackend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.NeighborhoodBackend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations during the forward pass.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates an empty, non-recording tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable is satisfied by backends that own a gradient tape.
type BackwardCapable = autodiff.BackwardCapable

// Backward seeds output with ones and returns the gradient of every tensor
// that fed a recorded operation, keyed by tensor.
func Backward(output *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(output, backend)
}

// Operation is a differentiable operation recorded on a tape.
type Operation = ops.Operation

// Subtraction2Op is a recorded centre-minus-neighbour differencing call.
// Set NeedsInputGrad to skip an input's gradient.
type Subtraction2Op = ops.Subtraction2Op

// AggregationOp is a recorded weighted aggregation call.
type AggregationOp = ops.AggregationOp

// Operand errors returned by the neighborhood operators.
var (
	ErrInvalidOperand    = ops.ErrInvalidOperand
	ErrUnsupportedDevice = ops.ErrUnsupportedDevice
)

// Subtraction2ZeroPad runs the differencing forward kernel and returns the
// operation, whose Backward computes the input gradients.
func Subtraction2ZeroPad(backend tensor.Backend, input1, input2 *tensor.RawTensor, win tensor.Window) (*Subtraction2Op, error) {
	return ops.Subtraction2ZeroPad(backend, input1, input2, win)
}

// Aggregation runs the weighted aggregation forward kernel and returns the
// operation.
func Aggregation(backend tensor.Backend, input, weight *tensor.RawTensor, win tensor.Window, mode tensor.PadMode) (*AggregationOp, error) {
	return ops.Aggregation(backend, input, weight, win, mode)
}
