// Package ops defines the differentiable neighborhood operations.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by a tensor.NeighborhoodBackend at construction
//   - Backward pass: computes gradients for inputs given the output gradient
//
// Supported operations:
//   - Subtraction2Op: centre-minus-neighbour differences over a sliding window
//   - AggregationOp: per-pixel weighted sum over a sliding window
package ops

import "github.com/born-ml/vision/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice with one entry per input; entries for inputs that do
	// not need a gradient are nil.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// Recorder receives operations as they are constructed.
// *autodiff.GradientTape implements it.
type Recorder interface {
	Record(op Operation)
}
