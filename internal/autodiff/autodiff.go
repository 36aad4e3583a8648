// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps a NeighborhoodBackend implementation (CPU, WebGPU)
// and records every differentiable operation on a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any NeighborhoodBackend
//   - GradientTape: Records operations during forward pass
//   - ops.Operation: Each op implements its own backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	out, err := backend.Subtraction2ZeroPad(x1, x2, win)
//	grads := autodiff.Backward(out, backend)
//	fmt.Println(grads[x1])
package autodiff

import (
	"github.com/born-ml/vision/internal/autodiff/ops"
	"github.com/born-ml/vision/internal/tensor"
)

// AutodiffBackend wraps a NeighborhoodBackend and adds automatic
// differentiation. It satisfies tensor.NeighborhoodBackend itself, so it can
// be passed wherever the wrapped backend is expected.
type AutodiffBackend[B tensor.NeighborhoodBackend] struct {
	inner B
	tape  *GradientTape
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.NeighborhoodBackend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add delegates to the wrapped backend. Gradient accumulation uses it, so
// it is not recorded.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Add(a, c)
}

// Subtraction2ZeroPad runs the differencing operator and records it.
func (b *AutodiffBackend[B]) Subtraction2ZeroPad(input1, input2 *tensor.RawTensor, win tensor.Window) (*tensor.RawTensor, error) {
	op, err := ops.Subtraction2ZeroPad(b.inner, input1, input2, win)
	if err != nil {
		return nil, err
	}
	b.tape.Record(op)
	return op.Output(), nil
}

// Aggregation runs the weighted aggregation and records it.
func (b *AutodiffBackend[B]) Aggregation(input, weight *tensor.RawTensor, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	op, err := ops.Aggregation(b.inner, input, weight, win, mode)
	if err != nil {
		return nil, err
	}
	b.tape.Record(op)
	return op.Output(), nil
}

// Subtraction2ZeroPadGradInput1 delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Subtraction2ZeroPadGradInput1(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	return b.inner.Subtraction2ZeroPadGradInput1(grad, inShape, win)
}

// Subtraction2ZeroPadGradInput2 delegates to the wrapped backend.
func (b *AutodiffBackend[B]) Subtraction2ZeroPadGradInput2(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	return b.inner.Subtraction2ZeroPadGradInput2(grad, inShape, win)
}

// AggregationGradInput delegates to the wrapped backend.
func (b *AutodiffBackend[B]) AggregationGradInput(grad, weight *tensor.RawTensor, inShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	return b.inner.AggregationGradInput(grad, weight, inShape, win, mode)
}

// AggregationGradWeight delegates to the wrapped backend.
func (b *AutodiffBackend[B]) AggregationGradWeight(grad, input *tensor.RawTensor, weightShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	return b.inner.AggregationGradWeight(grad, input, weightShape, win, mode)
}
