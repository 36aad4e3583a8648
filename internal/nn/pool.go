package nn

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// AdaptiveAvgPool2D averages input regions so every plane comes out at a
// fixed size regardless of the input resolution.
type AdaptiveAvgPool2D struct {
	stateless
	out     tensor.Pair
	backend tensor.LayerBackend
}

// NewAdaptiveAvgPool2D creates the layer; out is an int or an (h, w) pair.
func NewAdaptiveAvgPool2D(out any, backend tensor.LayerBackend) *AdaptiveAvgPool2D {
	p := tensor.MustPair(out)
	if p.H <= 0 || p.W <= 0 {
		panic(fmt.Sprintf("adaptive_avg_pool2d: invalid output size %v", p))
	}
	return &AdaptiveAvgPool2D{out: p, backend: backend}
}

// Forward pools input [N, C, H, W] to [N, C, out_h, out_w].
func (a *AdaptiveAvgPool2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return a.backend.AdaptiveAvgPool2D(input, a.out)
}

// Flatten reshapes [N, ...] to [N, prod(...)] without copying.
type Flatten struct {
	stateless
}

// NewFlatten creates a Flatten module.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward returns a view of input with all but the batch dimension merged.
func (f *Flatten) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("flatten: expected at least 2D input, got %dD", len(shape)))
	}
	out, err := input.View(tensor.Shape{shape[0], shape.NumElements() / shape[0]})
	if err != nil {
		panic(fmt.Sprintf("flatten: %v", err))
	}
	return out
}
