//go:build windows

package webgpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

var (
	addKernel             = kernel{"add", addShader}
	subtraction2Forward   = kernel{"subtraction2_zeropad_forward", subtraction2ForwardShader}
	subtraction2Input1    = kernel{"subtraction2_zeropad_input1_backward", subtraction2Input1Shader}
	subtraction2Input2    = kernel{"subtraction2_zeropad_input2_backward", subtraction2Input2Shader}
	aggregationForward    = kernel{"aggregation_forward", aggregationForwardShader}
	aggregationInputGrad  = kernel{"aggregation_input_backward", aggregationInputShader}
	aggregationWeightGrad = kernel{"aggregation_weight_backward", aggregationWeightShader}
)

// neighborhoodParams mirrors the WGSL Params struct minus the trailing
// total and groups_x fields, which run appends.
type neighborhoodParams struct {
	n, c, h, w, oh, ow int
	win                tensor.Window
	cw                 int
	mode               tensor.PadMode
}

func newParams(inShape tensor.Shape, win tensor.Window) (neighborhoodParams, error) {
	if len(inShape) != 4 {
		return neighborhoodParams{}, fmt.Errorf("expected 4D input [N,C,H,W], got %v", inShape)
	}
	n, c, h, w := inShape.NCHW()
	oh, ow := win.OutputSize(h, w)
	if oh <= 0 || ow <= 0 {
		return neighborhoodParams{}, fmt.Errorf("empty output %dx%d for input %dx%d with %v", oh, ow, h, w, win)
	}
	return neighborhoodParams{n: n, c: c, h: h, w: w, oh: oh, ow: ow, win: win, cw: 1}, nil
}

func (p neighborhoodParams) withWeight(weightShape tensor.Shape, mode tensor.PadMode) (neighborhoodParams, error) {
	if len(weightShape) != 4 || weightShape[1] <= 0 || p.c%weightShape[1] != 0 {
		return p, fmt.Errorf("weight shape %v incompatible with %d input channels", weightShape, p.c)
	}
	want := tensor.Shape{p.n, weightShape[1], p.win.Kernel.Area(), p.oh * p.ow}
	if !weightShape.Equal(want) {
		return p, fmt.Errorf("weight shape %v, want %v", weightShape, want)
	}
	p.cw = weightShape[1]
	p.mode = mode
	return p, nil
}

func (p neighborhoodParams) encode() []int32 {
	vals := []int{
		p.n, p.c, p.h, p.w,
		p.oh, p.ow, p.win.Kernel.H, p.win.Kernel.W,
		p.win.Stride.H, p.win.Stride.W, p.win.Padding.H, p.win.Padding.W,
		p.win.Dilation.H, p.win.Dilation.W, p.cw, int(p.mode),
	}
	out := make([]int32, len(vals), len(vals)+2)
	for i, v := range vals {
		//nolint:gosec // G115: tensor dimensions fit in int32
		out[i] = int32(v)
	}
	return out
}

func (p neighborhoodParams) inShape() tensor.Shape {
	return tensor.Shape{p.n, p.c, p.h, p.w}
}

// Add performs element-wise addition on the GPU.
func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(other.Shape()) {
		panic(fmt.Sprintf("webgpu: add shape mismatch: %v vs %v", a.Shape(), other.Shape()))
	}
	result, err := b.run(addKernel, []*tensor.RawTensor{a, other}, a.Shape(), a.NumElements(), nil)
	if err != nil {
		panic(fmt.Sprintf("webgpu: add: %v", err))
	}
	return result
}

// Subtraction2ZeroPad computes centre-minus-neighbour differences.
func (b *Backend) Subtraction2ZeroPad(input1, input2 *tensor.RawTensor, win tensor.Window) (*tensor.RawTensor, error) {
	p, err := newParams(input1.Shape(), win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad: %w", err)
	}
	outShape := tensor.Shape{p.n, p.c, win.Kernel.Area(), p.oh * p.ow}
	return b.run(subtraction2Forward, []*tensor.RawTensor{input1, input2}, outShape, p.n*p.c*p.oh*p.ow, p.encode())
}

// Subtraction2ZeroPadGradInput1 maps an output gradient back onto input1.
func (b *Backend) Subtraction2ZeroPadGradInput1(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	p, err := newParams(inShape, win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad input1 backward: %w", err)
	}
	return b.run(subtraction2Input1, []*tensor.RawTensor{grad}, p.inShape(), inShape.NumElements(), p.encode())
}

// Subtraction2ZeroPadGradInput2 maps an output gradient back onto input2.
func (b *Backend) Subtraction2ZeroPadGradInput2(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	p, err := newParams(inShape, win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad input2 backward: %w", err)
	}
	return b.run(subtraction2Input2, []*tensor.RawTensor{grad}, p.inShape(), inShape.NumElements(), p.encode())
}

// Aggregation computes the weighted sum of each window.
func (b *Backend) Aggregation(input, weight *tensor.RawTensor, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	p, err := newParams(input.Shape(), win)
	if err == nil {
		p, err = p.withWeight(weight.Shape(), mode)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}
	outShape := tensor.Shape{p.n, p.c, p.oh, p.ow}
	return b.run(aggregationForward, []*tensor.RawTensor{input, weight}, outShape, outShape.NumElements(), p.encode())
}

// AggregationGradInput maps an output gradient back onto the input.
func (b *Backend) AggregationGradInput(grad, weight *tensor.RawTensor, inShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	p, err := newParams(inShape, win)
	if err == nil {
		p, err = p.withWeight(weight.Shape(), mode)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregation input backward: %w", err)
	}
	return b.run(aggregationInputGrad, []*tensor.RawTensor{grad, weight}, p.inShape(), inShape.NumElements(), p.encode())
}

// AggregationGradWeight maps an output gradient back onto the weight.
func (b *Backend) AggregationGradWeight(grad, input *tensor.RawTensor, weightShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	p, err := newParams(input.Shape(), win)
	if err == nil {
		p, err = p.withWeight(weightShape, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregation weight backward: %w", err)
	}
	return b.run(aggregationWeightGrad, []*tensor.RawTensor{grad, input}, weightShape, weightShape.NumElements(), p.encode())
}
