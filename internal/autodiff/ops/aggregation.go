package ops

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// AggregationOp records a weighted local aggregation.
//
// Forward:
//
//	out[n,c,h,w] = Σ_k weight[n, c%CW, k, h*OW+w] * x[n,c,tap(h,w,k)]
//
// Input is [N,C,H,W], weight is [N,CW,KH*KW,OH*OW] with C divisible by CW,
// output is [N,C,OH,OW]. Taps outside the image read as zero (PadZero) or
// reflect about the border (PadReflect).
type AggregationOp struct {
	input  *tensor.RawTensor
	weight *tensor.RawTensor
	output *tensor.RawTensor
	window tensor.Window
	mode   tensor.PadMode

	// NeedsInputGrad selects which of (input, weight) Backward computes.
	NeedsInputGrad [2]bool

	backend tensor.NeighborhoodBackend
}

// Aggregation validates the operands, runs the forward kernel and returns
// the recorded operation.
func Aggregation(backend tensor.Backend, input, weight *tensor.RawTensor, win tensor.Window, mode tensor.PadMode) (*AggregationOp, error) {
	if err := checkFeature("input", input); err != nil {
		return nil, err
	}
	if err := checkFeature("weight", weight); err != nil {
		return nil, err
	}
	if input.DType() != weight.DType() {
		return nil, invalidf("dtypes differ: input %s, weight %s", input.DType(), weight.DType())
	}
	if mode != tensor.PadZero && mode != tensor.PadReflect {
		return nil, invalidf("unknown pad mode %v", mode)
	}

	n, c, h, w := input.Shape().NCHW()
	oh, ow, err := checkWindow(win, h, w)
	if err != nil {
		return nil, err
	}
	if mode == tensor.PadReflect && (win.Padding.H >= h || win.Padding.W >= w) {
		return nil, invalidf("reflect padding %v must be smaller than input %dx%d", win.Padding, h, w)
	}
	wn, cw, k, l := weight.Shape().NCHW()
	if wn != n || cw <= 0 || c%cw != 0 || k != win.Kernel.Area() || l != oh*ow {
		return nil, invalidf("weight shape %v incompatible with input %v: want [%d, C/g, %d, %d]",
			weight.Shape(), input.Shape(), n, win.Kernel.Area(), oh*ow)
	}

	nb, err := neighborhood(backend, input, weight)
	if err != nil {
		return nil, err
	}
	output, err := nb.Aggregation(input, weight, win, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDevice, err)
	}

	return &AggregationOp{
		input:          input,
		weight:         weight,
		output:         output,
		window:         win,
		mode:           mode,
		NeedsInputGrad: [2]bool{true, true},
		backend:        nb,
	}, nil
}

// Inputs returns the input tensors.
func (op *AggregationOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.weight}
}

// Output returns the output tensor.
func (op *AggregationOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for input and weight.
func (op *AggregationOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if !outputGrad.Shape().Equal(op.output.Shape()) {
		panic(fmt.Sprintf("aggregation backward: gradient shape %v, want %v", outputGrad.Shape(), op.output.Shape()))
	}
	nb := backwardBackend(backend, op.backend)

	grads := make([]*tensor.RawTensor, 2)
	if op.NeedsInputGrad[0] {
		g, err := nb.AggregationGradInput(outputGrad, op.weight, op.input.Shape(), op.window, op.mode)
		grads[0] = mustGrad("aggregation input", g, err)
	}
	if op.NeedsInputGrad[1] {
		g, err := nb.AggregationGradWeight(outputGrad, op.input, op.weight.Shape(), op.window, op.mode)
		grads[1] = mustGrad("aggregation weight", g, err)
	}
	return grads
}
