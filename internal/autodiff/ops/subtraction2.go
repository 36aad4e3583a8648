package ops

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// Subtraction2Op records a zero-padded local-neighborhood differencing.
//
// Forward, for every output location (h, w) and kernel offset (kh, kw):
//
//	out[n,c,kh*KW+kw,h*OW+w] = in1[centre(h,w)] - in2[tap(h,w,kh,kw)]
//
// where a tap outside the image reads as zero. The output shape is
// [N, C, KH*KW, OH*OW].
//
// Backward:
//   - d_input1: each pixel sums the gradient over all kernel offsets of the
//     output location whose window centre is that pixel
//   - d_input2: each pixel subtracts the gradient of every output element
//     that read it as a tap
type Subtraction2Op struct {
	input1 *tensor.RawTensor
	input2 *tensor.RawTensor
	output *tensor.RawTensor
	window tensor.Window

	// NeedsInputGrad selects which input gradients Backward computes.
	// Both default to true.
	NeedsInputGrad [2]bool

	backend tensor.NeighborhoodBackend
}

// Subtraction2ZeroPad validates the operands, runs the forward kernel on
// backend and returns the recorded operation.
//
// Errors wrap ErrInvalidOperand for mismatched or malformed operands and
// window parameters, and ErrUnsupportedDevice when backend has no kernel for
// the operands' device.
func Subtraction2ZeroPad(backend tensor.Backend, input1, input2 *tensor.RawTensor, win tensor.Window) (*Subtraction2Op, error) {
	if err := checkFeature("input1", input1); err != nil {
		return nil, err
	}
	if err := checkFeature("input2", input2); err != nil {
		return nil, err
	}
	if !input1.Shape().Equal(input2.Shape()) {
		return nil, invalidf("input shapes differ: %v vs %v", input1.Shape(), input2.Shape())
	}
	if input1.DType() != input2.DType() {
		return nil, invalidf("input dtypes differ: %s vs %s", input1.DType(), input2.DType())
	}
	if input1.Device() != input2.Device() {
		return nil, fmt.Errorf("%w: inputs on %s and %s", ErrUnsupportedDevice, input1.Device(), input2.Device())
	}
	_, _, h, w := input1.Shape().NCHW()
	if _, _, err := checkWindow(win, h, w); err != nil {
		return nil, err
	}

	nb, err := neighborhood(backend, input1, input2)
	if err != nil {
		return nil, err
	}
	output, err := nb.Subtraction2ZeroPad(input1, input2, win)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDevice, err)
	}

	return &Subtraction2Op{
		input1:         input1,
		input2:         input2,
		output:         output,
		window:         win,
		NeedsInputGrad: [2]bool{true, true},
		backend:        nb,
	}, nil
}

// Inputs returns the input tensors.
func (op *Subtraction2Op) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input1, op.input2}
}

// Output returns the output tensor.
func (op *Subtraction2Op) Output() *tensor.RawTensor {
	return op.output
}

// Window returns the kernel descriptor the operation was built with.
func (op *Subtraction2Op) Window() tensor.Window {
	return op.window
}

// Backward computes the input gradients. A gradient is allocated only for
// inputs whose NeedsInputGrad flag is set; the other entry is nil.
func (op *Subtraction2Op) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if !outputGrad.Shape().Equal(op.output.Shape()) {
		panic(fmt.Sprintf("subtraction2_zeropad backward: gradient shape %v, want %v", outputGrad.Shape(), op.output.Shape()))
	}
	nb := backwardBackend(backend, op.backend)
	inShape := op.input1.Shape()

	grads := make([]*tensor.RawTensor, 2)
	if op.NeedsInputGrad[0] {
		g, err := nb.Subtraction2ZeroPadGradInput1(outputGrad, inShape, op.window)
		grads[0] = mustGrad("subtraction2_zeropad input1", g, err)
	}
	if op.NeedsInputGrad[1] {
		g, err := nb.Subtraction2ZeroPadGradInput2(outputGrad, inShape, op.window)
		grads[1] = mustGrad("subtraction2_zeropad input2", g, err)
	}
	return grads
}
