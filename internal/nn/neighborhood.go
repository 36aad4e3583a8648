package nn

import (
	"fmt"

	"github.com/born-ml/vision/internal/autodiff/ops"
	"github.com/born-ml/vision/internal/tensor"
)

// Subtraction2ZeroPad computes, for every window position, the difference
// between the centre pixel of x1 and each neighbour of x2, giving
// [N, C, KH*KW, OH*OW]. kernel, stride, padding and dilation accept an int
// or an (h, w) pair.
//
// Passing an autodiff backend records the operation on its tape.
func Subtraction2ZeroPad(backend tensor.Backend, x1, x2 *tensor.RawTensor, kernel, stride, padding, dilation any) (*tensor.RawTensor, error) {
	win, err := tensor.NewWindow(kernel, stride, padding, dilation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ops.ErrInvalidOperand, err)
	}
	op, err := ops.Subtraction2ZeroPad(backend, x1, x2, win)
	if err != nil {
		return nil, err
	}
	return op.Output(), nil
}

// Aggregation applies a per-position weighted sum over each pixel's
// neighborhood. The window is fixed at construction; the weight is
// supplied per call, usually computed from the input itself.
//
// Example:
//
//	agg := nn.NewAggregation(3, 1, 1, 1, tensor.PadReflect, backend)
//	out, err := agg.Forward(x, w) // x [N,C,H,W], w [N,C/g,9,H*W]
type Aggregation struct {
	window  tensor.Window
	padMode tensor.PadMode
	backend tensor.Backend
}

// NewAggregation normalizes scalar-or-pair window values. It panics on an
// invalid window or pad mode.
func NewAggregation(kernel, stride, padding, dilation any, padMode tensor.PadMode, backend tensor.Backend) *Aggregation {
	win, err := tensor.NewWindow(kernel, stride, padding, dilation)
	if err != nil {
		panic(fmt.Sprintf("aggregation: %v", err))
	}
	if err := win.Validate(); err != nil {
		panic(fmt.Sprintf("aggregation: %v", err))
	}
	if padMode != tensor.PadZero && padMode != tensor.PadReflect {
		panic(fmt.Sprintf("aggregation: unknown pad mode %v", padMode))
	}
	return &Aggregation{window: win, padMode: padMode, backend: backend}
}

// Forward aggregates input [N, C, H, W] with weight [N, CW, KH*KW, OH*OW]
// into [N, C, OH, OW]. Operand errors wrap ops.ErrInvalidOperand or
// ops.ErrUnsupportedDevice.
func (a *Aggregation) Forward(input, weight *tensor.RawTensor) (*tensor.RawTensor, error) {
	op, err := ops.Aggregation(a.backend, input, weight, a.window, a.padMode)
	if err != nil {
		return nil, err
	}
	return op.Output(), nil
}

// Window returns the normalized window parameters.
func (a *Aggregation) Window() tensor.Window { return a.window }

// PadMode returns the border policy.
func (a *Aggregation) PadMode() tensor.PadMode { return a.padMode }

// String returns a string representation of the module.
func (a *Aggregation) String() string {
	return fmt.Sprintf("Aggregation(%v, pad_mode=%v)", a.window, a.padMode)
}
