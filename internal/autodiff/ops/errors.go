package ops

import (
	"errors"
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// Sentinel errors returned by operation constructors. Test with errors.Is.
var (
	// ErrInvalidOperand reports a rank, shape, dtype or window parameter
	// that the operation cannot accept.
	ErrInvalidOperand = errors.New("invalid operand")

	// ErrUnsupportedDevice reports that no kernel exists for the operands'
	// device on the given backend.
	ErrUnsupportedDevice = errors.New("unsupported device")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperand, fmt.Sprintf(format, args...))
}

// neighborhood resolves the kernel launcher for the operands. The backend
// must implement tensor.NeighborhoodBackend and own every operand's device.
func neighborhood(backend tensor.Backend, operands ...*tensor.RawTensor) (tensor.NeighborhoodBackend, error) {
	nb, ok := backend.(tensor.NeighborhoodBackend)
	if !ok {
		return nil, fmt.Errorf("%w: backend %s has no neighborhood kernels", ErrUnsupportedDevice, backend.Name())
	}
	for _, x := range operands {
		if x.Device() != nb.Device() {
			return nil, fmt.Errorf("%w: tensor on %s, backend %s runs on %s",
				ErrUnsupportedDevice, x.Device(), nb.Name(), nb.Device())
		}
	}
	return nb, nil
}

// checkFeature validates a rank-4 float feature tensor.
func checkFeature(name string, x *tensor.RawTensor) error {
	if x == nil {
		return invalidf("%s is nil", name)
	}
	if len(x.Shape()) != 4 {
		return invalidf("%s must be 4D [N,C,H,W], got %v", name, x.Shape())
	}
	if !x.DType().IsFloat() {
		return invalidf("%s dtype %s is not floating point", name, x.DType())
	}
	return nil
}

// checkWindow validates the window and returns the output spatial size for
// an input of h x w.
func checkWindow(win tensor.Window, h, w int) (oh, ow int, err error) {
	if err := win.Validate(); err != nil {
		return 0, 0, invalidf("%v", err)
	}
	oh, ow = win.OutputSize(h, w)
	if oh <= 0 || ow <= 0 {
		return 0, 0, invalidf("output size %dx%d is empty for input %dx%d with %v", oh, ow, h, w, win)
	}
	return oh, ow, nil
}

// mustGrad panics when a backward kernel fails. Operands were validated by
// the forward pass, so a failure here is a backend defect.
func mustGrad(op string, grad *tensor.RawTensor, err error) *tensor.RawTensor {
	if err != nil {
		panic(fmt.Sprintf("%s backward: %v", op, err))
	}
	return grad
}

// backwardBackend prefers the backend handed to Backward and falls back to
// the one that ran the forward pass.
func backwardBackend(backend tensor.Backend, forward tensor.NeighborhoodBackend) tensor.NeighborhoodBackend {
	if nb, ok := backend.(tensor.NeighborhoodBackend); ok && nb.Device() == forward.Device() {
		return nb
	}
	return forward
}
