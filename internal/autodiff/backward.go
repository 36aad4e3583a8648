package autodiff

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// BackwardCapable is a backend that owns a gradient tape.
type BackwardCapable interface {
	tensor.Backend
	Tape() *GradientTape
}

// Backward seeds output with ones and walks the backend's tape.
//
// output must be the result of the last recorded operation; anything else
// is a programming error and panics.
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y, _ := backend.Subtraction2ZeroPad(a, b, win)
//	grads := autodiff.Backward(y, backend)
//	da := grads[a]
func Backward(output *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.Tape()
	n := tape.NumOps()
	switch {
	case n == 0:
		panic("autodiff: empty tape, was Tape().StartRecording() called before the forward pass?")
	case tape.operations[n-1].Output() != output:
		panic("autodiff: output was not produced by the last recorded operation")
	case !output.DType().IsFloat():
		panic(fmt.Sprintf("autodiff: cannot differentiate %s output", output.DType()))
	}
	seed := tensor.Full(output.Shape(), 1, output.DType(), output.Device())
	return tape.Backward(seed, backend)
}
