package autodiff

import (
	"github.com/born-ml/vision/internal/autodiff/ops"
	"github.com/born-ml/vision/internal/tensor"
)

// GradientTape is an ordered log of the operations run while recording.
// Backward replays it in reverse to produce gradients.
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	op, _ := ops.Subtraction2ZeroPad(backend, a, b, win)
//	tape.Record(op)
//	grads := tape.Backward(seed, backend)
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

var _ ops.Recorder = (*GradientTape)(nil)

// NewGradientTape returns an empty tape that is not recording.
func NewGradientTape() *GradientTape {
	return &GradientTape{operations: make([]ops.Operation, 0, 16)}
}

// StartRecording makes Record append operations.
func (t *GradientTape) StartRecording() { t.recording = true }

// StopRecording makes Record ignore operations. Recorded ones are kept.
func (t *GradientTape) StopRecording() { t.recording = false }

// IsRecording reports whether Record currently appends.
func (t *GradientTape) IsRecording() bool { return t.recording }

// Record appends op while recording and ignores it otherwise.
func (t *GradientTape) Record(op ops.Operation) {
	if !t.recording {
		return
	}
	t.operations = append(t.operations, op)
}

// NumOps returns how many operations have been recorded.
func (t *GradientTape) NumOps() int { return len(t.operations) }

// Clear drops the recorded operations but keeps the recording flag.
func (t *GradientTape) Clear() { t.operations = t.operations[:0] }

// Backward seeds the output of the last recorded operation with outputGrad
// and propagates gradients back to every tensor that fed the tape. A tensor
// consumed by several operations receives the backend.Add sum of its
// contributions. Recording is paused for the duration of the walk.
func (t *GradientTape) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	n := len(t.operations)
	if n == 0 {
		return grads
	}

	defer func(was bool) { t.recording = was }(t.recording)
	t.recording = false

	grads[t.operations[n-1].Output()] = outputGrad
	for i := n - 1; i >= 0; i-- {
		op := t.operations[i]
		upstream, ok := grads[op.Output()]
		if !ok {
			// Not on a path to the seeded output.
			continue
		}
		partials := op.Backward(upstream, backend)
		for j, in := range op.Inputs() {
			if j >= len(partials) || partials[j] == nil {
				continue
			}
			if acc, seen := grads[in]; seen {
				grads[in] = backend.Add(acc, partials[j])
				continue
			}
			grads[in] = partials[j]
		}
	}
	return grads
}
