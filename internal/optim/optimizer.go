// Package optim implements optimization algorithms and learning-rate
// schedules for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum and weight decay
//   - Adam: Adaptive Moment Estimation
//   - StepLR: Step decay learning-rate schedule
//
// Design inspired by PyTorch's torch.optim. Optimizer and scheduler state
// round-trips through StateDict/LoadStateDict so checkpoints can resume
// training.
//
// Example usage:
//
//	optimizer := optim.NewSGD(nn.TrainableParameters(model), optim.SGDConfig{
//	    LR:          3e-5,
//	    Momentum:    0.9,
//	    WeightDecay: 3e-8,
//	})
//	scheduler := optim.NewStepLR(optimizer, optim.StepLRConfig{StepSize: 7, Gamma: 0.1})
//
//	for epoch := range epochs {
//	    for _, batch := range batches {
//	        grads := computeGradients(model, batch)
//	        optimizer.Step(grads)
//	        optimizer.ZeroGrad()
//	    }
//	    scheduler.Step()
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters based on computed gradients to
// minimize the loss function during training.
type Optimizer interface {
	// Step applies gradient updates to all trainable parameters.
	//
	// Gradients are looked up in grads by parameter tensor; parameters
	// missing from the map fall back to Parameter.Grad. Frozen parameters
	// and parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR updates the learning rate. Schedulers drive it.
	SetLR(lr float64)

	// StateDict exports the optimizer buffers and hyperparameters.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores state exported by StateDict.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// getGradient safely retrieves the gradient for a parameter.
//
// Returns nil if the parameter is frozen or has no gradient.
func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil || !param.RequiresGrad() {
		return nil
	}
	if g, ok := grads[param.Tensor()]; ok && g != nil {
		return g
	}
	return param.Grad()
}

func zeroGrad(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// scalar wraps v as a one-element float64 tensor for state dicts.
func scalar(v float64) *tensor.RawTensor {
	return tensor.Full(tensor.Shape{1}, v, tensor.Float64, tensor.CPU)
}

// readScalar reads a one-element state entry. ok is false when absent.
func readScalar(state map[string]*tensor.RawTensor, key string) (v float64, ok bool, err error) {
	t, found := state[key]
	if !found {
		return 0, false, nil
	}
	if t.NumElements() != 1 || !t.DType().IsFloat() {
		return 0, false, fmt.Errorf("%s: expected a float scalar, got %s%v", key, t.DType(), t.Shape())
	}
	return t.Float64s()[0], true, nil
}

// loadBuffer validates a per-parameter buffer and returns a float64 copy.
func loadBuffer(state map[string]*tensor.RawTensor, key string, param *nn.Parameter) (*tensor.RawTensor, error) {
	raw, exists := state[key]
	if !exists {
		return nil, nil
	}
	if !raw.Shape().Equal(param.Tensor().Shape()) {
		return nil, fmt.Errorf("%s shape mismatch for parameter %q: expected %v, got %v",
			key, param.Name(), param.Tensor().Shape(), raw.Shape())
	}
	buf := tensor.Zeros(raw.Shape(), tensor.Float64, tensor.CPU)
	buf.SetFloat64s(raw.Float64s())
	return buf, nil
}
