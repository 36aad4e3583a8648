package distributed

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// DataParallel wraps a model replicated on every rank. Forward runs the
// local replica; SyncGradients averages gradients so every replica takes
// the same optimizer step.
type DataParallel struct {
	module nn.Module
	ctx    *Context
}

// NewDataParallel wraps module for the run described by ctx.
func NewDataParallel(module nn.Module, ctx *Context) *DataParallel {
	return &DataParallel{module: module, ctx: ctx}
}

// Unwrap returns the wrapped model.
func (d *DataParallel) Unwrap() nn.Module { return d.module }

// Forward runs the local replica.
func (d *DataParallel) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return d.module.Forward(input)
}

// Parameters returns the replica's parameters.
func (d *DataParallel) Parameters() []*nn.Parameter { return d.module.Parameters() }

// StateDict returns the replica's state under "module." keys.
func (d *DataParallel) StateDict() map[string]*tensor.RawTensor {
	return nn.PrefixStateDict("module", d.module.StateDict())
}

// LoadStateDict loads a state saved from a DataParallel wrapper.
func (d *DataParallel) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return d.module.LoadStateDict(nn.SubStateDict(state, "module"))
}

// SetTraining forwards the mode switch to the replica.
func (d *DataParallel) SetTraining(training bool) { nn.SetTraining(d.module, training) }

// SyncGradients averages the gradients of the trainable parameters across
// ranks in place. grads maps parameter tensors to gradients as returned by
// autodiff.Backward; parameters without an entry fall back to Grad().
func (d *DataParallel) SyncGradients(grads map[*tensor.RawTensor]*tensor.RawTensor) error {
	if d.ctx.WorldSize() == 1 {
		return nil
	}
	named := make(map[string]*tensor.RawTensor)
	owners := make(map[string]*nn.Parameter)
	for i, p := range nn.TrainableParameters(d.module) {
		g := grads[p.Tensor()]
		if g == nil {
			g = p.Grad()
		}
		if g == nil {
			// Every rank must reduce the same keys.
			g = tensor.Zeros(p.Tensor().Shape(), p.Tensor().DType(), tensor.CPU)
		}
		key := fmt.Sprintf("%04d.%s", i, p.Name())
		named[key] = g
		owners[key] = p
	}
	reduced, err := d.ctx.ReduceDict(named, true)
	if err != nil {
		return errors.WithMessage(err, "syncing gradients")
	}
	for key, g := range reduced {
		p := owners[key]
		if _, ok := grads[p.Tensor()]; ok {
			grads[p.Tensor()] = g
			continue
		}
		p.SetGrad(g)
	}
	return nil
}
