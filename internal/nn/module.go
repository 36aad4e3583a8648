// Package nn implements the neural network modules the vision models are
// assembled from.
//
// This package provides building blocks for constructing CNN backbones:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking and freezing
//   - Layers: Conv2D, MaxPool2D, ReLU, BatchNorm2D, L2Norm, Dropout,
//     AdaptiveAvgPool2D, Flatten
//   - Containers: Sequential, ModuleList
//   - Neighborhood operators: Subtraction2ZeroPad, Aggregation
//   - Loss: CrossEntropy
//
// Design inspired by PyTorch's nn.Module; layers run on a tensor.LayerBackend
// and exchange tensor.RawTensor values.
package nn

import (
	"github.com/born-ml/vision/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
//   - StateDict / LoadStateDict: Export and restore weights and buffers
//
// Modules can be composed to build complex architectures:
//
//	features := nn.NewSequential(
//	    nn.NewConv2D(3, 64, 3, 1, 1, 1, true, backend),
//	    nn.NewReLU(backend),
//	    nn.NewMaxPool2D(2, 2, 0, false, backend),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	// Layers panic on inputs that do not match their configuration.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns all parameters of this module, frozen ones
	// included. Returns an empty slice for modules without parameters.
	Parameters() []*Parameter

	// StateDict returns the parameters and buffers keyed by dotted path.
	// The tensors are shared with the module, not copied.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies matching entries into the module's tensors.
	// Every key the module owns must be present with the same shape.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// TrainingModule is implemented by modules that behave differently while
// training (Dropout) and by containers that forward the switch.
type TrainingModule interface {
	SetTraining(training bool)
}

// SetTraining switches m between training and inference behavior when it
// supports the distinction.
func SetTraining(m Module, training bool) {
	if tm, ok := m.(TrainingModule); ok {
		tm.SetTraining(training)
	}
}

// TrainableParameters returns the parameters of m that still require
// gradients, in module order.
func TrainableParameters(m Module) []*Parameter {
	all := m.Parameters()
	trainable := make([]*Parameter, 0, len(all))
	for _, p := range all {
		if p.RequiresGrad() {
			trainable = append(trainable, p)
		}
	}
	return trainable
}

// Freeze marks every parameter of m as not requiring gradients.
func Freeze(m Module) {
	for _, p := range m.Parameters() {
		p.SetRequiresGrad(false)
	}
}
