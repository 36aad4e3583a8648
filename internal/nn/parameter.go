package nn

import (
	"github.com/born-ml/vision/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that may require gradient computation during
// training. They typically represent weights and biases of layers.
// Freezing a parameter (SetRequiresGrad(false)) keeps it in the state dict
// but hides it from optimizers.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // nil until a gradient is set
type Parameter struct {
	name         string            // Parameter name (e.g., "weight", "bias")
	tensor       *tensor.RawTensor // The parameter tensor
	grad         *tensor.RawTensor // Gradient tensor (set during backward pass)
	requiresGrad bool
}

// NewParameter creates a new trainable parameter.
//
// The parameter tensor should be initialized before creating the Parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:         name,
		tensor:       t,
		requiresGrad: true,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter) SetGrad(grad *tensor.RawTensor) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
//
// This should be called before each training iteration to avoid
// accumulating gradients from previous iterations.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// RequiresGrad reports whether optimizers should update this parameter.
func (p *Parameter) RequiresGrad() bool {
	return p.requiresGrad
}

// SetRequiresGrad freezes (false) or unfreezes (true) the parameter.
// Freezing also drops any stored gradient.
func (p *Parameter) SetRequiresGrad(requiresGrad bool) {
	p.requiresGrad = requiresGrad
	if !requiresGrad {
		p.grad = nil
	}
}
