package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum and
// L2 weight decay.
//
// Update rule:
//
//	g = gradient + weight_decay * param
//	velocity = momentum * velocity + g   (velocity = g on the first step)
//	param = param - lr * velocity
//
// Without momentum the velocity is simply g.
//
// Example:
//
//	optimizer := optim.NewSGD(params, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	params      []*nn.Parameter
	lr          float64
	momentum    float64
	weightDecay float64
	velocities  map[*nn.Parameter]*tensor.RawTensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float64 // Learning rate (default: 0.01)
	Momentum    float64 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float64 // L2 penalty (default: 0.0)
}

// NewSGD creates a new SGD optimizer. Frozen parameters may be passed;
// Step skips them.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		panic(fmt.Sprintf("sgd: momentum %v out of range [0, 1)", config.Momentum))
	}
	if config.WeightDecay < 0 {
		panic(fmt.Sprintf("sgd: negative weight decay %v", config.WeightDecay))
	}

	return &SGD{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter]*tensor.RawTensor),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		s.update(param, grad)
	}
}

func (s *SGD) update(param *nn.Parameter, grad *tensor.RawTensor) {
	w := param.Tensor().Float64s()
	g := grad.Float64s()
	if len(g) != len(w) {
		panic(fmt.Sprintf("sgd: gradient for %q has %d elements, parameter has %d", param.Name(), len(g), len(w)))
	}
	if s.weightDecay != 0 {
		floats.AddScaled(g, s.weightDecay, w)
	}

	step := g
	if s.momentum != 0 {
		velocity, exists := s.velocities[param]
		if !exists {
			velocity = tensor.Zeros(param.Tensor().Shape(), tensor.Float64, tensor.CPU)
			copy(velocity.AsFloat64(), g)
			s.velocities[param] = velocity
		} else {
			v := velocity.AsFloat64()
			floats.Scale(s.momentum, v)
			floats.Add(v, g)
		}
		step = velocity.AsFloat64()
	}

	floats.AddScaled(w, -s.lr, step)
	param.Tensor().SetFloat64s(w)
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "lr" -> scalar, "velocity.{param_index}" -> velocity tensor
// (momentum only, for parameters that have taken a step).
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{"lr": scalar(s.lr)}
	if s.momentum == 0 {
		return stateDict
	}
	for i, param := range s.params {
		if velocity, exists := s.velocities[param]; exists {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity.Clone()
		}
	}
	return stateDict
}

// LoadStateDict restores the learning rate and velocity buffers.
//
// Returns an error if velocity shapes don't match parameter shapes.
func (s *SGD) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	lr, ok, err := readScalar(stateDict, "lr")
	if err != nil {
		return fmt.Errorf("sgd: %w", err)
	}
	if ok {
		s.lr = lr
	}
	if s.momentum == 0 {
		return nil
	}

	velocities := make(map[*nn.Parameter]*tensor.RawTensor)
	for i, param := range s.params {
		velocity, err := loadBuffer(stateDict, fmt.Sprintf("velocity.%d", i), param)
		if err != nil {
			return fmt.Errorf("sgd: %w", err)
		}
		if velocity != nil {
			velocities[param] = velocity
		}
	}
	s.velocities = velocities
	return nil
}
