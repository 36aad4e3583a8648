package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/tensor"
)

// Scheduler adjusts an optimizer's learning rate once per epoch.
type Scheduler interface {
	// Step advances the schedule by one epoch and updates the optimizer.
	Step()

	// GetLR returns the learning rate for the current epoch.
	GetLR() float64

	// StateDict exports the schedule position.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores the schedule position and re-applies the
	// learning rate to the optimizer.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// StepLRConfig holds configuration for StepLR.
type StepLRConfig struct {
	StepSize int     // Epochs between decays (default: 7)
	Gamma    float64 // Multiplicative decay factor (default: 0.1)
}

// StepLR decays the learning rate by Gamma every StepSize epochs:
//
//	lr = base_lr * gamma^floor(epoch / step_size)
type StepLR struct {
	optimizer Optimizer
	baseLR    float64
	stepSize  int
	gamma     float64
	lastEpoch int
}

// NewStepLR creates a StepLR schedule starting at the optimizer's current
// learning rate.
func NewStepLR(optimizer Optimizer, config StepLRConfig) *StepLR {
	if config.StepSize == 0 {
		config.StepSize = 7
	}
	if config.Gamma == 0 {
		config.Gamma = 0.1
	}
	if config.StepSize < 0 || config.Gamma < 0 {
		panic(fmt.Sprintf("steplr: invalid config %+v", config))
	}
	return &StepLR{
		optimizer: optimizer,
		baseLR:    optimizer.GetLR(),
		stepSize:  config.StepSize,
		gamma:     config.Gamma,
	}
}

// Step advances one epoch.
func (s *StepLR) Step() {
	s.lastEpoch++
	s.optimizer.SetLR(s.GetLR())
}

// GetLR returns the learning rate for the current epoch.
func (s *StepLR) GetLR() float64 {
	return s.baseLR * math.Pow(s.gamma, float64(s.lastEpoch/s.stepSize))
}

// LastEpoch returns the number of completed Step calls.
func (s *StepLR) LastEpoch() int {
	return s.lastEpoch
}

// StateDict returns "base_lr", "step_size", "gamma" and "last_epoch".
func (s *StepLR) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"base_lr":    scalar(s.baseLR),
		"step_size":  scalar(float64(s.stepSize)),
		"gamma":      scalar(s.gamma),
		"last_epoch": scalar(float64(s.lastEpoch)),
	}
}

// LoadStateDict restores the schedule and sets the optimizer's rate.
func (s *StepLR) LoadStateDict(state map[string]*tensor.RawTensor) error {
	values := make(map[string]float64, 4)
	for _, key := range []string{"base_lr", "step_size", "gamma", "last_epoch"} {
		v, ok, err := readScalar(state, key)
		if err != nil {
			return fmt.Errorf("steplr: %w", err)
		}
		if !ok {
			return fmt.Errorf("steplr: missing %q", key)
		}
		values[key] = v
	}
	if values["step_size"] < 1 {
		return fmt.Errorf("steplr: invalid step size %v", values["step_size"])
	}
	s.baseLR = values["base_lr"]
	s.stepSize = int(values["step_size"])
	s.gamma = values["gamma"]
	s.lastEpoch = int(values["last_epoch"])
	s.optimizer.SetLR(s.GetLR())
	return nil
}
