// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers and learning-rate schedules.
package optim

import (
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Scheduler adjusts an optimizer's learning rate once per epoch.
type Scheduler = optim.Scheduler

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum and weight decay.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer. Frozen parameters are skipped by Step.
//
// Example:
//
//	model, params, _ := squeezenet.Retrain(ctx, 10, cfg, backend)
//	optimizer := optim.NewSGD(params, optim.SGDConfig{
//	    LR:          3e-5,
//	    Momentum:    0.9,
//	    WeightDecay: 3e-8,
//	})
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// Schedules

// StepLR decays the learning rate by Gamma every StepSize epochs.
type StepLR = optim.StepLR

// StepLRConfig contains configuration for StepLR.
type StepLRConfig = optim.StepLRConfig

// NewStepLR creates a StepLR schedule starting at the optimizer's current
// learning rate. Zero fields default to StepSize 7 and Gamma 0.1.
func NewStepLR(optimizer Optimizer, config StepLRConfig) *StepLR {
	return optim.NewStepLR(optimizer, config)
}
