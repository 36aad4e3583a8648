// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package squeezenet provides SqueezeNet 1.1 and a helper that prepares it
// for retraining on a new label set.
//
// Example:
//
//	model, params, err := squeezenet.Retrain(ctx, 10, squeezenet.RetrainConfig{
//	    Pretrained:         true,
//	    TrainOnlyLastLayer: true,
//	}, cpu.New())
//	optimizer := optim.NewSGD(params, optim.SGDConfig{LR: 3e-5, Momentum: 0.9})
//
//	loss, _, grads := model.HeadGradients(images, labels)
//	optimizer.Step(grads)
package squeezenet

import (
	"context"

	"github.com/born-ml/vision/internal/models/squeezenet"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// SqueezeNet is SqueezeNet 1.1 in the torchvision layout.
type SqueezeNet = squeezenet.SqueezeNet

// Fire is the squeeze / expand block SqueezeNet is built from.
type Fire = squeezenet.Fire

// RetrainConfig configures Retrain.
type RetrainConfig = squeezenet.RetrainConfig

// ImageNetClasses is the class count of the pretrained classifier.
const ImageNetClasses = squeezenet.ImageNetClasses

// New builds SqueezeNet 1.1 with freshly initialized weights.
func New(numClasses int, backend tensor.LayerBackend) *SqueezeNet {
	return squeezenet.New(numClasses, backend)
}

// NewFire creates a Fire block.
func NewFire(inplanes, squeezePlanes, expand1x1Planes, expand3x3Planes int, backend tensor.LayerBackend) *Fire {
	return squeezenet.NewFire(inplanes, squeezePlanes, expand1x1Planes, expand3x3Planes, backend)
}

// Retrain builds SqueezeNet 1.1, optionally loads the ImageNet weights,
// optionally freezes them, and replaces the classifier conv with a fresh
// one for numClasses. It returns the model and its trainable parameters.
func Retrain(ctx context.Context, numClasses int, cfg RetrainConfig, backend tensor.LayerBackend) (*SqueezeNet, []*nn.Parameter, error) {
	return squeezenet.Retrain(ctx, numClasses, cfg, backend)
}
