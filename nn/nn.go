// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network building blocks of the vision
// models: layers, containers, state dicts and the neighborhood operators.
package nn

import (
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module = nn.Module

// TrainingModule is implemented by modules that behave differently in
// training and evaluation.
type TrainingModule = nn.TrainingModule

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// State dict errors.
var (
	ErrMissingKey    = nn.ErrMissingKey
	ErrShapeMismatch = nn.ErrShapeMismatch
)

// Layers

// Conv2D represents a 2D convolutional layer.
type Conv2D = nn.Conv2D

// NewConv2D creates a new 2D convolutional layer. kernel, stride, padding
// and dilation accept an int or an (h, w) pair.
//
// Example:
//
//	backend := cpu.New()
//	conv6 := nn.NewConv2D(512, 1024, 3, 1, 6, 6, true, backend)
func NewConv2D(
	inChannels, outChannels int,
	kernel, stride, padding, dilation any,
	useBias bool,
	backend tensor.LayerBackend,
) *Conv2D {
	return nn.NewConv2D(inChannels, outChannels, kernel, stride, padding, dilation, useBias, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D = nn.MaxPool2D

// NewMaxPool2D creates a new 2D max pooling layer. With ceilMode the output
// size rounds up and the last window may hang over the input edge.
func NewMaxPool2D(kernel, stride, padding any, ceilMode bool, backend tensor.LayerBackend) *MaxPool2D {
	return nn.NewMaxPool2D(kernel, stride, padding, ceilMode, backend)
}

// BatchNorm2D normalizes each channel with running statistics.
type BatchNorm2D = nn.BatchNorm2D

// NewBatchNorm2D creates a batch norm layer over numFeatures channels.
func NewBatchNorm2D(numFeatures int, backend tensor.LayerBackend) *BatchNorm2D {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// L2Norm normalizes each pixel across channels and rescales by a learned
// per-channel weight.
type L2Norm = nn.L2Norm

// NewL2Norm creates an L2Norm layer with every weight set to scale.
func NewL2Norm(channels int, scale float64, backend tensor.LayerBackend) *L2Norm {
	return nn.NewL2Norm(channels, scale, backend)
}

// AdaptiveAvgPool2D averages each channel down to a fixed output size.
type AdaptiveAvgPool2D = nn.AdaptiveAvgPool2D

// NewAdaptiveAvgPool2D creates an adaptive average pooling layer.
func NewAdaptiveAvgPool2D(out any, backend tensor.LayerBackend) *AdaptiveAvgPool2D {
	return nn.NewAdaptiveAvgPool2D(out, backend)
}

// Flatten reshapes [N, ...] to [N, rest].
type Flatten = nn.Flatten

// NewFlatten creates a Flatten layer.
func NewFlatten() *Flatten {
	return nn.NewFlatten()
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU = nn.ReLU

// NewReLU creates a new ReLU activation layer.
func NewReLU(backend tensor.LayerBackend) *ReLU {
	return nn.NewReLU(backend)
}

// Dropout zeroes inputs with probability p while training.
type Dropout = nn.Dropout

// NewDropout creates a dropout layer.
func NewDropout(p float64) *Dropout {
	return nn.NewDropout(p)
}

// Containers

// Sequential chains modules, feeding each output into the next.
type Sequential = nn.Sequential

// NewSequential creates a new Sequential container.
//
// Example:
//
//	features := nn.NewSequential(
//	    nn.NewConv2D(3, 64, 3, 2, 0, 1, true, backend),
//	    nn.NewReLU(backend),
//	    nn.NewMaxPool2D(3, 2, 0, true, backend),
//	)
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// ModuleList holds indexed submodules without chaining them.
type ModuleList = nn.ModuleList

// NewModuleList creates a new ModuleList.
func NewModuleList(modules ...Module) *ModuleList {
	return nn.NewModuleList(modules...)
}

// Helpers

// SetTraining switches m between training and evaluation when it supports
// the distinction.
func SetTraining(m Module, training bool) {
	nn.SetTraining(m, training)
}

// TrainableParameters returns the parameters of m that require gradients.
func TrainableParameters(m Module) []*Parameter {
	return nn.TrainableParameters(m)
}

// Freeze marks every parameter of m as not requiring gradients.
func Freeze(m Module) {
	nn.Freeze(m)
}

// PrefixStateDict returns a copy of state with every key under prefix.
func PrefixStateDict(prefix string, state map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	return nn.PrefixStateDict(prefix, state)
}

// SubStateDict extracts the entries under prefix, with the prefix removed.
func SubStateDict(state map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	return nn.SubStateDict(state, prefix)
}

// Loss

// CrossEntropy returns the mean softmax cross-entropy of logits [N, K]
// against class indices, and its gradient with respect to logits.
func CrossEntropy(logits *tensor.RawTensor, targets []int) (float64, *tensor.RawTensor) {
	return nn.CrossEntropy(logits, targets)
}

// Argmax returns the index of the largest logit per row.
func Argmax(x *tensor.RawTensor) []int {
	return nn.Argmax(x)
}
