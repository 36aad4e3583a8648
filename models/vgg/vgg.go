// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vgg provides the SSD VGG-16 backbone for 300 and 512 pixel inputs.
//
// Example:
//
//	backbone := vgg.New(vgg.Config{Size: 300}, cpu.New())
//	if err := backbone.InitFromPretrain(weights); err != nil {
//	    log.Fatal(err)
//	}
//	features := backbone.Forward(images) // six maps: 38, 19, 10, 5, 3, 1
package vgg

import (
	"github.com/born-ml/vision/internal/models/vgg"
	"github.com/born-ml/vision/internal/tensor"
)

// VGG is the SSD backbone: the VGG-16 base through fc7, the extra feature
// layers and the conv4_3 L2Norm.
type VGG = vgg.VGG

// Config selects the backbone variant.
type Config = vgg.Config

// L2NormIndex is the base layer whose output is normalized and emitted as
// the first feature map.
const L2NormIndex = vgg.L2NormIndex

// L2NormScale is the initial L2Norm weight.
const L2NormScale = vgg.L2NormScale

// New builds the backbone for cfg. It panics on a size other than 300 or 512.
func New(cfg Config, backend tensor.LayerBackend) *VGG {
	return vgg.New(cfg, backend)
}
