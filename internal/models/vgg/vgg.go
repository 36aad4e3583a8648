// Package vgg builds the VGG-16 backbone used by SSD detectors, in its
// 300 and 512 input-resolution variants.
//
// Layer indices, extra-layer order and state dict keys follow the layout
// of the published SSD checkpoints, so pretrained weights load unchanged.
package vgg

import (
	"fmt"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// L2NormIndex is the number of base layers run before the conv4_3
// feature map is taken and L2-normalized.
const L2NormIndex = 23

// L2NormScale is the initial per-channel scale of the conv4_3 L2Norm.
const L2NormScale = 20

// Table entries other than channel counts.
const (
	pool     = -1 // "M": 2x2 max pool, stride 2
	poolCeil = -2 // "C": as pool, rounding the output size up
	strided  = -3 // "S": the next conv has stride 2 and padding 1
)

var baseTables = map[int][]int{
	300: {64, 64, pool, 128, 128, pool, 256, 256, 256, poolCeil, 512, 512, 512, pool, 512, 512, 512},
	512: {64, 64, pool, 128, 128, pool, 256, 256, 256, poolCeil, 512, 512, 512, pool, 512, 512, 512},
}

var extrasTables = map[int][]int{
	300: {256, strided, 512, 128, strided, 256, 128, 256, 128, 256},
	512: {256, strided, 512, 128, strided, 256, 128, strided, 256, 128, strided, 256},
}

// Config selects the backbone variant.
type Config struct {
	Size      int  // Input resolution: 300 or 512
	BatchNorm bool // Insert BatchNorm2D after every base conv
}

// VGG is the SSD backbone: the VGG-16 base through fc7, the extra
// feature layers and the conv4_3 L2Norm.
type VGG struct {
	size    int
	base    *nn.ModuleList
	extras  *nn.ModuleList
	l2Norm  *nn.L2Norm
	backend tensor.LayerBackend
}

// New builds the backbone for cfg. It panics on an unsupported size.
func New(cfg Config, backend tensor.LayerBackend) *VGG {
	base, ok := baseTables[cfg.Size]
	if !ok {
		panic(fmt.Sprintf("vgg: unsupported size %d (want 300 or 512)", cfg.Size))
	}
	v := &VGG{
		size:    cfg.Size,
		base:    nn.NewModuleList(baseLayers(base, cfg.BatchNorm, backend)...),
		extras:  nn.NewModuleList(extraLayers(extrasTables[cfg.Size], 1024, cfg.Size, backend)...),
		l2Norm:  nn.NewL2Norm(512, L2NormScale, backend),
		backend: backend,
	}
	v.ResetParameters()
	return v
}

func baseLayers(table []int, batchNorm bool, backend tensor.LayerBackend) []nn.Module {
	var layers []nn.Module
	inChannels := 3
	for _, v := range table {
		switch v {
		case pool:
			layers = append(layers, nn.NewMaxPool2D(2, 2, 0, false, backend))
		case poolCeil:
			layers = append(layers, nn.NewMaxPool2D(2, 2, 0, true, backend))
		default:
			layers = append(layers, nn.NewConv2D(inChannels, v, 3, 1, 1, 1, true, backend))
			if batchNorm {
				layers = append(layers, nn.NewBatchNorm2D(v, backend))
			}
			layers = append(layers, nn.NewReLU(backend))
			inChannels = v
		}
	}
	pool5 := nn.NewMaxPool2D(3, 1, 1, false, backend)
	conv6 := nn.NewConv2D(512, 1024, 3, 1, 6, 6, true, backend)
	conv7 := nn.NewConv2D(1024, 1024, 1, 1, 0, 1, true, backend)
	return append(layers, pool5, conv6, nn.NewReLU(backend), conv7, nn.NewReLU(backend))
}

// extraLayers alternates 1x1 and 3x3 kernels. A strided marker makes the
// following conv stride 2 with padding 1 and consumes the next entry as
// its output width.
func extraLayers(table []int, inChannels, size int, backend tensor.LayerBackend) []nn.Module {
	var layers []nn.Module
	wide := false
	prev := inChannels
	for k, v := range table {
		if prev != strided {
			kernel := 1
			if wide {
				kernel = 3
			}
			if v == strided {
				layers = append(layers, nn.NewConv2D(prev, table[k+1], kernel, 2, 1, 1, true, backend))
			} else {
				layers = append(layers, nn.NewConv2D(prev, v, kernel, 1, 0, 1, true, backend))
			}
			wide = !wide
		}
		prev = v
	}
	if size == 512 {
		layers = append(layers,
			nn.NewConv2D(prev, 128, 1, 1, 0, 1, true, backend),
			nn.NewConv2D(128, 256, 4, 1, 1, 1, true, backend),
		)
	}
	return layers
}

// Size returns the input resolution the backbone was built for.
func (v *VGG) Size() int { return v.size }

// Base returns the VGG base layers, pool5 to fc7 included.
func (v *VGG) Base() *nn.ModuleList { return v.base }

// Extras returns the extra feature layers.
func (v *VGG) Extras() *nn.ModuleList { return v.extras }

// L2Norm returns the conv4_3 normalization layer.
func (v *VGG) L2Norm() *nn.L2Norm { return v.l2Norm }

// ModelType names the architecture in checkpoint headers.
func (v *VGG) ModelType() string { return fmt.Sprintf("VGG%d", v.size) }

// Forward returns the multi-scale feature maps: the L2-normalized
// conv4_3 output, fc7, then every second extra layer. Each extra layer is
// followed by a ReLU.
func (v *VGG) Forward(x *tensor.RawTensor) []*tensor.RawTensor {
	var features []*tensor.RawTensor
	for i := range L2NormIndex {
		x = v.base.Module(i).Forward(x)
	}
	features = append(features, v.l2Norm.Forward(x))

	for i := L2NormIndex; i < v.base.Len(); i++ {
		x = v.base.Module(i).Forward(x)
	}
	features = append(features, x)

	for k := range v.extras.Len() {
		x = v.backend.ReLU(v.extras.Module(k).Forward(x))
		if k%2 == 1 {
			features = append(features, x)
		}
	}
	return features
}

// Parameters returns the base, extras and L2Norm parameters.
func (v *VGG) Parameters() []*nn.Parameter {
	params := v.base.Parameters()
	params = append(params, v.extras.Parameters()...)
	return append(params, v.l2Norm.Parameters()...)
}

// StateDict exposes "vgg.<i>.*", "extras.<i>.*" and "l2_norm.weight".
func (v *VGG) StateDict() map[string]*tensor.RawTensor {
	state := nn.PrefixStateDict("vgg", v.base.StateDict())
	nn.MergeStateDict(state, "extras", v.extras.StateDict())
	nn.MergeStateDict(state, "l2_norm", v.l2Norm.StateDict())
	return state
}

// LoadStateDict restores a state produced by StateDict.
func (v *VGG) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := v.base.LoadStateDict(nn.SubStateDict(state, "vgg")); err != nil {
		return fmt.Errorf("vgg: %w", err)
	}
	if err := v.extras.LoadStateDict(nn.SubStateDict(state, "extras")); err != nil {
		return fmt.Errorf("extras: %w", err)
	}
	if err := v.l2Norm.LoadStateDict(nn.SubStateDict(state, "l2_norm")); err != nil {
		return fmt.Errorf("l2_norm: %w", err)
	}
	return nil
}

// InitFromPretrain loads pretrained base weights, keyed "<i>.weight" and
// "<i>.bias" as in an ImageNet VGG-16 reduced-fc checkpoint. The extras
// and L2Norm keep their initialization. Keys under "vgg." are accepted
// too, so a full backbone state dict can be passed.
func (v *VGG) InitFromPretrain(state map[string]*tensor.RawTensor) error {
	if sub := nn.SubStateDict(state, "vgg"); len(sub) > 0 {
		state = sub
	}
	if err := v.base.LoadStateDict(state); err != nil {
		return fmt.Errorf("vgg: init from pretrain: %w", err)
	}
	return nil
}

// ResetParameters re-initializes every conv: Xavier uniform weights and
// zero biases. The L2Norm weight is reset to L2NormScale.
func (v *VGG) ResetParameters() {
	for _, list := range []*nn.ModuleList{v.base, v.extras} {
		for i := range list.Len() {
			if conv, ok := list.Module(i).(*nn.Conv2D); ok {
				conv.ResetParameters()
			}
		}
	}
	nn.Constant(v.l2Norm.Weight().Tensor(), L2NormScale)
}
