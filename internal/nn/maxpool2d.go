package nn

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// stateless supplies the Module bookkeeping for layers without parameters
// or buffers.
type stateless struct{}

func (stateless) Parameters() []*Parameter                         { return nil }
func (stateless) StateDict() map[string]*tensor.RawTensor          { return map[string]*tensor.RawTensor{} }
func (stateless) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// MaxPool2D is a 2D max pooling layer.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height + 2*padding - kernel) / stride + 1
//
// rounded down, or rounded up when ceilMode is set. In ceil mode the last
// window may start in the right/bottom padding region but never entirely
// outside the padded input; padded positions never win the max.
//
// Common configurations:
//   - 2x2 pool, stride=2: Reduces spatial dimensions by half (VGG)
//   - 2x2 pool, stride=2, ceil: SSD pool3 (75 -> 38)
//   - 3x3 pool, stride=1, padding=1: SSD pool5, keeps resolution
//
// Example:
//
//	pool := nn.NewMaxPool2D(2, 2, 0, true, backend)
//	output := pool.Forward(input) // [N, C, 38, 38] for 75x75 input
type MaxPool2D struct {
	stateless
	cfg     tensor.PoolConfig
	backend tensor.LayerBackend
}

// NewMaxPool2D creates a new 2D max pooling layer. kernel, stride and
// padding accept an int or an (h, w) pair.
func NewMaxPool2D(kernel, stride, padding any, ceilMode bool, backend tensor.LayerBackend) *MaxPool2D {
	cfg := tensor.PoolConfig{
		Kernel:   tensor.MustPair(kernel),
		Stride:   tensor.MustPair(stride),
		Padding:  tensor.MustPair(padding),
		CeilMode: ceilMode,
	}
	if cfg.Kernel.H <= 0 || cfg.Kernel.W <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %v", cfg.Kernel))
	}
	if cfg.Stride.H <= 0 || cfg.Stride.W <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %v", cfg.Stride))
	}
	if 2*cfg.Padding.H > cfg.Kernel.H || 2*cfg.Padding.W > cfg.Kernel.W || cfg.Padding.H < 0 || cfg.Padding.W < 0 {
		panic(fmt.Sprintf("maxpool2d: padding %v should be at most half of kernel %v", cfg.Padding, cfg.Kernel))
	}
	return &MaxPool2D{cfg: cfg, backend: backend}
}

// Forward applies max pooling.
func (m *MaxPool2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return m.backend.MaxPool2D(input, m.cfg)
}

// Config returns the pooling window.
func (m *MaxPool2D) Config() tensor.PoolConfig { return m.cfg }

// String returns a string representation of the layer.
func (m *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%v, stride=%v, padding=%v, ceil_mode=%t)",
		m.cfg.Kernel, m.cfg.Stride, m.cfg.Padding, m.cfg.CeilMode)
}
