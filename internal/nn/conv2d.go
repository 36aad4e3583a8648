package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/tensor"
)

// Conv2D is a 2D convolutional layer.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding_h - dilation_h*(kernel_h-1) - 1) / stride_h + 1
//
// Kernel, stride, padding and dilation accept an int or an (h, w) pair.
//
// Example:
//
//	// 512 -> 1024 channels, 3x3 kernel dilated by 6 (SSD conv6)
//	conv6 := nn.NewConv2D(512, 1024, 3, 1, 6, 6, true, backend)
//	output := conv6.Forward(input)
type Conv2D struct {
	inChannels  int
	outChannels int
	kernel      tensor.Pair
	cfg         tensor.ConvConfig

	weight *Parameter // [out_channels, in_channels, kernel_h, kernel_w]
	bias   *Parameter // [out_channels] or nil

	backend tensor.LayerBackend
}

// NewConv2D creates a new 2D convolutional layer.
//
// Initialization follows the common default for convolutions: weights and
// bias are drawn from U(-1/sqrt(fan_in), 1/sqrt(fan_in)), with
// fan_in = in_channels * kernel_h * kernel_w. Models that need another
// scheme re-initialize through ResetParameters or the init helpers.
func NewConv2D(
	inChannels, outChannels int,
	kernel, stride, padding, dilation any,
	useBias bool,
	backend tensor.LayerBackend,
) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	k := tensor.MustPair(kernel)
	cfg := tensor.ConvConfig{
		Stride:   tensor.MustPair(stride),
		Padding:  tensor.MustPair(padding),
		Dilation: tensor.MustPair(dilation),
	}
	if k.H <= 0 || k.W <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %v", k))
	}
	if cfg.Stride.H <= 0 || cfg.Stride.W <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %v", cfg.Stride))
	}
	if cfg.Padding.H < 0 || cfg.Padding.W < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %v", cfg.Padding))
	}
	if cfg.Dilation.H <= 0 || cfg.Dilation.W <= 0 {
		panic(fmt.Sprintf("conv2d: invalid dilation %v", cfg.Dilation))
	}

	weightShape := tensor.Shape{outChannels, inChannels, k.H, k.W}
	bound := 1 / math.Sqrt(float64(inChannels*k.Area()))
	weight := NewParameter("weight", tensor.Uniform(weightShape, bound, tensor.Float32, backend.Device(), nil))

	var bias *Parameter
	if useBias {
		bias = NewParameter("bias", tensor.Uniform(tensor.Shape{outChannels}, bound, tensor.Float32, backend.Device(), nil))
	}

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernel:      k,
		cfg:         cfg,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	var bias *tensor.RawTensor
	if c.bias != nil {
		bias = c.bias.Tensor()
	}
	return c.backend.Conv2D(input, c.weight.Tensor(), bias, c.cfg)
}

// Parameters returns the weight and, when present, the bias.
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.weight, c.bias}
	}
	return []*Parameter{c.weight}
}

// StateDict returns "weight" and, when present, "bias".
func (c *Conv2D) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{"weight": c.weight.Tensor()}
	if c.bias != nil {
		state["bias"] = c.bias.Tensor()
	}
	return state
}

// LoadStateDict restores the weight and bias.
func (c *Conv2D) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParameters(state, c.weight, c.bias)
}

// ResetParameters re-initializes the layer with Xavier-uniform weights and
// a zero bias.
func (c *Conv2D) ResetParameters() {
	XavierUniform(c.weight.Tensor(), c.FanIn(), c.FanOut())
	if c.bias != nil {
		Constant(c.bias.Tensor(), 0)
	}
}

// Weight returns the weight parameter.
func (c *Conv2D) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D) Bias() *Parameter { return c.bias }

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int { return c.inChannels }

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }

// Kernel returns the kernel size.
func (c *Conv2D) Kernel() tensor.Pair { return c.kernel }

// Config returns the stride, padding and dilation.
func (c *Conv2D) Config() tensor.ConvConfig { return c.cfg }

// FanIn returns in_channels * kernel_h * kernel_w.
func (c *Conv2D) FanIn() int { return c.inChannels * c.kernel.Area() }

// FanOut returns out_channels * kernel_h * kernel_w.
func (c *Conv2D) FanOut() int { return c.outChannels * c.kernel.Area() }

// String returns a string representation of the layer.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%v, stride=%v, padding=%v, dilation=%v, bias=%t)",
		c.inChannels, c.outChannels, c.kernel, c.cfg.Stride, c.cfg.Padding, c.cfg.Dilation, c.bias != nil)
}
