package tensor

// Backend is the compute surface every backend provides.
//
// Implementations:
//   - CPU: goroutine worker pool (internal/backend/cpu)
//   - WebGPU: WGSL compute shaders (internal/backend/webgpu)
type Backend interface {
	// Name returns a short backend identifier.
	Name() string

	// Device returns the device tensors produced by this backend are bound to.
	Device() Device

	// Add performs element-wise addition of same-shaped tensors.
	// Used by the gradient tape to accumulate gradients.
	Add(a, b *RawTensor) *RawTensor
}

// ConvConfig describes a 2D convolution.
type ConvConfig struct {
	Stride   Pair
	Padding  Pair
	Dilation Pair
}

// PoolConfig describes a 2D max pooling window.
type PoolConfig struct {
	Kernel   Pair
	Stride   Pair
	Padding  Pair
	CeilMode bool
}

// LayerBackend adds the dense CNN primitives the backbone and classifier
// layers are built from. All methods panic on malformed input, as layers
// validate their configuration at construction time.
type LayerBackend interface {
	Backend

	// Conv2D convolves input [N,Cin,H,W] with weight [Cout,Cin,KH,KW] and
	// adds bias [Cout] when it is non-nil.
	Conv2D(input, weight, bias *RawTensor, cfg ConvConfig) *RawTensor

	// MaxPool2D takes the maximum over each pooling window.
	MaxPool2D(input *RawTensor, cfg PoolConfig) *RawTensor

	// ReLU applies max(0, x) element-wise.
	ReLU(x *RawTensor) *RawTensor

	// BatchNorm2D normalizes each channel with running statistics:
	// (x - mean) / sqrt(var + eps) * weight + bias.
	BatchNorm2D(x, mean, variance, weight, bias *RawTensor, eps float64) *RawTensor

	// L2Norm normalizes across channels at each spatial position and scales
	// by a per-channel weight.
	L2Norm(x, weight *RawTensor, eps float64) *RawTensor

	// AdaptiveAvgPool2D averages input regions so the output is out.H x out.W.
	AdaptiveAvgPool2D(x *RawTensor, out Pair) *RawTensor

	// Concat joins tensors along dim.
	Concat(dim int, xs ...*RawTensor) *RawTensor
}

// NeighborhoodBackend adds the pixel-neighborhood kernels behind the
// self-attention operators. Each kernel runs one logical worker per output
// element; inputs are assumed validated by the caller.
type NeighborhoodBackend interface {
	Backend

	// Subtraction2ZeroPad computes centre-minus-neighbour differences.
	// input1 and input2 are [N,C,H,W]; the result is [N,C,KH*KW,OH*OW].
	Subtraction2ZeroPad(input1, input2 *RawTensor, w Window) (*RawTensor, error)

	// Subtraction2ZeroPadGradInput1 maps an output gradient back onto input1.
	Subtraction2ZeroPadGradInput1(grad *RawTensor, inShape Shape, w Window) (*RawTensor, error)

	// Subtraction2ZeroPadGradInput2 maps an output gradient back onto input2.
	Subtraction2ZeroPadGradInput2(grad *RawTensor, inShape Shape, w Window) (*RawTensor, error)

	// Aggregation computes the weighted sum of each window.
	// input is [N,C,H,W], weight is [N,CW,KH*KW,OH*OW]; the result is [N,C,OH,OW].
	Aggregation(input, weight *RawTensor, w Window, mode PadMode) (*RawTensor, error)

	// AggregationGradInput maps an output gradient back onto the input.
	AggregationGradInput(grad, weight *RawTensor, inShape Shape, w Window, mode PadMode) (*RawTensor, error)

	// AggregationGradWeight maps an output gradient back onto the weight.
	AggregationGradWeight(grad, input *RawTensor, weightShape Shape, w Window, mode PadMode) (*RawTensor, error)
}
