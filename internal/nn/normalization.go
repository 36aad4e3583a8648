package nn

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// BatchNorm2D normalizes each channel with its running statistics:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// The layer runs in inference form; running statistics are buffers that
// travel in the state dict but are not parameters.
type BatchNorm2D struct {
	numFeatures int
	eps         float64

	weight      *Parameter // [C], init 1
	bias        *Parameter // [C], init 0
	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor

	backend tensor.LayerBackend
}

// NewBatchNorm2D creates a batch normalization layer with eps 1e-5.
func NewBatchNorm2D(numFeatures int, backend tensor.LayerBackend) *BatchNorm2D {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid number of features %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}
	dev := backend.Device()
	return &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         1e-5,
		weight:      NewParameter("weight", tensor.Full(shape, 1, tensor.Float32, dev)),
		bias:        NewParameter("bias", tensor.Zeros(shape, tensor.Float32, dev)),
		runningMean: tensor.Zeros(shape, tensor.Float32, dev),
		runningVar:  tensor.Full(shape, 1, tensor.Float32, dev),
		backend:     backend,
	}
}

// Forward normalizes input [N, C, H, W].
func (b *BatchNorm2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return b.backend.BatchNorm2D(input, b.runningMean, b.runningVar, b.weight.Tensor(), b.bias.Tensor(), b.eps)
}

// Parameters returns the affine weight and bias.
func (b *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{b.weight, b.bias}
}

// StateDict returns the affine parameters and running statistics.
func (b *BatchNorm2D) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       b.weight.Tensor(),
		"bias":         b.bias.Tensor(),
		"running_mean": b.runningMean,
		"running_var":  b.runningVar,
	}
}

// LoadStateDict restores parameters and running statistics.
func (b *BatchNorm2D) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := loadParameters(state, b.weight, b.bias); err != nil {
		return err
	}
	if err := loadEntry(b.runningMean, state, "running_mean"); err != nil {
		return err
	}
	return loadEntry(b.runningVar, state, "running_var")
}

// String returns a string representation of the layer.
func (b *BatchNorm2D) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g)", b.numFeatures, b.eps)
}

// L2Norm rescales the feature vector at every spatial position to unit L2
// norm across channels, then multiplies channel c by weight[c]. SSD applies
// it to conv4_3 with the weight initialized to 20.
type L2Norm struct {
	channels int
	eps      float64
	weight   *Parameter
	backend  tensor.LayerBackend
}

// NewL2Norm creates an L2Norm layer whose weight starts at scale.
func NewL2Norm(channels int, scale float64, backend tensor.LayerBackend) *L2Norm {
	if channels <= 0 {
		panic(fmt.Sprintf("l2norm: invalid number of channels %d", channels))
	}
	return &L2Norm{
		channels: channels,
		eps:      1e-10,
		weight:   NewParameter("weight", tensor.Full(tensor.Shape{channels}, scale, tensor.Float32, backend.Device())),
		backend:  backend,
	}
}

// Forward normalizes input [N, C, H, W].
func (l *L2Norm) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return l.backend.L2Norm(input, l.weight.Tensor(), l.eps)
}

// Parameters returns the per-channel scale.
func (l *L2Norm) Parameters() []*Parameter { return []*Parameter{l.weight} }

// StateDict returns "weight".
func (l *L2Norm) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": l.weight.Tensor()}
}

// LoadStateDict restores the per-channel scale.
func (l *L2Norm) LoadStateDict(state map[string]*tensor.RawTensor) error {
	return loadParameters(state, l.weight)
}

// Weight returns the per-channel scale parameter.
func (l *L2Norm) Weight() *Parameter { return l.weight }
