// Package squeezenet implements SqueezeNet 1.1 and the retraining wrapper
// that adapts a pretrained ImageNet model to a new set of classes.
//
// Module order and state dict keys ("features.<i>.squeeze.weight",
// "classifier.1.bias", ...) match the reference ImageNet checkpoints.
package squeezenet

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/zoo"
)

// ImageNetClasses is the class count of the pretrained weights.
const ImageNetClasses = 1000

// classifierConv is the index of the final conv in the classifier.
const classifierConv = 1

// SqueezeNet is SqueezeNet 1.1: a features stack of Fire modules and a
// fully convolutional classifier ending in global average pooling.
type SqueezeNet struct {
	numClasses int
	features   *nn.Sequential
	classifier *nn.Sequential
	flatten    *nn.Flatten
	backend    tensor.LayerBackend
}

// New builds a randomly initialized SqueezeNet 1.1 for numClasses.
func New(numClasses int, backend tensor.LayerBackend) *SqueezeNet {
	if numClasses <= 0 {
		panic(fmt.Sprintf("squeezenet: invalid class count %d", numClasses))
	}
	m := &SqueezeNet{
		numClasses: numClasses,
		features: nn.NewSequential(
			nn.NewConv2D(3, 64, 3, 2, 0, 1, true, backend),
			nn.NewReLU(backend),
			nn.NewMaxPool2D(3, 2, 0, true, backend),
			NewFire(64, 16, 64, 64, backend),
			NewFire(128, 16, 64, 64, backend),
			nn.NewMaxPool2D(3, 2, 0, true, backend),
			NewFire(128, 32, 128, 128, backend),
			NewFire(256, 32, 128, 128, backend),
			nn.NewMaxPool2D(3, 2, 0, true, backend),
			NewFire(256, 48, 192, 192, backend),
			NewFire(384, 48, 192, 192, backend),
			NewFire(384, 64, 256, 256, backend),
			NewFire(512, 64, 256, 256, backend),
		),
		classifier: nn.NewSequential(
			nn.NewDropout(0.5),
			nn.NewConv2D(512, numClasses, 1, 1, 0, 1, true, backend),
			nn.NewReLU(backend),
			nn.NewAdaptiveAvgPool2D(1, backend),
		),
		flatten: nn.NewFlatten(),
		backend: backend,
	}
	m.ResetParameters()
	m.SetTraining(false)
	return m
}

// ResetParameters applies the reference initialization: Kaiming uniform
// weights for every conv except the final one, which is drawn from
// N(0, 0.01); all biases zero.
func (m *SqueezeNet) ResetParameters() {
	final := m.FinalConv()
	for _, conv := range m.convs() {
		if conv == final {
			nn.Normal(conv.Weight().Tensor(), 0, 0.01)
		} else {
			nn.KaimingUniform(conv.Weight().Tensor(), conv.FanIn())
		}
		if b := conv.Bias(); b != nil {
			nn.Constant(b.Tensor(), 0)
		}
	}
}

func (m *SqueezeNet) convs() []*nn.Conv2D {
	var convs []*nn.Conv2D
	for _, list := range []*nn.Sequential{m.features, m.classifier} {
		for i := range list.Len() {
			switch mod := list.Module(i).(type) {
			case *nn.Conv2D:
				convs = append(convs, mod)
			case *Fire:
				convs = append(convs, mod.convs()...)
			}
		}
	}
	return convs
}

// NumClasses returns the size of the classifier output.
func (m *SqueezeNet) NumClasses() int { return m.numClasses }

// Features returns the convolutional trunk.
func (m *SqueezeNet) Features() *nn.Sequential { return m.features }

// Classifier returns the classifier head.
func (m *SqueezeNet) Classifier() *nn.Sequential { return m.classifier }

// FinalConv returns the 1x1 conv producing the class scores.
func (m *SqueezeNet) FinalConv() *nn.Conv2D {
	return m.classifier.Module(classifierConv).(*nn.Conv2D)
}

// ReplaceClassifier swaps the final conv for a freshly initialized one
// with numClasses outputs.
func (m *SqueezeNet) ReplaceClassifier(numClasses int) {
	m.classifier.Set(classifierConv, nn.NewConv2D(512, numClasses, 1, 1, 0, 1, true, m.backend))
	m.numClasses = numClasses
}

// ModelType names the architecture in checkpoint headers.
func (m *SqueezeNet) ModelType() string { return "SqueezeNet1_1" }

// Forward maps images [N, 3, H, W] to class scores [N, num_classes].
func (m *SqueezeNet) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	return m.flatten.Forward(m.classifier.Forward(m.features.Forward(x)))
}

// Parameters returns the features parameters followed by the classifier's.
func (m *SqueezeNet) Parameters() []*nn.Parameter {
	return append(m.features.Parameters(), m.classifier.Parameters()...)
}

// SetTraining toggles dropout in the classifier.
func (m *SqueezeNet) SetTraining(training bool) {
	m.features.SetTraining(training)
	m.classifier.SetTraining(training)
}

// StateDict exposes "features.*" and "classifier.*".
func (m *SqueezeNet) StateDict() map[string]*tensor.RawTensor {
	state := nn.PrefixStateDict("features", m.features.StateDict())
	nn.MergeStateDict(state, "classifier", m.classifier.StateDict())
	return state
}

// LoadStateDict restores a state produced by StateDict.
func (m *SqueezeNet) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := m.features.LoadStateDict(nn.SubStateDict(state, "features")); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := m.classifier.LoadStateDict(nn.SubStateDict(state, "classifier")); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}

// RetrainConfig configures Retrain.
type RetrainConfig struct {
	// Pretrained loads the ImageNet weights before the head is replaced.
	Pretrained bool

	// TrainOnlyLastLayer freezes every pretrained parameter, so only the
	// new classifier conv is trainable.
	TrainOnlyLastLayer bool

	// Registry supplies the pretrained weights (default zoo.DefaultRegistry()).
	Registry *zoo.Registry
}

// Retrain builds SqueezeNet 1.1 for numClasses, optionally from the
// ImageNet weights, and returns it with the parameters still requiring
// gradients.
func Retrain(ctx context.Context, numClasses int, cfg RetrainConfig, backend tensor.LayerBackend) (*SqueezeNet, []*nn.Parameter, error) {
	model := New(ImageNetClasses, backend)
	if cfg.Pretrained {
		registry := cfg.Registry
		if registry == nil {
			registry = zoo.DefaultRegistry()
		}
		state, err := registry.StateDict(ctx, zoo.SqueezeNet11)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "squeezenet: pretrained weights")
		}
		if err := model.LoadStateDict(state); err != nil {
			return nil, nil, errors.Wrap(err, "squeezenet: pretrained weights")
		}
		klog.V(1).Infof("squeezenet: loaded %d pretrained tensors", len(state))
	}
	if cfg.TrainOnlyLastLayer {
		nn.Freeze(model)
	}
	model.ReplaceClassifier(numClasses)
	return model, nn.TrainableParameters(model), nil
}

// HeadGradients runs a training forward pass on x and returns the mean
// cross-entropy against labels, the class scores and the gradients of the
// final conv's weight and bias keyed by their tensors, ready for
// optim.Optimizer.Step. Gradients stop at the classifier input, so it
// trains the head of a model whose features are frozen.
func (m *SqueezeNet) HeadGradients(x *tensor.RawTensor, labels []int) (loss float64, logits *tensor.RawTensor, grads map[*tensor.RawTensor]*tensor.RawTensor) {
	conv := m.FinalConv()
	d := m.classifier.Module(0).Forward(m.features.Forward(x))
	z := conv.Forward(d)
	pooled := m.classifier.Module(3).Forward(m.classifier.Module(2).Forward(z))
	logits = m.flatten.Forward(pooled)

	loss, dLogits := nn.CrossEntropy(logits, labels)

	// Average pooling spreads each logit gradient evenly over the plane;
	// the ReLU passes it where z > 0. The 1x1 conv then reduces to one
	// dot product per (class, channel) pair.
	n, k, h, w := z.Shape().NCHW()
	c := conv.InChannels()
	hw := h * w
	zv, dv, gl := z.Float64s(), d.Float64s(), dLogits.Float64s()
	dW := make([]float64, k*c)
	dB := make([]float64, k)
	gz := make([]float64, hw)
	for b := range n {
		for o := range k {
			g := gl[b*k+o] / float64(hw)
			plane := zv[(b*k+o)*hw : (b*k+o+1)*hw]
			for s, v := range plane {
				gz[s] = 0
				if v > 0 {
					gz[s] = g
				}
			}
			dB[o] += floats.Sum(gz)
			for ch := range c {
				dW[o*c+ch] += floats.Dot(gz, dv[(b*c+ch)*hw:(b*c+ch+1)*hw])
			}
		}
	}

	grads = make(map[*tensor.RawTensor]*tensor.RawTensor, 2)
	weight := conv.Weight().Tensor()
	gw := tensor.MustNewRaw(weight.Shape().Clone(), weight.DType(), tensor.CPU)
	gw.SetFloat64s(dW)
	grads[weight] = gw
	if bias := conv.Bias(); bias != nil {
		gb := tensor.MustNewRaw(bias.Tensor().Shape().Clone(), bias.Tensor().DType(), tensor.CPU)
		gb.SetFloat64s(dB)
		grads[bias.Tensor()] = gb
	}
	return loss, logits, grads
}
