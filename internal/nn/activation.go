package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vision/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
type ReLU struct {
	stateless
	backend tensor.LayerBackend
}

// NewReLU creates a new ReLU activation module.
func NewReLU(backend tensor.LayerBackend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return r.backend.ReLU(input)
}

// String returns "ReLU()".
func (r *ReLU) String() string { return "ReLU()" }

// Dropout zeroes elements with probability p while training and scales the
// survivors by 1/(1-p). In inference mode (the default) it is the identity.
type Dropout struct {
	stateless
	p        float64
	training bool
	rng      *rand.Rand
}

// NewDropout creates a dropout module. It panics unless 0 <= p < 1.
func NewDropout(p float64) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability %v out of range [0, 1)", p))
	}
	return &Dropout{p: p}
}

// WithRand makes the training mask reproducible.
func (d *Dropout) WithRand(rng *rand.Rand) *Dropout {
	d.rng = rng
	return d
}

// SetTraining switches between training and inference behavior.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// P returns the drop probability.
func (d *Dropout) P() float64 { return d.p }

// Forward applies the dropout mask while training; otherwise it returns
// input unchanged.
func (d *Dropout) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	if !d.training || d.p == 0 {
		return input
	}
	if !input.DType().IsFloat() {
		panic(fmt.Sprintf("dropout: unsupported dtype %s", input.DType()))
	}
	values := input.Float64s()
	scale := 1 / (1 - d.p)
	for i := range values {
		var u float64
		//nolint:gosec // Using math/rand for dropout masks (not security-critical)
		if d.rng != nil {
			u = d.rng.Float64()
		} else {
			u = rand.Float64()
		}
		if u < d.p {
			values[i] = 0
		} else {
			values[i] *= scale
		}
	}
	out := tensor.Zeros(input.Shape(), input.DType(), input.Device())
	out.SetFloat64s(values)
	return out
}

// String returns a string representation of the module.
func (d *Dropout) String() string { return fmt.Sprintf("Dropout(p=%v)", d.p) }
