package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/vision/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Creates a float32 tensor with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func Xavier(fanIn, fanOut int, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, bound, tensor.Float32, backend.Device(), nil)
}

// XavierUniform re-initializes t in place with Xavier-uniform values.
func XavierUniform(t *tensor.RawTensor, fanIn, fanOut int) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	fillUniform(t, -bound, bound)
}

// KaimingUniform re-initializes t in place for ReLU networks:
// U(-sqrt(6/fan_in), sqrt(6/fan_in)).
func KaimingUniform(t *tensor.RawTensor, fanIn int) {
	bound := math.Sqrt(6.0 / float64(fanIn))
	fillUniform(t, -bound, bound)
}

// Normal re-initializes t in place with values drawn from N(mean, std²).
func Normal(t *tensor.RawTensor, mean, std float64) {
	values := make([]float64, t.NumElements())
	for i := range values {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		values[i] = mean + std*rand.NormFloat64()
	}
	t.SetFloat64s(values)
}

// Constant fills t with v.
func Constant(t *tensor.RawTensor, v float64) {
	t.Fill(v)
}

func fillUniform(t *tensor.RawTensor, lo, hi float64) {
	values := make([]float64, t.NumElements())
	for i := range values {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		values[i] = lo + (hi-lo)*rand.Float64()
	}
	t.SetFloat64s(values)
}
