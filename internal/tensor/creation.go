package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	return MustNewRaw(shape, dtype, device)
}

// Full creates a float tensor filled with value.
func Full(shape Shape, value float64, dtype DataType, device Device) *RawTensor {
	t := Zeros(shape, dtype, device)
	t.Fill(value)
	return t
}

// FromFloat32 creates a CPU float32 tensor holding a copy of values.
func FromFloat32(shape Shape, values []float32) (*RawTensor, error) {
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("from float32: %d values for shape %v", len(values), shape)
	}
	t, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), values)
	return t, nil
}

// FromFloat64 creates a CPU float64 tensor holding a copy of values.
func FromFloat64(shape Shape, values []float64) (*RawTensor, error) {
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("from float64: %d values for shape %v", len(values), shape)
	}
	t, err := NewRaw(shape, Float64, CPU)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat64(), values)
	return t, nil
}

// RandN creates a float tensor with values drawn from N(0, 1) using rng.
// A nil rng uses the global source.
func RandN(shape Shape, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	t := Zeros(shape, dtype, device)
	values := make([]float64, t.NumElements())
	for i := range values {
		//nolint:gosec // Using math/rand for test data and init (not security-critical)
		if rng != nil {
			values[i] = rng.NormFloat64()
		} else {
			values[i] = rand.NormFloat64()
		}
	}
	t.SetFloat64s(values)
	return t
}

// Uniform creates a float tensor with values drawn from U(-bound, bound).
func Uniform(shape Shape, bound float64, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	t := Zeros(shape, dtype, device)
	values := make([]float64, t.NumElements())
	for i := range values {
		var u float64
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		if rng != nil {
			u = rng.Float64()
		} else {
			u = rand.Float64()
		}
		values[i] = (u*2.0 - 1.0) * bound
	}
	t.SetFloat64s(values)
	return t
}
