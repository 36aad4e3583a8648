// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/vision/internal/tensor"
)

// RawTensor is a dense tensor buffer with shape, dtype and device metadata.
type RawTensor = tensor.RawTensor

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Device identifies where a tensor's data lives.
type Device = tensor.Device

// Pair is an (h, w) kernel descriptor.
type Pair = tensor.Pair

// Window bundles kernel size, stride, padding and dilation of a sliding
// window operation.
type Window = tensor.Window

// PadMode selects how aggregation treats taps outside the input.
type PadMode = tensor.PadMode

// Float is the constraint satisfied by float32 and float64.
type Float = tensor.Float

// Data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// Padding modes.
const (
	PadZero    = tensor.PadZero
	PadReflect = tensor.PadReflect
)

// NewRaw allocates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Zeros creates a zero-filled tensor and panics on an invalid shape.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	return tensor.Zeros(shape, dtype, device)
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, value float64, dtype DataType, device Device) *RawTensor {
	return tensor.Full(shape, value, dtype, device)
}

// FromFloat32 creates a CPU float32 tensor holding a copy of values.
func FromFloat32(shape Shape, values []float32) (*RawTensor, error) {
	return tensor.FromFloat32(shape, values)
}

// FromFloat64 creates a CPU float64 tensor holding a copy of values.
func FromFloat64(shape Shape, values []float64) (*RawTensor, error) {
	return tensor.FromFloat64(shape, values)
}

// RandN fills a new tensor from the standard normal distribution.
// A nil rng uses the global source.
func RandN(shape Shape, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	return tensor.RandN(shape, dtype, device, rng)
}

// Uniform fills a new tensor from U(-bound, bound).
func Uniform(shape Shape, bound float64, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	return tensor.Uniform(shape, bound, dtype, device, rng)
}

// NewPair normalises an int, [2]int or []int to a Pair.
func NewPair(v any) (Pair, error) {
	return tensor.NewPair(v)
}

// NewWindow normalises scalar-or-pair window parameters.
func NewWindow(kernel, stride, padding, dilation any) (Window, error) {
	return tensor.NewWindow(kernel, stride, padding, dilation)
}

// ParseDataType parses the name produced by DataType.String.
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}
