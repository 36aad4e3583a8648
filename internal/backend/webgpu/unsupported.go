//go:build !windows

// Package webgpu implements the neighborhood operators as WGSL compute
// shaders. The native bindings are only wired on Windows; elsewhere New
// reports the backend as unavailable.
package webgpu

import (
	"errors"

	"github.com/born-ml/vision/internal/tensor"
)

var errUnavailable = errors.New("webgpu: backend not available on this platform")

// Backend is a placeholder that is never constructed on this platform.
type Backend struct{}

// New always fails on this platform.
func New() (*Backend, error) { return nil, errUnavailable }

// IsAvailable reports false on this platform.
func IsAvailable() bool { return false }

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns the backend name.
func (b *Backend) Name() string { return "WebGPU" }

// Device returns the compute device.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// Add panics; the backend cannot be constructed here.
func (b *Backend) Add(_, _ *tensor.RawTensor) *tensor.RawTensor { panic(errUnavailable) }

// Subtraction2ZeroPad returns an error; the backend cannot be constructed here.
func (b *Backend) Subtraction2ZeroPad(_, _ *tensor.RawTensor, _ tensor.Window) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

// Subtraction2ZeroPadGradInput1 returns an error on this platform.
func (b *Backend) Subtraction2ZeroPadGradInput1(_ *tensor.RawTensor, _ tensor.Shape, _ tensor.Window) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

// Subtraction2ZeroPadGradInput2 returns an error on this platform.
func (b *Backend) Subtraction2ZeroPadGradInput2(_ *tensor.RawTensor, _ tensor.Shape, _ tensor.Window) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

// Aggregation returns an error on this platform.
func (b *Backend) Aggregation(_, _ *tensor.RawTensor, _ tensor.Window, _ tensor.PadMode) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

// AggregationGradInput returns an error on this platform.
func (b *Backend) AggregationGradInput(_, _ *tensor.RawTensor, _ tensor.Shape, _ tensor.Window, _ tensor.PadMode) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

// AggregationGradWeight returns an error on this platform.
func (b *Backend) AggregationGradWeight(_, _ *tensor.RawTensor, _ tensor.Shape, _ tensor.Window, _ tensor.PadMode) (*tensor.RawTensor, error) {
	return nil, errUnavailable
}

var _ tensor.NeighborhoodBackend = (*Backend)(nil)
