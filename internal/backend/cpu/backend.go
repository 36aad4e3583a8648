// Package cpu implements the CPU backend. Kernels are plain Go loops
// dispatched on the goroutine worker pool from internal/parallel, with one
// logical worker per output element for the neighborhood operators.
package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// CPUBackend implements tensor.LayerBackend and tensor.NeighborhoodBackend
// on the host.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend using parallel.DefaultConfig.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit worker-pool configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Parallel returns the worker-pool configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}

// Add performs element-wise addition of same-shaped float tensors.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) || a.DType() != b.DType() {
		panic(fmt.Sprintf("add: %s%v vs %s%v", a.DType(), a.Shape(), b.DType(), b.Shape()))
	}
	result := cpu.newLike(a.Shape(), a.DType(), "add")

	switch a.DType() {
	case tensor.Float32:
		addFloat(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), cpu.par)
	case tensor.Float64:
		addFloat(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
	}
	return result
}

func addFloat[T tensor.Float](dst, a, b []T, cfg parallel.Config) {
	parallel.ForRange(len(dst), func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = a[i] + b[i]
		}
	}, cfg)
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.newLike(x.Shape(), x.DType(), "relu")
	switch x.DType() {
	case tensor.Float32:
		reluFloat(result.AsFloat32(), x.AsFloat32(), cpu.par)
	case tensor.Float64:
		reluFloat(result.AsFloat64(), x.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}
	return result
}

func reluFloat[T tensor.Float](dst, src []T, cfg parallel.Config) {
	parallel.ForRange(len(dst), func(start, end int) {
		for i := start; i < end; i++ {
			if src[i] > 0 {
				dst[i] = src[i]
			} else {
				dst[i] = 0
			}
		}
	}, cfg)
}

// newLike allocates a zeroed tensor on this backend's device.
func (cpu *CPUBackend) newLike(shape tensor.Shape, dtype tensor.DataType, op string) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// Compile-time interface checks.
var (
	_ tensor.LayerBackend        = (*CPUBackend)(nil)
	_ tensor.NeighborhoodBackend = (*CPUBackend)(nil)
)

// coarse returns cfg tuned for work items that are whole planes or
// channels rather than single elements.
func coarse(cfg parallel.Config) parallel.Config {
	cfg.MinChunkSize = 1
	return cfg
}
