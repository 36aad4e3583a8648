//go:build windows

// Package webgpu implements the neighborhood operators as WGSL compute
// shaders. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO
// WebGPU bindings. WGSL has no f64, so only float32 tensors are accepted.
package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/vision/internal/tensor"
)

// Backend runs the neighborhood kernels on a GPU adapter.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string

	// Compiled shaders and pipelines, keyed by kernel name.
	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline

	buffers *bufferPool
}

// releaser is any wgpu handle.
type releaser interface{ Release() }

// New acquires a high-performance adapter and opens a device on it.
// The native library is loaded lazily; if it is missing, New reports an
// error instead of panicking.
func New() (backend *Backend, err error) {
	var acquired []releaser
	defer func() {
		if r := recover(); r != nil {
			backend, err = nil, fmt.Errorf("webgpu: native library not available: %v", r)
		}
		if err != nil {
			for i := len(acquired) - 1; i >= 0; i-- {
				acquired[i].Release()
			}
		}
	}()

	instance := wgpu.CreateInstance(nil)
	acquired = append(acquired, instance)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: requesting adapter: %w", err)
	}
	acquired = append(acquired, adapter)
	info := adapter.GetInfo()

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: requesting device: %w", err)
	}
	acquired = append(acquired, device)
	queue := device.GetQueue()
	if queue == nil {
		return nil, errors.New("webgpu: device has no queue")
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		name:      fmt.Sprintf("WebGPU (%s %s)", info.Device, info.Vendor),
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		buffers:   newBufferPool(device),
	}, nil
}

// Release frees the cached pipelines and buffers, then the device chain.
// The backend must not be used afterwards.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.instance == nil {
		return
	}

	b.buffers.clear()
	b.buffers = nil
	for name, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, name)
	}
	for name, s := range b.shaders {
		s.Release()
		delete(b.shaders, name)
	}
	// Reverse acquisition order.
	for _, h := range []releaser{b.queue, b.device, b.adapter, b.instance} {
		h.Release()
	}
	b.queue, b.device, b.adapter, b.instance = nil, nil, nil, nil
}

// Name returns the backend name with the adapter's device and vendor.
func (b *Backend) Name() string { return b.name }

// Device returns the compute device.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// IsAvailable reports whether an adapter can be acquired.
func IsAvailable() (available bool) {
	defer func() {
		if recover() != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

var _ tensor.NeighborhoodBackend = (*Backend)(nil)
