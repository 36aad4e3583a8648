//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/vision/internal/tensor"
)

// maxWorkgroupsPerDim is the WebGPU limit on workgroups along one dispatch axis.
const maxWorkgroupsPerDim = 65535

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout): bindings are inferred from the shader.
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()
	return pipeline
}

// createBuffer creates a GPU buffer and uploads initial data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer creates a uniform buffer rounded up to 16 bytes.
func (b *Backend) createUniformBuffer(data []byte) (*wgpu.Buffer, uint64) {
	alignedSize := (uint64(len(data)) + 15) &^ 15
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), alignedSize), data)
	buffer.Unmap()
	return buffer, alignedSize
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	usage := wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	staging := b.buffers.acquire(size, usage)
	defer b.buffers.release(staging, size, usage)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(dst, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()
	return nil
}

// kernel is one compiled compute entry point.
type kernel struct {
	name string
	code string
}

// encodeParams packs int32 kernel parameters into a little-endian uniform block.
func encodeParams(params []int32) []byte {
	buf := make([]byte, 4*len(params))
	for i, v := range params {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return buf
}

// workgroups splits total invocations into an (x, y) grid that respects the
// per-axis dispatch limit. Shaders recover the flat index as
// gid.x + gid.y * groupsX * workgroupSize.
func workgroups(total int) (x, y uint32) {
	groups := (total + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroupsPerDim {
		return uint32(groups), 1
	}
	rows := (groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim
	//nolint:gosec // G115: both values are bounded by the dispatch limit
	return maxWorkgroupsPerDim, uint32(rows)
}

// run uploads inputs, dispatches k with one invocation per element of
// total, and reads back a float32 tensor of outShape. Bindings are the
// inputs in order, then the output, then the uniform params block.
func (b *Backend) run(k kernel, inputs []*tensor.RawTensor, outShape tensor.Shape, total int, params []int32) (*tensor.RawTensor, error) {
	for _, in := range inputs {
		if in.DType() != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", in.DType())
		}
	}
	result, err := tensor.NewRaw(outShape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return result, nil
	}

	pipeline := b.getOrCreatePipeline(k.name, b.compileShader(k.name, k.code))

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	for i, in := range inputs {
		buf := b.createBuffer(in.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		//nolint:gosec // G115: ByteSize() is non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(in.ByteSize())))
	}

	//nolint:gosec // G115: ByteSize() is non-negative
	resultSize := uint64(result.ByteSize())
	outUsage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	out := b.buffers.acquire(resultSize, outUsage)
	defer b.buffers.release(out, resultSize, outUsage)
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)), out, 0, resultSize))

	gx, gy := workgroups(total)
	uniform, uniformSize := b.createUniformBuffer(encodeParams(append(params, int32(total), int32(gx))))
	defer uniform.Release()
	//nolint:gosec // G115: binding index is small
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(inputs)+1), uniform, 0, uniformSize))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(gx, gy, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	if err := b.readBuffer(out, result.Data()); err != nil {
		return nil, fmt.Errorf("webgpu %s: %w", k.name, err)
	}
	return result, nil
}
