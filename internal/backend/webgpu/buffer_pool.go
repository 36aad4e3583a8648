//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxPooled caps the number of idle buffers kept per (size, usage) key.
const maxPooled = 8

type poolKey struct {
	size  uint64
	usage wgpu.BufferUsage
}

// bufferPool recycles output and staging buffers between dispatches. The
// neighborhood kernels run repeatedly with the same shapes during training,
// so buffers are matched on exact size and usage.
type bufferPool struct {
	device *wgpu.Device
	mu     sync.Mutex
	idle   map[poolKey][]*wgpu.Buffer

	hits, misses uint64
}

func newBufferPool(device *wgpu.Device) *bufferPool {
	return &bufferPool{device: device, idle: make(map[poolKey][]*wgpu.Buffer)}
}

// acquire returns an idle buffer of the given size and usage, or creates one.
func (p *bufferPool) acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	key := poolKey{size, usage}
	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.idle[key]; len(free) > 0 {
		buf := free[len(free)-1]
		p.idle[key] = free[:len(free)-1]
		p.hits++
		return buf
	}
	p.misses++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: usage, Size: size})
}

// release hands a buffer back; it is destroyed if the key is already full.
func (p *bufferPool) release(buf *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	key := poolKey{size, usage}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle[key]) >= maxPooled {
		buf.Release()
		return
	}
	p.idle[key] = append(p.idle[key], buf)
}

func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, free := range p.idle {
		for _, buf := range free {
			buf.Release()
		}
		delete(p.idle, key)
	}
}

func (p *bufferPool) stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}
