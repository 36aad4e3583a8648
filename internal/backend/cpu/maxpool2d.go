package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where, per axis:
//
//	out = floor((in + 2*pad - kernel) / stride) + 1   (ceil with CeilMode)
//
// In ceil mode the last window must start inside the input or the left
// padding; a window starting in the right padding is dropped. Padded taps
// never win the max.
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[4,6],
//	        [5,6,7,8],             [12,14]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, cfg tensor.PoolConfig) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape.NCHW()

	if cfg.Kernel.H <= 0 || cfg.Kernel.W <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %v", cfg.Kernel))
	}
	if cfg.Stride.H <= 0 || cfg.Stride.W <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %v", cfg.Stride))
	}
	if 2*cfg.Padding.H > cfg.Kernel.H || 2*cfg.Padding.W > cfg.Kernel.W {
		panic(fmt.Sprintf("maxpool2d: padding %v should be at most half of kernel %v", cfg.Padding, cfg.Kernel))
	}

	HOut := PoolOutputSize(H, cfg.Kernel.H, cfg.Stride.H, cfg.Padding.H, cfg.CeilMode)
	WOut := PoolOutputSize(W, cfg.Kernel.W, cfg.Stride.W, cfg.Padding.W, cfg.CeilMode)
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions %dx%d (kernel=%v, stride=%v, input=%dx%d)",
			HOut, WOut, cfg.Kernel, cfg.Stride, H, W))
	}

	output := cpu.newLike(tensor.Shape{N, C, HOut, WOut}, input.DType(), "maxpool2d")

	switch input.DType() {
	case tensor.Float32:
		maxpool2d(output.AsFloat32(), input.AsFloat32(), N*C, H, W, HOut, WOut, cfg, cpu.par)
	case tensor.Float64:
		maxpool2d(output.AsFloat64(), input.AsFloat64(), N*C, H, W, HOut, WOut, cfg, cpu.par)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %v", input.DType()))
	}

	return output
}

// PoolOutputSize returns the pooled size of one axis.
func PoolOutputSize(in, kernel, stride, pad int, ceilMode bool) int {
	span := in + 2*pad - kernel
	if span < 0 {
		return 0
	}
	out := span/stride + 1
	if ceilMode {
		out = (span+stride-1)/stride + 1
		if (out-1)*stride >= in+pad {
			out--
		}
	}
	return out
}

func maxpool2d[T tensor.Float](out, in []T, planes, H, W, HOut, WOut int, cfg tensor.PoolConfig, par parallel.Config) {
	parallel.For(planes, func(p int) {
		// Pre-slice channel plane: eliminates (n*C+c)*H*W bounds check
		plane := in[p*H*W : (p+1)*H*W]
		dst := out[p*HOut*WOut : (p+1)*HOut*WOut]

		for oh := 0; oh < HOut; oh++ {
			hStart := oh*cfg.Stride.H - cfg.Padding.H
			hEnd := min(hStart+cfg.Kernel.H, H)
			hStart = max(hStart, 0)

			for ow := 0; ow < WOut; ow++ {
				wStart := ow*cfg.Stride.W - cfg.Padding.W
				wEnd := min(wStart+cfg.Kernel.W, W)
				wStart = max(wStart, 0)

				maxVal := T(math.Inf(-1))
				for h := hStart; h < hEnd; h++ {
					row := plane[h*W : (h+1)*W]
					for w := wStart; w < wEnd; w++ {
						if row[w] > maxVal {
							maxVal = row[w]
						}
					}
				}
				dst[oh*WOut+ow] = maxVal
			}
		}
	}, coarse(par))
}
