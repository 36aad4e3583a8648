package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// AdaptiveAvgPool2D averages input regions so the output is out.H x out.W.
// Region i along an axis of size in spans [floor(i*in/out), ceil((i+1)*in/out)).
func (cpu *CPUBackend) AdaptiveAvgPool2D(x *tensor.RawTensor, out tensor.Pair) *tensor.RawTensor {
	N, C, H, W := x.Shape().NCHW()
	if out.H <= 0 || out.W <= 0 {
		panic(fmt.Sprintf("adaptive_avg_pool2d: invalid output size %v", out))
	}

	result := cpu.newLike(tensor.Shape{N, C, out.H, out.W}, x.DType(), "adaptive_avg_pool2d")
	switch x.DType() {
	case tensor.Float32:
		adaptiveAvgPool(result.AsFloat32(), x.AsFloat32(), N*C, H, W, out, cpu.par)
	case tensor.Float64:
		adaptiveAvgPool(result.AsFloat64(), x.AsFloat64(), N*C, H, W, out, cpu.par)
	default:
		panic(fmt.Sprintf("adaptive_avg_pool2d: unsupported dtype %s", x.DType()))
	}
	return result
}

func adaptiveAvgPool[T tensor.Float](dst, src []T, planes, H, W int, out tensor.Pair, cfg parallel.Config) {
	parallel.For(planes, func(p int) {
		plane := src[p*H*W : (p+1)*H*W]
		for oh := 0; oh < out.H; oh++ {
			h0, h1 := oh*H/out.H, ((oh+1)*H+out.H-1)/out.H
			for ow := 0; ow < out.W; ow++ {
				w0, w1 := ow*W/out.W, ((ow+1)*W+out.W-1)/out.W
				var sum float64
				for h := h0; h < h1; h++ {
					for w := w0; w < w1; w++ {
						sum += float64(plane[h*W+w])
					}
				}
				dst[(p*out.H+oh)*out.W+ow] = T(sum / float64((h1-h0)*(w1-w0)))
			}
		}
	}, coarse(cfg))
}

// Concat joins tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Concat(dim int, xs ...*tensor.RawTensor) *tensor.RawTensor {
	if len(xs) == 0 {
		panic("concat: no tensors")
	}
	first := xs[0].Shape()
	if dim < 0 || dim >= len(first) {
		panic(fmt.Sprintf("concat: dim %d out of range for %dD tensors", dim, len(first)))
	}

	outShape := first.Clone()
	outShape[dim] = 0
	for _, x := range xs {
		s := x.Shape()
		if len(s) != len(first) || x.DType() != xs[0].DType() {
			panic(fmt.Sprintf("concat: incompatible tensors %s%v and %s%v", xs[0].DType(), first, x.DType(), s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("concat: shape %v does not match %v outside dim %d", s, first, dim))
			}
		}
		outShape[dim] += s[dim]
	}

	result := cpu.newLike(outShape, xs[0].DType(), "concat")

	// outer = product of dims before dim; each tensor contributes a
	// contiguous block of s[dim]*inner bytes per outer index.
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= first[i]
	}
	elem := xs[0].DType().Size()
	inner := elem
	for i := dim + 1; i < len(first); i++ {
		inner *= first[i]
	}

	dst := result.Data()
	rowBytes := outShape[dim] * inner
	offset := 0
	for _, x := range xs {
		block := x.Shape()[dim] * inner
		src := x.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*rowBytes+offset:o*rowBytes+offset+block], src[o*block:(o+1)*block])
		}
		offset += block
	}
	return result
}
