package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// BatchNorm2D normalizes [N,C,H,W] input with per-channel running statistics.
// mean, variance, weight and bias are all [C].
func (cpu *CPUBackend) BatchNorm2D(x, mean, variance, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	N, C, H, W := x.Shape().NCHW()
	for name, p := range map[string]*tensor.RawTensor{"mean": mean, "variance": variance, "weight": weight, "bias": bias} {
		if len(p.Shape()) != 1 || p.Shape()[0] != C {
			panic(fmt.Sprintf("batchnorm2d: %s shape %v, want [%d]", name, p.Shape(), C))
		}
	}

	// Fold statistics into one scale/shift per channel.
	scale := make([]float64, C)
	shift := make([]float64, C)
	m, v, g, b := mean.Float64s(), variance.Float64s(), weight.Float64s(), bias.Float64s()
	for c := 0; c < C; c++ {
		scale[c] = g[c] / math.Sqrt(v[c]+eps)
		shift[c] = b[c] - m[c]*scale[c]
	}

	result := cpu.newLike(x.Shape(), x.DType(), "batchnorm2d")
	switch x.DType() {
	case tensor.Float32:
		affinePlanes(result.AsFloat32(), x.AsFloat32(), N, C, H*W, scale, shift, cpu.par)
	case tensor.Float64:
		affinePlanes(result.AsFloat64(), x.AsFloat64(), N, C, H*W, scale, shift, cpu.par)
	default:
		panic(fmt.Sprintf("batchnorm2d: unsupported dtype %s", x.DType()))
	}
	return result
}

func affinePlanes[T tensor.Float](dst, src []T, N, C, plane int, scale, shift []float64, cfg parallel.Config) {
	parallel.ForBatch(N, C, func(n, c int) {
		off := (n*C + c) * plane
		s, b := T(scale[c]), T(shift[c])
		for i := off; i < off+plane; i++ {
			dst[i] = src[i]*s + b
		}
	}, coarse(cfg))
}

// L2Norm divides each spatial position's channel vector by its L2 norm
// (plus eps) and multiplies channel c by weight[c].
func (cpu *CPUBackend) L2Norm(x, weight *tensor.RawTensor, eps float64) *tensor.RawTensor {
	N, C, H, W := x.Shape().NCHW()
	if len(weight.Shape()) != 1 || weight.Shape()[0] != C {
		panic(fmt.Sprintf("l2norm: weight shape %v, want [%d]", weight.Shape(), C))
	}
	if weight.DType() != x.DType() {
		panic(fmt.Sprintf("l2norm: dtype mismatch %s vs %s", x.DType(), weight.DType()))
	}

	result := cpu.newLike(x.Shape(), x.DType(), "l2norm")
	switch x.DType() {
	case tensor.Float32:
		l2norm(result.AsFloat32(), x.AsFloat32(), weight.AsFloat32(), N, C, H*W, eps, cpu.par)
	case tensor.Float64:
		l2norm(result.AsFloat64(), x.AsFloat64(), weight.AsFloat64(), N, C, H*W, eps, cpu.par)
	default:
		panic(fmt.Sprintf("l2norm: unsupported dtype %s", x.DType()))
	}
	return result
}

func l2norm[T tensor.Float](dst, src, weight []T, N, C, plane int, eps float64, cfg parallel.Config) {
	parallel.For(N*plane, func(i int) {
		n, p := i/plane, i%plane
		base := n * C * plane
		var sum float64
		for c := 0; c < C; c++ {
			v := float64(src[base+c*plane+p])
			sum += v * v
		}
		inv := 1 / (math.Sqrt(sum) + eps)
		for c := 0; c < C; c++ {
			idx := base + c*plane + p
			dst[idx] = T(float64(src[idx])*inv) * weight[c]
		}
	}, cfg)
}
