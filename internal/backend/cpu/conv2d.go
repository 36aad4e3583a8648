package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// out_h = (H + 2*pad_h - (dil_h*(KH-1)+1)) / stride_h + 1, likewise for width.
//
// Algorithm, per batch element:
//  1. Unfold input patches into a [Cin*KH*KW, OH*OW] column matrix (im2col)
//  2. Multiply the [Cout, Cin*KH*KW] weight matrix by the columns,
//     one output channel per worker
//  3. Add the bias
func (cpu *CPUBackend) Conv2D(input, weight, bias *tensor.RawTensor, cfg tensor.ConvConfig) *tensor.RawTensor {
	inputShape := input.Shape()
	weightShape := weight.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(weightShape) != 4 {
		panic(fmt.Sprintf("conv2d: weight must be 4D [C_out,C_in,K_h,K_w], got %dD", len(weightShape)))
	}
	if input.DType() != weight.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch %s vs %s", input.DType(), weight.DType()))
	}

	N, CIn, H, W := inputShape.NCHW()
	COut, CInK, KH, KW := weightShape.NCHW()

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}
	if bias != nil && (len(bias.Shape()) != 1 || bias.Shape()[0] != COut) {
		panic(fmt.Sprintf("conv2d: bias shape %v does not match %d output channels", bias.Shape(), COut))
	}

	win := tensor.Window{Kernel: tensor.Pair{H: KH, W: KW}, Stride: cfg.Stride, Padding: cfg.Padding, Dilation: cfg.Dilation}
	if err := win.Validate(); err != nil {
		panic(fmt.Sprintf("conv2d: %v", err))
	}
	HOut, WOut := win.OutputSize(H, W)
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (input %dx%d, %v)", HOut, WOut, H, W, win))
	}

	output := cpu.newLike(tensor.Shape{N, COut, HOut, WOut}, input.DType(), "conv2d")

	switch input.DType() {
	case tensor.Float32:
		var b []float32
		if bias != nil {
			b = bias.AsFloat32()
		}
		conv2d(output.AsFloat32(), input.AsFloat32(), weight.AsFloat32(), b, inputShape, COut, HOut, WOut, win, cpu.par)
	case tensor.Float64:
		var b []float64
		if bias != nil {
			b = bias.AsFloat64()
		}
		conv2d(output.AsFloat64(), input.AsFloat64(), weight.AsFloat64(), b, inputShape, COut, HOut, WOut, win, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func conv2d[T tensor.Float](out, in, weight, bias []T, inShape tensor.Shape, COut, HOut, WOut int, win tensor.Window, cfg parallel.Config) {
	N, CIn, H, W := inShape.NCHW()
	colRows := CIn * win.Kernel.Area()
	spatial := HOut * WOut
	col := make([]T, colRows*spatial)

	for n := 0; n < N; n++ {
		im2col(col, in[n*CIn*H*W:(n+1)*CIn*H*W], CIn, H, W, HOut, WOut, win, cfg)

		outN := out[n*COut*spatial : (n+1)*COut*spatial]
		parallel.For(COut, func(co int) {
			dst := outN[co*spatial : (co+1)*spatial]
			if bias != nil {
				for p := range dst {
					dst[p] = bias[co]
				}
			}
			wRow := weight[co*colRows : (co+1)*colRows]
			for k, wk := range wRow {
				if wk == 0 {
					continue
				}
				src := col[k*spatial : (k+1)*spatial]
				for p, v := range src {
					dst[p] += wk * v
				}
			}
		}, coarse(cfg))
	}
}

// im2col unfolds one [C,H,W] image into a [C*KH*KW, OH*OW] column matrix.
// Taps outside the image are zero.
func im2col[T tensor.Float](col, img []T, C, H, W, HOut, WOut int, win tensor.Window, cfg parallel.Config) {
	KH, KW := win.Kernel.H, win.Kernel.W
	spatial := HOut * WOut
	parallel.For(C*KH*KW, func(row int) {
		c := row / (KH * KW)
		kh := (row / KW) % KH
		kw := row % KW
		plane := img[c*H*W : (c+1)*H*W]
		dst := col[row*spatial : (row+1)*spatial]
		for oh := 0; oh < HOut; oh++ {
			h := oh*win.Stride.H - win.Padding.H + kh*win.Dilation.H
			for ow := 0; ow < WOut; ow++ {
				w := ow*win.Stride.W - win.Padding.W + kw*win.Dilation.W
				if h >= 0 && h < H && w >= 0 && w < W {
					dst[oh*WOut+ow] = plane[h*W+w]
				} else {
					dst[oh*WOut+ow] = 0
				}
			}
		}
	}, coarse(cfg))
}
