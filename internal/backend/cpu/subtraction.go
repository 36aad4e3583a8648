package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// geometry carries the index arithmetic shared by the neighborhood kernels.
type geometry struct {
	N, C, H, W int // input dimensions
	OH, OW     int // output spatial dimensions
	KH, KW     int // kernel dimensions
	win        tensor.Window
}

func newGeometry(inShape tensor.Shape, win tensor.Window) (geometry, error) {
	if len(inShape) != 4 {
		return geometry{}, fmt.Errorf("expected 4D input [N,C,H,W], got %v", inShape)
	}
	N, C, H, W := inShape.NCHW()
	OH, OW := win.OutputSize(H, W)
	if OH <= 0 || OW <= 0 {
		return geometry{}, fmt.Errorf("empty output %dx%d for input %dx%d with %v", OH, OW, H, W, win)
	}
	return geometry{N: N, C: C, H: H, W: W, OH: OH, OW: OW, KH: win.Kernel.H, KW: win.Kernel.W, win: win}, nil
}

// topShape is the differencing output shape [N, C, KH*KW, OH*OW].
func (g geometry) topShape() tensor.Shape {
	return tensor.Shape{g.N, g.C, g.KH * g.KW, g.OH * g.OW}
}

// topOffset is the flat index of output element (n, c, kh*KW+kw, h*OW+w).
func (g geometry) topOffset(n, c, k, h, w int) int {
	return ((n*g.C+c)*g.KH*g.KW+k)*g.OH*g.OW + h*g.OW + w
}

// Subtraction2ZeroPad computes, for every output position, the difference
// between the window centre of input1 and every window tap of input2.
// Taps of input2 outside the image contribute zero, so the output there
// equals the centre value.
func (cpu *CPUBackend) Subtraction2ZeroPad(input1, input2 *tensor.RawTensor, win tensor.Window) (*tensor.RawTensor, error) {
	g, err := newGeometry(input1.Shape(), win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad: %w", err)
	}
	out := cpu.newLike(g.topShape(), input1.DType(), "subtraction2_zeropad")

	switch input1.DType() {
	case tensor.Float32:
		subtraction2Forward(out.AsFloat32(), input1.AsFloat32(), input2.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		subtraction2Forward(out.AsFloat64(), input1.AsFloat64(), input2.AsFloat64(), g, cpu.par)
	default:
		return nil, fmt.Errorf("subtraction2_zeropad: unsupported dtype %s", input1.DType())
	}
	return out, nil
}

// subtraction2Forward runs one worker per (n, c, h, w) output location; each
// worker loops over the kernel window and writes KH*KW disjoint elements.
func subtraction2Forward[T tensor.Float](top, bottom1, bottom2 []T, g geometry, cfg parallel.Config) {
	center := g.win.CenterOffset()
	parallel.For(g.N*g.C*g.OH*g.OW, func(index int) {
		n := index / g.C / g.OH / g.OW
		c := (index / g.OH / g.OW) % g.C
		h := (index / g.OW) % g.OH
		w := index % g.OW

		plane := (n*g.C + c) * g.H * g.W
		hCenter := -g.win.Padding.H + h*g.win.Stride.H + center.H
		wCenter := -g.win.Padding.W + w*g.win.Stride.W + center.W
		var centerVal T
		if hCenter >= 0 && hCenter < g.H && wCenter >= 0 && wCenter < g.W {
			centerVal = bottom1[plane+hCenter*g.W+wCenter]
		}

		for kh := 0; kh < g.KH; kh++ {
			hIn := -g.win.Padding.H + h*g.win.Stride.H + kh*g.win.Dilation.H
			for kw := 0; kw < g.KW; kw++ {
				wIn := -g.win.Padding.W + w*g.win.Stride.W + kw*g.win.Dilation.W
				offTop := g.topOffset(n, c, kh*g.KW+kw, h, w)
				if hIn >= 0 && hIn < g.H && wIn >= 0 && wIn < g.W {
					top[offTop] = centerVal - bottom2[plane+hIn*g.W+wIn]
				} else {
					top[offTop] = centerVal
				}
			}
		}
	}, cfg)
}

// Subtraction2ZeroPadGradInput1 accumulates, for every input1 pixel, the
// gradient of each output location whose window centre lands on it, summed
// over all kernel offsets. Pixels off the stride grid receive zero.
func (cpu *CPUBackend) Subtraction2ZeroPadGradInput1(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	g, err := newGeometry(inShape, win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad input1 backward: %w", err)
	}
	out := cpu.newLike(inShape, grad.DType(), "subtraction2_zeropad input1 backward")

	switch grad.DType() {
	case tensor.Float32:
		subtraction2GradInput1(out.AsFloat32(), grad.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		subtraction2GradInput1(out.AsFloat64(), grad.AsFloat64(), g, cpu.par)
	default:
		return nil, fmt.Errorf("subtraction2_zeropad input1 backward: unsupported dtype %s", grad.DType())
	}
	return out, nil
}

func subtraction2GradInput1[T tensor.Float](bottomDiff, topDiff []T, g geometry, cfg parallel.Config) {
	center := g.win.CenterOffset()
	parallel.For(g.N*g.C*g.H*g.W, func(index int) {
		n := index / g.C / g.H / g.W
		c := (index / g.H / g.W) % g.C
		h := (index / g.W) % g.H
		w := index % g.W

		var value T
		hs := h + g.win.Padding.H - center.H
		ws := w + g.win.Padding.W - center.W
		if hs%g.win.Stride.H == 0 && ws%g.win.Stride.W == 0 {
			hOut := hs / g.win.Stride.H
			wOut := ws / g.win.Stride.W
			if hOut >= 0 && hOut < g.OH && wOut >= 0 && wOut < g.OW {
				for k := 0; k < g.KH*g.KW; k++ {
					value += topDiff[g.topOffset(n, c, k, hOut, wOut)]
				}
			}
		}
		bottomDiff[index] = value
	}, cfg)
}

// Subtraction2ZeroPadGradInput2 accumulates, for every input2 pixel, the
// negated gradient of each output element that read it as a window tap.
func (cpu *CPUBackend) Subtraction2ZeroPadGradInput2(grad *tensor.RawTensor, inShape tensor.Shape, win tensor.Window) (*tensor.RawTensor, error) {
	g, err := newGeometry(inShape, win)
	if err != nil {
		return nil, fmt.Errorf("subtraction2_zeropad input2 backward: %w", err)
	}
	out := cpu.newLike(inShape, grad.DType(), "subtraction2_zeropad input2 backward")

	switch grad.DType() {
	case tensor.Float32:
		subtraction2GradInput2(out.AsFloat32(), grad.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		subtraction2GradInput2(out.AsFloat64(), grad.AsFloat64(), g, cpu.par)
	default:
		return nil, fmt.Errorf("subtraction2_zeropad input2 backward: unsupported dtype %s", grad.DType())
	}
	return out, nil
}

func subtraction2GradInput2[T tensor.Float](bottomDiff, topDiff []T, g geometry, cfg parallel.Config) {
	parallel.For(g.N*g.C*g.H*g.W, func(index int) {
		n := index / g.C / g.H / g.W
		c := (index / g.H / g.W) % g.C
		h := (index / g.W) % g.H
		w := index % g.W

		var value T
		for kh := 0; kh < g.KH; kh++ {
			hs := h + g.win.Padding.H - kh*g.win.Dilation.H
			if hs%g.win.Stride.H != 0 {
				continue
			}
			hOut := hs / g.win.Stride.H
			if hOut < 0 || hOut >= g.OH {
				continue
			}
			for kw := 0; kw < g.KW; kw++ {
				ws := w + g.win.Padding.W - kw*g.win.Dilation.W
				if ws%g.win.Stride.W != 0 {
					continue
				}
				wOut := ws / g.win.Stride.W
				if wOut < 0 || wOut >= g.OW {
					continue
				}
				value -= topDiff[g.topOffset(n, c, kh*g.KW+kw, hOut, wOut)]
			}
		}
		bottomDiff[index] = value
	}, cfg)
}
