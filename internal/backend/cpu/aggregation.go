package cpu

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

// aggGeometry extends geometry with the weight channel count. Channel c of
// the input shares weight channel c % CW.
type aggGeometry struct {
	geometry
	CW int
}

func newAggGeometry(inShape, weightShape tensor.Shape, win tensor.Window) (aggGeometry, error) {
	g, err := newGeometry(inShape, win)
	if err != nil {
		return aggGeometry{}, err
	}
	if len(weightShape) != 4 {
		return aggGeometry{}, fmt.Errorf("expected 4D weight [N,CW,KH*KW,OH*OW], got %v", weightShape)
	}
	cw := weightShape[1]
	if cw <= 0 || g.C%cw != 0 {
		return aggGeometry{}, fmt.Errorf("input channels %d not divisible by weight channels %d", g.C, cw)
	}
	want := tensor.Shape{g.N, cw, g.KH * g.KW, g.OH * g.OW}
	if !weightShape.Equal(want) {
		return aggGeometry{}, fmt.Errorf("weight shape %v, want %v", weightShape, want)
	}
	return aggGeometry{geometry: g, CW: cw}, nil
}

func (g aggGeometry) weightOffset(n, cw, k, h, w int) int {
	return ((n*g.CW+cw)*g.KH*g.KW+k)*g.OH*g.OW + h*g.OW + w
}

// tap resolves a padded coordinate to an input coordinate. ok is false when
// the tap falls outside the input under zero padding.
func tap(i, size int, mode tensor.PadMode) (int, bool) {
	if i >= 0 && i < size {
		return i, true
	}
	if mode != tensor.PadReflect {
		return 0, false
	}
	if i < 0 {
		i = -i
	} else {
		i = 2*(size-1) - i
	}
	if i < 0 || i >= size {
		return 0, false
	}
	return i, true
}

// candidates lists the padded coordinates that resolve to input coordinate i.
func candidates(i, size int, mode tensor.PadMode) []int {
	if mode != tensor.PadReflect {
		return []int{i}
	}
	out := make([]int, 1, 3)
	out[0] = i
	if i > 0 {
		out = append(out, -i)
	}
	if i < size-1 {
		out = append(out, 2*(size-1)-i)
	}
	return out
}

// Aggregation computes out[n,c,h,w] as the weighted sum of the input window
// at (h, w), with weights taken from weight channel c % CW.
func (cpu *CPUBackend) Aggregation(input, weight *tensor.RawTensor, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	g, err := newAggGeometry(input.Shape(), weight.Shape(), win)
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}
	out := cpu.newLike(tensor.Shape{g.N, g.C, g.OH, g.OW}, input.DType(), "aggregation")

	switch input.DType() {
	case tensor.Float32:
		aggregationForward(out.AsFloat32(), input.AsFloat32(), weight.AsFloat32(), g, mode, cpu.par)
	case tensor.Float64:
		aggregationForward(out.AsFloat64(), input.AsFloat64(), weight.AsFloat64(), g, mode, cpu.par)
	default:
		return nil, fmt.Errorf("aggregation: unsupported dtype %s", input.DType())
	}
	return out, nil
}

func aggregationForward[T tensor.Float](top, bottom, weight []T, g aggGeometry, mode tensor.PadMode, cfg parallel.Config) {
	parallel.For(g.N*g.C*g.OH*g.OW, func(index int) {
		n := index / g.C / g.OH / g.OW
		c := (index / g.OH / g.OW) % g.C
		h := (index / g.OW) % g.OH
		w := index % g.OW

		plane := (n*g.C + c) * g.H * g.W
		var value T
		for kh := 0; kh < g.KH; kh++ {
			hIn, okH := tap(-g.win.Padding.H+h*g.win.Stride.H+kh*g.win.Dilation.H, g.H, mode)
			if !okH {
				continue
			}
			for kw := 0; kw < g.KW; kw++ {
				wIn, okW := tap(-g.win.Padding.W+w*g.win.Stride.W+kw*g.win.Dilation.W, g.W, mode)
				if !okW {
					continue
				}
				value += weight[g.weightOffset(n, c%g.CW, kh*g.KW+kw, h, w)] * bottom[plane+hIn*g.W+wIn]
			}
		}
		top[index] = value
	}, cfg)
}

// AggregationGradInput gathers, for every input pixel, the weighted output
// gradients of every window tap that resolved to it.
func (cpu *CPUBackend) AggregationGradInput(grad, weight *tensor.RawTensor, inShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	g, err := newAggGeometry(inShape, weight.Shape(), win)
	if err != nil {
		return nil, fmt.Errorf("aggregation input backward: %w", err)
	}
	out := cpu.newLike(inShape, grad.DType(), "aggregation input backward")

	switch grad.DType() {
	case tensor.Float32:
		aggregationGradInput(out.AsFloat32(), grad.AsFloat32(), weight.AsFloat32(), g, mode, cpu.par)
	case tensor.Float64:
		aggregationGradInput(out.AsFloat64(), grad.AsFloat64(), weight.AsFloat64(), g, mode, cpu.par)
	default:
		return nil, fmt.Errorf("aggregation input backward: unsupported dtype %s", grad.DType())
	}
	return out, nil
}

func aggregationGradInput[T tensor.Float](bottomDiff, topDiff, weight []T, g aggGeometry, mode tensor.PadMode, cfg parallel.Config) {
	parallel.For(g.N*g.C*g.H*g.W, func(index int) {
		n := index / g.C / g.H / g.W
		c := (index / g.H / g.W) % g.C
		h := (index / g.W) % g.H
		w := index % g.W

		topPlane := (n*g.C + c) * g.OH * g.OW
		var value T
		for _, vh := range candidates(h, g.H, mode) {
			for _, vw := range candidates(w, g.W, mode) {
				for kh := 0; kh < g.KH; kh++ {
					hs := vh + g.win.Padding.H - kh*g.win.Dilation.H
					if hs%g.win.Stride.H != 0 {
						continue
					}
					hOut := hs / g.win.Stride.H
					if hOut < 0 || hOut >= g.OH {
						continue
					}
					for kw := 0; kw < g.KW; kw++ {
						ws := vw + g.win.Padding.W - kw*g.win.Dilation.W
						if ws%g.win.Stride.W != 0 {
							continue
						}
						wOut := ws / g.win.Stride.W
						if wOut < 0 || wOut >= g.OW {
							continue
						}
						value += weight[g.weightOffset(n, c%g.CW, kh*g.KW+kw, hOut, wOut)] *
							topDiff[topPlane+hOut*g.OW+wOut]
					}
				}
			}
		}
		bottomDiff[index] = value
	}, cfg)
}

// AggregationGradWeight computes, for every weight element, the sum over
// the channels sharing it of output gradient times the input tap.
func (cpu *CPUBackend) AggregationGradWeight(grad, input *tensor.RawTensor, weightShape tensor.Shape, win tensor.Window, mode tensor.PadMode) (*tensor.RawTensor, error) {
	g, err := newAggGeometry(input.Shape(), weightShape, win)
	if err != nil {
		return nil, fmt.Errorf("aggregation weight backward: %w", err)
	}
	out := cpu.newLike(weightShape, grad.DType(), "aggregation weight backward")

	switch grad.DType() {
	case tensor.Float32:
		aggregationGradWeight(out.AsFloat32(), grad.AsFloat32(), input.AsFloat32(), g, mode, cpu.par)
	case tensor.Float64:
		aggregationGradWeight(out.AsFloat64(), grad.AsFloat64(), input.AsFloat64(), g, mode, cpu.par)
	default:
		return nil, fmt.Errorf("aggregation weight backward: unsupported dtype %s", grad.DType())
	}
	return out, nil
}

func aggregationGradWeight[T tensor.Float](weightDiff, topDiff, bottom []T, g aggGeometry, mode tensor.PadMode, cfg parallel.Config) {
	K := g.KH * g.KW
	parallel.For(g.N*g.CW*K*g.OH*g.OW, func(index int) {
		n := index / g.CW / K / g.OH / g.OW
		cw := (index / K / g.OH / g.OW) % g.CW
		k := (index / g.OH / g.OW) % K
		h := (index / g.OW) % g.OH
		w := index % g.OW
		kh, kw := k/g.KW, k%g.KW

		var value T
		hIn, okH := tap(-g.win.Padding.H+h*g.win.Stride.H+kh*g.win.Dilation.H, g.H, mode)
		wIn, okW := tap(-g.win.Padding.W+w*g.win.Stride.W+kw*g.win.Dilation.W, g.W, mode)
		if okH && okW {
			for c := cw; c < g.C; c += g.CW {
				value += topDiff[((n*g.C+c)*g.OH+h)*g.OW+w] * bottom[((n*g.C+c)*g.H+hIn)*g.W+wIn]
			}
		}
		weightDiff[index] = value
	}, cfg)
}
