package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

func sequence(shape tensor.Shape) *tensor.RawTensor {
	t := tensor.Zeros(shape, tensor.Float32, tensor.CPU)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(i + 1)
	}
	return t
}

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := sequence(tensor.Shape{1, 1, 3, 3})

	// 1 0
	// 0 1
	kernel, err := tensor.FromFloat32(tensor.Shape{1, 1, 2, 2}, []float32{1, 0, 0, 1})
	require.NoError(t, err)

	output := backend.Conv2D(input, kernel, nil, tensor.ConvConfig{
		Stride: tensor.Square(1), Dilation: tensor.Square(1),
	})

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Diagonal sums: 1+5, 2+6, 4+8, 5+9
	expected := []float32{6, 8, 12, 14}
	for i, exp := range expected {
		if output.AsFloat32()[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, output.AsFloat32()[i])
		}
	}
}

// TestConv2D_WithPaddingAndBias tests zero padding and a per-channel bias.
func TestConv2D_WithPaddingAndBias(t *testing.T) {
	backend := New()

	input := tensor.Full(tensor.Shape{1, 1, 3, 3}, 1, tensor.Float32, tensor.CPU)
	kernel := tensor.Full(tensor.Shape{2, 1, 3, 3}, 1, tensor.Float32, tensor.CPU)
	bias, err := tensor.FromFloat32(tensor.Shape{2}, []float32{0, 10})
	require.NoError(t, err)

	output := backend.Conv2D(input, kernel, bias, tensor.ConvConfig{
		Stride: tensor.Square(1), Padding: tensor.Square(1), Dilation: tensor.Square(1),
	})
	require.Equal(t, tensor.Shape{1, 2, 3, 3}, output.Shape())

	// Corner sees 4 ones, edge 6, centre 9.
	plane := []float32{4, 6, 4, 6, 9, 6, 4, 6, 4}
	data := output.AsFloat32()
	for i, v := range plane {
		assert.Equal(t, v, data[i], "channel 0 index %d", i)
		assert.Equal(t, v+10, data[9+i], "channel 1 index %d", i)
	}
}

// TestConv2D_Dilation checks a dilated 3x3 kernel against direct indexing.
func TestConv2D_Dilation(t *testing.T) {
	backend := New()

	input := sequence(tensor.Shape{1, 1, 7, 7})
	kernel := tensor.Full(tensor.Shape{1, 1, 3, 3}, 1, tensor.Float32, tensor.CPU)

	output := backend.Conv2D(input, kernel, nil, tensor.ConvConfig{
		Stride: tensor.Square(1), Padding: tensor.Square(2), Dilation: tensor.Square(2),
	})
	require.Equal(t, tensor.Shape{1, 1, 7, 7}, output.Shape())

	in := input.AsFloat32()
	for h := 0; h < 7; h++ {
		for w := 0; w < 7; w++ {
			var want float32
			for kh := 0; kh < 3; kh++ {
				for kw := 0; kw < 3; kw++ {
					hi, wi := h-2+2*kh, w-2+2*kw
					if hi >= 0 && hi < 7 && wi >= 0 && wi < 7 {
						want += in[hi*7+wi]
					}
				}
			}
			assert.Equal(t, want, output.AsFloat32()[h*7+w], "position (%d,%d)", h, w)
		}
	}
}

// TestConv2D_InvalidInput tests that invalid inputs panic.
func TestConv2D_InvalidInput(t *testing.T) {
	backend := New()
	input := tensor.Zeros(tensor.Shape{1, 2, 4, 4}, tensor.Float32, tensor.CPU)
	kernel := tensor.Zeros(tensor.Shape{1, 3, 3, 3}, tensor.Float32, tensor.CPU)

	assert.Panics(t, func() {
		backend.Conv2D(input, kernel, nil, tensor.ConvConfig{Stride: tensor.Square(1), Dilation: tensor.Square(1)})
	})
}

func TestMaxPool2D_Basic(t *testing.T) {
	backend := New()
	input := sequence(tensor.Shape{1, 1, 4, 4})

	output := backend.MaxPool2D(input, tensor.PoolConfig{Kernel: tensor.Square(2), Stride: tensor.Square(2)})
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, output.AsFloat32())
}

func TestMaxPool2D_CeilMode(t *testing.T) {
	backend := New()
	input := sequence(tensor.Shape{1, 1, 5, 5})

	floor := backend.MaxPool2D(input, tensor.PoolConfig{Kernel: tensor.Square(2), Stride: tensor.Square(2)})
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, floor.Shape())

	ceil := backend.MaxPool2D(input, tensor.PoolConfig{Kernel: tensor.Square(2), Stride: tensor.Square(2), CeilMode: true})
	require.Equal(t, tensor.Shape{1, 1, 3, 3}, ceil.Shape())
	// The last row and column come from the partial windows.
	assert.Equal(t, []float32{7, 9, 10, 17, 19, 20, 22, 24, 25}, ceil.AsFloat32())
}

func TestMaxPool2D_PaddingNeverWins(t *testing.T) {
	backend := New()
	input := tensor.Full(tensor.Shape{1, 1, 3, 3}, -5, tensor.Float32, tensor.CPU)

	output := backend.MaxPool2D(input, tensor.PoolConfig{Kernel: tensor.Square(3), Stride: tensor.Square(1), Padding: tensor.Square(1)})
	require.Equal(t, tensor.Shape{1, 1, 3, 3}, output.Shape())
	for _, v := range output.AsFloat32() {
		assert.Equal(t, float32(-5), v)
	}
}

func TestPoolOutputSize(t *testing.T) {
	tests := []struct {
		in, kernel, stride, pad int
		ceil                    bool
		want                    int
	}{
		{in: 300, kernel: 2, stride: 2, want: 150},
		{in: 75, kernel: 2, stride: 2, want: 37},
		{in: 75, kernel: 2, stride: 2, ceil: true, want: 38},
		{in: 19, kernel: 3, stride: 1, pad: 1, want: 19},
		{in: 111, kernel: 3, stride: 2, ceil: true, want: 55},
		{in: 4, kernel: 2, stride: 2, pad: 1, ceil: true, want: 3},
		{in: 1, kernel: 3, stride: 2, want: 0},
	}
	for _, tt := range tests {
		got := PoolOutputSize(tt.in, tt.kernel, tt.stride, tt.pad, tt.ceil)
		if got != tt.want {
			t.Errorf("PoolOutputSize(%d, k=%d, s=%d, p=%d, ceil=%v) = %d, want %d",
				tt.in, tt.kernel, tt.stride, tt.pad, tt.ceil, got, tt.want)
		}
	}
}

func TestReLU(t *testing.T) {
	backend := New()
	x, err := tensor.FromFloat64(tensor.Shape{4}, []float64{-1, 0, 2, -0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2, 0}, backend.ReLU(x).AsFloat64())
}

func TestAdd(t *testing.T) {
	backend := NewWithConfig(parallel.Config{Enabled: false})
	a := sequence(tensor.Shape{2, 3})
	b := tensor.Full(tensor.Shape{2, 3}, 1, tensor.Float32, tensor.CPU)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7}, backend.Add(a, b).AsFloat32())

	assert.Panics(t, func() { backend.Add(a, tensor.Zeros(tensor.Shape{3, 2}, tensor.Float32, tensor.CPU)) })
}

func TestBatchNorm2D(t *testing.T) {
	backend := New()
	x := sequence(tensor.Shape{1, 2, 1, 2}) // channel 0: 1,2  channel 1: 3,4

	mean, _ := tensor.FromFloat32(tensor.Shape{2}, []float32{1, 3})
	variance, _ := tensor.FromFloat32(tensor.Shape{2}, []float32{1, 4})
	weight, _ := tensor.FromFloat32(tensor.Shape{2}, []float32{1, 2})
	bias, _ := tensor.FromFloat32(tensor.Shape{2}, []float32{0, 1})

	out := backend.BatchNorm2D(x, mean, variance, weight, bias, 0)
	assert.InDeltaSlice(t, []float32{0, 1, 1, 2}, out.AsFloat32(), 1e-6)
}

func TestL2Norm(t *testing.T) {
	backend := New()
	// Two channels, one spatial position holding (3, 4).
	x, _ := tensor.FromFloat64(tensor.Shape{1, 2, 1, 1}, []float64{3, 4})
	weight := tensor.Full(tensor.Shape{2}, 20, tensor.Float64, tensor.CPU)

	out := backend.L2Norm(x, weight, 1e-10)
	assert.InDeltaSlice(t, []float64{12, 16}, out.AsFloat64(), 1e-6)

	var norm float64
	for _, v := range out.AsFloat64() {
		norm += v * v
	}
	assert.InDelta(t, 20, math.Sqrt(norm), 1e-6)
}

func TestAdaptiveAvgPool2D(t *testing.T) {
	backend := New()
	x := sequence(tensor.Shape{1, 1, 2, 4})

	global := backend.AdaptiveAvgPool2D(x, tensor.Square(1))
	require.Equal(t, tensor.Shape{1, 1, 1, 1}, global.Shape())
	assert.InDelta(t, 4.5, global.AsFloat32()[0], 1e-6)

	halves := backend.AdaptiveAvgPool2D(x, tensor.Pair{H: 1, W: 2})
	assert.InDeltaSlice(t, []float32{3.5, 5.5}, halves.AsFloat32(), 1e-6)

	// 3 regions over 4 columns overlap: [0,2) [1,3) [2,4).
	overlap := backend.AdaptiveAvgPool2D(x, tensor.Pair{H: 1, W: 3})
	assert.InDeltaSlice(t, []float32{3.5, 4.5, 5.5}, overlap.AsFloat32(), 1e-6)
}

func TestConcat(t *testing.T) {
	backend := New()
	a := sequence(tensor.Shape{2, 1, 2})
	b := tensor.Full(tensor.Shape{2, 2, 2}, 0, tensor.Float32, tensor.CPU)

	out := backend.Concat(1, a, b)
	require.Equal(t, tensor.Shape{2, 3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 0, 0, 0, 0, 3, 4, 0, 0, 0, 0}, out.AsFloat32())

	assert.Panics(t, func() { backend.Concat(0, a, b) })
}
