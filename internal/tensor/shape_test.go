package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeBasics(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.Equal(t, "(2, 3, 4)", s.String())
	assert.Equal(t, 1, Shape{}.NumElements())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0])
	assert.False(t, s.Equal(c))
}

func TestShapeNCHW(t *testing.T) {
	n, c, h, w := Shape{1, 2, 3, 4}.NCHW()
	assert.Equal(t, []int{1, 2, 3, 4}, []int{n, c, h, w})
	assert.Panics(t, func() { Shape{1, 2}.NCHW() })
}

func TestNewPair(t *testing.T) {
	tests := []struct {
		in   any
		want Pair
	}{
		{3, Pair{3, 3}},
		{[2]int{3, 5}, Pair{3, 5}},
		{[]int{7}, Pair{7, 7}},
		{[]int{1, 2}, Pair{1, 2}},
		{Pair{4, 1}, Pair{4, 1}},
	}
	for _, tt := range tests {
		got, err := NewPair(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := NewPair([]int{1, 2, 3})
	assert.Error(t, err)
	_, err = NewPair("3")
	assert.Error(t, err)
	assert.Panics(t, func() { MustPair(2.5) })
}

func TestConvOutputSize(t *testing.T) {
	tests := []struct {
		in, k, s, p, d, want int
	}{
		{9, 5, 4, 4, 2, 3},
		{9, 3, 1, 1, 1, 9},
		{10, 3, 2, 0, 1, 4},
		{7, 3, 1, 0, 3, 1},
		{300, 3, 1, 6, 6, 300},
		{4, 5, 1, 0, 1, 0},
		{2, 5, 2, 0, 1, -1},
	}
	for _, tt := range tests {
		got := ConvOutputSize(tt.in, tt.k, tt.s, tt.p, tt.d)
		assert.Equal(t, tt.want, got, "in=%d k=%d s=%d p=%d d=%d", tt.in, tt.k, tt.s, tt.p, tt.d)
	}
}

func TestWindow(t *testing.T) {
	w, err := NewWindow(5, 4, []int{4, 2}, 2)
	require.NoError(t, err)
	require.NoError(t, w.Validate())

	oh, ow := w.OutputSize(9, 9)
	assert.Equal(t, 3, oh)
	assert.Equal(t, 2, ow)
	assert.Equal(t, Pair{4, 4}, w.CenterOffset())

	bad := w
	bad.Stride = Pair{0, 1}
	assert.Error(t, bad.Validate())
	bad = w
	bad.Padding = Pair{-1, 0}
	assert.Error(t, bad.Validate())

	_, err = NewWindow(3, "x", 0, 1)
	assert.Error(t, err)
}

func TestDataTypeParse(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64, Uint8, Bool} {
		got, ok := ParseDataType(dt.String())
		require.True(t, ok)
		assert.Equal(t, dt, got)
	}
	_, ok := ParseDataType("float16")
	assert.False(t, ok)
	assert.True(t, Float64.IsFloat())
	assert.False(t, Int64.IsFloat())
}
