package tensor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Shape lists tensor dimensions, outermost first. Feature maps are
// (N, C, H, W).
type Shape []int

// NumElements returns the product of the dimensions; a scalar shape has one
// element.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects zero and negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("shape %v: dimension %d is %d, must be positive", s, i, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape { return slices.Clone(s) }

// ComputeStrides returns the row-major element strides of s.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// NCHW unpacks a rank-4 shape. It panics for any other rank.
func (s Shape) NCHW() (n, c, h, w int) {
	if len(s) != 4 {
		panic(fmt.Sprintf("expected 4D shape [N,C,H,W], got %v", s))
	}
	return s[0], s[1], s[2], s[3]
}

// String formats the shape as "(2, 3, 4)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
