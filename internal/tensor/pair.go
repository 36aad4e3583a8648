package tensor

import "fmt"

// Pair is a (height, width) kernel descriptor component: a kernel size,
// stride, padding or dilation.
type Pair struct {
	H, W int
}

// Square returns the pair (v, v).
func Square(v int) Pair {
	return Pair{H: v, W: v}
}

// NewPair normalizes a scalar-or-pair value. Accepted forms are int,
// [2]int, []int of length 1 or 2, and Pair itself.
func NewPair(v any) (Pair, error) {
	switch x := v.(type) {
	case Pair:
		return x, nil
	case int:
		return Square(x), nil
	case [2]int:
		return Pair{H: x[0], W: x[1]}, nil
	case []int:
		switch len(x) {
		case 1:
			return Square(x[0]), nil
		case 2:
			return Pair{H: x[0], W: x[1]}, nil
		}
		return Pair{}, fmt.Errorf("pair: expected 1 or 2 values, got %d", len(x))
	default:
		return Pair{}, fmt.Errorf("pair: unsupported value %v (%T)", v, v)
	}
}

// MustPair is NewPair for construction-time constants; it panics on error.
func MustPair(v any) Pair {
	p, err := NewPair(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Area returns H*W.
func (p Pair) Area() int {
	return p.H * p.W
}

// String formats the pair as "(h, w)".
func (p Pair) String() string {
	return fmt.Sprintf("(%d, %d)", p.H, p.W)
}

// ConvOutputSize applies the convolution-arithmetic formula to a single axis:
// floor((in + 2*pad - (dilation*(kernel-1)+1)) / stride) + 1.
// The result may be zero or negative when the window does not fit.
func ConvOutputSize(in, kernel, stride, pad, dilation int) int {
	span := in + 2*pad - (dilation*(kernel-1) + 1)
	if span < 0 {
		// Go division truncates toward zero; keep floor semantics.
		return (span-stride+1)/stride + 1
	}
	return span/stride + 1
}
