package tensor

import "fmt"

// Window is the kernel descriptor of a sliding-window operator: kernel size,
// stride, padding and dilation, each as a (height, width) pair.
type Window struct {
	Kernel   Pair
	Stride   Pair
	Padding  Pair
	Dilation Pair
}

// NewWindow normalizes scalar-or-pair kernel, stride, padding and dilation
// values (see NewPair) into a Window.
func NewWindow(kernel, stride, padding, dilation any) (Window, error) {
	var w Window
	var err error
	if w.Kernel, err = NewPair(kernel); err != nil {
		return Window{}, fmt.Errorf("kernel size: %w", err)
	}
	if w.Stride, err = NewPair(stride); err != nil {
		return Window{}, fmt.Errorf("stride: %w", err)
	}
	if w.Padding, err = NewPair(padding); err != nil {
		return Window{}, fmt.Errorf("padding: %w", err)
	}
	if w.Dilation, err = NewPair(dilation); err != nil {
		return Window{}, fmt.Errorf("dilation: %w", err)
	}
	return w, nil
}

// Validate checks that kernel, stride and dilation are positive and padding
// is non-negative.
func (w Window) Validate() error {
	switch {
	case w.Kernel.H <= 0 || w.Kernel.W <= 0:
		return fmt.Errorf("kernel size %v must be positive", w.Kernel)
	case w.Stride.H <= 0 || w.Stride.W <= 0:
		return fmt.Errorf("stride %v must be positive", w.Stride)
	case w.Dilation.H <= 0 || w.Dilation.W <= 0:
		return fmt.Errorf("dilation %v must be positive", w.Dilation)
	case w.Padding.H < 0 || w.Padding.W < 0:
		return fmt.Errorf("padding %v must be non-negative", w.Padding)
	}
	return nil
}

// OutputSize returns the output spatial size for an input of h x w.
func (w Window) OutputSize(h, wd int) (outH, outW int) {
	outH = ConvOutputSize(h, w.Kernel.H, w.Stride.H, w.Padding.H, w.Dilation.H)
	outW = ConvOutputSize(wd, w.Kernel.W, w.Stride.W, w.Padding.W, w.Dilation.W)
	return outH, outW
}

// CenterOffset returns the offset of the window centre from the window
// origin: ((kernel-1)/2)*dilation per axis, using integer division.
func (w Window) CenterOffset() Pair {
	return Pair{
		H: (w.Kernel.H - 1) / 2 * w.Dilation.H,
		W: (w.Kernel.W - 1) / 2 * w.Dilation.W,
	}
}

// String formats the window for error messages.
func (w Window) String() string {
	return fmt.Sprintf("kernel=%v stride=%v padding=%v dilation=%v", w.Kernel, w.Stride, w.Padding, w.Dilation)
}

// PadMode selects how out-of-range window taps are treated by aggregation.
type PadMode int

// Supported padding modes.
const (
	PadZero    PadMode = iota // taps outside the input contribute zero
	PadReflect                // taps outside the input reflect back inside
)

// String returns the mode name.
func (m PadMode) String() string {
	switch m {
	case PadZero:
		return "zero"
	case PadReflect:
		return "reflect"
	default:
		return fmt.Sprintf("PadMode(%d)", int(m))
	}
}
