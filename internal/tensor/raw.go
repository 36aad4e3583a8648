package tensor

import (
	"fmt"
	"unsafe"
)

// RawTensor is the low-level tensor representation: a contiguous row-major
// byte buffer plus shape, dtype and device tag.
//
// Device-resident backends (WebGPU) stage data through the host buffer, so
// the bytes are always addressable from Go.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// MustNewRaw is NewRaw for shapes the caller has already validated.
func MustNewRaw(shape Shape, dtype DataType, device Device) *RawTensor {
	r, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return r
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the tensor's dtype is not Uint8.
func (r *RawTensor) AsUint8() []uint8 {
	if r.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", r.dtype))
	}
	return r.data
}

// Floats returns a zero-copy typed view of a float tensor.
// Panics if T does not match the tensor's dtype.
func Floats[T Float](r *RawTensor) []T {
	var zero T
	want := Float64
	if unsafe.Sizeof(zero) == 4 {
		want = Float32
	}
	if r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Float64s returns a copy of a float tensor's values widened to float64.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	default:
		panic(fmt.Sprintf("Float64s: unsupported dtype %s", r.dtype))
	}
	return out
}

// SetFloat64s overwrites a float tensor's values, narrowing when needed.
func (r *RawTensor) SetFloat64s(values []float64) {
	if len(values) != r.NumElements() {
		panic(fmt.Sprintf("SetFloat64s: got %d values for %d elements", len(values), r.NumElements()))
	}
	switch r.dtype {
	case Float32:
		dst := r.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	case Float64:
		copy(r.AsFloat64(), values)
	default:
		panic(fmt.Sprintf("SetFloat64s: unsupported dtype %s", r.dtype))
	}
}

// Fill sets every element of a float tensor to v.
func (r *RawTensor) Fill(v float64) {
	switch r.dtype {
	case Float32:
		data := r.AsFloat32()
		for i := range data {
			data[i] = float32(v)
		}
	case Float64:
		data := r.AsFloat64()
		for i := range data {
			data[i] = v
		}
	default:
		panic(fmt.Sprintf("Fill: unsupported dtype %s", r.dtype))
	}
}

// At returns the element at the given multi-dimensional index as float64.
func (r *RawTensor) At(index ...int) float64 {
	off := r.flatIndex(index)
	switch r.dtype {
	case Float32:
		return float64(r.AsFloat32()[off])
	case Float64:
		return r.AsFloat64()[off]
	default:
		panic(fmt.Sprintf("At: unsupported dtype %s", r.dtype))
	}
}

// SetAt stores v at the given multi-dimensional index.
func (r *RawTensor) SetAt(v float64, index ...int) {
	off := r.flatIndex(index)
	switch r.dtype {
	case Float32:
		r.AsFloat32()[off] = float32(v)
	case Float64:
		r.AsFloat64()[off] = v
	default:
		panic(fmt.Sprintf("SetAt: unsupported dtype %s", r.dtype))
	}
}

func (r *RawTensor) flatIndex(index []int) int {
	if len(index) != len(r.shape) {
		panic(fmt.Sprintf("index %v does not match shape %v", index, r.shape))
	}
	off := 0
	for i, idx := range index {
		if idx < 0 || idx >= r.shape[i] {
			panic(fmt.Sprintf("index %v out of range for shape %v", index, r.shape))
		}
		off += idx * r.stride[i]
	}
	return off
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// View returns a tensor sharing this tensor's buffer with a new shape.
// The element count must be unchanged.
func (r *RawTensor) View(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("view: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("view: cannot view %v as %v", r.shape, shape)
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// WithDevice returns a tensor sharing this tensor's buffer, tagged with
// another device. Backends use it to claim host-staged tensors.
func (r *RawTensor) WithDevice(d Device) *RawTensor {
	return &RawTensor{
		data:   r.data,
		shape:  r.shape,
		stride: r.stride,
		dtype:  r.dtype,
		device: d,
	}
}

// CopyFrom copies src's bytes into r. Shapes and dtypes must match.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) || r.dtype != src.dtype {
		return fmt.Errorf("copy: %s%v from %s%v", r.dtype, r.shape, src.dtype, src.shape)
	}
	copy(r.data, src.data)
	return nil
}
