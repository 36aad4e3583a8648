// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/tensor"
)

// TestBackendInterfaces verifies that the CPU backend implements every
// backend interface.
func TestBackendInterfaces(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
	var _ tensor.LayerBackend = (*cpu.CPUBackend)(nil)
	var _ tensor.NeighborhoodBackend = (*cpu.CPUBackend)(nil)
}

// TestRawTensorAPI verifies the RawTensor alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", raw.DType())
	}
	if raw.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", raw.Device())
	}
	if raw.ByteSize() != 6*4 {
		t.Errorf("ByteSize() = %d, want %d", raw.ByteSize(), 6*4)
	}

	clone := raw.Clone()
	clone.AsFloat32()[0] = 1
	if raw.AsFloat32()[0] != 0 {
		t.Error("Clone() shares data with the original")
	}
}

func TestNewWindow(t *testing.T) {
	win, err := tensor.NewWindow(3, 1, [2]int{1, 2}, 1)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	if win.Padding != (tensor.Pair{H: 1, W: 2}) {
		t.Errorf("Padding = %v, want (1, 2)", win.Padding)
	}
	oh, ow := win.OutputSize(8, 8)
	if oh != 8 || ow != 10 {
		t.Errorf("OutputSize(8, 8) = (%d, %d), want (8, 10)", oh, ow)
	}

	if _, err := tensor.NewWindow("3", 1, 1, 1); err == nil {
		t.Error("NewWindow accepted a string kernel")
	}
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float64, tensor.Int64} {
		got, ok := tensor.ParseDataType(dt.String())
		if !ok || got != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), got, ok)
		}
	}
}
