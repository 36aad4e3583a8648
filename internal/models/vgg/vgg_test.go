package vgg

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

func TestNew_Layout(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		cfg        Config
		baseLen    int
		extrasLen  int
		lastKernel int
	}{
		{Config{Size: 300}, 35, 8, 3},
		{Config{Size: 512}, 35, 10, 4},
		{Config{Size: 300, BatchNorm: true}, 48, 8, 3},
	}
	for _, tt := range tests {
		v := New(tt.cfg, backend)
		assert.Equal(t, tt.baseLen, v.Base().Len(), "%+v", tt.cfg)
		assert.Equal(t, tt.extrasLen, v.Extras().Len(), "%+v", tt.cfg)
		last := v.Extras().Module(tt.extrasLen - 1).(*nn.Conv2D)
		assert.Equal(t, tensor.Square(tt.lastKernel), last.Kernel())
	}
}

func TestNew_FixedLayers(t *testing.T) {
	v := New(Config{Size: 300}, cpu.New())

	// The split point sits right after conv4_3's ReLU.
	_, isReLU := v.Base().Module(L2NormIndex - 1).(*nn.ReLU)
	assert.True(t, isReLU)
	conv43 := v.Base().Module(L2NormIndex - 2).(*nn.Conv2D)
	assert.Equal(t, 512, conv43.OutChannels())

	ceil := v.Base().Module(16).(*nn.MaxPool2D)
	assert.True(t, ceil.Config().CeilMode)

	pool5 := v.Base().Module(30).(*nn.MaxPool2D)
	assert.Equal(t, tensor.PoolConfig{Kernel: tensor.Square(3), Stride: tensor.Square(1), Padding: tensor.Square(1)}, pool5.Config())

	conv6 := v.Base().Module(31).(*nn.Conv2D)
	assert.Equal(t, tensor.Square(6), conv6.Config().Dilation)
	assert.Equal(t, tensor.Square(6), conv6.Config().Padding)
	assert.Equal(t, 1024, conv6.OutChannels())

	// Extras alternate 1x1 and 3x3; the "S" entries are stride 2, padding 1.
	kernels := []int{1, 3, 1, 3, 1, 3, 1, 3}
	strides := []int{1, 2, 1, 2, 1, 1, 1, 1}
	outs := []int{256, 512, 128, 256, 128, 256, 128, 256}
	for i := range kernels {
		conv := v.Extras().Module(i).(*nn.Conv2D)
		assert.Equal(t, tensor.Square(kernels[i]), conv.Kernel(), "extra %d", i)
		assert.Equal(t, tensor.Square(strides[i]), conv.Config().Stride, "extra %d", i)
		assert.Equal(t, outs[i], conv.OutChannels(), "extra %d", i)
	}
}

func TestNew_UnsupportedSize(t *testing.T) {
	assert.Panics(t, func() { New(Config{Size: 224}, cpu.New()) })
}

func TestStateDict_Keys(t *testing.T) {
	v := New(Config{Size: 300}, cpu.New())
	state := v.StateDict()

	// 15 base convs and 8 extras, weight and bias each, plus l2_norm.weight.
	assert.Len(t, state, 2*15+2*8+1)
	assert.Equal(t, tensor.Shape{64, 3, 3, 3}, state["vgg.0.weight"].Shape())
	assert.Equal(t, tensor.Shape{1024, 512, 3, 3}, state["vgg.31.weight"].Shape())
	assert.Equal(t, tensor.Shape{1024, 1024, 1, 1}, state["vgg.33.weight"].Shape())
	assert.Equal(t, tensor.Shape{512, 256, 3, 3}, state["extras.1.weight"].Shape())
	require.Contains(t, state, "l2_norm.weight")
	for _, w := range state["l2_norm.weight"].AsFloat32() {
		require.Equal(t, float32(L2NormScale), w)
	}
	for _, b := range state["vgg.0.bias"].AsFloat32() {
		require.Zero(t, b)
	}
}

func TestStateDict_RoundTrip(t *testing.T) {
	backend := cpu.New()
	src := New(Config{Size: 512}, backend)
	dst := New(Config{Size: 512}, backend)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	for k, want := range src.StateDict() {
		assert.Equal(t, want.Data(), dst.StateDict()[k].Data(), k)
	}

	withBN := New(Config{Size: 512, BatchNorm: true}, backend)
	assert.ErrorIs(t, withBN.LoadStateDict(src.StateDict()), nn.ErrMissingKey)
}

func TestInitFromPretrain(t *testing.T) {
	backend := cpu.New()
	pretrained := New(Config{Size: 300}, backend)
	v := New(Config{Size: 300}, backend)
	extrasBefore := v.Extras().Module(0).(*nn.Conv2D).Weight().Tensor().Clone()

	// A plain VGG-16 checkpoint has no "vgg." prefix.
	require.NoError(t, v.InitFromPretrain(pretrained.Base().StateDict()))
	assert.Equal(t, pretrained.StateDict()["vgg.0.weight"].Data(), v.StateDict()["vgg.0.weight"].Data())
	assert.Equal(t, extrasBefore.Data(), v.StateDict()["extras.0.weight"].Data(), "extras untouched")

	require.NoError(t, v.InitFromPretrain(pretrained.StateDict()))

	partial := pretrained.Base().StateDict()
	delete(partial, "0.weight")
	assert.ErrorIs(t, v.InitFromPretrain(partial), nn.ErrMissingKey)
}

func TestForward_FeatureShapes(t *testing.T) {
	if testing.Short() {
		t.Skip("full-resolution backbone forward is slow")
	}
	backend := cpu.New()
	tests := []struct {
		size int
		want []tensor.Shape
	}{
		{300, []tensor.Shape{{1, 512, 38, 38}, {1, 1024, 19, 19}, {1, 512, 10, 10}, {1, 256, 5, 5}, {1, 256, 3, 3}, {1, 256, 1, 1}}},
		{512, []tensor.Shape{{1, 512, 64, 64}, {1, 1024, 32, 32}, {1, 512, 16, 16}, {1, 256, 8, 8}, {1, 256, 4, 4}, {1, 256, 2, 2}, {1, 256, 1, 1}}},
	}
	for _, tt := range tests {
		v := New(Config{Size: tt.size}, backend)
		x := tensor.RandN(tensor.Shape{1, 3, tt.size, tt.size}, tensor.Float32, tensor.CPU, rand.New(rand.NewSource(1)))
		features := v.Forward(x)
		require.Len(t, features, len(tt.want))
		for i, f := range features {
			assert.Equal(t, tt.want[i], f.Shape(), "size %d feature %d", tt.size, i)
		}
		for _, val := range features[len(features)-1].AsFloat32() {
			assert.GreaterOrEqual(t, val, float32(0), "extras end in a ReLU")
		}
	}
}
