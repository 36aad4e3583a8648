package squeezenet

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/optim"
	"github.com/born-ml/vision/internal/serialization"
	"github.com/born-ml/vision/internal/tensor"
	"github.com/born-ml/vision/internal/zoo"
)

func images(n, size int, seed int64) *tensor.RawTensor {
	return tensor.RandN(tensor.Shape{n, 3, size, size}, tensor.Float32, tensor.CPU, rand.New(rand.NewSource(seed)))
}

func TestNew_StateDictLayout(t *testing.T) {
	m := New(ImageNetClasses, cpu.New())
	state := m.StateDict()

	// conv0 + 8 Fire modules with 3 convs each + the final conv.
	assert.Len(t, state, 2*(1+8*3+1))
	assert.Equal(t, tensor.Shape{64, 3, 3, 3}, state["features.0.weight"].Shape())
	assert.Equal(t, tensor.Shape{16, 64, 1, 1}, state["features.3.squeeze.weight"].Shape())
	assert.Equal(t, tensor.Shape{256, 64, 3, 3}, state["features.12.expand3x3.weight"].Shape())
	assert.Equal(t, tensor.Shape{1000, 512, 1, 1}, state["classifier.1.weight"].Shape())
	for _, b := range state["classifier.1.bias"].AsFloat32() {
		require.Zero(t, b)
	}
	assert.Equal(t, "SqueezeNet1_1", m.ModelType())
}

func TestForward_Shape(t *testing.T) {
	m := New(10, cpu.New())
	out := m.Forward(images(2, 64, 1))
	assert.Equal(t, tensor.Shape{2, 10}, out.Shape())
	for _, v := range out.AsFloat32() {
		assert.GreaterOrEqual(t, v, float32(0), "scores pass a ReLU before pooling")
	}
}

func TestFire(t *testing.T) {
	f := NewFire(8, 4, 6, 10, cpu.New())
	x := tensor.RandN(tensor.Shape{1, 8, 5, 5}, tensor.Float32, tensor.CPU, rand.New(rand.NewSource(3)))
	assert.Equal(t, tensor.Shape{1, 16, 5, 5}, f.Forward(x).Shape())
	assert.Len(t, f.Parameters(), 6)
	assert.Contains(t, f.StateDict(), "expand3x3.bias")
	assert.Equal(t, "Fire(8 -> 4, 6+10)", f.String())

	g := NewFire(8, 4, 6, 10, cpu.New())
	require.NoError(t, g.LoadStateDict(f.StateDict()))
	assert.Equal(t, f.StateDict()["squeeze.weight"].Data(), g.StateDict()["squeeze.weight"].Data())
}

func TestRetrain_FreezesAllButHead(t *testing.T) {
	backend := cpu.New()
	m, params, err := Retrain(context.Background(), 5, RetrainConfig{TrainOnlyLastLayer: true}, backend)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Same(t, m.FinalConv().Weight(), params[0])
	assert.Same(t, m.FinalConv().Bias(), params[1])
	assert.Equal(t, tensor.Shape{5, 512, 1, 1}, params[0].Tensor().Shape())
	assert.Equal(t, 5, m.NumClasses())

	_, params, err = Retrain(context.Background(), 5, RetrainConfig{}, backend)
	require.NoError(t, err)
	assert.Len(t, params, 2*(1+8*3+1))
}

func TestRetrain_Pretrained(t *testing.T) {
	backend := cpu.New()
	reference := New(ImageNetClasses, backend)
	var blob bytes.Buffer
	require.NoError(t, serialization.Write(&blob, reference.StateDict(), serialization.Header{ModelType: reference.ModelType()}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/squeezenet1_1.born" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(blob.Bytes())
	}))
	defer srv.Close()

	registry := zoo.NewRegistry(zoo.Config{CacheDir: t.TempDir(), BaseURL: srv.URL})
	registry.Register(zoo.SqueezeNet11, "squeezenet1_1.born", "")

	m, params, err := Retrain(context.Background(), 3, RetrainConfig{Pretrained: true, TrainOnlyLastLayer: true, Registry: registry}, backend)
	require.NoError(t, err)
	assert.Len(t, params, 2)
	got := m.StateDict()
	assert.Equal(t, reference.StateDict()["features.0.weight"].Data(), got["features.0.weight"].Data())
	assert.Equal(t, tensor.Shape{3, 512, 1, 1}, got["classifier.1.weight"].Shape())

	empty := zoo.NewRegistry(zoo.Config{CacheDir: t.TempDir(), BaseURL: srv.URL})
	empty.Register(zoo.SqueezeNet11, "missing.born", "")
	_, _, err = Retrain(context.Background(), 3, RetrainConfig{Pretrained: true, Registry: empty}, backend)
	assert.Error(t, err)
}

func TestHeadGradients_FiniteDifference(t *testing.T) {
	m := New(3, cpu.New())
	x := images(2, 32, 4)
	labels := []int{0, 2}

	loss, logits, grads := m.HeadGradients(x, labels)
	assert.Equal(t, tensor.Shape{2, 3}, logits.Shape())
	wantLoss, _ := nn.CrossEntropy(m.Forward(x), labels)
	assert.InDelta(t, wantLoss, loss, 1e-9)

	bias := m.FinalConv().Bias().Tensor()
	gb := grads[bias].Float64s()
	const eps = 1e-2
	for i := range gb {
		orig := bias.At(i)
		bias.SetAt(orig+eps, i)
		lp, _ := nn.CrossEntropy(m.Forward(x), labels)
		bias.SetAt(orig-eps, i)
		lm, _ := nn.CrossEntropy(m.Forward(x), labels)
		bias.SetAt(orig, i)
		numeric := (lp - lm) / (2 * eps)
		assert.InDelta(t, numeric, gb[i], 1e-3+0.05*math.Abs(numeric), "bias %d", i)
	}
}

func TestHeadGradients_TrainingReducesLoss(t *testing.T) {
	backend := cpu.New()
	m, params, err := Retrain(context.Background(), 4, RetrainConfig{TrainOnlyLastLayer: true}, backend)
	require.NoError(t, err)
	opt := optim.NewSGD(params, optim.SGDConfig{LR: 0.05, Momentum: 0.9})

	x := images(4, 32, 5)
	labels := []int{0, 1, 2, 3}
	first, _, _ := m.HeadGradients(x, labels)
	var last float64
	for range 15 {
		var grads map[*tensor.RawTensor]*tensor.RawTensor
		last, _, grads = m.HeadGradients(x, labels)
		opt.Step(grads)
	}
	assert.Less(t, last, first)
}
