package autodiff_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/autodiff"
	"github.com/born-ml/vision/internal/backend/cpu"
	"github.com/born-ml/vision/internal/tensor"
)

const epsilon = 1e-6

// weightedSum is the scalar loss Σ out ⊙ g used by the gradient checks.
func weightedSum(out, g *tensor.RawTensor) float64 {
	var s float64
	o, w := out.AsFloat64(), g.AsFloat64()
	for i := range o {
		s += o[i] * w[i]
	}
	return s
}

// checkNumerical compares analytic against central finite differences of
// loss with respect to x, on every stride-th element.
func checkNumerical(t *testing.T, name string, x, analytic *tensor.RawTensor, loss func() float64, stride int) {
	t.Helper()
	data := x.AsFloat64()
	grad := analytic.AsFloat64()
	for i := 0; i < len(data); i += stride {
		orig := data[i]
		data[i] = orig + epsilon
		plus := loss()
		data[i] = orig - epsilon
		minus := loss()
		data[i] = orig

		numerical := (plus - minus) / (2 * epsilon)
		if math.Abs(numerical-grad[i]) > 1e-5*math.Max(1, math.Abs(numerical)) {
			t.Errorf("%s[%d]: autodiff %.8f, numerical %.8f", name, i, grad[i], numerical)
		}
	}
}

func randn(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	return tensor.RandN(shape, tensor.Float64, tensor.CPU, rng)
}

// TestSubtraction2ZeroPad_NumericalGradient uses the SAN pairwise
// configuration: kernel 5, stride 4, dilation 2, padding 4, n=2, c=8, 9x9.
func TestSubtraction2ZeroPad_NumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	win, err := tensor.NewWindow(5, 4, 4, 2)
	require.NoError(t, err)

	in1 := randn(rng, tensor.Shape{2, 8, 9, 9})
	in2 := randn(rng, tensor.Shape{2, 8, 9, 9})

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	out, err := backend.Subtraction2ZeroPad(in1, in2, win)
	require.NoError(t, err)
	g := randn(rng, out.Shape())

	grads := backend.Tape().Backward(g, backend)
	require.Contains(t, grads, in1)
	require.Contains(t, grads, in2)

	loss := func() float64 {
		y, err := cpu.New().Subtraction2ZeroPad(in1, in2, win)
		require.NoError(t, err)
		return weightedSum(y, g)
	}
	checkNumerical(t, "input1", in1, grads[in1], loss, 3)
	checkNumerical(t, "input2", in2, grads[in2], loss, 3)
}

// Random window parameters, including pads that differ from the centre
// offset so the input1 gradient must follow the centre shift.
func TestSubtraction2ZeroPad_NumericalGradientRandomWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 6; trial++ {
		k := tensor.Pair{H: 1 + rng.Intn(4), W: 1 + rng.Intn(4)}
		s := tensor.Pair{H: 1 + rng.Intn(3), W: 1 + rng.Intn(3)}
		d := tensor.Pair{H: 1 + rng.Intn(2), W: 1 + rng.Intn(2)}
		p := tensor.Pair{H: rng.Intn(4), W: rng.Intn(4)}
		win := tensor.Window{Kernel: k, Stride: s, Padding: p, Dilation: d}
		shape := tensor.Shape{1, 2, 6 + rng.Intn(3), 6 + rng.Intn(3)}
		if oh, ow := win.OutputSize(shape[2], shape[3]); oh <= 0 || ow <= 0 {
			continue
		}

		t.Run(win.String(), func(t *testing.T) {
			in1, in2 := randn(rng, shape), randn(rng, shape)
			backend := autodiff.New(cpu.New())
			backend.Tape().StartRecording()
			out, err := backend.Subtraction2ZeroPad(in1, in2, win)
			require.NoError(t, err)
			g := randn(rng, out.Shape())
			grads := backend.Tape().Backward(g, backend)

			loss := func() float64 {
				y, err := cpu.New().Subtraction2ZeroPad(in1, in2, win)
				require.NoError(t, err)
				return weightedSum(y, g)
			}
			checkNumerical(t, "input1", in1, grads[in1], loss, 1)
			checkNumerical(t, "input2", in2, grads[in2], loss, 1)
		})
	}
}

func TestAggregation_NumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	win, err := tensor.NewWindow(3, 1, 2, 2)
	require.NoError(t, err)
	shape := tensor.Shape{1, 4, 6, 6}
	oh, ow := win.OutputSize(6, 6)

	for _, mode := range []tensor.PadMode{tensor.PadZero, tensor.PadReflect} {
		t.Run(mode.String(), func(t *testing.T) {
			x := randn(rng, shape)
			w := randn(rng, tensor.Shape{1, 2, 9, oh * ow})

			backend := autodiff.New(cpu.New())
			backend.Tape().StartRecording()
			out, err := backend.Aggregation(x, w, win, mode)
			require.NoError(t, err)
			g := randn(rng, out.Shape())
			grads := backend.Tape().Backward(g, backend)

			loss := func() float64 {
				y, err := cpu.New().Aggregation(x, w, win, mode)
				require.NoError(t, err)
				return weightedSum(y, g)
			}
			checkNumerical(t, "input", x, grads[x], loss, 1)
			checkNumerical(t, "weight", w, grads[w], loss, 2)
		})
	}
}

// The pairwise SAN block feeds the differences straight into aggregation as
// per-channel weights; gradients must flow through both operations.
func TestChainedNeighborhoodOps_NumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	win, err := tensor.NewWindow(3, 1, 1, 1)
	require.NoError(t, err)
	shape := tensor.Shape{1, 2, 5, 5}

	a, b, x := randn(rng, shape), randn(rng, shape), randn(rng, shape)
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	diff, err := backend.Subtraction2ZeroPad(a, b, win)
	require.NoError(t, err)
	out, err := backend.Aggregation(x, diff, win, tensor.PadZero)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Tape().NumOps())

	g := randn(rng, out.Shape())
	grads := backend.Tape().Backward(g, backend)

	loss := func() float64 {
		ref := cpu.New()
		d, err := ref.Subtraction2ZeroPad(a, b, win)
		require.NoError(t, err)
		y, err := ref.Aggregation(x, d, win, tensor.PadZero)
		require.NoError(t, err)
		return weightedSum(y, g)
	}
	checkNumerical(t, "a", a, grads[a], loss, 1)
	checkNumerical(t, "b", b, grads[b], loss, 1)
	checkNumerical(t, "x", x, grads[x], loss, 1)
}
