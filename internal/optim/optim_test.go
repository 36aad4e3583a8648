package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/optim"
	"github.com/born-ml/vision/internal/tensor"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func param(name string, values ...float32) *nn.Parameter {
	t, err := tensor.FromFloat32(tensor.Shape{len(values)}, values)
	if err != nil {
		panic(err)
	}
	return nn.NewParameter(name, t)
}

func gradFor(p *nn.Parameter, values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	g, _ := tensor.FromFloat32(p.Tensor().Shape(), values)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Tensor(): g}
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	x := param("x", 2.0)
	optimizer := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1})

	optimizer.Step(gradFor(x, 1.0))

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if got := x.Tensor().At(0); !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", got)
	}
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	x := param("x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 1, x = 1 - 0.1 = 0.9
	optimizer.Step(gradFor(x, 1.0))
	if got := x.Tensor().At(0); !floatEqual(got, 0.9, 1e-6) {
		t.Errorf("step 1: got %f, want 0.9", got)
	}

	// Step 2: v = 0.9*1 + 1 = 1.9, x = 0.9 - 0.19 = 0.71
	optimizer.Step(gradFor(x, 1.0))
	if got := x.Tensor().At(0); !floatEqual(got, 0.71, 1e-6) {
		t.Errorf("step 2: got %f, want 0.71", got)
	}
}

func TestSGD_WeightDecay(t *testing.T) {
	x := param("x", 10.0)
	optimizer := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.5, WeightDecay: 0.1})

	// g = 0 + 0.1*10 = 1, x = 10 - 0.5 = 9.5
	optimizer.Step(gradFor(x, 0))
	if got := x.Tensor().At(0); !floatEqual(got, 9.5, 1e-6) {
		t.Errorf("weight decay: got %f, want 9.5", got)
	}
}

func TestSGD_SkipsFrozenAndMissing(t *testing.T) {
	frozen := param("frozen", 1.0)
	frozen.SetRequiresGrad(false)
	missing := param("missing", 1.0)
	viaGrad := param("viaGrad", 1.0)
	g, _ := tensor.FromFloat32(tensor.Shape{1}, []float32{2})
	viaGrad.SetGrad(g)

	optimizer := optim.NewSGD([]*nn.Parameter{frozen, missing, viaGrad}, optim.SGDConfig{LR: 0.5})
	grads := gradFor(frozen, 5)
	optimizer.Step(grads)

	if frozen.Tensor().At(0) != 1 || missing.Tensor().At(0) != 1 {
		t.Error("frozen and gradient-less parameters must not move")
	}
	if got := viaGrad.Tensor().At(0); !floatEqual(got, 0, 1e-6) {
		t.Errorf("Parameter.Grad fallback: got %f, want 0", got)
	}

	optimizer.ZeroGrad()
	if viaGrad.Grad() != nil {
		t.Error("ZeroGrad should clear parameter gradients")
	}
}

func TestSGD_StateDictRoundTrip(t *testing.T) {
	x := param("x", 1.0, 2.0)
	a := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	a.Step(gradFor(x, 1, 1))
	a.SetLR(0.01)

	state := a.StateDict()
	if _, ok := state["velocity.0"]; !ok {
		t.Fatal("missing velocity.0")
	}

	y := param("x", 1.0, 2.0)
	b := optim.NewSGD([]*nn.Parameter{y}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	if err := b.LoadStateDict(state); err != nil {
		t.Fatal(err)
	}
	if b.GetLR() != 0.01 {
		t.Errorf("lr = %v, want 0.01", b.GetLR())
	}

	// Both optimizers continue identically from the restored velocity.
	x.Tensor().SetFloat64s([]float64{0, 0})
	y.Tensor().SetFloat64s([]float64{0, 0})
	a.Step(gradFor(x, 1, 1))
	b.Step(gradFor(y, 1, 1))
	if x.Tensor().At(0) != y.Tensor().At(0) {
		t.Errorf("resumed step differs: %v vs %v", x.Tensor().At(0), y.Tensor().At(0))
	}

	bad := map[string]*tensor.RawTensor{"velocity.0": tensor.Zeros(tensor.Shape{3}, tensor.Float64, tensor.CPU)}
	if err := b.LoadStateDict(bad); err == nil {
		t.Error("expected shape mismatch error")
	}
}

// TestAdam_Update tests the first Adam step, which moves every parameter by
// lr in the direction opposite the gradient sign.
func TestAdam_Update(t *testing.T) {
	x := param("x", 1.0, -1.0)
	optimizer := optim.NewAdam([]*nn.Parameter{x}, optim.AdamConfig{LR: 0.1})
	optimizer.Step(gradFor(x, 3.0, -0.5))

	if got := x.Tensor().At(0); !floatEqual(got, 0.9, 1e-5) {
		t.Errorf("x[0] = %f, want 0.9", got)
	}
	if got := x.Tensor().At(1); !floatEqual(got, -0.9, 1e-5) {
		t.Errorf("x[1] = %f, want -0.9", got)
	}
	if optimizer.GetTimestep() != 1 {
		t.Errorf("timestep = %d, want 1", optimizer.GetTimestep())
	}
}

func TestAdam_StateDictRoundTrip(t *testing.T) {
	x := param("x", 1.0)
	a := optim.NewAdam([]*nn.Parameter{x}, optim.AdamConfig{})
	a.Step(gradFor(x, 1))
	a.Step(gradFor(x, 2))

	y := param("x", 1.0)
	b := optim.NewAdam([]*nn.Parameter{y}, optim.AdamConfig{})
	if err := b.LoadStateDict(a.StateDict()); err != nil {
		t.Fatal(err)
	}
	if b.GetTimestep() != 2 {
		t.Errorf("timestep = %d, want 2", b.GetTimestep())
	}

	y.Tensor().SetFloat64s([]float64{x.Tensor().At(0)})
	a.Step(gradFor(x, 0.5))
	b.Step(gradFor(y, 0.5))
	if !floatEqual(x.Tensor().At(0), y.Tensor().At(0), 1e-7) {
		t.Errorf("resumed Adam differs: %v vs %v", x.Tensor().At(0), y.Tensor().At(0))
	}
}

func TestStepLR(t *testing.T) {
	x := param("x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{x}, optim.SGDConfig{LR: 3e-5, Momentum: 0.9, WeightDecay: 3e-8})
	scheduler := optim.NewStepLR(optimizer, optim.StepLRConfig{})

	for epoch := 1; epoch <= 14; epoch++ {
		scheduler.Step()
		want := 3e-5
		switch {
		case epoch >= 14:
			want = 3e-7
		case epoch >= 7:
			want = 3e-6
		}
		if !floatEqual(optimizer.GetLR(), want, 1e-12) {
			t.Errorf("epoch %d: lr = %g, want %g", epoch, optimizer.GetLR(), want)
		}
	}
}

func TestStepLR_StateDictRoundTrip(t *testing.T) {
	opt := optim.NewSGD([]*nn.Parameter{param("x", 1)}, optim.SGDConfig{LR: 1})
	s := optim.NewStepLR(opt, optim.StepLRConfig{StepSize: 2, Gamma: 0.5})
	for range 5 {
		s.Step()
	}

	opt2 := optim.NewSGD([]*nn.Parameter{param("x", 1)}, optim.SGDConfig{LR: 1})
	s2 := optim.NewStepLR(opt2, optim.StepLRConfig{})
	if err := s2.LoadStateDict(s.StateDict()); err != nil {
		t.Fatal(err)
	}
	if s2.LastEpoch() != 5 || opt2.GetLR() != 0.25 {
		t.Errorf("restored epoch %d lr %v, want 5 and 0.25", s2.LastEpoch(), opt2.GetLR())
	}

	if err := s2.LoadStateDict(map[string]*tensor.RawTensor{}); err == nil {
		t.Error("expected error for empty state")
	}
}
