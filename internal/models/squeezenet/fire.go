package squeezenet

import (
	"fmt"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Fire squeezes the input with a 1x1 conv, then expands it through
// parallel 1x1 and 3x3 convs whose outputs are concatenated on channels.
type Fire struct {
	squeeze   *nn.Conv2D
	expand1x1 *nn.Conv2D
	expand3x3 *nn.Conv2D
	backend   tensor.LayerBackend
}

// NewFire creates a Fire module producing expand1x1+expand3x3 channels.
func NewFire(inplanes, squeezePlanes, expand1x1Planes, expand3x3Planes int, backend tensor.LayerBackend) *Fire {
	return &Fire{
		squeeze:   nn.NewConv2D(inplanes, squeezePlanes, 1, 1, 0, 1, true, backend),
		expand1x1: nn.NewConv2D(squeezePlanes, expand1x1Planes, 1, 1, 0, 1, true, backend),
		expand3x3: nn.NewConv2D(squeezePlanes, expand3x3Planes, 3, 1, 1, 1, true, backend),
		backend:   backend,
	}
}

// Forward runs the module.
func (f *Fire) Forward(x *tensor.RawTensor) *tensor.RawTensor {
	s := f.backend.ReLU(f.squeeze.Forward(x))
	return f.backend.Concat(1,
		f.backend.ReLU(f.expand1x1.Forward(s)),
		f.backend.ReLU(f.expand3x3.Forward(s)),
	)
}

func (f *Fire) convs() []*nn.Conv2D { return []*nn.Conv2D{f.squeeze, f.expand1x1, f.expand3x3} }

var fireNames = [...]string{"squeeze", "expand1x1", "expand3x3"}

// Parameters returns the parameters of the three convs.
func (f *Fire) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, c := range f.convs() {
		params = append(params, c.Parameters()...)
	}
	return params
}

// StateDict keys the convs as squeeze, expand1x1 and expand3x3.
func (f *Fire) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, c := range f.convs() {
		nn.MergeStateDict(state, fireNames[i], c.StateDict())
	}
	return state
}

// LoadStateDict restores the three convs.
func (f *Fire) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for i, c := range f.convs() {
		if err := c.LoadStateDict(nn.SubStateDict(state, fireNames[i])); err != nil {
			return fmt.Errorf("%s: %w", fireNames[i], err)
		}
	}
	return nil
}

func (f *Fire) String() string {
	return fmt.Sprintf("Fire(%d -> %d, %d+%d)",
		f.squeeze.InChannels(), f.squeeze.OutChannels(), f.expand1x1.OutChannels(), f.expand3x3.OutChannels())
}
