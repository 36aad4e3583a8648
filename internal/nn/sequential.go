package nn

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. State dict keys
// are prefixed with the module index ("0.weight", "2.bias"), which is the
// layout pretrained CNN weights use.
//
// Example:
//
//	features := nn.NewSequential(
//	    nn.NewConv2D(3, 64, 3, 2, 0, 1, true, backend),
//	    nn.NewReLU(backend),
//	    nn.NewMaxPool2D(3, 2, 0, true, backend),
//	)
//	output := features.Forward(input)
type Sequential struct {
	ModuleList
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{ModuleList: ModuleList{modules: modules}}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// ModuleList holds an ordered list of modules that the owner runs itself,
// for example the SSD base network whose intermediate outputs are emitted.
// Its Forward panics; iterate with Len and Module instead.
type ModuleList struct {
	modules []Module
}

// NewModuleList creates a new ModuleList.
func NewModuleList(modules ...Module) *ModuleList {
	return &ModuleList{modules: modules}
}

// Forward is not defined for a bare module list.
func (l *ModuleList) Forward(*tensor.RawTensor) *tensor.RawTensor {
	panic("ModuleList: Forward is not defined, run the modules individually")
}

// Add appends a module to the list.
func (l *ModuleList) Add(module Module) {
	l.modules = append(l.modules, module)
}

// Len returns the number of modules.
func (l *ModuleList) Len() int {
	return len(l.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (l *ModuleList) Module(index int) Module {
	if index < 0 || index >= len(l.modules) {
		panic(fmt.Sprintf("ModuleList.Module: index %d out of bounds [0, %d)", index, len(l.modules)))
	}
	return l.modules[index]
}

// Set replaces the module at the given index.
func (l *ModuleList) Set(index int, module Module) {
	if index < 0 || index >= len(l.modules) {
		panic(fmt.Sprintf("ModuleList.Set: index %d out of bounds [0, %d)", index, len(l.modules)))
	}
	l.modules[index] = module
}

// Parameters returns the parameters of all modules in order.
func (l *ModuleList) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range l.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining forwards the mode to every module that supports it.
func (l *ModuleList) SetTraining(training bool) {
	for _, module := range l.modules {
		SetTraining(module, training)
	}
}

// StateDict returns the state of every module prefixed with its index.
func (l *ModuleList) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range l.modules {
		MergeStateDict(stateDict, fmt.Sprint(i), module.StateDict())
	}
	return stateDict
}

// LoadStateDict loads each module from the entries under its index.
// Modules without state are skipped.
func (l *ModuleList) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range l.modules {
		if len(module.StateDict()) == 0 {
			continue
		}
		if err := module.LoadStateDict(SubStateDict(stateDict, fmt.Sprint(i))); err != nil {
			return fmt.Errorf("failed to load module %d: %w", i, err)
		}
	}
	return nil
}
