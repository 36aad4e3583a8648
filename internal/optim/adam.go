package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/nn"
	"github.com/born-ml/vision/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int                                 // Timestep for bias correction
	m      map[*nn.Parameter]*tensor.RawTensor // First moment estimates
	v      map[*nn.Parameter]*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer with default hyperparameters where
// the config leaves them zero.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.RawTensor),
		v:      make(map[*nn.Parameter]*tensor.RawTensor),
	}
}

// Step performs a single optimization step using Adam algorithm.
func (a *Adam) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		m := a.moment(a.m, param)
		v := a.moment(a.v, param)

		gradData := grad.Float64s()
		mData, vData := m.AsFloat64(), v.AsFloat64()
		paramData := param.Tensor().Float64s()
		for i := range paramData {
			g := gradData[i]
			mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g
			mHat := mData[i] / biasCorrection1
			vHat := vData[i] / biasCorrection2
			paramData[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
		param.Tensor().SetFloat64s(paramData)
	}
}

func (a *Adam) moment(buffers map[*nn.Parameter]*tensor.RawTensor, param *nn.Parameter) *tensor.RawTensor {
	buf, exists := buffers[param]
	if !exists {
		buf = tensor.Zeros(param.Tensor().Shape(), tensor.Float64, tensor.CPU)
		buffers[param] = buf
	}
	return buf
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	zeroGrad(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// GetTimestep returns the current timestep.
func (a *Adam) GetTimestep() int {
	return a.t
}

// StateDict returns "lr", "step" and the "m.{i}"/"v.{i}" moment buffers.
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{
		"lr":   scalar(a.lr),
		"step": scalar(float64(a.t)),
	}
	for i, param := range a.params {
		if m, ok := a.m[param]; ok {
			stateDict[fmt.Sprintf("m.%d", i)] = m.Clone()
		}
		if v, ok := a.v[param]; ok {
			stateDict[fmt.Sprintf("v.%d", i)] = v.Clone()
		}
	}
	return stateDict
}

// LoadStateDict restores the timestep, learning rate and moments.
func (a *Adam) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if lr, ok, err := readScalar(stateDict, "lr"); err != nil {
		return fmt.Errorf("adam: %w", err)
	} else if ok {
		a.lr = lr
	}
	if step, ok, err := readScalar(stateDict, "step"); err != nil {
		return fmt.Errorf("adam: %w", err)
	} else if ok {
		a.t = int(step)
	}

	m := make(map[*nn.Parameter]*tensor.RawTensor)
	v := make(map[*nn.Parameter]*tensor.RawTensor)
	for i, param := range a.params {
		mBuf, err := loadBuffer(stateDict, fmt.Sprintf("m.%d", i), param)
		if err != nil {
			return fmt.Errorf("adam: %w", err)
		}
		vBuf, err := loadBuffer(stateDict, fmt.Sprintf("v.%d", i), param)
		if err != nil {
			return fmt.Errorf("adam: %w", err)
		}
		if mBuf != nil && vBuf != nil {
			m[param], v[param] = mBuf, vBuf
		}
	}
	a.m, a.v = m, v
	return nil
}
