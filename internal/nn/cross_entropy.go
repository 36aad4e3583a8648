package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/tensor"
)

// CrossEntropy computes the mean softmax cross-entropy of logits
// [batch_size, num_classes] against class indices, and its gradient with
// respect to the logits.
//
// Mathematical Formulation:
//
//	Loss = mean_b( -log_softmax(logits[b])[target[b]] )
//	∂L/∂logits[b] = (softmax(logits[b]) - one_hot(target[b])) / batch_size
//
// The log-sum-exp trick keeps large or very negative logits finite. The
// gradient has the dtype of logits.
func CrossEntropy(logits *tensor.RawTensor, targets []int) (loss float64, grad *tensor.RawTensor) {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("CrossEntropy: logits must be 2D [batch_size, num_classes], got %v", shape))
	}
	batchSize, numClasses := shape[0], shape[1]
	if len(targets) != batchSize {
		panic(fmt.Sprintf("CrossEntropy: got %d targets for batch size %d", len(targets), batchSize))
	}

	values := logits.Float64s()
	gradValues := make([]float64, len(values))
	for b := range batchSize {
		target := targets[b]
		if target < 0 || target >= numClasses {
			panic(fmt.Sprintf("CrossEntropy: target %d out of range [0, %d)", target, numClasses))
		}
		row := values[b*numClasses : (b+1)*numClasses]
		logProbs := logSoftmax(row)
		loss -= logProbs[target]

		g := gradValues[b*numClasses : (b+1)*numClasses]
		for i, lp := range logProbs {
			g[i] = math.Exp(lp) / float64(batchSize)
		}
		g[target] -= 1 / float64(batchSize)
	}

	grad = tensor.MustNewRaw(shape.Clone(), logits.DType(), tensor.CPU)
	grad.SetFloat64s(gradValues)
	return loss / float64(batchSize), grad
}

// logSoftmax computes log(softmax(z)):
//
//	LogSoftmax(z)[i] = z[i] - (max(z) + log(Σ exp(z - max(z))))
func logSoftmax(z []float64) []float64 {
	maxZ := z[0]
	for _, v := range z[1:] {
		maxZ = math.Max(maxZ, v)
	}
	var sum float64
	for _, v := range z {
		sum += math.Exp(v - maxZ)
	}
	logSum := maxZ + math.Log(sum)

	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = v - logSum
	}
	return out
}

// Argmax returns the index of the largest value in each row of a 2D
// tensor.
func Argmax(x *tensor.RawTensor) []int {
	shape := x.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Argmax: expected a 2D tensor, got %v", shape))
	}
	values := x.Float64s()
	out := make([]int, shape[0])
	for b := range shape[0] {
		row := values[b*shape[1] : (b+1)*shape[1]]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		out[b] = best
	}
	return out
}
