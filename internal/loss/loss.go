// Package loss provides the regression losses used to train forecasting models.
package loss

import "math"

// BackwardInPlacer is an optional interface for loss functions that support
// in-place gradient computation to avoid allocations.
type BackwardInPlacer interface {
	BackwardInPlace(yPred, yTrue, grad []float64)
}

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the gradient of the loss w.r.t. prediction.
	Backward(yPred, yTrue []float64) []float64
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (m MSE) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("MSE: prediction and target must have same length")
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yPred[i] - yTrue[i]
		sum += diff * diff
	}
	return sum / float64(n)
}

// Backward computes gradient: dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	m.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes gradient and stores it in the grad slice.
func (m MSE) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("MSE: slices must have same length")
	}

	factor := 2.0 / float64(n)
	for i := 0; i < n; i++ {
		grad[i] = factor * (yPred[i] - yTrue[i])
	}
}

// Huber loss for robust regression on noisy production readings.
type Huber struct {
	Delta float64 // Threshold for quadratic/linear transition
}

// NewHuber creates a Huber loss with the given delta.
func NewHuber(delta float64) *Huber {
	return &Huber{Delta: delta}
}

// Forward computes Huber loss.
func (h Huber) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("Huber: prediction and target must have same length")
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := math.Abs(yPred[i] - yTrue[i])
		if diff <= h.Delta {
			sum += 0.5 * diff * diff
		} else {
			sum += h.Delta * (diff - 0.5*h.Delta)
		}
	}
	return sum / float64(n)
}

// Backward computes gradient for Huber loss.
func (h Huber) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	h.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the mean-reduced Huber gradient into grad.
func (h Huber) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("Huber: slices must have same length")
	}

	inv := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		diff := yPred[i] - yTrue[i]
		if math.Abs(diff) <= h.Delta {
			grad[i] = diff * inv
		} else {
			grad[i] = h.Delta * math.Copysign(1, diff) * inv
		}
	}
}

// Name returns the serialized name of a loss.
func Name(l Loss) string {
	switch l.(type) {
	case *Huber, Huber:
		return "Huber"
	default:
		return "MSE"
	}
}

// ByName reconstructs a loss from its serialized name.
func ByName(name string, delta float64) Loss {
	if name == "Huber" {
		if delta <= 0 {
			delta = 1.0
		}
		return NewHuber(delta)
	}
	return MSE{}
}
