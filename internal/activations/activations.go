// Package activations provides the activation functions used by the
// recurrent forecasting layers.
package activations

import "math"

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) from the pre-activation x
	Derivative(x float64) float64
}

// Linear is the identity activation used by regression output layers.
type Linear struct{}

// Activate returns x unchanged.
func (l Linear) Activate(x float64) float64 {
	return x
}

// Derivative is always 1.
func (l Linear) Derivative(x float64) float64 {
	return 1
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function. Used by the LSTM input, forget and output gates.
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// Tanh activation function. Used by the LSTM cell candidate.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Name returns the serialized name of an activation.
func Name(act Activation) string {
	switch act.(type) {
	case Linear:
		return "Linear"
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	default:
		return "Linear"
	}
}

// ByName returns the activation registered under name. Unknown names fall
// back to Linear.
func ByName(name string) Activation {
	switch name {
	case "ReLU":
		return ReLU{}
	case "Sigmoid":
		return Sigmoid{}
	case "Tanh":
		return Tanh{}
	default:
		return Linear{}
	}
}
