// Package opt provides optimization algorithms.
package opt

import "math"

// Optimizer updates network parameters based on gradients.
//
// Parameters are updated per group; the network uses one group per layer so
// stateful optimizers can keep their moments aligned with each layer.
type Optimizer interface {
	// StepInPlace updates params in-place from gradients for the given group.
	StepInPlace(group int, params, gradients []float64)

	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LR float64
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s *SGD) StepInPlace(_ int, params, gradients []float64) {
	for i := range params {
		params[i] -= s.LR * gradients[i]
	}
}

func (s *SGD) LearningRate() float64      { return s.LR }
func (s *SGD) SetLearningRate(lr float64) { s.LR = lr }

// Adam optimizer, the default for the forecasting models.
type Adam struct {
	LR      float64
	Beta1   float64 // Exponential decay rate for first moment
	Beta2   float64 // Exponential decay rate for second moment
	Epsilon float64 // Small constant for numerical stability

	state map[int]*adamState
}

type adamState struct {
	m, v []float64
	t    int
}

// NewAdam creates a new Adam optimizer with the standard moment decay rates.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LR:      learningRate,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-7,
		state:   make(map[int]*adamState),
	}
}

// StepInPlace applies one bias-corrected Adam update to params.
func (a *Adam) StepInPlace(group int, params, gradients []float64) {
	if a.state == nil {
		a.state = make(map[int]*adamState)
	}
	s, ok := a.state[group]
	if !ok || len(s.m) != len(params) {
		s = &adamState{m: make([]float64, len(params)), v: make([]float64, len(params))}
		a.state[group] = s
	}
	s.t++

	bc1 := 1 - math.Pow(a.Beta1, float64(s.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(s.t))
	for i, g := range gradients {
		s.m[i] = a.Beta1*s.m[i] + (1-a.Beta1)*g
		s.v[i] = a.Beta2*s.v[i] + (1-a.Beta2)*g*g
		mHat := s.m[i] / bc1
		vHat := s.v[i] / bc2
		params[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

func (a *Adam) LearningRate() float64      { return a.LR }
func (a *Adam) SetLearningRate(lr float64) { a.LR = lr }

// Name returns the serialized name of an optimizer.
func Name(o Optimizer) string {
	switch o.(type) {
	case *Adam:
		return "Adam"
	default:
		return "SGD"
	}
}

// ByName reconstructs an optimizer from its serialized name.
func ByName(name string, lr float64) Optimizer {
	if name == "Adam" {
		return NewAdam(lr)
	}
	return &SGD{LR: lr}
}
