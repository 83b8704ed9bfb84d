// Package opt provides unit tests for optimizers.
package opt

import (
	"math"
	"testing"
)

// TestSGDStepInPlace tests in-place SGD update.
func TestSGDStepInPlace(t *testing.T) {
	sgd := &SGD{LR: 0.1}

	params := []float64{1.0, 2.0, 3.0}
	sgd.StepInPlace(0, params, []float64{0.1, 0.2, 0.3})

	expected := []float64{0.99, 1.98, 2.97}
	for i := range params {
		if math.Abs(params[i]-expected[i]) > 1e-10 {
			t.Errorf("params[%d] = %v, want %v", i, params[i], expected[i])
		}
	}
}

// TestAdamFirstStep tests that the first bias-corrected step moves each
// parameter by roughly the learning rate against the gradient sign.
func TestAdamFirstStep(t *testing.T) {
	adam := NewAdam(0.01)

	params := []float64{1.0, -1.0, 0.5}
	adam.StepInPlace(0, params, []float64{0.5, -2.0, 0})

	if math.Abs(params[0]-0.99) > 1e-6 {
		t.Errorf("params[0] = %v, want ~0.99", params[0])
	}
	if math.Abs(params[1]+0.99) > 1e-6 {
		t.Errorf("params[1] = %v, want ~-0.99", params[1])
	}
	if params[2] != 0.5 {
		t.Errorf("zero gradient moved params[2] to %v", params[2])
	}
}

// TestAdamGroupsAreIndependent tests that moments are tracked per group.
func TestAdamGroupsAreIndependent(t *testing.T) {
	adam := NewAdam(0.1)

	a := []float64{0}
	b := []float64{0}
	for i := 0; i < 5; i++ {
		adam.StepInPlace(0, a, []float64{1})
	}
	adam.StepInPlace(1, b, []float64{-1})

	if math.Abs(b[0]-0.1) > 1e-6 {
		t.Errorf("group 1 first step = %v, want ~0.1", b[0])
	}
	if a[0] >= 0 {
		t.Errorf("group 0 should have decreased, got %v", a[0])
	}
}

// TestAdamMinimizesQuadratic tests convergence on f(x) = (x-3)^2.
func TestAdamMinimizesQuadratic(t *testing.T) {
	adam := NewAdam(0.1)
	x := []float64{0}

	for i := 0; i < 500; i++ {
		adam.StepInPlace(0, x, []float64{2 * (x[0] - 3)})
	}

	if math.Abs(x[0]-3) > 0.05 {
		t.Errorf("x = %v, want ~3", x[0])
	}
}

// TestSchedulers tests learning rate decay.
func TestSchedulers(t *testing.T) {
	sgd := &SGD{LR: 1.0}
	step := NewStepLR(sgd, 2, 0.5)
	step.Step()
	if step.GetLR() != 1.0 {
		t.Errorf("StepLR after 1 epoch = %v, want 1", step.GetLR())
	}
	step.Step()
	if step.GetLR() != 0.5 {
		t.Errorf("StepLR after 2 epochs = %v, want 0.5", step.GetLR())
	}

	exp := NewExponentialLR(sgd, 0.5)
	exp.Step()
	if math.Abs(exp.GetLR()-0.25) > 1e-12 {
		t.Errorf("ExponentialLR = %v, want 0.25", exp.GetLR())
	}

	adam := NewAdam(0.1)
	plateau := NewReduceLROnPlateau(adam, 0.5, 2, 0, 0.01)
	plateau.StepWithLoss(1.0)
	plateau.StepWithLoss(1.0)
	plateau.StepWithLoss(1.0)
	if math.Abs(plateau.GetLR()-0.05) > 1e-12 {
		t.Errorf("ReduceLROnPlateau = %v, want 0.05", plateau.GetLR())
	}
}

// TestByName tests optimizer reconstruction.
func TestByName(t *testing.T) {
	if Name(ByName("Adam", 0.01)) != "Adam" {
		t.Error("Adam name round trip failed")
	}
	o := ByName("other", 0.2)
	if Name(o) != "SGD" || o.LearningRate() != 0.2 {
		t.Errorf("fallback optimizer = %s lr %v", Name(o), o.LearningRate())
	}
}
