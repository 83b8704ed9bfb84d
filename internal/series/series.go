// Package series derives the delta features of (production, stage, time)
// sequences.
//
// Every derived series is one element shorter than its source: delta k is
// the change from step k to step k+1 and belongs to step k+1, so the first
// step has no delta of its own.
package series

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLengthMismatch is returned when aligned series differ in length.
	ErrLengthMismatch = errors.New("series: length mismatch")
	// ErrTooShort is returned when a series has fewer than two points.
	ErrTooShort = errors.New("series: need at least two points")
	// ErrZeroTimeStep is returned when two consecutive timestamps coincide.
	ErrZeroTimeStep = errors.New("series: zero time step")
)

// Feature and target matrix columns.
const (
	ColProduction = 0
	ColStageDelta = 1

	ColDProductionDt  = 0
	ColNextProduction = 1
)

// Diff returns the first difference x[k+1]-x[k]; nil for fewer than two points.
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	floats.SubTo(d, x[1:], x[:len(x)-1])
	return d
}

// Gradient returns diff(y)/diff(t). A nil t means unit spacing.
func Gradient(y, t []float64) ([]float64, error) {
	dy := Diff(y)
	if t == nil {
		return dy, nil
	}
	if len(t) != len(y) {
		return nil, fmt.Errorf("%w: %d values, %d timestamps", ErrLengthMismatch, len(y), len(t))
	}
	dt := Diff(t)
	for k, v := range dt {
		if v == 0 {
			return nil, fmt.Errorf("%w at step %d", ErrZeroTimeStep, k+1)
		}
	}
	if dy != nil {
		floats.Div(dy, dt)
	}
	return dy, nil
}

// Features holds one production history with its derived deltas.
type Features struct {
	Production []float64
	Stage      []float64
	// Time is nil for unit spacing.
	Time []float64

	DProductionDt []float64
	DStageDStep   []float64
}

// NewFeatures copies the inputs and evaluates the deltas.
func NewFeatures(production, stage, time []float64) (*Features, error) {
	if len(production) != len(stage) {
		return nil, fmt.Errorf("%w: production %d, stage %d", ErrLengthMismatch, len(production), len(stage))
	}
	if time != nil && len(time) != len(production) {
		return nil, fmt.Errorf("%w: production %d, time %d", ErrLengthMismatch, len(production), len(time))
	}
	if len(production) < 2 {
		return nil, ErrTooShort
	}

	f := &Features{
		Production: append([]float64(nil), production...),
		Stage:      append([]float64(nil), stage...),
	}
	if time != nil {
		f.Time = append([]float64(nil), time...)
	}
	if err := f.EvalDeltas(); err != nil {
		return nil, err
	}
	return f, nil
}

// EvalDeltas re-derives the delta series from the current levels.
func (f *Features) EvalDeltas() error {
	dp, err := Gradient(f.Production, f.Time)
	if err != nil {
		return err
	}
	f.DProductionDt = dp
	f.DStageDStep = Diff(f.Stage)
	return nil
}

// Len is the number of timesteps.
func (f *Features) Len() int {
	return len(f.Production)
}

// Step is the time spacing between step k-1 and step k (1 without timestamps).
func (f *Features) Step(k int) float64 {
	if f.Time == nil {
		return 1
	}
	return f.Time[k] - f.Time[k-1]
}

// NextRow is the feature row for the step after the last level, given the
// stage planned for that step.
func (f *Features) NextRow(nextStage float64) []float64 {
	last := f.Len() - 1
	row := make([]float64, 2)
	row[ColProduction] = f.Production[last]
	row[ColStageDelta] = nextStage - f.Stage[last]
	return row
}

// FeatureMatrix returns N-1 rows [production[k], stage_delta[k]].
func FeatureMatrix(f *Features) *mat.Dense {
	n := f.Len() - 1
	m := mat.NewDense(n, 2, nil)
	for k := 0; k < n; k++ {
		m.Set(k, ColProduction, f.Production[k])
		m.Set(k, ColStageDelta, f.DStageDStep[k])
	}
	return m
}

// TargetMatrix returns N-1 rows [dp_dt[k], production[k+1]].
func TargetMatrix(f *Features) *mat.Dense {
	n := f.Len() - 1
	m := mat.NewDense(n, 2, nil)
	for k := 0; k < n; k++ {
		m.Set(k, ColDProductionDt, f.DProductionDt[k])
		m.Set(k, ColNextProduction, f.Production[k+1])
	}
	return m
}

// Stack concatenates matrices with equal column counts row-wise.
func Stack(ms ...*mat.Dense) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, ErrTooShort
	}
	_, cols := ms[0].Dims()
	rows := 0
	for _, m := range ms {
		r, c := m.Dims()
		if c != cols {
			return nil, fmt.Errorf("%w: %d columns, want %d", ErrLengthMismatch, c, cols)
		}
		rows += r
	}
	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, m := range ms {
		r, _ := m.Dims()
		out.Slice(offset, offset+r, 0, cols).(*mat.Dense).Copy(m)
		offset += r
	}
	return out, nil
}
