// Package window turns normalized delta matrices into supervised samples for
// the recurrent models.
//
// Rows of the feature and target matrices are delta rows: a series of N
// levels has N-1 of them. Both variants train on target column 0.
package window

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidSpec is returned for a width below 1 or an offset outside [1, width].
	ErrInvalidSpec = errors.New("window: invalid spec")
	// ErrTooShort is returned when no complete sample fits the series.
	ErrTooShort = errors.New("window: series too short")
	// ErrRowMismatch is returned when features and targets differ in rows.
	ErrRowMismatch = errors.New("window: feature and target rows differ")
)

// Spec is the sliding window geometry. Width is the number of delta rows
// per sample and Offset how far the target window is shifted forward.
type Spec struct {
	Width  int `yaml:"width"`
	Offset int `yaml:"offset"`
}

// Validate checks 1 <= Offset <= Width.
func (s Spec) Validate() error {
	if s.Width < 1 {
		return fmt.Errorf("%w: width %d", ErrInvalidSpec, s.Width)
	}
	if s.Offset < 1 || s.Offset > s.Width {
		return fmt.Errorf("%w: offset %d not in [1, %d]", ErrInvalidSpec, s.Offset, s.Width)
	}
	return nil
}

// Position is the output step holding the prediction for the delta that
// follows the input window.
func (s Spec) Position() int {
	return s.Width - s.Offset
}

// Sample is one supervised example: X has one row per timestep, Y one
// single-value row per output step.
type Sample struct {
	X [][]float64
	Y [][]float64
}

// Dataset is an ordered list of samples sharing one geometry. Pointwise
// datasets have Width 1 and Offset 0.
type Dataset struct {
	Samples []Sample
	Width   int
	Offset  int
}

// Len returns the number of samples.
func (d Dataset) Len() int { return len(d.Samples) }

// Features returns the width of an input row, 0 for an empty dataset.
func (d Dataset) Features() int {
	if len(d.Samples) == 0 || len(d.Samples[0].X) == 0 {
		return 0
	}
	return len(d.Samples[0].X[0])
}

// Inputs returns the sample inputs in order.
func (d Dataset) Inputs() [][][]float64 {
	out := make([][][]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.X
	}
	return out
}

// Targets returns the sample targets in order.
func (d Dataset) Targets() [][][]float64 {
	out := make([][][]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Y
	}
	return out
}

// Append concatenates datasets with the same geometry. Windows never span
// two source series.
func (d Dataset) Append(other Dataset) (Dataset, error) {
	if len(d.Samples) == 0 {
		return other, nil
	}
	if d.Width != other.Width || d.Offset != other.Offset {
		return d, fmt.Errorf("%w: cannot append width %d offset %d to width %d offset %d",
			ErrInvalidSpec, other.Width, other.Offset, d.Width, d.Offset)
	}
	d.Samples = append(append([]Sample(nil), d.Samples...), other.Samples...)
	return d, nil
}

func checkRows(features, targets mat.Matrix) (int, error) {
	fr, _ := features.Dims()
	tr, _ := targets.Dims()
	if fr != tr {
		return 0, fmt.Errorf("%w: %d vs %d", ErrRowMismatch, fr, tr)
	}
	return fr, nil
}

func row(m mat.Matrix, i int) []float64 {
	_, c := m.Dims()
	return mat.Row(make([]float64, c), i, m)
}

// Pointwise builds one width-1 sample per delta row: N-1 samples for N
// levels.
func Pointwise(features, targets mat.Matrix) (Dataset, error) {
	rows, err := checkRows(features, targets)
	if err != nil {
		return Dataset{}, err
	}
	if rows == 0 {
		return Dataset{}, ErrTooShort
	}
	ds := Dataset{Samples: make([]Sample, rows), Width: 1}
	for i := 0; i < rows; i++ {
		ds.Samples[i] = Sample{
			X: [][]float64{row(features, i)},
			Y: [][]float64{{targets.At(i, 0)}},
		}
	}
	return ds, nil
}

// Count returns the number of sliding samples for a series of n levels.
func Count(n int, spec Spec) int {
	c := n - spec.Width - spec.Offset
	if c < 0 {
		return 0
	}
	return c
}

// Sliding builds samples whose input is delta rows [i, i+W) and whose
// target is target column 0 over rows [i+F, i+F+W). Samples whose shifted
// window would pass the end are dropped, leaving N-W-F samples.
func Sliding(features, targets mat.Matrix, spec Spec) (Dataset, error) {
	if err := spec.Validate(); err != nil {
		return Dataset{}, err
	}
	rows, err := checkRows(features, targets)
	if err != nil {
		return Dataset{}, err
	}
	count := Count(rows+1, spec)
	if count == 0 {
		return Dataset{}, fmt.Errorf("%w: %d delta rows, width %d, offset %d", ErrTooShort, rows, spec.Width, spec.Offset)
	}

	ds := Dataset{Samples: make([]Sample, count), Width: spec.Width, Offset: spec.Offset}
	for i := 0; i < count; i++ {
		x := make([][]float64, spec.Width)
		y := make([][]float64, spec.Width)
		for j := 0; j < spec.Width; j++ {
			x[j] = row(features, i+j)
			y[j] = []float64{targets.At(i+spec.Offset+j, 0)}
		}
		ds.Samples[i] = Sample{X: x, Y: y}
	}
	return ds, nil
}

// Last returns the trailing width rows of rows. Ragged history with fewer
// rows is left-padded by repeating the first (oldest) row.
func Last(rows [][]float64, width int) ([][]float64, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w: width %d", ErrInvalidSpec, width)
	}
	if len(rows) == 0 {
		return nil, ErrTooShort
	}
	out := make([][]float64, width)
	start := len(rows) - width
	for j := range out {
		k := max(start+j, 0)
		out[j] = append([]float64(nil), rows[k]...)
	}
	return out, nil
}
