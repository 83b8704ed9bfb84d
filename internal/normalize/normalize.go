// Package normalize provides invertible min-max range scaling for feature
// and target matrices.
package normalize

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned when a scaler is used before Fit.
	ErrNotFitted = errors.New("normalize: scaler is not fitted")
	// ErrColumnMismatch is returned when a matrix width differs from the fit.
	ErrColumnMismatch = errors.New("normalize: column count differs from fit")
	// ErrEmpty is returned when fitting on a matrix without rows.
	ErrEmpty = errors.New("normalize: empty matrix")
)

// Scaler maps each column linearly so that the fitted data range becomes
// [Min, Max]: x' = x*Scale + Offset.
type Scaler struct {
	Min, Max float64

	DataMin []float64
	DataMax []float64
	Scale   []float64
	Offset  []float64
}

// NewScaler creates an unfitted scaler onto [lo, hi]. An empty range
// defaults to [0, 1].
func NewScaler(lo, hi float64) *Scaler {
	if hi <= lo {
		lo, hi = 0, 1
	}
	return &Scaler{Min: lo, Max: hi}
}

// Fitted reports whether Fit has been called.
func (s *Scaler) Fitted() bool {
	return s.Scale != nil
}

// Columns is the width the scaler was fitted on.
func (s *Scaler) Columns() int {
	return len(s.Scale)
}

// Fit learns per-column minimum and maximum of m. A constant column gets a
// unit data range so the transform stays invertible.
func (s *Scaler) Fit(m mat.Matrix) error {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return ErrEmpty
	}

	s.DataMin = make([]float64, cols)
	s.DataMax = make([]float64, cols)
	s.Scale = make([]float64, cols)
	s.Offset = make([]float64, cols)

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		lo, hi := floats.Min(col), floats.Max(col)
		dataRange := hi - lo
		if dataRange == 0 {
			dataRange = 1
		}
		s.DataMin[j] = lo
		s.DataMax[j] = hi
		s.Scale[j] = (s.Max - s.Min) / dataRange
		s.Offset[j] = s.Min - lo*s.Scale[j]
	}
	return nil
}

func (s *Scaler) check(cols int) error {
	if !s.Fitted() {
		return ErrNotFitted
	}
	if cols != len(s.Scale) {
		return fmt.Errorf("%w: got %d, want %d", ErrColumnMismatch, cols, len(s.Scale))
	}
	return nil
}

// Transform returns the scaled copy of m.
func (s *Scaler) Transform(m mat.Matrix) (*mat.Dense, error) {
	_, cols := m.Dims()
	if err := s.check(cols); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, j int, v float64) float64 {
		return v*s.Scale[j] + s.Offset[j]
	}, out)
	return out, nil
}

// InverseTransform undoes Transform.
func (s *Scaler) InverseTransform(m mat.Matrix) (*mat.Dense, error) {
	_, cols := m.Dims()
	if err := s.check(cols); err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Offset[j]) / s.Scale[j]
	}, out)
	return out, nil
}

// TransformRow scales a single row.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if err := s.check(len(row)); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Offset[j]
	}
	return out, nil
}

// InverseTransformRow undoes TransformRow.
func (s *Scaler) InverseTransformRow(row []float64) ([]float64, error) {
	if err := s.check(len(row)); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Offset[j]) / s.Scale[j]
	}
	return out, nil
}

// InverseValue undoes the scaling of a single value of column j.
func (s *Scaler) InverseValue(j int, v float64) (float64, error) {
	if !s.Fitted() {
		return 0, ErrNotFitted
	}
	if j < 0 || j >= len(s.Scale) {
		return 0, fmt.Errorf("%w: column %d of %d", ErrColumnMismatch, j, len(s.Scale))
	}
	return (v - s.Offset[j]) / s.Scale[j], nil
}

// Normalizer pairs independently fitted feature and target scalers. It is
// fitted once on the full training matrices and reused unchanged.
type Normalizer struct {
	Features *Scaler
	Targets  *Scaler
}

// New creates an unfitted normalizer whose scalers map onto [lo, hi].
func New(lo, hi float64) *Normalizer {
	return &Normalizer{
		Features: NewScaler(lo, hi),
		Targets:  NewScaler(lo, hi),
	}
}

// Fit fits both scalers.
func (n *Normalizer) Fit(features, targets mat.Matrix) error {
	if err := n.Features.Fit(features); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := n.Targets.Fit(targets); err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	return nil
}

// Fitted reports whether both scalers are fitted.
func (n *Normalizer) Fitted() bool {
	return n.Features.Fitted() && n.Targets.Fitted()
}

// NormalizeFeatures scales feature rows into the configured range.
func (n *Normalizer) NormalizeFeatures(m mat.Matrix) (*mat.Dense, error) {
	return n.Features.Transform(m)
}

// NormalizeTargets scales target rows with the target scaler.
func (n *Normalizer) NormalizeTargets(m mat.Matrix) (*mat.Dense, error) {
	return n.Targets.Transform(m)
}

// DenormalizeFeatures undoes NormalizeFeatures.
func (n *Normalizer) DenormalizeFeatures(m mat.Matrix) (*mat.Dense, error) {
	return n.Features.InverseTransform(m)
}

// DenormalizeTargets maps model outputs back to physical units.
func (n *Normalizer) DenormalizeTargets(m mat.Matrix) (*mat.Dense, error) {
	return n.Targets.InverseTransform(m)
}

// Encode writes the normalizer with gob.
func (n *Normalizer) Encode(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(n); err != nil {
		return fmt.Errorf("failed to encode normalizer: %w", err)
	}
	return nil
}

// Decode reads a normalizer written by Encode.
func Decode(r io.Reader) (*Normalizer, error) {
	var n Normalizer
	if err := gob.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to decode normalizer: %w", err)
	}
	if n.Features == nil || n.Targets == nil {
		return nil, fmt.Errorf("failed to decode normalizer: %w", ErrNotFitted)
	}
	return &n, nil
}

// Save writes the normalizer to filename.
func (n *Normalizer) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return n.Encode(file)
}

// Load reads a normalizer from filename.
func Load(filename string) (*Normalizer, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}
