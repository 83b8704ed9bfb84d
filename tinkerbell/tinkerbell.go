// Package tinkerbell re-exports the forecasting API for use outside this
// module.
package tinkerbell

import (
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/tinkerbell/internal/model"
	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
	"github.com/FlavioCFOliveira/tinkerbell/internal/synth"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

// Re-export common types for easier access
type (
	Model      = model.Model
	Options    = model.Options
	Metrics    = model.Metrics
	Features   = series.Features
	Normalizer = normalize.Normalizer
	Spec       = window.Spec
	Dataset    = window.Dataset
	Decline    = synth.Decline
	Grid       = synth.Grid
	Curve      = synth.Curve
)

const (
	Pointwise = model.Pointwise
	Windowed  = model.Windowed
	LSTMCell  = model.CellLSTM
	GRUCell   = model.CellGRU
)

// Options
func DefaultOptions() Options { return model.DefaultOptions() }

// Features
func NewFeatures(production, stage, time []float64) (*Features, error) {
	return series.NewFeatures(production, stage, time)
}

func FeatureMatrix(f *Features) *mat.Dense { return series.FeatureMatrix(f) }
func TargetMatrix(f *Features) *mat.Dense  { return series.TargetMatrix(f) }

// Normalization
func NewNormalizer(lo, hi float64) *Normalizer { return normalize.New(lo, hi) }

// Models
func Prepare(curves []*Features, norm *Normalizer, spec Spec) (Dataset, error) {
	return model.Prepare(curves, norm, spec)
}

func Fit(curves []*Features, norm *Normalizer, spec Spec, opts Options) (*Model, error) {
	return model.Fit(curves, norm, spec, opts)
}

func LSTM(features, labels *mat.Dense, opts Options) (*Model, error) {
	return model.LSTM(features, labels, opts)
}

func WindowedModel(ds Dataset, opts Options) (*Model, error) {
	return model.NewWindowed(ds, opts)
}

func Score(forecast, actual []float64) (Metrics, error) { return model.Score(forecast, actual) }

// Persistence
func Save(dir string, m *Model, norm *Normalizer) error { return model.Save(dir, m, norm) }

func Load(dir string, opts Options) (*Model, *Normalizer, error) {
	m, norm, _, err := model.Load(dir, opts)
	return m, norm, err
}

// Synthetic data
func DefaultDecline() Decline { return synth.DefaultDecline() }

func Realizations(base Decline, g Grid) ([]*Curve, error) { return synth.Realizations(base, g) }
