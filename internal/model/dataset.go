package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

// Prepare turns curves into one training dataset. An unfitted normalizer is
// fitted once on the stacked feature and target matrices of all curves;
// every curve is then normalized with it and windowed on its own, so no
// sample spans two curves. A zero spec selects the pointwise variant.
func Prepare(curves []*series.Features, norm *normalize.Normalizer, spec window.Spec) (window.Dataset, error) {
	if len(curves) == 0 {
		return window.Dataset{}, series.ErrTooShort
	}

	features := make([]*mat.Dense, len(curves))
	targets := make([]*mat.Dense, len(curves))
	for i, c := range curves {
		features[i] = series.FeatureMatrix(c)
		targets[i] = series.TargetMatrix(c)
	}

	if !norm.Fitted() {
		allFeatures, err := series.Stack(features...)
		if err != nil {
			return window.Dataset{}, err
		}
		allTargets, err := series.Stack(targets...)
		if err != nil {
			return window.Dataset{}, err
		}
		if err := norm.Fit(allFeatures, allTargets); err != nil {
			return window.Dataset{}, err
		}
	}

	var ds window.Dataset
	for i := range curves {
		f, err := norm.NormalizeFeatures(features[i])
		if err != nil {
			return window.Dataset{}, err
		}
		t, err := norm.NormalizeTargets(targets[i])
		if err != nil {
			return window.Dataset{}, err
		}

		var part window.Dataset
		if spec == (window.Spec{}) {
			part, err = window.Pointwise(f, t)
		} else {
			part, err = window.Sliding(f, t, spec)
		}
		if err != nil {
			return window.Dataset{}, fmt.Errorf("curve %d: %w", i, err)
		}
		if ds, err = ds.Append(part); err != nil {
			return window.Dataset{}, err
		}
	}
	return ds, nil
}

// Fit prepares curves, fitting norm when needed, then builds and trains the
// model for spec: pointwise for the zero Spec, windowed otherwise.
func Fit(curves []*series.Features, norm *normalize.Normalizer, spec window.Spec, opts Options) (*Model, error) {
	ds, err := Prepare(curves, norm, spec)
	if err != nil {
		return nil, err
	}
	if spec != (window.Spec{}) {
		return NewWindowed(ds, opts)
	}

	features := make([]*mat.Dense, len(curves))
	labels := make([]*mat.Dense, len(curves))
	for i, c := range curves {
		if features[i], err = norm.NormalizeFeatures(series.FeatureMatrix(c)); err != nil {
			return nil, err
		}
		if labels[i], err = norm.NormalizeTargets(series.TargetMatrix(c)); err != nil {
			return nil, err
		}
	}
	allFeatures, err := series.Stack(features...)
	if err != nil {
		return nil, err
	}
	allLabels, err := series.Stack(labels...)
	if err != nil {
		return nil, err
	}
	return LSTM(allFeatures, allLabels, opts)
}
