package model

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

// ErrHorizon is returned for a negative horizon or control inputs that do
// not cover it.
var ErrHorizon = errors.New("model: inputs do not cover the forecast horizon")

// Predict rolls a forecast of horizon production levels past history.
//
// stage (and time, when not nil) must hold len(history)+horizon values: the
// known past followed by the planned future. At every step the deltas are
// re-derived from the buffer of known and forecast levels, the network
// predicts the next dp/dt and the level is integrated over that step's
// time spacing.
func (m *Model) Predict(norm *normalize.Normalizer, history, stage, time []float64, horizon int) ([]float64, error) {
	if norm == nil || !norm.Fitted() {
		return nil, normalize.ErrNotFitted
	}
	n := len(history)
	if horizon < 0 {
		return nil, fmt.Errorf("%w: horizon %d", ErrHorizon, horizon)
	}
	if len(stage) < n+horizon {
		return nil, fmt.Errorf("%w: %d stage values for %d levels", ErrHorizon, len(stage), n+horizon)
	}
	if time != nil && len(time) < n+horizon {
		return nil, fmt.Errorf("%w: %d timestamps for %d levels", ErrHorizon, len(time), n+horizon)
	}
	if n < 2 {
		return nil, series.ErrTooShort
	}

	var next func(buf []float64) (float64, error)
	switch m.Variant {
	case Pointwise:
		if err := m.warm(norm, history, stage, time); err != nil {
			return nil, err
		}
		next = func(buf []float64) (float64, error) { return m.nextPointwise(norm, buf, stage, time) }
	case Windowed:
		next = func(buf []float64) (float64, error) { return m.nextWindowed(norm, buf, stage, time) }
	default:
		return nil, fmt.Errorf("%w: %q", ErrVariant, m.Variant)
	}

	buf := make([]float64, n, n+horizon)
	copy(buf, history)
	for step := 0; step < horizon; step++ {
		dpdt, err := next(buf)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		k := len(buf)
		buf = append(buf, buf[k-1]+dpdt*spacing(time, k))
	}
	m.logger.Debug("forecast", zap.Int("history", n), zap.Int("horizon", horizon))
	return buf[n:], nil
}

// spacing is the time between level k-1 and level k.
func spacing(time []float64, k int) float64 {
	if time == nil {
		return 1
	}
	return time[k] - time[k-1]
}

func prefix(x []float64, n int) []float64 {
	if x == nil {
		return nil
	}
	return x[:n]
}

// features re-derives the deltas of the first len(buf) levels.
func features(buf, stage, time []float64) (*series.Features, error) {
	return series.NewFeatures(buf, prefix(stage, len(buf)), prefix(time, len(buf)))
}

func (m *Model) output(norm *normalize.Normalizer, out [][]float64, pos int) (float64, error) {
	return norm.Targets.InverseValue(series.ColDProductionDt, out[pos][0])
}

// warm clears the state and replays the history one delta row at a time.
func (m *Model) warm(norm *normalize.Normalizer, history, stage, time []float64) error {
	m.net.ResetStates()
	f, err := features(history, stage, time)
	if err != nil {
		return err
	}
	rows, err := norm.NormalizeFeatures(series.FeatureMatrix(f))
	if err != nil {
		return err
	}
	for _, row := range denseRows(rows) {
		m.net.Predict([][]float64{row})
	}
	return nil
}

func (m *Model) nextPointwise(norm *normalize.Normalizer, buf, stage, time []float64) (float64, error) {
	f, err := features(buf, stage, time)
	if err != nil {
		return 0, err
	}
	row, err := norm.Features.TransformRow(f.NextRow(stage[len(buf)]))
	if err != nil {
		return 0, err
	}
	return m.output(norm, m.net.Predict([][]float64{row}), 0)
}

// nextWindowed replays every window of the re-derived delta rows from a
// cleared state and reads the prediction for the delta after the last one.
func (m *Model) nextWindowed(norm *normalize.Normalizer, buf, stage, time []float64) (float64, error) {
	f, err := features(buf, stage, time)
	if err != nil {
		return 0, err
	}
	scaled, err := norm.NormalizeFeatures(series.FeatureMatrix(f))
	if err != nil {
		return 0, err
	}
	rows := denseRows(scaled)

	m.net.ResetStates()
	defer m.net.ResetStates()

	width := m.Window.Width
	var out [][]float64
	if len(rows) < width {
		win, err := window.Last(rows, width)
		if err != nil {
			return 0, err
		}
		out = m.net.Predict(win)
	} else {
		for i := 0; i+width <= len(rows); i++ {
			out = m.net.Predict(rows[i : i+width])
		}
	}
	return m.output(norm, out, m.Window.Position())
}

func denseRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(make([]float64, c), i, m)
	}
	return rows
}
