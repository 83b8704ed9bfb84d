package model

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/tinkerbell/internal/net"
	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

// decline returns n levels of a base-2 decline that restarts at step disc,
// where the stage switches from 0 to 1.
func decline(n, disc int) (production, stage []float64) {
	production = make([]float64, n)
	stage = make([]float64, n)
	for k := range production {
		x := float64(k)
		if k >= disc {
			x = float64(k - disc)
			stage[k] = 1
		}
		production[k] = 100 * math.Pow(2, -0.1*x)
	}
	return production, stage
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Neurons = 4
	opts.Epochs = 3
	opts.LearningRate = 0.01
	opts.Logger = zap.NewNop()
	return opts
}

func curve(t *testing.T, n, disc int) *series.Features {
	t.Helper()
	p, s := decline(n, disc)
	f, err := series.NewFeatures(p, s, nil)
	require.NoError(t, err)
	return f
}

func pointwiseModel(t *testing.T) (*Model, *normalize.Normalizer) {
	t.Helper()
	norm := normalize.New(0, 1)
	ds, err := Prepare([]*series.Features{curve(t, 30, 15)}, norm, window.Spec{})
	require.NoError(t, err)

	features, err := norm.NormalizeFeatures(series.FeatureMatrix(curve(t, 30, 15)))
	require.NoError(t, err)
	labels, err := norm.NormalizeTargets(series.TargetMatrix(curve(t, 30, 15)))
	require.NoError(t, err)
	require.Equal(t, 29, ds.Len())

	m, err := LSTM(features, labels, testOptions())
	require.NoError(t, err)
	return m, norm
}

func TestPrepareCounts(t *testing.T) {
	curves := []*series.Features{curve(t, 20, 10), curve(t, 25, 12), curve(t, 12, 6)}

	norm := normalize.New(0, 1)
	ds, err := Prepare(curves, norm, window.Spec{})
	require.NoError(t, err)
	assert.True(t, norm.Fitted())
	assert.Equal(t, 19+24+11, ds.Len())

	spec := window.Spec{Width: 4, Offset: 2}
	ds, err = Prepare(curves, norm, spec)
	require.NoError(t, err)
	assert.Equal(t, (20-6)+(25-6)+(12-6), ds.Len())
	assert.Equal(t, 4, ds.Width)

	_, err = Prepare([]*series.Features{curve(t, 5, 2)}, norm, window.Spec{Width: 4, Offset: 2})
	assert.ErrorIs(t, err, window.ErrTooShort)
}

func TestPrepareFitsOnce(t *testing.T) {
	norm := normalize.New(0, 1)
	_, err := Prepare([]*series.Features{curve(t, 20, 10)}, norm, window.Spec{})
	require.NoError(t, err)
	before := append([]float64(nil), norm.Features.DataMax...)

	p, s := decline(20, 10)
	for i := range p {
		p[i] *= 10
	}
	bigger, err := series.NewFeatures(p, s, nil)
	require.NoError(t, err)
	_, err = Prepare([]*series.Features{bigger}, norm, window.Spec{})
	require.NoError(t, err)
	assert.Equal(t, before, norm.Features.DataMax)
}

func TestPointwiseForecastLength(t *testing.T) {
	m, norm := pointwiseModel(t)
	p, s := decline(40, 15)

	for _, horizon := range []int{0, 1, 10} {
		out, err := m.Predict(norm, p[:30], s[:30+horizon], nil, horizon)
		require.NoError(t, err)
		assert.Len(t, out, horizon)
		for _, v := range out {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestPointwiseForecastIsRepeatable(t *testing.T) {
	m, norm := pointwiseModel(t)
	p, s := decline(40, 15)

	a, err := m.Predict(norm, p[:30], s, nil, 10)
	require.NoError(t, err)
	b, err := m.Predict(norm, p[:30], s, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecastUsesTimeSpacing(t *testing.T) {
	m, norm := pointwiseModel(t)
	p, s := decline(40, 15)

	unit := make([]float64, 40)
	double := make([]float64, 40)
	for i := range unit {
		unit[i] = float64(i)
		double[i] = float64(i)
	}
	// the first forecast step spans twice the time
	for i := 30; i < 40; i++ {
		double[i] = float64(i + 1)
	}

	a, err := m.Predict(norm, p[:30], s, unit, 1)
	require.NoError(t, err)
	b, err := m.Predict(norm, p[:30], s, double, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2*(a[0]-p[29]), b[0]-p[29], 1e-9)
}

func TestWindowedForecast(t *testing.T) {
	curves := []*series.Features{curve(t, 30, 15), curve(t, 30, 10)}
	norm := normalize.New(0, 1)
	spec := window.Spec{Width: 4, Offset: 1}
	ds, err := Prepare(curves, norm, spec)
	require.NoError(t, err)

	m, err := NewWindowed(ds, testOptions())
	require.NoError(t, err)
	assert.Equal(t, Windowed, m.Variant)
	assert.Equal(t, spec, m.Window)

	p, s := decline(40, 15)
	out, err := m.Predict(norm, p[:25], s, nil, 8)
	require.NoError(t, err)
	assert.Len(t, out, 8)

	// fewer delta rows than the window width
	out, err = m.Predict(norm, p[:3], s, nil, 5)
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestTrainReducesLoss(t *testing.T) {
	norm := normalize.New(0, 1)
	ds, err := Prepare([]*series.Features{curve(t, 30, 15)}, norm, window.Spec{})
	require.NoError(t, err)

	opts := testOptions()
	opts.Epochs = 0
	features, err := norm.NormalizeFeatures(series.FeatureMatrix(curve(t, 30, 15)))
	require.NoError(t, err)
	labels, err := norm.NormalizeTargets(series.TargetMatrix(curve(t, 30, 15)))
	require.NoError(t, err)
	m, err := LSTM(features, labels, opts)
	require.NoError(t, err)

	history, err := m.Train(ds, 40, 1)
	require.NoError(t, err)
	require.Len(t, history.Loss, 40)
	assert.Less(t, history.Loss[39], history.Loss[0])

	loss, err := m.Evaluate(ds)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(loss))
}

func TestGRUCell(t *testing.T) {
	norm := normalize.New(0, 1)
	ds, err := Prepare([]*series.Features{curve(t, 20, 10)}, norm, window.Spec{Width: 3, Offset: 3})
	require.NoError(t, err)

	opts := testOptions()
	opts.Cell = CellGRU
	opts.BatchSize = 2
	opts.Dropout = 0.2
	m, err := NewWindowed(ds, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Network().BatchSize())
	assert.Len(t, m.Network().Layers(), 3)

	p, s := decline(30, 10)
	out, err := m.Predict(norm, p[:20], s, nil, 4)
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestErrors(t *testing.T) {
	m, norm := pointwiseModel(t)
	p, s := decline(40, 15)

	_, err := m.Predict(norm, p[:30], s, nil, -1)
	assert.ErrorIs(t, err, ErrHorizon)
	_, err = m.Predict(norm, p[:30], s[:32], nil, 5)
	assert.ErrorIs(t, err, ErrHorizon)
	_, err = m.Predict(norm, p[:30], s, make([]float64, 31), 5)
	assert.ErrorIs(t, err, ErrHorizon)
	_, err = m.Predict(normalize.New(0, 1), p[:30], s, nil, 5)
	assert.ErrorIs(t, err, normalize.ErrNotFitted)
	_, err = m.Predict(norm, p[:1], s, nil, 5)
	assert.ErrorIs(t, err, series.ErrTooShort)

	sliding, err := Prepare([]*series.Features{curve(t, 20, 10)}, norm, window.Spec{Width: 3, Offset: 1})
	require.NoError(t, err)
	_, err = m.Train(sliding, 1, 1)
	assert.ErrorIs(t, err, ErrVariant)

	pointwise, err := Prepare([]*series.Features{curve(t, 20, 10)}, norm, window.Spec{})
	require.NoError(t, err)
	_, err = NewWindowed(pointwise, testOptions())
	assert.ErrorIs(t, err, ErrVariant)

	bad := testOptions()
	bad.Neurons = 0
	_, err = NewWindowed(sliding, bad)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	bad = testOptions()
	bad.Cell = "rnn"
	_, err = NewWindowed(sliding, bad)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestSaveLoad(t *testing.T) {
	m, norm := pointwiseModel(t)
	p, s := decline(40, 15)
	want, err := m.Predict(norm, p[:30], s, nil, 10)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "pair")
	require.NoError(t, Save(dir, m, norm))

	loaded, loadedNorm, meta, err := Load(dir, Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, Pointwise, meta.Variant)
	assert.Equal(t, 4, meta.Neurons)
	assert.Len(t, meta.Loss, 3)
	assert.Equal(t, CellLSTM, loaded.Options().Cell)

	got, err := loaded.Predict(loadedNorm, p[:30], s, nil, 10)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)

	_, _, _, err = Load(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	got, err := Score([]float64{1, 2, 3}, []float64{1, 4, 0})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(13.0/3), got.RMSE, 1e-12)
	assert.InDelta(t, 5.0/3, got.MAE, 1e-12)
	assert.InDelta(t, 1.0/3, got.Bias, 1e-12)

	_, err = Score([]float64{1}, nil)
	assert.Error(t, err)
}

func TestFitDispatchesOnSpec(t *testing.T) {
	curves := []*series.Features{curve(t, 20, 10), curve(t, 20, 8)}

	m, err := Fit(curves, normalize.New(0, 1), window.Spec{}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, Pointwise, m.Variant)
	require.NotNil(t, m.History())
	assert.Len(t, m.History().Loss, 3)

	m, err = Fit(curves, normalize.New(-1, 1), window.Spec{Width: 3, Offset: 2}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, Windowed, m.Variant)
	assert.Equal(t, 3, m.Window.Width)
}

// trainedPointwise fits a fresh normalizer on one curve and builds the
// pointwise model from it with opts.
func trainedPointwise(t *testing.T, opts Options) (*Model, error) {
	t.Helper()
	f := curve(t, 30, 15)
	norm := normalize.New(0, 1)
	require.NoError(t, norm.Fit(series.FeatureMatrix(f), series.TargetMatrix(f)))
	features, err := norm.NormalizeFeatures(series.FeatureMatrix(f))
	require.NoError(t, err)
	labels, err := norm.NormalizeTargets(series.TargetMatrix(f))
	require.NoError(t, err)
	return LSTM(features, labels, opts)
}

func TestScheduleLowersLearningRate(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		step     int
		epochs   int
		want     float64
	}{
		{"exp", ScheduleExp, 0, 3, 0.01 * 0.125},
		{"step", ScheduleStep, 2, 4, 0.01 * 0.25},
		{"none", ScheduleNone, 0, 3, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Schedule = tt.schedule
			opts.LRDecay = 0.5
			opts.LRStep = tt.step
			opts.Epochs = tt.epochs
			m, err := trainedPointwise(t, opts)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, m.Network().Optimizer().LearningRate(), 1e-12)
		})
	}
}

func TestPlateauSchedule(t *testing.T) {
	opts := testOptions()
	opts.Schedule = SchedulePlateau
	opts.LRDecay = 0.5
	opts.LRStep = 1
	opts.MinLR = 0.004
	require.NoError(t, opts.Validate())

	optimizer := opt.NewAdam(0.01)
	s := opts.scheduler(optimizer)
	require.IsType(t, &opt.ReduceLROnPlateau{}, s)

	s.StepWithLoss(1)
	assert.InDelta(t, 0.01, optimizer.LearningRate(), 1e-12)
	s.StepWithLoss(1)
	assert.InDelta(t, 0.005, optimizer.LearningRate(), 1e-12)
	s.StepWithLoss(1)
	assert.InDelta(t, 0.004, optimizer.LearningRate(), 1e-12)
}

func TestCheckpointWritesNetwork(t *testing.T) {
	opts := testOptions()
	opts.Checkpoint = filepath.Join(t.TempDir(), "best.gob")
	m, err := trainedPointwise(t, opts)
	require.NoError(t, err)

	require.FileExists(t, opts.Checkpoint)
	saved, err := net.Load(opts.Checkpoint)
	require.NoError(t, err)
	assert.Len(t, saved.Params(), len(m.Network().Params()))
	assert.True(t, saved.Stateful())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"lower-case loss", func(o *Options) { o.Loss = "huber" }},
		{"unknown loss", func(o *Options) { o.Loss = "mae" }},
		{"empty loss", func(o *Options) { o.Loss = "" }},
		{"unknown schedule", func(o *Options) { o.Schedule = "cosine" }},
		{"decay out of range", func(o *Options) { o.Schedule = ScheduleExp; o.LRDecay = 1 }},
		{"step without interval", func(o *Options) { o.Schedule = ScheduleStep; o.LRDecay = 0.5 }},
		{"plateau without patience", func(o *Options) { o.Schedule = SchedulePlateau; o.LRDecay = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
			_, err := trainedPointwise(t, opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}

	opts := testOptions()
	opts.Loss = "Huber"
	opts.HuberDelta = 0.5
	assert.NoError(t, opts.Validate())
}
