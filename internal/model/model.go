// Package model builds, trains and rolls forward the stateful recurrent
// forecasting models.
package model

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/tinkerbell/internal/activations"
	"github.com/FlavioCFOliveira/tinkerbell/internal/layer"
	"github.com/FlavioCFOliveira/tinkerbell/internal/loss"
	"github.com/FlavioCFOliveira/tinkerbell/internal/net"
	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

var (
	ErrInvalidOptions = errors.New("model: invalid options")
	ErrVariant        = errors.New("model: dataset does not match model variant")
)

// Model is a recurrent network plus the geometry it was trained on.
type Model struct {
	Variant Variant
	// Window is the zero Spec for pointwise models.
	Window window.Spec

	net     *net.Sequential
	opts    Options
	logger  *zap.Logger
	history *net.History
}

func build(variant Variant, features int, spec window.Spec, opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if features < 1 {
		return nil, fmt.Errorf("%w: %d input features", ErrInvalidOptions, features)
	}

	recurrentOpts := []layer.Option{
		layer.WithSeed(opts.Seed),
		layer.WithStateful(opts.BatchSize),
		layer.WithReturnSequences(variant == Windowed),
	}
	var recurrent layer.Layer
	if opts.Cell == CellGRU {
		recurrent = layer.NewGRU(features, opts.Neurons, recurrentOpts...)
	} else {
		recurrent = layer.NewLSTM(features, opts.Neurons, recurrentOpts...)
	}
	layers := []layer.Layer{recurrent}
	if opts.Dropout > 0 {
		layers = append(layers, layer.NewDropout(opts.Dropout, opts.Neurons, layer.WithSeed(opts.Seed+2)))
	}
	layers = append(layers, layer.NewDense(opts.Neurons, 1, activations.Linear{}, layer.WithSeed(opts.Seed+1)))

	seq := net.NewSequential(layers...)
	seq.Compile(opt.NewAdam(opts.LearningRate), loss.ByName(opts.Loss, opts.HuberDelta))
	seq.SetClipNorm(opts.ClipNorm)

	logger := opts.logger().With(zap.String("variant", string(variant)), zap.String("cell", string(opts.Cell)))
	seq.SetLogger(logger)

	return &Model{
		Variant: variant,
		Window:  spec,
		net:     seq,
		opts:    opts,
		logger:  logger,
	}, nil
}

// LSTM builds the pointwise stateful model, a recurrent layer of
// opts.Neurons units followed by Dense(1), and trains it on column 0 of
// labels. Each feature row is one single-step sample.
func LSTM(features, labels *mat.Dense, opts Options) (*Model, error) {
	ds, err := window.Pointwise(features, labels)
	if err != nil {
		return nil, err
	}
	m, err := build(Pointwise, ds.Features(), window.Spec{}, opts)
	if err != nil {
		return nil, err
	}
	m.logger.Info("pointwise model", zap.Int("neurons", opts.Neurons), zap.Int("samples", ds.Len()))
	if _, err := m.Train(ds, opts.Epochs, opts.BatchSize); err != nil {
		return nil, err
	}
	return m, nil
}

// NewWindowed builds the sliding-window model, a recurrent layer returning
// sequences with a per-step Dense(1), and trains it on ds.
func NewWindowed(ds window.Dataset, opts Options) (*Model, error) {
	spec := window.Spec{Width: ds.Width, Offset: ds.Offset}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVariant, err)
	}
	m, err := build(Windowed, ds.Features(), spec, opts)
	if err != nil {
		return nil, err
	}
	m.logger.Info("windowed model",
		zap.Int("neurons", opts.Neurons),
		zap.Int("width", spec.Width),
		zap.Int("offset", spec.Offset),
		zap.Int("samples", ds.Len()))
	if _, err := m.Train(ds, opts.Epochs, opts.BatchSize); err != nil {
		return nil, err
	}
	return m, nil
}

// Network exposes the underlying network.
func (m *Model) Network() *net.Sequential {
	return m.net
}

// History is the loss history of the last Train call, nil before training.
func (m *Model) History() *net.History {
	return m.history
}

// Options returns the options the model was built with.
func (m *Model) Options() Options {
	return m.opts
}

func (m *Model) checkDataset(ds window.Dataset) error {
	switch m.Variant {
	case Pointwise:
		if ds.Width != 1 || ds.Offset != 0 {
			return fmt.Errorf("%w: pointwise model, width %d offset %d", ErrVariant, ds.Width, ds.Offset)
		}
	case Windowed:
		if ds.Width != m.Window.Width || ds.Offset != m.Window.Offset {
			return fmt.Errorf("%w: model window %+v, dataset width %d offset %d", ErrVariant, m.Window, ds.Width, ds.Offset)
		}
	}
	return nil
}

// Train runs epochs single-epoch fits over ds in order, without shuffling,
// and clears recurrent state after every epoch.
func (m *Model) Train(ds window.Dataset, epochs, batchSize int) (*net.History, error) {
	if err := m.checkDataset(ds); err != nil {
		return nil, err
	}

	callbacks := []net.Callback{
		net.Logger{Interval: m.opts.LogInterval, Epochs: epochs, Log: m.logger},
	}
	if m.opts.Patience > 0 {
		callbacks = append(callbacks, net.NewEarlyStopping(m.opts.Patience, 0, m.logger))
	}
	if s := m.opts.scheduler(m.net.Optimizer()); s != nil {
		callbacks = append(callbacks, net.NewSchedulerCallback(s))
	}
	if m.opts.Checkpoint != "" {
		callbacks = append(callbacks, net.NewModelCheckpoint(m.opts.Checkpoint, m.logger))
	}

	history, err := m.net.Fit(ds.Inputs(), ds.Targets(), net.FitOptions{
		Epochs:         epochs,
		BatchSize:      batchSize,
		ResetEachEpoch: true,
		Callbacks:      callbacks,
	})
	m.history = history
	if err != nil {
		return history, fmt.Errorf("training failed: %w", err)
	}
	if n := len(history.Loss); n > 0 {
		m.logger.Info("training complete", zap.Int("epochs", n), zap.Float64("loss", history.Loss[n-1]))
	}
	return history, nil
}

// Evaluate returns the mean loss over ds, replaying it in order from a
// cleared state.
func (m *Model) Evaluate(ds window.Dataset) (float64, error) {
	if err := m.checkDataset(ds); err != nil {
		return 0, err
	}
	m.net.ResetStates()
	defer m.net.ResetStates()
	return m.net.Evaluate(ds.Inputs(), ds.Targets()), nil
}
