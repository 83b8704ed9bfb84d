package model

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/tinkerbell/internal/loss"
	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
)

// Variant selects how samples are windowed.
type Variant string

const (
	// Pointwise feeds one delta row per step and carries state across the series.
	Pointwise Variant = "pointwise"
	// Windowed feeds sliding windows and predicts a shifted window.
	Windowed Variant = "windowed"
)

// Cell selects the recurrent layer.
type Cell string

const (
	CellLSTM Cell = "lstm"
	CellGRU  Cell = "gru"
)

// Learning rate schedules.
const (
	ScheduleNone    = ""
	ScheduleExp     = "exp"
	ScheduleStep    = "step"
	SchedulePlateau = "plateau"
)

// Options configure model construction and training.
type Options struct {
	Neurons   int
	BatchSize int
	Epochs    int
	Cell      Cell
	// Dropout is the drop rate applied to the recurrent outputs while
	// training; 0 disables it.
	Dropout float64

	LearningRate float64
	// ClipNorm bounds the global gradient norm; 0 disables clipping.
	ClipNorm float64
	// Loss is "MSE" or "Huber".
	Loss       string
	HuberDelta float64
	Seed       int64

	// Patience enables early stopping after that many epochs without improvement.
	Patience int
	// Schedule picks the learning rate schedule: exp decays by LRDecay every
	// epoch, step every LRStep epochs, plateau after LRStep epochs without
	// improvement (never below MinLR).
	Schedule string
	LRDecay  float64
	LRStep   int
	MinLR    float64

	// Checkpoint, when set, is a network file (readable with net.Load)
	// rewritten whenever the epoch loss improves. It holds no normalizer.
	Checkpoint string

	LogInterval int
	Logger      *zap.Logger
}

// DefaultOptions are Adam at 1e-3 with MSE loss and a batch size of 1.
func DefaultOptions() Options {
	return Options{
		Neurons:      10,
		BatchSize:    1,
		Epochs:       100,
		Cell:         CellLSTM,
		LearningRate: 0.001,
		Loss:         "MSE",
		Seed:         42,
		LogInterval:  10,
	}
}

// Validate checks the options that have no usable zero value.
func (o Options) Validate() error {
	switch {
	case o.Neurons < 1:
		return fmt.Errorf("%w: neurons %d", ErrInvalidOptions, o.Neurons)
	case o.BatchSize < 1:
		return fmt.Errorf("%w: batch size %d", ErrInvalidOptions, o.BatchSize)
	case o.Epochs < 0:
		return fmt.Errorf("%w: epochs %d", ErrInvalidOptions, o.Epochs)
	case o.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate %g", ErrInvalidOptions, o.LearningRate)
	case o.Dropout < 0 || o.Dropout >= 1:
		return fmt.Errorf("%w: dropout %g", ErrInvalidOptions, o.Dropout)
	case o.Cell != CellLSTM && o.Cell != CellGRU:
		return fmt.Errorf("%w: cell %q", ErrInvalidOptions, o.Cell)
	case o.Loss != loss.Name(loss.MSE{}) && o.Loss != loss.Name(&loss.Huber{}):
		return fmt.Errorf("%w: loss %q", ErrInvalidOptions, o.Loss)
	}

	switch o.Schedule {
	case ScheduleNone:
		return nil
	case ScheduleExp, ScheduleStep, SchedulePlateau:
	default:
		return fmt.Errorf("%w: schedule %q", ErrInvalidOptions, o.Schedule)
	}
	if o.LRDecay <= 0 || o.LRDecay >= 1 {
		return fmt.Errorf("%w: lr decay %g not in (0, 1)", ErrInvalidOptions, o.LRDecay)
	}
	if o.Schedule != ScheduleExp && o.LRStep < 1 {
		return fmt.Errorf("%w: lr step %d", ErrInvalidOptions, o.LRStep)
	}
	return nil
}

// scheduler builds the configured schedule over optimizer, nil for none.
func (o Options) scheduler(optimizer opt.Optimizer) opt.Scheduler {
	switch o.Schedule {
	case ScheduleExp:
		return opt.NewExponentialLR(optimizer, o.LRDecay)
	case ScheduleStep:
		return opt.NewStepLR(optimizer, o.LRStep, o.LRDecay)
	case SchedulePlateau:
		return opt.NewReduceLROnPlateau(optimizer, o.LRDecay, o.LRStep, 0, o.MinLR)
	}
	return nil
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
