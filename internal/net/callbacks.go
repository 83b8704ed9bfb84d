package net

import (
	"math"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
)

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(n *Network)
	OnTrainEnd(n *Network)
	OnEpochBegin(epoch int, n *Network)
	OnEpochEnd(epoch int, loss float64, n *Network)
}

// Stopper is implemented by callbacks that can end training early.
type Stopper interface {
	ShouldStop() bool
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(n *Network)                        {}
func (c BaseCallback) OnTrainEnd(n *Network)                          {}
func (c BaseCallback) OnEpochBegin(epoch int, n *Network)             {}
func (c BaseCallback) OnEpochEnd(epoch int, loss float64, n *Network) {}

// SchedulerCallback is a callback that wraps a learning rate scheduler.
type SchedulerCallback struct {
	BaseCallback
	scheduler opt.Scheduler
}

// NewSchedulerCallback steps scheduler at the end of every epoch.
func NewSchedulerCallback(scheduler opt.Scheduler) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler}
}

func (c *SchedulerCallback) OnEpochEnd(epoch int, loss float64, n *Network) {
	c.scheduler.Step()
	c.scheduler.StepWithLoss(loss)
}

// EarlyStopping stops training when the epoch loss has stopped improving.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
	logger       *zap.Logger
}

// NewEarlyStopping stops after patience epochs whose loss does not beat the
// best by more than threshold.
func NewEarlyStopping(patience int, threshold float64, logger *zap.Logger) *EarlyStopping {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.MaxFloat64,
		logger:    logger,
	}
}

func (c *EarlyStopping) OnEpochEnd(epoch int, loss float64, n *Network) {
	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if c.numBadEpochs >= c.Patience {
		c.logger.Info("early stopping",
			zap.Int("epoch", epoch),
			zap.Float64("loss", loss),
			zap.Int("patience", c.Patience))
		c.Stopped = true
	}
}

func (c *EarlyStopping) ShouldStop() bool { return c.Stopped }

// ModelCheckpoint saves the network after every epoch that improves the loss.
type ModelCheckpoint struct {
	BaseCallback
	Filename string

	bestLoss float64
	logger   *zap.Logger
}

// NewModelCheckpoint saves the network alone to filename; it is readable
// with Load.
func NewModelCheckpoint(filename string, logger *zap.Logger) *ModelCheckpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCheckpoint{
		Filename: filename,
		bestLoss: math.MaxFloat64,
		logger:   logger,
	}
}

func (c *ModelCheckpoint) OnEpochEnd(epoch int, loss float64, n *Network) {
	if loss >= c.bestLoss {
		return
	}
	c.bestLoss = loss
	if err := n.Save(c.Filename); err != nil {
		c.logger.Error("checkpoint failed", zap.String("file", c.Filename), zap.Error(err))
		return
	}
	c.logger.Debug("checkpoint saved", zap.String("file", c.Filename), zap.Float64("loss", loss))
}

// Logger logs training progress every Interval epochs.
type Logger struct {
	BaseCallback
	Interval int
	Epochs   int
	Log      *zap.Logger
}

func (c Logger) OnEpochEnd(epoch int, loss float64, n *Network) {
	if c.Log == nil || c.Interval <= 0 {
		return
	}
	last := c.Epochs > 0 && epoch == c.Epochs-1
	if epoch%c.Interval != 0 && !last {
		return
	}
	fields := []zap.Field{zap.Int("epoch", epoch), zap.Float64("loss", loss)}
	if c.Epochs > 0 {
		fields = append(fields, zap.Float64("complete_pct", 100*float64(epoch+1)/float64(c.Epochs)))
	}
	c.Log.Info("training", fields...)
}

// History records the loss of every epoch.
type History struct {
	BaseCallback
	Loss []float64
}

func (h *History) OnEpochEnd(epoch int, loss float64, n *Network) {
	h.Loss = append(h.Loss, loss)
}
