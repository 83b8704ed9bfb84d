package net

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/tinkerbell/internal/layer"
	"github.com/FlavioCFOliveira/tinkerbell/internal/loss"
	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
)

// Sequential is a high-level wrapper around Network with a Keras-like API.
type Sequential struct {
	*Network
	logger *zap.Logger
}

// NewSequential creates a new Sequential model.
func NewSequential(layers ...layer.Layer) *Sequential {
	return &Sequential{
		Network: &Network{layers: layers},
		logger:  zap.NewNop(),
	}
}

// Wrap turns a decoded Network back into a Sequential.
func Wrap(n *Network) *Sequential {
	return &Sequential{Network: n, logger: zap.NewNop()}
}

// SetLogger sets the logger used for training diagnostics.
func (s *Sequential) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.logger = logger
}

// Compile configures the model for training.
func (s *Sequential) Compile(optimizer opt.Optimizer, lossFn loss.Loss) {
	s.opt = optimizer
	s.loss = lossFn
}

// FitOptions control Fit.
type FitOptions struct {
	Epochs    int
	BatchSize int
	// Shuffle reorders samples each epoch; ignored for stateful networks.
	Shuffle bool
	// ResetEachEpoch clears recurrent state after every epoch.
	ResetEachEpoch bool
	Rand           *rand.Rand
	Callbacks      []Callback
}

// FitEpoch trains one pass over x/y in fixed-size batches and returns the
// mean batch loss. A stateful network requires whole batches: trailing
// samples that do not fill a batch are skipped.
func (s *Sequential) FitEpoch(x, y [][][]float64, batchSize int, shuffle bool, rng *rand.Rand) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d inputs, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	if batchSize < 1 {
		batchSize = 1
	}
	stateful := s.Stateful()
	if stateful && s.BatchSize() != batchSize {
		return 0, fmt.Errorf("net: stateful network built for batch size %d, got %d", s.BatchSize(), batchSize)
	}

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	if shuffle && !stateful {
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	usable := len(order)
	if stateful {
		usable -= usable % batchSize
		if dropped := len(order) - usable; dropped > 0 {
			s.logger.Debug("dropping partial batch", zap.Int("samples", dropped))
		}
	}
	if usable == 0 {
		return 0, fmt.Errorf("net: %d samples do not fill one batch of %d", len(x), batchSize)
	}

	total, batches := 0.0, 0
	for start := 0; start < usable; start += batchSize {
		end := min(start+batchSize, usable)
		bx := make([][][]float64, 0, end-start)
		by := make([][][]float64, 0, end-start)
		for _, idx := range order[start:end] {
			bx = append(bx, x[idx])
			by = append(by, y[idx])
		}
		total += s.TrainBatch(bx, by)
		batches++
	}
	return total / float64(batches), nil
}

// Fit trains for opts.Epochs epochs and returns the per-epoch loss history.
func (s *Sequential) Fit(x, y [][][]float64, opts FitOptions) (*History, error) {
	history := &History{}
	callbacks := append([]Callback{history}, opts.Callbacks...)

	for _, cb := range callbacks {
		cb.OnTrainBegin(s.Network)
	}
	defer func() {
		for _, cb := range callbacks {
			cb.OnTrainEnd(s.Network)
		}
	}()

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for _, cb := range callbacks {
			cb.OnEpochBegin(epoch, s.Network)
		}
		epochLoss, err := s.FitEpoch(x, y, opts.BatchSize, opts.Shuffle, opts.Rand)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if opts.ResetEachEpoch {
			s.ResetStates()
		}
		stop := false
		for _, cb := range callbacks {
			cb.OnEpochEnd(epoch, epochLoss, s.Network)
			if st, ok := cb.(Stopper); ok && st.ShouldStop() {
				stop = true
			}
		}
		if stop {
			break
		}
	}
	return history, nil
}

// Predict performs a forward pass on one sample. Stateful networks read and
// advance state slot 0.
func (s *Sequential) Predict(x [][]float64) [][]float64 {
	s.selectState(0)
	return s.Forward(x)
}

// Evaluate calculates the average loss on a dataset without training.
func (s *Sequential) Evaluate(x, y [][][]float64) float64 {
	if len(x) == 0 {
		return 0
	}
	total := 0.0
	for i := range x {
		total += s.Loss(s.Predict(x[i]), y[i])
	}
	return total / float64(len(x))
}

// Summary writes a summary of the network architecture.
func (s *Sequential) Summary(w io.Writer) {
	rule := strings.Repeat("_", 65)
	fmt.Fprintln(w, "Model: Sequential")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	totalParams := 0
	for i, l := range s.layers {
		lType := fmt.Sprintf("%T", l)
		if j := strings.LastIndex(lType, "."); j >= 0 {
			lType = lType[j+1:]
		}
		params := len(l.Params())
		totalParams += params
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", fmt.Sprintf("%s_%d", lType, i), fmt.Sprintf("(%d)", l.OutSize()), params)
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", totalParams)
	fmt.Fprintln(w, rule)
}
