// Package net provides the recurrent network container, its training loop
// and gob persistence.
package net

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/FlavioCFOliveira/tinkerbell/internal/activations"
	"github.com/FlavioCFOliveira/tinkerbell/internal/layer"
	"github.com/FlavioCFOliveira/tinkerbell/internal/loss"
	"github.com/FlavioCFOliveira/tinkerbell/internal/opt"
)

// ErrShapeMismatch is returned when inputs and targets disagree in count.
var ErrShapeMismatch = errors.New("net: inputs and targets differ in length")

// Network is a stack of sequence layers trained with a loss and optimizer.
type Network struct {
	layers []layer.Layer
	loss   loss.Loss
	opt    opt.Optimizer

	// clipNorm bounds the global L2 norm of the averaged gradients; 0 disables.
	clipNorm float64
}

// New creates a new neural network with the given layers.
func New(layers []layer.Layer, lossFn loss.Loss, optimizer opt.Optimizer) *Network {
	return &Network{
		layers: layers,
		loss:   lossFn,
		opt:    optimizer,
	}
}

// SetClipNorm sets the global gradient norm bound.
func (n *Network) SetClipNorm(v float64) {
	n.clipNorm = v
}

// Forward performs a forward pass through all layers.
func (n *Network) Forward(x [][]float64) [][]float64 {
	curr := x
	for i := range n.layers {
		curr = n.layers[i].Forward(curr)
	}
	return curr
}

// Backward performs a backward pass through all layers.
func (n *Network) Backward(grad [][]float64) [][]float64 {
	curr := grad
	for i := len(n.layers) - 1; i >= 0; i-- {
		curr = n.layers[i].Backward(curr)
	}
	return curr
}

// Step applies one optimizer update from the accumulated gradients divided
// by count, then clears them.
func (n *Network) Step(count int) {
	if count < 1 {
		count = 1
	}
	grads := make([][]float64, len(n.layers))
	normSq := 0.0
	for i, l := range n.layers {
		g := l.Gradients()
		for j := range g {
			g[j] /= float64(count)
			normSq += g[j] * g[j]
		}
		grads[i] = g
	}

	scale := 1.0
	if norm := math.Sqrt(normSq); n.clipNorm > 0 && norm > n.clipNorm {
		scale = n.clipNorm / norm
	}

	for i, l := range n.layers {
		g := grads[i]
		if scale != 1 {
			for j := range g {
				g[j] *= scale
			}
		}
		params := l.Params()
		n.opt.StepInPlace(i, params, g)
		l.SetParams(params)
		l.ClearGradients()
	}
}

// TrainBatch runs forward and backward for every sample of one batch and
// applies a single averaged update. For stateful layers sample j uses state
// slot j. Returns the mean loss of the batch.
func (n *Network) TrainBatch(batchX, batchY [][][]float64) float64 {
	if len(batchX) != len(batchY) {
		panic(ErrShapeMismatch)
	}
	if len(batchX) == 0 {
		return 0
	}

	for _, l := range n.layers {
		l.ClearGradients()
	}
	n.setTraining(true)
	defer n.setTraining(false)

	totalLoss := 0.0
	for j := range batchX {
		n.selectState(j)
		yPred := n.Forward(batchX[j])
		pred, target := flatten(yPred), flatten(batchY[j])
		totalLoss += n.loss.Forward(pred, target)

		grad := make([]float64, len(pred))
		if inPlace, ok := n.loss.(loss.BackwardInPlacer); ok {
			inPlace.BackwardInPlace(pred, target, grad)
		} else {
			grad = n.loss.Backward(pred, target)
		}
		n.Backward(reshape(grad, yPred))
	}

	n.Step(len(batchX))
	return totalLoss / float64(len(batchX))
}

// Train performs a training step on a single sample.
func (n *Network) Train(x, y [][]float64) float64 {
	return n.TrainBatch([][][]float64{x}, [][][]float64{y})
}

// Loss returns the loss between a prediction and a target sequence.
func (n *Network) Loss(yPred, yTrue [][]float64) float64 {
	return n.loss.Forward(flatten(yPred), flatten(yTrue))
}

func (n *Network) setTraining(training bool) {
	for _, l := range n.layers {
		if t, ok := l.(layer.Trainable); ok {
			t.SetTraining(training)
		}
	}
}

func (n *Network) selectState(slot int) {
	for _, l := range n.layers {
		if s, ok := l.(layer.Stateful); ok && s.IsStateful() {
			s.SelectState(slot % s.BatchSize())
		}
	}
}

// ResetStates clears the memory of every stateful layer.
func (n *Network) ResetStates() {
	for _, l := range n.layers {
		if s, ok := l.(layer.Stateful); ok {
			s.ResetStates()
		}
	}
}

// Stateful reports whether any layer keeps state between calls.
func (n *Network) Stateful() bool {
	for _, l := range n.layers {
		if s, ok := l.(layer.Stateful); ok && s.IsStateful() {
			return true
		}
	}
	return false
}

// BatchSize is the fixed batch size of the stateful layers, 0 when the
// network is stateless.
func (n *Network) BatchSize() int {
	for _, l := range n.layers {
		if s, ok := l.(layer.Stateful); ok && s.IsStateful() {
			return s.BatchSize()
		}
	}
	return 0
}

// Params returns all network parameters flattened (copy).
func (n *Network) Params() []float64 {
	var params []float64
	for _, l := range n.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// Gradients returns all network gradients flattened (copy).
func (n *Network) Gradients() []float64 {
	var gradients []float64
	for _, l := range n.layers {
		gradients = append(gradients, l.Gradients()...)
	}
	return gradients
}

// Layers returns the network's layers slice.
func (n *Network) Layers() []layer.Layer {
	return n.layers
}

// Optimizer returns the optimizer set by New or Compile.
func (n *Network) Optimizer() opt.Optimizer {
	return n.opt
}

func flatten(seq [][]float64) []float64 {
	var out []float64
	for _, row := range seq {
		out = append(out, row...)
	}
	return out
}

func reshape(flat []float64, like [][]float64) [][]float64 {
	out := make([][]float64, len(like))
	offset := 0
	for t, row := range like {
		out[t] = flat[offset : offset+len(row)]
		offset += len(row)
	}
	return out
}

// fileHeader precedes the layer configurations in a saved network.
type fileHeader struct {
	NumLayers    int
	Loss         string
	HuberDelta   float64
	Optimizer    string
	LearningRate float64
	ClipNorm     float64
}

// LayerConfig holds the configuration needed to reconstruct a layer.
type LayerConfig struct {
	Type            string
	InSize          int
	OutSize         int
	Activation      string
	ReturnSequences bool
	Stateful        bool
	BatchSize       int
	Rate            float64
	Params          []float64
}

// Save saves the network to a file using gob encoding.
// Optimizer moments are not saved.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return n.Encode(file)
}

// Load loads a network from a file.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes the network to an io.Writer using gob encoding.
func (n *Network) Encode(w io.Writer) error {
	encoder := gob.NewEncoder(w)

	header := fileHeader{
		NumLayers: len(n.layers),
		Loss:      loss.Name(n.loss),
		ClipNorm:  n.clipNorm,
	}
	if h, ok := n.loss.(*loss.Huber); ok {
		header.HuberDelta = h.Delta
	}
	if n.opt != nil {
		header.Optimizer = opt.Name(n.opt)
		header.LearningRate = n.opt.LearningRate()
	}
	if err := encoder.Encode(header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	for i, l := range n.layers {
		cfg, err := ExtractLayerConfig(l)
		if err != nil {
			return err
		}
		if err := encoder.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode layer %d: %w", i, err)
		}
	}
	return nil
}

// Decode reads a network written by Encode.
func Decode(r io.Reader) (*Network, error) {
	decoder := gob.NewDecoder(r)

	var header fileHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	layers := make([]layer.Layer, 0, header.NumLayers)
	for i := 0; i < header.NumLayers; i++ {
		var cfg LayerConfig
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read layer %d: %w", i, err)
		}
		l, err := cfg.CreateLayer()
		if err != nil {
			return nil, fmt.Errorf("failed to create layer %d: %w", i, err)
		}
		layers = append(layers, l)
	}

	n := New(layers, loss.ByName(header.Loss, header.HuberDelta), opt.ByName(header.Optimizer, header.LearningRate))
	n.clipNorm = header.ClipNorm
	return n, nil
}

// ExtractLayerConfig extracts the configuration from a layer.
func ExtractLayerConfig(l layer.Layer) (LayerConfig, error) {
	cfg := LayerConfig{
		InSize:  l.InSize(),
		OutSize: l.OutSize(),
		Params:  l.Params(),
	}

	switch v := l.(type) {
	case *layer.Dense:
		cfg.Type = "Dense"
		cfg.Activation = activations.Name(v.Activation())
	case *layer.Dropout:
		cfg.Type = "Dropout"
		cfg.Rate = v.Rate()
	case *layer.LSTM:
		cfg.Type = "LSTM"
		cfg.ReturnSequences = v.ReturnSequences()
		cfg.Stateful = v.IsStateful()
		cfg.BatchSize = v.BatchSize()
	case *layer.GRU:
		cfg.Type = "GRU"
		cfg.ReturnSequences = v.ReturnSequences()
		cfg.Stateful = v.IsStateful()
		cfg.BatchSize = v.BatchSize()
	default:
		return cfg, fmt.Errorf("unsupported layer type: %T", l)
	}
	return cfg, nil
}

// CreateLayer creates a new layer from the configuration.
func (c *LayerConfig) CreateLayer() (layer.Layer, error) {
	var l layer.Layer
	switch c.Type {
	case "Dense":
		l = layer.NewDense(c.InSize, c.OutSize, activations.ByName(c.Activation))
	case "Dropout":
		l = layer.NewDropout(c.Rate, c.InSize)
	case "LSTM", "GRU":
		opts := []layer.Option{layer.WithReturnSequences(c.ReturnSequences)}
		if c.Stateful {
			opts = append(opts, layer.WithStateful(c.BatchSize))
		}
		if c.Type == "LSTM" {
			l = layer.NewLSTM(c.InSize, c.OutSize, opts...)
		} else {
			l = layer.NewGRU(c.InSize, c.OutSize, opts...)
		}
	default:
		return nil, fmt.Errorf("unsupported layer type: %s", c.Type)
	}

	if len(c.Params) != len(l.Params()) {
		return nil, fmt.Errorf("%s layer expects %d params, got %d", c.Type, len(l.Params()), len(c.Params))
	}
	l.SetParams(c.Params)
	return l, nil
}
