// Package layer provides the sequence layers used by the forecasting models.
//
// Every layer consumes and produces a sequence of vectors: x[t] is the input
// vector at timestep t. Layers that are not recurrent apply themselves to
// each timestep independently.
package layer

import (
	"math"
	"math/rand"

	"github.com/FlavioCFOliveira/tinkerbell/internal/activations"
)

// Layer is a neural network layer operating on sequences.
type Layer interface {
	Forward(x [][]float64) [][]float64
	// Backward takes dL/d(output) with the shape returned by the last
	// Forward call, accumulates parameter gradients and returns dL/d(input).
	Backward(grad [][]float64) [][]float64
	Params() []float64
	SetParams([]float64)
	Gradients() []float64
	ClearGradients()
	InSize() int
	OutSize() int
}

// Stateful is implemented by layers whose memory persists across calls
// until explicitly reset.
type Stateful interface {
	IsStateful() bool
	// BatchSize is the number of independent state slots.
	BatchSize() int
	// SelectState makes slot the state used by the next Forward call.
	SelectState(slot int)
	ResetStates()
}

// Option configures layer construction.
type Option func(*options)

type options struct {
	rng             *rand.Rand
	returnSequences bool
	stateful        bool
	batchSize       int
}

// WithSeed initializes weights from a deterministic source.
func WithSeed(seed int64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithReturnSequences makes a recurrent layer emit every timestep instead of
// only the last one.
func WithReturnSequences(v bool) Option {
	return func(o *options) { o.returnSequences = v }
}

// WithStateful keeps batchSize state slots that survive between Forward
// calls until ResetStates.
func WithStateful(batchSize int) Option {
	return func(o *options) {
		o.stateful = true
		o.batchSize = batchSize
	}
}

func buildOptions(opts []Option) options {
	o := options{batchSize: 1}
	for _, fn := range opts {
		fn(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(42))
	}
	if o.batchSize < 1 {
		o.batchSize = 1
	}
	return o
}

// Dense is a fully connected layer applied to each timestep.
type Dense struct {
	// Shape: [out * in] where weight for output i, input j is at weights[i*in + j]
	weights []float64
	biases  []float64
	act     activations.Activation
	outSize int
	inSize  int

	gradW []float64
	gradB []float64

	// cached from the last Forward for Backward
	inputs  [][]float64
	preActs [][]float64
}

// NewDense creates a new dense layer with Glorot uniform weights and zero biases.
func NewDense(in, out int, act activations.Activation, opts ...Option) *Dense {
	o := buildOptions(opts)
	if act == nil {
		act = activations.Linear{}
	}

	weights := make([]float64, out*in)
	scale := math.Sqrt(6.0 / (float64(in) + float64(out)))
	for i := range weights {
		weights[i] = o.rng.Float64()*2*scale - scale
	}

	return &Dense{
		weights: weights,
		biases:  make([]float64, out),
		act:     act,
		outSize: out,
		inSize:  in,
		gradW:   make([]float64, out*in),
		gradB:   make([]float64, out),
	}
}

// Forward computes act(Wx + b) for every timestep.
func (d *Dense) Forward(x [][]float64) [][]float64 {
	d.inputs = d.inputs[:0]
	d.preActs = d.preActs[:0]
	out := make([][]float64, len(x))

	for t, xt := range x {
		in := append([]float64(nil), xt...)
		pre := make([]float64, d.outSize)
		y := make([]float64, d.outSize)
		for o := 0; o < d.outSize; o++ {
			sum := d.biases[o]
			wBase := o * d.inSize
			for i := 0; i < d.inSize; i++ {
				sum += d.weights[wBase+i] * in[i]
			}
			pre[o] = sum
			y[o] = d.act.Activate(sum)
		}
		d.inputs = append(d.inputs, in)
		d.preActs = append(d.preActs, pre)
		out[t] = y
	}
	return out
}

// Backward accumulates weight and bias gradients for every timestep.
func (d *Dense) Backward(grad [][]float64) [][]float64 {
	gradIn := make([][]float64, len(grad))
	dz := make([]float64, d.outSize)

	for t := range grad {
		input := d.inputs[t]
		for o := 0; o < d.outSize; o++ {
			dz[o] = grad[t][o] * d.act.Derivative(d.preActs[t][o])
			d.gradB[o] += dz[o]
			wBase := o * d.inSize
			for i := 0; i < d.inSize; i++ {
				d.gradW[wBase+i] += dz[o] * input[i]
			}
		}

		gx := make([]float64, d.inSize)
		for i := 0; i < d.inSize; i++ {
			sum := 0.0
			for o := 0; o < d.outSize; o++ {
				sum += dz[o] * d.weights[o*d.inSize+i]
			}
			gx[i] = sum
		}
		gradIn[t] = gx
	}
	return gradIn
}

// Params returns all dense layer parameters flattened.
func (d *Dense) Params() []float64 {
	params := make([]float64, 0, len(d.weights)+len(d.biases))
	params = append(params, d.weights...)
	return append(params, d.biases...)
}

// SetParams updates weights and biases from a flattened slice (in-place).
func (d *Dense) SetParams(params []float64) {
	copy(d.weights, params[:len(d.weights)])
	copy(d.biases, params[len(d.weights):])
}

// Gradients returns all dense layer gradients flattened.
func (d *Dense) Gradients() []float64 {
	gradients := make([]float64, 0, len(d.gradW)+len(d.gradB))
	gradients = append(gradients, d.gradW...)
	return append(gradients, d.gradB...)
}

// ClearGradients zeroes out the accumulated gradients.
func (d *Dense) ClearGradients() {
	clear(d.gradW)
	clear(d.gradB)
}

func (d *Dense) InSize() int  { return d.inSize }
func (d *Dense) OutSize() int { return d.outSize }

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}
