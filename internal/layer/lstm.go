package layer

import (
	"math"

	"github.com/FlavioCFOliveira/tinkerbell/internal/activations"
)

// Gate order inside the 4*outSize pre-activation block.
const (
	gateInput = iota
	gateForget
	gateCell
	gateOutput
	numGates
)

// LSTM is a Long Short-Term Memory layer.
//
// A stateless LSTM starts every Forward call from zero state. A stateful
// LSTM keeps batchSize (hidden, cell) slots; the slot chosen with
// SelectState is read at the start of Forward and overwritten with the
// final state at the end, so sample j of batch b continues from sample j of
// batch b-1. Gradients are truncated at Forward boundaries.
type LSTM struct {
	inSize  int
	outSize int

	// Layout: gate-major rows [input, forget, cell, output], each outSize rows.
	inputWeights     []float64 // outSize*4 x inSize
	recurrentWeights []float64 // outSize*4 x outSize
	biases           []float64 // outSize*4

	inputAct  activations.Activation
	forgetAct activations.Activation
	cellAct   activations.Activation
	outputAct activations.Activation

	gradInputWeights     []float64
	gradRecurrentWeights []float64
	gradBiases           []float64

	stateSlots

	steps []lstmStep
}

// lstmStep is everything one timestep needs for backprop.
type lstmStep struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	pre   []float64
	gates []float64 // activated i, f, g, o
	c     []float64
	tanhC []float64
}

// NewLSTM creates a new LSTM layer with Glorot uniform input weights and a
// forget gate bias of 1.
func NewLSTM(inSize, outSize int, opts ...Option) *LSTM {
	o := buildOptions(opts)

	inputScale := math.Sqrt(6.0 / float64(inSize+numGates*outSize))
	recurrentScale := math.Sqrt(6.0 / float64(outSize+numGates*outSize))

	inputWeights := make([]float64, numGates*outSize*inSize)
	recurrentWeights := make([]float64, numGates*outSize*outSize)
	biases := make([]float64, numGates*outSize)

	for i := range inputWeights {
		inputWeights[i] = o.rng.Float64()*2*inputScale - inputScale
	}
	for i := range recurrentWeights {
		recurrentWeights[i] = o.rng.Float64()*2*recurrentScale - recurrentScale
	}
	for i := gateForget * outSize; i < (gateForget+1)*outSize; i++ {
		biases[i] = 1.0
	}

	l := &LSTM{
		inSize:           inSize,
		outSize:          outSize,
		inputWeights:     inputWeights,
		recurrentWeights: recurrentWeights,
		biases:           biases,

		inputAct:  activations.Sigmoid{},
		forgetAct: activations.Sigmoid{},
		cellAct:   activations.Tanh{},
		outputAct: activations.Sigmoid{},

		gradInputWeights:     make([]float64, len(inputWeights)),
		gradRecurrentWeights: make([]float64, len(recurrentWeights)),
		gradBiases:           make([]float64, len(biases)),

		stateSlots: newStateSlots(o, outSize, true),
	}
	return l
}

// ResetStates zeroes every state slot.
func (l *LSTM) ResetStates() {
	l.stateSlots.reset()
	l.steps = l.steps[:0]
}

// Forward runs the sequence x through the cell.
func (l *LSTM) Forward(x [][]float64) [][]float64 {
	H := l.outSize
	hPrev, cPrev := l.initial()

	l.steps = l.steps[:0]
	outputs := make([][]float64, 0, len(x))

	for _, xt := range x {
		st := lstmStep{
			x:     append([]float64(nil), xt...),
			hPrev: hPrev,
			cPrev: cPrev,
			pre:   make([]float64, numGates*H),
			gates: make([]float64, numGates*H),
			c:     make([]float64, H),
			tanhC: make([]float64, H),
		}

		copy(st.pre, l.biases)
		for r := 0; r < numGates*H; r++ {
			sum := 0.0
			wBase := r * l.inSize
			for j := 0; j < l.inSize; j++ {
				sum += l.inputWeights[wBase+j] * xt[j]
			}
			rBase := r * H
			for j := 0; j < H; j++ {
				sum += l.recurrentWeights[rBase+j] * hPrev[j]
			}
			st.pre[r] += sum
		}

		h := make([]float64, H)
		for i := 0; i < H; i++ {
			ig := l.inputAct.Activate(st.pre[gateInput*H+i])
			fg := l.forgetAct.Activate(st.pre[gateForget*H+i])
			cg := l.cellAct.Activate(st.pre[gateCell*H+i])
			og := l.outputAct.Activate(st.pre[gateOutput*H+i])
			st.gates[gateInput*H+i] = ig
			st.gates[gateForget*H+i] = fg
			st.gates[gateCell*H+i] = cg
			st.gates[gateOutput*H+i] = og

			st.c[i] = fg*cPrev[i] + ig*cg
			st.tanhC[i] = math.Tanh(st.c[i])
			h[i] = og * st.tanhC[i]
		}

		l.steps = append(l.steps, st)
		outputs = append(outputs, h)
		hPrev, cPrev = h, st.c
	}

	l.store(hPrev, cPrev)
	return l.outputs(outputs)
}

// Backward performs backpropagation through time over the last Forward call.
func (l *LSTM) Backward(grad [][]float64) [][]float64 {
	H := l.outSize
	T := len(l.steps)
	dx := make([][]float64, T)

	dOut := l.upstream(grad, T)

	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	dz := make([]float64, numGates*H)

	for t := T - 1; t >= 0; t-- {
		st := l.steps[t]
		for i := 0; i < H; i++ {
			dh := dhNext[i]
			if dOut[t] != nil {
				dh += dOut[t][i]
			}
			ig := st.gates[gateInput*H+i]
			fg := st.gates[gateForget*H+i]
			cg := st.gates[gateCell*H+i]
			og := st.gates[gateOutput*H+i]

			dc := dh*og*(1-st.tanhC[i]*st.tanhC[i]) + dcNext[i]

			dz[gateOutput*H+i] = dh * st.tanhC[i] * l.outputAct.Derivative(st.pre[gateOutput*H+i])
			dz[gateInput*H+i] = dc * cg * l.inputAct.Derivative(st.pre[gateInput*H+i])
			dz[gateCell*H+i] = dc * ig * l.cellAct.Derivative(st.pre[gateCell*H+i])
			dz[gateForget*H+i] = dc * st.cPrev[i] * l.forgetAct.Derivative(st.pre[gateForget*H+i])

			dcNext[i] = dc * fg
		}

		for r := 0; r < numGates*H; r++ {
			g := dz[r]
			l.gradBiases[r] += g
			wBase := r * l.inSize
			for j := 0; j < l.inSize; j++ {
				l.gradInputWeights[wBase+j] += g * st.x[j]
			}
			rBase := r * H
			for j := 0; j < H; j++ {
				l.gradRecurrentWeights[rBase+j] += g * st.hPrev[j]
			}
		}

		gx := make([]float64, l.inSize)
		for j := 0; j < l.inSize; j++ {
			sum := 0.0
			for r := 0; r < numGates*H; r++ {
				sum += l.inputWeights[r*l.inSize+j] * dz[r]
			}
			gx[j] = sum
		}
		dx[t] = gx

		for j := 0; j < H; j++ {
			sum := 0.0
			for r := 0; r < numGates*H; r++ {
				sum += l.recurrentWeights[r*H+j] * dz[r]
			}
			dhNext[j] = sum
		}
	}

	return dx
}

// Params returns all LSTM parameters flattened (copy).
func (l *LSTM) Params() []float64 {
	params := make([]float64, 0, len(l.inputWeights)+len(l.recurrentWeights)+len(l.biases))
	params = append(params, l.inputWeights...)
	params = append(params, l.recurrentWeights...)
	return append(params, l.biases...)
}

// SetParams updates weights and biases from a flattened slice.
func (l *LSTM) SetParams(params []float64) {
	nIn := len(l.inputWeights)
	nRec := len(l.recurrentWeights)
	copy(l.inputWeights, params[:nIn])
	copy(l.recurrentWeights, params[nIn:nIn+nRec])
	copy(l.biases, params[nIn+nRec:])
}

// Gradients returns all LSTM gradients flattened (copy).
func (l *LSTM) Gradients() []float64 {
	gradients := make([]float64, 0, len(l.gradInputWeights)+len(l.gradRecurrentWeights)+len(l.gradBiases))
	gradients = append(gradients, l.gradInputWeights...)
	gradients = append(gradients, l.gradRecurrentWeights...)
	return append(gradients, l.gradBiases...)
}

// ClearGradients zeroes out the accumulated gradients.
func (l *LSTM) ClearGradients() {
	clear(l.gradInputWeights)
	clear(l.gradRecurrentWeights)
	clear(l.gradBiases)
}

func (l *LSTM) InSize() int  { return l.inSize }
func (l *LSTM) OutSize() int { return l.outSize }
