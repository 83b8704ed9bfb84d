package layer

import (
	"math"

	"github.com/FlavioCFOliveira/tinkerbell/internal/activations"
)

// Gate order inside the 3*outSize pre-activation block.
const (
	gruUpdate = iota
	gruReset
	gruCandidate
	gruGates
)

// GRU implements a Gated Recurrent Unit layer.
//
//	z  = sigmoid(Wz x + Uz h + bz)
//	r  = sigmoid(Wr x + Ur h + br)
//	n  = tanh(Wn x + Un (r * h) + bn)
//	h' = (1 - z) * n + z * h
//
// State handling matches LSTM.
type GRU struct {
	inSize  int
	outSize int

	inputWeights     []float64 // outSize*3 x inSize
	recurrentWeights []float64 // outSize*3 x outSize
	biases           []float64 // outSize*3

	gateAct activations.Activation
	candAct activations.Activation

	gradInputWeights     []float64
	gradRecurrentWeights []float64
	gradBiases           []float64

	stateSlots

	steps []gruStep
}

type gruStep struct {
	x     []float64
	hPrev []float64
	rh    []float64 // r * hPrev
	pre   []float64
	gates []float64 // activated z, r, n
}

// NewGRU creates a new GRU layer with Glorot uniform weights.
func NewGRU(inSize, outSize int, opts ...Option) *GRU {
	o := buildOptions(opts)

	inputScale := math.Sqrt(6.0 / float64(inSize+gruGates*outSize))
	recurrentScale := math.Sqrt(6.0 / float64(outSize+gruGates*outSize))

	inputWeights := make([]float64, gruGates*outSize*inSize)
	recurrentWeights := make([]float64, gruGates*outSize*outSize)
	for i := range inputWeights {
		inputWeights[i] = o.rng.Float64()*2*inputScale - inputScale
	}
	for i := range recurrentWeights {
		recurrentWeights[i] = o.rng.Float64()*2*recurrentScale - recurrentScale
	}

	return &GRU{
		inSize:           inSize,
		outSize:          outSize,
		inputWeights:     inputWeights,
		recurrentWeights: recurrentWeights,
		biases:           make([]float64, gruGates*outSize),

		gateAct: activations.Sigmoid{},
		candAct: activations.Tanh{},

		gradInputWeights:     make([]float64, len(inputWeights)),
		gradRecurrentWeights: make([]float64, len(recurrentWeights)),
		gradBiases:           make([]float64, gruGates*outSize),

		stateSlots: newStateSlots(o, outSize, false),
	}
}

// ResetStates zeroes every state slot.
func (g *GRU) ResetStates() {
	g.stateSlots.reset()
	g.steps = g.steps[:0]
}

// Forward runs the sequence x through the cell.
func (g *GRU) Forward(x [][]float64) [][]float64 {
	H := g.outSize
	hPrev, _ := g.initial()

	g.steps = g.steps[:0]
	outputs := make([][]float64, 0, len(x))

	for _, xt := range x {
		st := gruStep{
			x:     append([]float64(nil), xt...),
			hPrev: hPrev,
			rh:    make([]float64, H),
			pre:   make([]float64, gruGates*H),
			gates: make([]float64, gruGates*H),
		}

		copy(st.pre, g.biases)
		for r := 0; r < gruGates*H; r++ {
			sum := 0.0
			wBase := r * g.inSize
			for j := 0; j < g.inSize; j++ {
				sum += g.inputWeights[wBase+j] * xt[j]
			}
			st.pre[r] += sum
		}

		// update and reset gates see h directly
		for r := 0; r < (gruCandidate)*H; r++ {
			sum := 0.0
			rBase := r * H
			for j := 0; j < H; j++ {
				sum += g.recurrentWeights[rBase+j] * hPrev[j]
			}
			st.pre[r] += sum
			st.gates[r] = g.gateAct.Activate(st.pre[r])
		}

		for j := 0; j < H; j++ {
			st.rh[j] = st.gates[gruReset*H+j] * hPrev[j]
		}
		for i := 0; i < H; i++ {
			r := gruCandidate*H + i
			sum := 0.0
			for j := 0; j < H; j++ {
				sum += g.recurrentWeights[r*H+j] * st.rh[j]
			}
			st.pre[r] += sum
			st.gates[r] = g.candAct.Activate(st.pre[r])
		}

		h := make([]float64, H)
		for i := 0; i < H; i++ {
			z := st.gates[gruUpdate*H+i]
			n := st.gates[gruCandidate*H+i]
			h[i] = (1-z)*n + z*hPrev[i]
		}

		g.steps = append(g.steps, st)
		outputs = append(outputs, h)
		hPrev = h
	}

	g.store(hPrev, nil)
	return g.outputs(outputs)
}

// Backward performs backpropagation through time over the last Forward call.
func (g *GRU) Backward(grad [][]float64) [][]float64 {
	H := g.outSize
	T := len(g.steps)
	dx := make([][]float64, T)
	dOut := g.upstream(grad, T)

	dhNext := make([]float64, H)
	dPre := make([]float64, gruGates*H)
	dRH := make([]float64, H)

	for t := T - 1; t >= 0; t-- {
		st := g.steps[t]
		dhPrev := make([]float64, H)

		for i := 0; i < H; i++ {
			dh := dhNext[i]
			if dOut[t] != nil {
				dh += dOut[t][i]
			}
			z := st.gates[gruUpdate*H+i]
			n := st.gates[gruCandidate*H+i]

			dPre[gruCandidate*H+i] = dh * (1 - z) * g.candAct.Derivative(st.pre[gruCandidate*H+i])
			dPre[gruUpdate*H+i] = dh * (st.hPrev[i] - n) * g.gateAct.Derivative(st.pre[gruUpdate*H+i])
			dhPrev[i] = dh * z
		}

		// candidate path through r * hPrev
		for j := 0; j < H; j++ {
			sum := 0.0
			for i := 0; i < H; i++ {
				sum += g.recurrentWeights[(gruCandidate*H+i)*H+j] * dPre[gruCandidate*H+i]
			}
			dRH[j] = sum
		}
		for j := 0; j < H; j++ {
			r := st.gates[gruReset*H+j]
			dPre[gruReset*H+j] = dRH[j] * st.hPrev[j] * g.gateAct.Derivative(st.pre[gruReset*H+j])
			dhPrev[j] += dRH[j] * r
		}

		for r := 0; r < gruGates*H; r++ {
			d := dPre[r]
			g.gradBiases[r] += d
			wBase := r * g.inSize
			for j := 0; j < g.inSize; j++ {
				g.gradInputWeights[wBase+j] += d * st.x[j]
			}
			src := st.hPrev
			if r >= gruCandidate*H {
				src = st.rh
			}
			rBase := r * H
			for j := 0; j < H; j++ {
				g.gradRecurrentWeights[rBase+j] += d * src[j]
			}
		}

		// update and reset gates feed back into hPrev directly
		for j := 0; j < H; j++ {
			sum := 0.0
			for r := 0; r < gruCandidate*H; r++ {
				sum += g.recurrentWeights[r*H+j] * dPre[r]
			}
			dhPrev[j] += sum
		}

		gx := make([]float64, g.inSize)
		for j := 0; j < g.inSize; j++ {
			sum := 0.0
			for r := 0; r < gruGates*H; r++ {
				sum += g.inputWeights[r*g.inSize+j] * dPre[r]
			}
			gx[j] = sum
		}
		dx[t] = gx
		dhNext = dhPrev
	}

	return dx
}

// Params returns all GRU parameters flattened (copy).
func (g *GRU) Params() []float64 {
	params := make([]float64, 0, len(g.inputWeights)+len(g.recurrentWeights)+len(g.biases))
	params = append(params, g.inputWeights...)
	params = append(params, g.recurrentWeights...)
	return append(params, g.biases...)
}

// SetParams updates weights and biases from a flattened slice.
func (g *GRU) SetParams(params []float64) {
	nIn := len(g.inputWeights)
	nRec := len(g.recurrentWeights)
	copy(g.inputWeights, params[:nIn])
	copy(g.recurrentWeights, params[nIn:nIn+nRec])
	copy(g.biases, params[nIn+nRec:])
}

// Gradients returns all GRU gradients flattened (copy).
func (g *GRU) Gradients() []float64 {
	gradients := make([]float64, 0, len(g.gradInputWeights)+len(g.gradRecurrentWeights)+len(g.gradBiases))
	gradients = append(gradients, g.gradInputWeights...)
	gradients = append(gradients, g.gradRecurrentWeights...)
	return append(gradients, g.gradBiases...)
}

// ClearGradients zeroes out the accumulated gradients.
func (g *GRU) ClearGradients() {
	clear(g.gradInputWeights)
	clear(g.gradRecurrentWeights)
	clear(g.gradBiases)
}

func (g *GRU) InSize() int  { return g.inSize }
func (g *GRU) OutSize() int { return g.outSize }
