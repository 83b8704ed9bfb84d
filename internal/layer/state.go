package layer

// stateSlots holds the per-slot recurrent memory shared by LSTM and GRU.
type stateSlots struct {
	stateful        bool
	returnSequences bool
	batchSize       int
	slot            int
	width           int
	hidden          [][]float64
	cell            [][]float64 // nil when the cell keeps no separate memory
}

func newStateSlots(o options, width int, withCell bool) stateSlots {
	s := stateSlots{
		stateful:        o.stateful,
		returnSequences: o.returnSequences,
		batchSize:       o.batchSize,
		width:           width,
	}
	if withCell {
		s.cell = make([][]float64, 0)
	}
	s.reset()
	return s
}

func (s *stateSlots) reset() {
	s.hidden = make([][]float64, s.batchSize)
	for i := range s.hidden {
		s.hidden[i] = make([]float64, s.width)
	}
	if s.cell != nil {
		s.cell = make([][]float64, s.batchSize)
		for i := range s.cell {
			s.cell[i] = make([]float64, s.width)
		}
	}
	s.slot = 0
}

// initial returns copies of the state the next Forward starts from.
func (s *stateSlots) initial() (h, c []float64) {
	h = make([]float64, s.width)
	c = make([]float64, s.width)
	if s.stateful {
		copy(h, s.hidden[s.slot])
		if s.cell != nil {
			copy(c, s.cell[s.slot])
		}
	}
	return h, c
}

// store records the final state of a Forward call.
func (s *stateSlots) store(h, c []float64) {
	if !s.stateful {
		return
	}
	copy(s.hidden[s.slot], h)
	if s.cell != nil {
		copy(s.cell[s.slot], c)
	}
}

// SelectState chooses the state slot used by the next Forward call.
func (s *stateSlots) SelectState(slot int) {
	if slot < 0 || slot >= s.batchSize {
		panic("layer: state slot out of range")
	}
	s.slot = slot
}

func (s *stateSlots) IsStateful() bool { return s.stateful }
func (s *stateSlots) BatchSize() int   { return s.batchSize }

// ReturnSequences reports whether Forward emits every timestep.
func (s *stateSlots) ReturnSequences() bool { return s.returnSequences }

// Hidden returns a copy of the hidden state held in slot.
func (s *stateSlots) Hidden(slot int) []float64 {
	return append([]float64(nil), s.hidden[slot]...)
}

// outputs trims a full output sequence to the last step unless every
// step was requested.
func (s *stateSlots) outputs(all [][]float64) [][]float64 {
	if s.returnSequences || len(all) == 0 {
		return all
	}
	return all[len(all)-1:]
}

// upstream expands the gradient received by Backward to one entry per step.
func (s *stateSlots) upstream(grad [][]float64, steps int) [][]float64 {
	dOut := make([][]float64, steps)
	if s.returnSequences {
		copy(dOut, grad)
	} else if steps > 0 && len(grad) > 0 {
		dOut[steps-1] = grad[len(grad)-1]
	}
	return dOut
}
