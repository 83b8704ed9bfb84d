package layer

// Dropout implements inverted dropout over every timestep.
// During training, inputs are zeroed with probability rate and the survivors
// scaled by 1/(1-rate). During inference, inputs pass through unchanged.
type Dropout struct {
	rate     float64
	size     int
	training bool
	opts     options

	// mask of the last training Forward, nil in inference
	masks [][]float64
}

// NewDropout creates a dropout layer over vectors of the given size. It
// starts in inference mode.
func NewDropout(rate float64, size int, opts ...Option) *Dropout {
	if rate < 0 {
		rate = 0
	}
	if rate >= 1 {
		rate = 0.99
	}
	return &Dropout{
		rate: rate,
		size: size,
		opts: buildOptions(opts),
	}
}

// Trainable is implemented by layers that behave differently while training.
type Trainable interface {
	SetTraining(training bool)
}

// SetTraining switches between training and inference mode.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// IsTraining returns whether the layer is in training mode.
func (d *Dropout) IsTraining() bool {
	return d.training
}

// Rate is the drop probability.
func (d *Dropout) Rate() float64 {
	return d.rate
}

func (d *Dropout) Forward(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	if !d.training || d.rate == 0 {
		d.masks = nil
		for t, row := range x {
			out[t] = append([]float64(nil), row...)
		}
		return out
	}

	keep := 1 - d.rate
	d.masks = make([][]float64, len(x))
	for t, row := range x {
		mask := make([]float64, len(row))
		out[t] = make([]float64, len(row))
		for i, v := range row {
			if d.opts.rng.Float64() < keep {
				mask[i] = 1 / keep
			}
			out[t][i] = v * mask[i]
		}
		d.masks[t] = mask
	}
	return out
}

func (d *Dropout) Backward(grad [][]float64) [][]float64 {
	out := make([][]float64, len(grad))
	for t, row := range grad {
		out[t] = append([]float64(nil), row...)
		if d.masks == nil {
			continue
		}
		for i := range out[t] {
			out[t][i] *= d.masks[t][i]
		}
	}
	return out
}

func (d *Dropout) Params() []float64    { return nil }
func (d *Dropout) SetParams([]float64)  {}
func (d *Dropout) Gradients() []float64 { return nil }
func (d *Dropout) ClearGradients()      {}
func (d *Dropout) InSize() int          { return d.size }
func (d *Dropout) OutSize() int         { return d.size }
