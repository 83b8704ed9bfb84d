// Package synth generates noisy exponential decline curves with a stage
// discontinuity, used as training data.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
)

// ErrInvalid is returned for parameters that cannot produce a curve.
var ErrInvalid = errors.New("synth: invalid parameters")

// Decline describes y = Y0 * 2^(-D*x) sampled on [0, 2^PMax] with step DX.
// At XDisc the stage jumps from 0 to 1 and the decline restarts from Y0.
type Decline struct {
	Y0    float64 `yaml:"y0"`
	D     float64 `yaml:"d"`
	PMax  float64 `yaml:"pmax"`
	XDisc float64 `yaml:"xdisc"`
	DX    float64 `yaml:"dx"`
	// Noise is the standard deviation of the multiplicative gaussian noise.
	Noise float64 `yaml:"noise"`
	Seed  int64   `yaml:"seed"`
}

// DefaultDecline returns the parameters of the reference training set.
func DefaultDecline() Decline {
	return Decline{
		Y0:    1000,
		D:     0.1,
		PMax:  6,
		XDisc: 20,
		DX:    1,
		Noise: 0.05,
		Seed:  42,
	}
}

// Curve is one sampled decline.
type Curve struct {
	X          []float64
	Production []float64
	Stage      []float64
	XDisc      float64
}

// XMax is the end of the sampled interval.
func (d Decline) XMax() float64 {
	return math.Pow(2, d.PMax)
}

func (d Decline) validate() error {
	switch {
	case d.DX <= 0:
		return fmt.Errorf("%w: dx %g", ErrInvalid, d.DX)
	case d.Y0 <= 0:
		return fmt.Errorf("%w: y0 %g", ErrInvalid, d.Y0)
	case d.Noise < 0:
		return fmt.Errorf("%w: noise %g", ErrInvalid, d.Noise)
	case d.XMax() < d.DX:
		return fmt.Errorf("%w: interval [0, %g] shorter than dx %g", ErrInvalid, d.XMax(), d.DX)
	}
	return nil
}

// Level is the noiseless production at x.
func (d Decline) Level(x float64) float64 {
	if x >= d.XDisc {
		x -= d.XDisc
	}
	return d.Y0 * math.Pow(2, -d.D*x)
}

// Generate samples the curve. The same Seed always yields the same curve.
func (d Decline) Generate() (*Curve, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(d.Seed))

	n := int(math.Floor(d.XMax()/d.DX+1e-9)) + 1
	c := &Curve{
		X:          make([]float64, n),
		Production: make([]float64, n),
		Stage:      make([]float64, n),
		XDisc:      d.XDisc,
	}
	for i := 0; i < n; i++ {
		x := float64(i) * d.DX
		c.X[i] = x
		if x >= d.XDisc {
			c.Stage[i] = 1
		}
		y := d.Level(x)
		if d.Noise > 0 {
			y *= 1 + d.Noise*rng.NormFloat64()
		}
		c.Production[i] = y
	}
	return c, nil
}

// Features derives the model features, using X as the time axis.
func (c *Curve) Features() (*series.Features, error) {
	return series.NewFeatures(c.Production, c.Stage, c.X)
}

// Grid describes a set of realizations over evenly spaced discontinuities.
type Grid struct {
	XDiscMin        float64 `yaml:"xdisc_min"`
	XDiscMax        float64 `yaml:"xdisc_max"`
	NumXDisc        int     `yaml:"num_xdisc"`
	NumRealizations int     `yaml:"num_realizations"`
}

// Realizations generates g.NumRealizations noisy curves for each of
// g.NumXDisc discontinuity positions spanning [XDiscMin, XDiscMax]. Every
// curve gets its own seed derived from base.Seed.
func Realizations(base Decline, g Grid) ([]*Curve, error) {
	if g.NumXDisc < 1 || g.NumRealizations < 1 {
		return nil, fmt.Errorf("%w: %d discontinuities, %d realizations", ErrInvalid, g.NumXDisc, g.NumRealizations)
	}
	if g.XDiscMax < g.XDiscMin {
		return nil, fmt.Errorf("%w: xdisc range [%g, %g]", ErrInvalid, g.XDiscMin, g.XDiscMax)
	}

	positions := []float64{g.XDiscMin}
	if g.NumXDisc > 1 {
		positions = floats.Span(make([]float64, g.NumXDisc), g.XDiscMin, g.XDiscMax)
	}

	curves := make([]*Curve, 0, g.NumXDisc*g.NumRealizations)
	for i, xdisc := range positions {
		for r := 0; r < g.NumRealizations; r++ {
			d := base
			d.XDisc = xdisc
			d.Seed = base.Seed + int64(i*g.NumRealizations+r)
			c, err := d.Generate()
			if err != nil {
				return nil, err
			}
			curves = append(curves, c)
		}
	}
	return curves, nil
}
