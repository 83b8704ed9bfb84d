package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, nil},
		{"single", []float64{3}, nil},
		{"pair", []float64{3, 5}, []float64{2}},
		{"decline", []float64{10, 8, 7, 7}, []float64{-2, -1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.in))
		})
	}
}

func TestDeltaLengthIsNMinusOne(t *testing.T) {
	for n := 2; n < 12; n++ {
		p := make([]float64, n)
		s := make([]float64, n)
		for i := range p {
			p[i] = float64(n - i)
		}
		f, err := NewFeatures(p, s, nil)
		require.NoError(t, err)
		assert.Len(t, f.DProductionDt, n-1)
		assert.Len(t, f.DStageDStep, n-1)
	}
}

func TestGradientWithTime(t *testing.T) {
	got, err := Gradient([]float64{10, 8, 2}, []float64{0, 2, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, -2}, got, 1e-12)

	_, err = Gradient([]float64{1, 2}, []float64{0, 0})
	assert.ErrorIs(t, err, ErrZeroTimeStep)

	_, err = Gradient([]float64{1, 2}, []float64{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewFeaturesValidation(t *testing.T) {
	_, err := NewFeatures([]float64{1, 2, 3}, []float64{0, 0}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = NewFeatures([]float64{1, 2}, []float64{0, 0}, []float64{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = NewFeatures([]float64{1}, []float64{0}, nil)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestNewFeaturesCopiesInputs(t *testing.T) {
	p := []float64{5, 4, 3}
	f, err := NewFeatures(p, []float64{0, 1, 1}, nil)
	require.NoError(t, err)

	p[0] = 100
	assert.Equal(t, 5.0, f.Production[0])
	assert.Equal(t, []float64{1, 0}, f.DStageDStep)
}

func TestMatrices(t *testing.T) {
	f, err := NewFeatures([]float64{10, 8, 9}, []float64{0, 0, 1}, []float64{0, 1, 3})
	require.NoError(t, err)

	fm := FeatureMatrix(f)
	assert.True(t, mat.Equal(fm, mat.NewDense(2, 2, []float64{
		10, 0,
		8, 1,
	})))

	tm := TargetMatrix(f)
	assert.True(t, mat.EqualApprox(tm, mat.NewDense(2, 2, []float64{
		-2, 8,
		0.5, 9,
	}), 1e-12))

	assert.Equal(t, 2.0, f.Step(2))
}

func TestStack(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})

	s, err := Stack(a, b)
	require.NoError(t, err)
	assert.True(t, mat.Equal(s, mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})))

	_, err = Stack(a, mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNextRow(t *testing.T) {
	f, err := NewFeatures([]float64{5, 4, 3}, []float64{0, 0, 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 0}, f.NextRow(1))
	assert.Equal(t, []float64{3, -1}, f.NextRow(0))
}
