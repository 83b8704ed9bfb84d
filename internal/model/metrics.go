package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics compares a forecast with the realized values.
type Metrics struct {
	RMSE float64 `yaml:"rmse"`
	MAE  float64 `yaml:"mae"`
	// Bias is the mean of forecast minus actual.
	Bias float64 `yaml:"bias"`
}

// Score computes forecast error metrics over equally long series.
func Score(forecast, actual []float64) (Metrics, error) {
	if len(forecast) != len(actual) || len(forecast) == 0 {
		return Metrics{}, fmt.Errorf("model: cannot score %d forecasts against %d values", len(forecast), len(actual))
	}
	diff := make([]float64, len(forecast))
	floats.SubTo(diff, forecast, actual)

	abs := make([]float64, len(diff))
	sq := make([]float64, len(diff))
	for i, d := range diff {
		abs[i] = math.Abs(d)
		sq[i] = d * d
	}
	return Metrics{
		RMSE: math.Sqrt(stat.Mean(sq, nil)),
		MAE:  stat.Mean(abs, nil),
		Bias: stat.Mean(diff, nil),
	}, nil
}
