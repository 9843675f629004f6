package model

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Score holds the test metrics of one model.
type Score struct {
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate scores predictions against actual values.
func Evaluate(actual, predicted []float64) Score {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return Score{RMSE: math.NaN(), R2: math.NaN()}
	}
	var ss float64
	for i := range actual {
		d := actual[i] - predicted[i]
		ss += d * d
	}
	return Score{
		RMSE: math.Sqrt(ss / float64(len(actual))),
		R2:   stat.RSquaredFrom(predicted, actual, nil),
	}
}

// better reports whether a ranks above b. NaN ranks last.
func better(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}
