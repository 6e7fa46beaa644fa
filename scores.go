package bsts

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var ErrScoreLenMismatch = errors.New("predicted and observed have different lengths")

// Scores tracks the fit scores of a predicted series against the observed
// series.
type Scores struct {
	MSE  float64 `json:"mean_squared_error"`
	MAPE float64 `json:"mean_average_percent_error"`
	R2   float64 `json:"r_squared"`
}

// NewScores calculates the fit scores given the predicted and observed input
// slice values.
func NewScores(predicted, observed []float64) (*Scores, error) {
	mse, err := MSE(predicted, observed)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean squared error, %w", err)
	}
	mape, err := MAPE(predicted, observed)
	if err != nil {
		return nil, fmt.Errorf("unable to compute mean average percent error, %w", err)
	}
	rs, err := RSquared(predicted, observed)
	if err != nil {
		return nil, fmt.Errorf("unable to compute r-squared, %w", err)
	}

	return &Scores{
		MSE:  mse,
		MAPE: mape,
		R2:   rs,
	}, nil
}

// MSE computes the mean squared error. This is the same as sum((y-yhat)^2)/n.
// A score of 0 means a perfect match with no errors. NaN values are skipped.
func MSE(predicted, observed []float64) (float64, error) {
	if len(predicted) != len(observed) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(observed), len(predicted), ErrScoreLenMismatch)
	}

	mse := 0.0
	for i := 0; i < len(observed); i++ {
		if math.IsNaN(observed[i]) || math.IsNaN(predicted[i]) {
			continue
		}
		mse += math.Pow(observed[i]-predicted[i], 2.0)
	}
	mse /= float64(len(observed))
	return mse, nil
}

// MAPE calculates the mean average percent error. This is the same as
// sum(abs((y-yhat)/y))/n. A score of 0 means a perfect match with no errors.
// NaN values and zero observations are skipped.
func MAPE(predicted, observed []float64) (float64, error) {
	if len(predicted) != len(observed) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(observed), len(predicted), ErrScoreLenMismatch)
	}

	mape := 0.0
	for i := 0; i < len(observed); i++ {
		if math.IsNaN(observed[i]) || math.IsNaN(predicted[i]) || observed[i] == 0 {
			continue
		}
		mape += math.Abs((observed[i] - predicted[i]) / observed[i])
	}
	mape /= float64(len(observed))
	return mape, nil
}

// RSquared computes the r squared value between the predicted and observed
// where 1.0 means perfect fit and 0 represents no relationship.
func RSquared(predicted, observed []float64) (float64, error) {
	if len(predicted) != len(observed) {
		return 0, fmt.Errorf("expected %d, but got %d, %w", len(observed), len(predicted), ErrScoreLenMismatch)
	}

	predictCopy := make([]float64, 0, len(predicted))
	observedCopy := make([]float64, 0, len(observed))
	for i := 0; i < len(predicted); i++ {
		if math.IsNaN(observed[i]) || math.IsNaN(predicted[i]) {
			continue
		}
		predictCopy = append(predictCopy, predicted[i])
		observedCopy = append(observedCopy, observed[i])
	}
	r2 := stat.RSquaredFrom(predictCopy, observedCopy, nil)
	if math.IsNaN(r2) {
		return 1.0, nil
	}
	return r2, nil
}
