// Package bsts fits a Bayesian structural time series model to an observed
// series: a stochastic local linear trend plus a linear regression on
// exogenous control series and Gaussian observation noise. Fitting draws from
// the joint posterior with a pluggable sampler. The resulting Fit reconstructs
// the in-sample signal for diagnostics and simulates the series forward under
// the hypothesis that nothing intervenes beyond the training window, which
// makes the forecast a baseline to measure an intervention against.
package bsts

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/sampler"
	"github.com/go-bsts/bsts/statespace"
)

var (
	ErrNoOptions          = errors.New("no options set on model")
	ErrInferenceNotRun    = errors.New("no posterior sampling run available")
	ErrInferenceFailure   = errors.New("posterior sampling failed")
	ErrInvalidSampleCount = errors.New("number of samples must be positive")
)

// Options represents input options for a Model.
type Options struct {
	// Sampler draws from the posterior during Fit. A nil sampler falls back
	// to a Gibbs sampler with default settings.
	Sampler sampler.Sampler

	// Seed seeds the noise streams used by forecast simulation. 0 derives
	// seeds from the global generator, so repeated forecasts differ.
	Seed uint64
}

// NewDefaultOptions returns a default set of model options.
func NewDefaultOptions() *Options {
	return &Options{
		Sampler: sampler.Default(),
	}
}

// Model describes an unfitted structural time series model. Fit binds the
// model to a training set and returns a new Fit holding the posterior, so a
// single Model can fit any number of datasets and a completed fit is never
// mutated afterwards.
type Model struct {
	opt *Options
}

// New creates a new instance of a Model using the provided options. If no
// options are provided a default is used.
func New(opt *Options) (*Model, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if opt.Sampler == nil {
		opt.Sampler = sampler.Default()
	}
	return &Model{opt: opt}, nil
}

// Fit draws numSamples posterior samples of the model bound to the observed
// series and its control table, blocking until sampling completes. The table
// must carry one row per observation and may have zero control columns, which
// degrades the regression to an intercept. Fit returns a new fitted state and
// leaves the model untouched; on any error no usable fit exists and the
// caller decides whether to retry.
func (m *Model) Fit(features *dataset.Table, observed []float64, numSamples int) (*Fit, error) {
	if m == nil || m.opt == nil {
		return nil, ErrNoOptions
	}
	if numSamples <= 0 {
		return nil, fmt.Errorf("got %d samples, %w", numSamples, ErrInvalidSampleCount)
	}

	spec, err := statespace.New(features, observed)
	if err != nil {
		return nil, fmt.Errorf("unable to bind model specification, %w", err)
	}

	tr, err := m.opt.Sampler.Sample(spec, numSamples)
	if err != nil {
		return nil, fmt.Errorf("%w, %w", ErrInferenceFailure, err)
	}

	f, err := NewFitFromTrace(tr)
	if err != nil {
		return nil, fmt.Errorf("sampler returned an unusable trace, %w", err)
	}
	f.seed = m.opt.Seed
	f.features = spec.Features()
	f.observed = spec.Observed()

	fitted, err := f.PosteriorModel(f.features)
	if err != nil {
		return nil, err
	}
	f.fitted = fitted

	scores, err := NewScores(fitted, f.observed)
	if err != nil {
		return nil, err
	}
	f.scores = scores

	residual := make([]float64, len(f.observed))
	floats.Add(residual, f.observed)
	floats.Sub(residual, fitted)
	f.residual = residual

	return f, nil
}
