package bsts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

var (
	ErrIncompleteTrace = errors.New("trace is missing a model quantity")
	ErrMalformedTrace  = errors.New("trace quantity sizes are inconsistent")
)

// Fit holds the posterior of one sampling run along with the point estimates
// that summarization and forecasting read. All fields are fixed at
// construction and forecast noise streams are derived from an atomic call
// counter, so a Fit is safe for concurrent use.
type Fit struct {
	trace *trace.Trace

	numSteps    int
	numControls int

	alphaHat    float64
	betaHat     []float64
	sigmaEpsHat float64
	sigmaUHat   float64
	sigmaVHat   float64
	trendHat    []float64

	// forecast anchors at the end of the training window
	trendEndHat float64
	deltaEndHat float64

	// training window, unset when restored from a bare trace
	features *dataset.Table
	observed []float64
	fitted   []float64
	residual []float64
	scores   *Scores

	seed    uint64
	callSeq atomic.Uint64
}

// NewFitFromTrace rebuilds a fitted state from a previously drawn posterior
// trace, typically one persisted as JSON by an earlier run. The restored Fit
// summarizes and forecasts immediately without resampling, but carries no
// training window, so Fitted, Residuals, Scores and TrainingData report
// nothing.
func NewFitFromTrace(tr *trace.Trace) (*Fit, error) {
	if tr == nil {
		return nil, fmt.Errorf("nil trace, %w", ErrIncompleteTrace)
	}

	sizes := make(map[string]int)
	for _, q := range tr.Quantities() {
		sizes[q.Name] = q.Size
	}
	for _, name := range []string{
		statespace.QuantitySigmaEps,
		statespace.QuantityAlpha,
		statespace.QuantityBeta,
		statespace.QuantitySigmaU,
		statespace.QuantitySigmaV,
		statespace.QuantityDelta,
		statespace.QuantityTrend,
	} {
		if _, exists := sizes[name]; !exists {
			return nil, fmt.Errorf("quantity %q, %w", name, ErrIncompleteTrace)
		}
	}
	for _, name := range []string{
		statespace.QuantitySigmaEps,
		statespace.QuantityAlpha,
		statespace.QuantitySigmaU,
		statespace.QuantitySigmaV,
	} {
		if sizes[name] != 1 {
			return nil, fmt.Errorf("quantity %q has size %d instead of 1, %w", name, sizes[name], ErrMalformedTrace)
		}
	}
	numSteps := sizes[statespace.QuantityTrend]
	if numSteps < 2 {
		return nil, fmt.Errorf("trend covers %d steps, %w", numSteps, ErrMalformedTrace)
	}
	if sizes[statespace.QuantityDelta] != numSteps-1 {
		return nil, fmt.Errorf("slope process covers %d steps against a trend of %d, %w",
			sizes[statespace.QuantityDelta], numSteps, ErrMalformedTrace)
	}

	f := &Fit{
		trace:       tr,
		numSteps:    numSteps,
		numControls: sizes[statespace.QuantityBeta],
	}

	var err error
	if f.alphaHat, err = tr.Mean(statespace.QuantityAlpha, 0); err != nil {
		return nil, err
	}
	if f.sigmaEpsHat, err = tr.Mean(statespace.QuantitySigmaEps, 0); err != nil {
		return nil, err
	}
	if f.sigmaUHat, err = tr.Mean(statespace.QuantitySigmaU, 0); err != nil {
		return nil, err
	}
	if f.sigmaVHat, err = tr.Mean(statespace.QuantitySigmaV, 0); err != nil {
		return nil, err
	}
	if f.betaHat, err = tr.MeanVector(statespace.QuantityBeta); err != nil {
		return nil, err
	}
	if f.trendHat, err = tr.MeanVector(statespace.QuantityTrend); err != nil {
		return nil, err
	}
	if f.deltaEndHat, err = tr.Mean(statespace.QuantityDelta, numSteps-2); err != nil {
		return nil, err
	}
	f.trendEndHat = f.trendHat[numSteps-1]

	return f, nil
}

// Trace returns the posterior draws backing this fit.
func (f *Fit) Trace() *trace.Trace {
	if f == nil {
		return nil
	}
	return f.trace
}

// NumSteps returns the number of observations the model was fit over.
func (f *Fit) NumSteps() int {
	if f == nil {
		return 0
	}
	return f.numSteps
}

// NumControls returns the number of control columns the model was fit over.
func (f *Fit) NumControls() int {
	if f == nil {
		return 0
	}
	return f.numControls
}

// PosteriorModel reconstructs the in-sample signal over the training window,
// the per-step posterior mean of the trend plus the posterior mean regression
// on the given control table. Comparing the result against the observed
// series shows what the model attributes to structure rather than noise. The
// table must match the training dimensions exactly.
func (f *Fit) PosteriorModel(features *dataset.Table) ([]float64, error) {
	if f == nil || f.trace == nil {
		return nil, ErrInferenceNotRun
	}
	if features.Rows() != f.numSteps || features.Cols() != f.numControls {
		return nil, fmt.Errorf("got a %dx%d control table against a fit over %d steps and %d controls, %w",
			features.Rows(), features.Cols(), f.numSteps, f.numControls, statespace.ErrDimensionMismatch)
	}

	out := statespace.Regression(f.alphaHat, f.betaHat, features)
	floats.Add(out, f.trendHat)
	return out, nil
}

// Fitted returns the in-sample signal over the training window. Empty when
// restored from a bare trace.
func (f *Fit) Fitted() []float64 {
	if f == nil {
		return nil
	}
	fitted := make([]float64, len(f.fitted))
	copy(fitted, f.fitted)
	return fitted
}

// Residuals returns the observed series minus the in-sample signal. Empty
// when restored from a bare trace.
func (f *Fit) Residuals() []float64 {
	if f == nil {
		return nil
	}
	residual := make([]float64, len(f.residual))
	copy(residual, f.residual)
	return residual
}

// Scores returns the fit scores of the in-sample signal against the training
// series. Zero value when restored from a bare trace.
func (f *Fit) Scores() Scores {
	if f == nil || f.scores == nil {
		return Scores{}
	}
	return *f.scores
}

// TrainingData returns copies of the control table and observed series the
// model was fit on. Both are nil when restored from a bare trace.
func (f *Fit) TrainingData() (*dataset.Table, []float64) {
	if f == nil || f.observed == nil {
		return nil, nil
	}
	observed := make([]float64, len(f.observed))
	copy(observed, f.observed)
	return f.features.Copy(), observed
}
