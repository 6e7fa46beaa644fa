package bsts

import (
	"errors"
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/sampler"
	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

// stubSampler records how Fit drives the sampling seam and returns a canned
// trace or error.
type stubSampler struct {
	calls      int
	spec       *statespace.Spec
	numSamples int

	tr  *trace.Trace
	err error
}

func (s *stubSampler) Sample(spec *statespace.Spec, numSamples int) (*trace.Trace, error) {
	s.calls++
	s.spec = spec
	s.numSamples = numSamples
	if s.err != nil {
		return nil, s.err
	}
	return s.tr, nil
}

func TestNew(t *testing.T) {
	m, err := New(nil)
	require.Nil(t, err)
	require.NotNil(t, m.opt)
	assert.IsType(t, &sampler.Gibbs{}, m.opt.Sampler)

	m, err = New(&Options{Seed: 42})
	require.Nil(t, err)
	assert.IsType(t, &sampler.Gibbs{}, m.opt.Sampler)
	assert.Equal(t, uint64(42), m.opt.Seed)

	stub := &stubSampler{}
	m, err = New(&Options{Sampler: stub})
	require.Nil(t, err)
	assert.Equal(t, stub, m.opt.Sampler)
}

func TestModelFit(t *testing.T) {
	stub := &stubSampler{tr: testTrace(t)}
	m, err := New(&Options{Sampler: stub, Seed: 11})
	require.Nil(t, err)

	x, err := dataset.FromColumns([]float64{10, 20, 30})
	require.Nil(t, err)
	observed := []float64{13, 24, 35}

	f, err := m.Fit(x, observed, 2)
	require.Nil(t, err)

	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, 2, stub.numSamples)
	assert.Equal(t, 3, stub.spec.Len())
	assert.Equal(t, 1, stub.spec.NumControls())

	// the canned posterior reproduces the observations exactly
	assert.Equal(t, observed, f.Fitted())
	assert.Equal(t, []float64{0, 0, 0}, f.Residuals())

	scores := f.Scores()
	assert.Equal(t, 0.0, scores.MSE)
	assert.Equal(t, 0.0, scores.MAPE)
	assert.Equal(t, 1.0, scores.R2)

	gotX, gotObserved := f.TrainingData()
	assert.Equal(t, observed, gotObserved)
	require.NotNil(t, gotX)
	assert.Equal(t, 3, gotX.Rows())
	assert.Equal(t, 1, gotX.Cols())
}

func TestModelFitErrors(t *testing.T) {
	testData := map[string]struct {
		stub       func(t *testing.T) *stubSampler
		cols       [][]float64
		observed   []float64
		numSamples int
		err        error
		wantCalls  int
	}{
		"invalid sample count": {
			stub:       func(t *testing.T) *stubSampler { return &stubSampler{} },
			cols:       [][]float64{{1, 2, 3}},
			observed:   []float64{1, 2, 3},
			numSamples: 0,
			err:        ErrInvalidSampleCount,
		},
		"length mismatch": {
			stub:       func(t *testing.T) *stubSampler { return &stubSampler{} },
			cols:       [][]float64{{1, 2, 3}},
			observed:   []float64{1, 2},
			numSamples: 10,
			err:        statespace.ErrDimensionMismatch,
		},
		"non finite observation": {
			stub:       func(t *testing.T) *stubSampler { return &stubSampler{} },
			cols:       [][]float64{{1, 2, 3}},
			observed:   []float64{1, math.NaN(), 3},
			numSamples: 10,
			err:        statespace.ErrNonFiniteValue,
		},
		"too short series": {
			stub:       func(t *testing.T) *stubSampler { return &stubSampler{} },
			cols:       [][]float64{{1}},
			observed:   []float64{1},
			numSamples: 10,
			err:        statespace.ErrInsufficientData,
		},
		"unusable trace": {
			stub: func(t *testing.T) *stubSampler {
				tr, err := trace.New(2, trace.Quantity{Name: statespace.QuantityTrend, Size: 3})
				require.Nil(t, err)
				return &stubSampler{tr: tr}
			},
			cols:       [][]float64{{1, 2, 3}},
			observed:   []float64{1, 2, 3},
			numSamples: 2,
			err:        ErrIncompleteTrace,
			wantCalls:  1,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			stub := td.stub(t)
			m, err := New(&Options{Sampler: stub})
			require.Nil(t, err)

			x, err := dataset.FromColumns(td.cols...)
			require.Nil(t, err)

			f, err := m.Fit(x, td.observed, td.numSamples)
			assert.ErrorIs(t, err, td.err)
			assert.Nil(t, f)
			assert.Equal(t, td.wantCalls, stub.calls)
		})
	}
}

func TestModelFitNilModel(t *testing.T) {
	var m *Model

	x, err := dataset.FromColumns([]float64{1, 2, 3})
	require.Nil(t, err)

	_, err = m.Fit(x, []float64{1, 2, 3}, 10)
	assert.ErrorIs(t, err, ErrNoOptions)
}

func TestModelFitSamplerFailure(t *testing.T) {
	cause := errors.New("chain stalled")
	stub := &stubSampler{err: cause}
	m, err := New(&Options{Sampler: stub})
	require.Nil(t, err)

	x, err := dataset.FromColumns([]float64{1, 2, 3})
	require.Nil(t, err)

	f, err := m.Fit(x, []float64{1, 2, 3}, 10)
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, f)
	assert.Equal(t, 1, stub.calls)
}

// TestModelFitStableSeries fits a short stable series against a single
// all-zero control and checks the posterior behaves: the useless control gets
// no weight, the in-sample signal hugs the observations, and a no-noise one
// step forecast continues the fitted level within the posterior spread of the
// final state.
func TestModelFitStableSeries(t *testing.T) {
	gibbs, err := sampler.NewGibbs(&sampler.GibbsOptions{BurnIn: 500, Seed: 2})
	require.Nil(t, err)
	m, err := New(&Options{Sampler: gibbs, Seed: 31})
	require.Nil(t, err)

	observed := []float64{1.0, 1.2, 0.9, 1.4, 1.1}
	x, err := dataset.FromColumns(make([]float64, len(observed)))
	require.Nil(t, err)

	f, err := m.Fit(x, observed, 500)
	require.Nil(t, err)
	require.Equal(t, 500, f.Trace().NumSamples())
	require.True(t, f.Trace().Finite())

	// an all-zero control explains nothing, so its weight stays at its prior
	// mean of zero
	assert.InDelta(t, 0.0, f.betaHat[0], 1.5)

	fitted := f.Fitted()
	mad := 0.0
	for i := range observed {
		mad += math.Abs(fitted[i] - observed[i])
	}
	mad /= float64(len(observed))
	assert.Less(t, mad, 0.3)

	horizon, err := dataset.FromColumns([]float64{0})
	require.Nil(t, err)
	next, err := f.Predict(horizon, false)
	require.Nil(t, err)

	stdTrend, err := f.Trace().StdDev(statespace.QuantityTrend, len(observed)-1)
	require.Nil(t, err)
	stdDelta, err := f.Trace().StdDev(statespace.QuantityDelta, len(observed)-2)
	require.Nil(t, err)
	assert.InDelta(t, fitted[len(observed)-1], next[0], 3*(stdTrend+stdDelta)+1e-9)
}

// TestFitTraceRoundTrip persists a posterior as JSON and restores a fit from
// it, checking summarization and forecasting agree with the original fit.
func TestFitTraceRoundTrip(t *testing.T) {
	gibbs, err := sampler.NewGibbs(&sampler.GibbsOptions{BurnIn: 100, Seed: 3})
	require.Nil(t, err)
	m, err := New(&Options{Sampler: gibbs})
	require.Nil(t, err)

	observed := []float64{1.0, 1.2, 0.9, 1.4, 1.1, 1.3, 1.2}
	x, err := dataset.FromColumns([]float64{0, 1, 0, 1, 0, 1, 0})
	require.Nil(t, err)

	f, err := m.Fit(x, observed, 50)
	require.Nil(t, err)

	buf, err := json.Marshal(f.Trace())
	require.Nil(t, err)

	var restored trace.Trace
	require.Nil(t, json.Unmarshal(buf, &restored))

	rf, err := NewFitFromTrace(&restored)
	require.Nil(t, err)
	assert.Equal(t, f.NumSteps(), rf.NumSteps())
	assert.Equal(t, f.NumControls(), rf.NumControls())

	wantModel, err := f.PosteriorModel(x)
	require.Nil(t, err)
	gotModel, err := rf.PosteriorModel(x)
	require.Nil(t, err)
	assert.InDeltaSlice(t, wantModel, gotModel, 1e-12)

	horizon, err := dataset.FromColumns([]float64{1, 0, 1})
	require.Nil(t, err)
	wantForecast, err := f.Predict(horizon, false)
	require.Nil(t, err)
	gotForecast, err := rf.Predict(horizon, false)
	require.Nil(t, err)
	assert.InDeltaSlice(t, wantForecast, gotForecast, 1e-12)
}
