package bsts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

// testTrace builds a two draw posterior over three steps and one control with
// exactly representable point estimates: alpha 2, beta 1, trend {1, 2, 3},
// final slope 0.5, scales {0.25, 0.5, 0.25}.
func testTrace(t *testing.T) *trace.Trace {
	t.Helper()

	tr, err := trace.New(2,
		trace.Quantity{Name: statespace.QuantitySigmaEps, Size: 1},
		trace.Quantity{Name: statespace.QuantityAlpha, Size: 1},
		trace.Quantity{Name: statespace.QuantityBeta, Size: 1},
		trace.Quantity{Name: statespace.QuantitySigmaU, Size: 1},
		trace.Quantity{Name: statespace.QuantitySigmaV, Size: 1},
		trace.Quantity{Name: statespace.QuantityDelta, Size: 2},
		trace.Quantity{Name: statespace.QuantityTrend, Size: 3},
	)
	require.Nil(t, err)

	require.Nil(t, tr.Set(0, statespace.QuantitySigmaEps, 0.125))
	require.Nil(t, tr.Set(1, statespace.QuantitySigmaEps, 0.375))
	require.Nil(t, tr.Set(0, statespace.QuantityAlpha, 1.0))
	require.Nil(t, tr.Set(1, statespace.QuantityAlpha, 3.0))
	require.Nil(t, tr.Set(0, statespace.QuantityBeta, 0.5))
	require.Nil(t, tr.Set(1, statespace.QuantityBeta, 1.5))
	require.Nil(t, tr.Set(0, statespace.QuantitySigmaU, 0.25))
	require.Nil(t, tr.Set(1, statespace.QuantitySigmaU, 0.75))
	require.Nil(t, tr.Set(0, statespace.QuantitySigmaV, 0.125))
	require.Nil(t, tr.Set(1, statespace.QuantitySigmaV, 0.375))
	require.Nil(t, tr.Set(0, statespace.QuantityDelta, 0.0, 0.25))
	require.Nil(t, tr.Set(1, statespace.QuantityDelta, 0.25, 0.75))
	require.Nil(t, tr.Set(0, statespace.QuantityTrend, 0.5, 1.5, 2.5))
	require.Nil(t, tr.Set(1, statespace.QuantityTrend, 1.5, 2.5, 3.5))
	return tr
}

func testFit(t *testing.T) *Fit {
	t.Helper()
	f, err := NewFitFromTrace(testTrace(t))
	require.Nil(t, err)
	return f
}

func TestNewFitFromTrace(t *testing.T) {
	quantities := func(betaSize, deltaSize, trendSize int) []trace.Quantity {
		return []trace.Quantity{
			{Name: statespace.QuantitySigmaEps, Size: 1},
			{Name: statespace.QuantityAlpha, Size: 1},
			{Name: statespace.QuantityBeta, Size: betaSize},
			{Name: statespace.QuantitySigmaU, Size: 1},
			{Name: statespace.QuantitySigmaV, Size: 1},
			{Name: statespace.QuantityDelta, Size: deltaSize},
			{Name: statespace.QuantityTrend, Size: trendSize},
		}
	}

	testData := map[string]struct {
		quantities []trace.Quantity
		err        error
	}{
		"valid with controls": {
			quantities: quantities(2, 3, 4),
		},
		"valid without controls": {
			quantities: quantities(0, 1, 2),
		},
		"missing slope scale": {
			quantities: []trace.Quantity{
				{Name: statespace.QuantitySigmaEps, Size: 1},
				{Name: statespace.QuantityAlpha, Size: 1},
				{Name: statespace.QuantityBeta, Size: 1},
				{Name: statespace.QuantitySigmaU, Size: 1},
				{Name: statespace.QuantityDelta, Size: 2},
				{Name: statespace.QuantityTrend, Size: 3},
			},
			err: ErrIncompleteTrace,
		},
		"vector intercept": {
			quantities: []trace.Quantity{
				{Name: statespace.QuantitySigmaEps, Size: 1},
				{Name: statespace.QuantityAlpha, Size: 3},
				{Name: statespace.QuantityBeta, Size: 1},
				{Name: statespace.QuantitySigmaU, Size: 1},
				{Name: statespace.QuantitySigmaV, Size: 1},
				{Name: statespace.QuantityDelta, Size: 2},
				{Name: statespace.QuantityTrend, Size: 3},
			},
			err: ErrMalformedTrace,
		},
		"single step trend": {
			quantities: quantities(1, 0, 1),
			err:        ErrMalformedTrace,
		},
		"slope length mismatch": {
			quantities: quantities(1, 3, 3),
			err:        ErrMalformedTrace,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			tr, err := trace.New(4, td.quantities...)
			require.Nil(t, err)

			f, err := NewFitFromTrace(tr)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				assert.Nil(t, f)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tr, f.Trace())
		})
	}

	t.Run("nil trace", func(t *testing.T) {
		_, err := NewFitFromTrace(nil)
		assert.ErrorIs(t, err, ErrIncompleteTrace)
	})
}

func TestNewFitFromTracePointEstimates(t *testing.T) {
	f := testFit(t)

	assert.Equal(t, 3, f.NumSteps())
	assert.Equal(t, 1, f.NumControls())
	assert.Equal(t, 2.0, f.alphaHat)
	assert.Equal(t, []float64{1.0}, f.betaHat)
	assert.Equal(t, 0.25, f.sigmaEpsHat)
	assert.Equal(t, 0.5, f.sigmaUHat)
	assert.Equal(t, 0.25, f.sigmaVHat)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, f.trendHat)
	assert.Equal(t, 3.0, f.trendEndHat)
	assert.Equal(t, 0.5, f.deltaEndHat)
}

func TestPosteriorModel(t *testing.T) {
	f := testFit(t)

	x, err := dataset.FromColumns([]float64{10, 20, 30})
	require.Nil(t, err)

	fitted, err := f.PosteriorModel(x)
	require.Nil(t, err)
	assert.Equal(t, []float64{13, 24, 35}, fitted)
}

func TestPosteriorModelErrors(t *testing.T) {
	testData := map[string]struct {
		fit  func(t *testing.T) *Fit
		cols [][]float64
		err  error
	}{
		"nil fit": {
			fit:  func(t *testing.T) *Fit { return nil },
			cols: [][]float64{{10, 20, 30}},
			err:  ErrInferenceNotRun,
		},
		"unfitted zero value": {
			fit:  func(t *testing.T) *Fit { return &Fit{} },
			cols: [][]float64{{10, 20, 30}},
			err:  ErrInferenceNotRun,
		},
		"row mismatch": {
			fit:  testFit,
			cols: [][]float64{{10, 20}},
			err:  statespace.ErrDimensionMismatch,
		},
		"column mismatch": {
			fit:  testFit,
			cols: [][]float64{{10, 20, 30}, {1, 0, 1}},
			err:  statespace.ErrDimensionMismatch,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			x, err := dataset.FromColumns(td.cols...)
			require.Nil(t, err)

			_, err = td.fit(t).PosteriorModel(x)
			assert.ErrorIs(t, err, td.err)
		})
	}
}

func TestFitRestoredFromBareTrace(t *testing.T) {
	f := testFit(t)

	assert.Empty(t, f.Fitted())
	assert.Empty(t, f.Residuals())
	assert.Equal(t, Scores{}, f.Scores())

	x, observed := f.TrainingData()
	assert.Nil(t, x)
	assert.Nil(t, observed)
}

func TestFitNilReceiver(t *testing.T) {
	var f *Fit

	assert.Nil(t, f.Trace())
	assert.Equal(t, 0, f.NumSteps())
	assert.Equal(t, 0, f.NumControls())
	assert.Nil(t, f.Fitted())
	assert.Nil(t, f.Residuals())
	assert.Equal(t, Scores{}, f.Scores())

	x, observed := f.TrainingData()
	assert.Nil(t, x)
	assert.Nil(t, observed)
}
