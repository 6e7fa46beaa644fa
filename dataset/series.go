package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Series is a scalar time series indexed by step. The mutating helpers return
// the receiver so simulated components can be chained with Add.
type Series []float64

func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

func (s Series) AddConst(val float64) Series {
	floats.AddConst(val, s)
	return s
}

func (s Series) Copy() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// ConstSeries returns n copies of val.
func ConstSeries(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

// WaveSeries returns a sinusoid sampled at integer steps with the given
// amplitude, period in steps, and phase offset in steps.
func WaveSeries(n int, amp, period, phase float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		val := amp * math.Sin(2.0*math.Pi/period*(float64(i)+phase))
		y = append(y, val)
	}
	return Series(y)
}

// LinearSeries returns intercept + slope*step.
func LinearSeries(n int, intercept, slope float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, intercept+slope*float64(i))
	}
	return Series(y)
}

// NoiseSeries returns independent Gaussian noise with the given scale.
func NoiseSeries(rng *rand.Rand, n int, scale float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, rng.NormFloat64()*scale)
	}
	return Series(y)
}

// LocalLinearTrendSeries simulates a stochastic level whose slope itself
// drifts as a random walk. level and slope give the starting state, sigmaU
// scales the level innovations and sigmaV the slope innovations.
func LocalLinearTrendSeries(rng *rand.Rand, n int, level, slope, sigmaU, sigmaV float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, level)
		slope += rng.NormFloat64() * sigmaV
		level += slope + rng.NormFloat64()*sigmaU
	}
	return Series(y)
}
