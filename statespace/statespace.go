// Package statespace declares the structural time series model graph: a
// stochastic local linear trend plus a linear regression on exogenous control
// series and Gaussian observation noise. The package only describes the model
// and evaluates its joint density; drawing from the posterior is the sampler's
// concern.
package statespace

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/trace"
)

var (
	ErrDimensionMismatch = errors.New("control series and observations have different lengths")
	ErrInsufficientData  = errors.New("observations are too short to carry a trend")
	ErrNonFiniteValue    = errors.New("input contains a non-finite value")
)

// Names of the random quantities in the model graph. Samplers must produce a
// trace holding draws for every one of them.
const (
	QuantitySigmaEps = "sigma_eps"
	QuantityAlpha    = "alpha"
	QuantityBeta     = "beta"
	QuantitySigmaU   = "sigma_u"
	QuantitySigmaV   = "sigma_v"
	QuantityDelta    = "delta"
	QuantityTrend    = "trend"
)

// Weakly informative prior scales. Scale parameters get a half-normal prior
// and regression parameters a wide zero-centered normal.
const (
	ScalePriorSigma = 1.0
	CoefPriorSigma  = 10.0
)

// Spec binds the model graph to a training set. The observed series
// decomposes as
//
//	y[t] = trend[t] + alpha + sum_k beta[k]*x[t,k] + eps[t]
//
// where trend is a Gaussian random walk whose per-step drift is the value of
// a second Gaussian random walk delta. Both walks leave their first element
// unconstrained. delta has length T-1 since it only steers the T-1 level
// transitions.
type Spec struct {
	features *dataset.Table
	observed []float64
}

// New validates the training set against the graph and binds it. The number
// of control series may be zero, but every control must cover all T steps and
// T must be at least 2 so the trend has a transition to anchor forecasts on.
func New(features *dataset.Table, observed []float64) (*Spec, error) {
	if features.Rows() != len(observed) {
		return nil, fmt.Errorf(
			"control series have %d rows, but observations have length %d, %w",
			features.Rows(), len(observed), ErrDimensionMismatch,
		)
	}
	if len(observed) < 2 {
		return nil, fmt.Errorf("got %d observations, %w", len(observed), ErrInsufficientData)
	}
	for t, v := range observed {
		if !isFinite(v) {
			return nil, fmt.Errorf("observation at step %d, %w", t, ErrNonFiniteValue)
		}
	}
	for c := 0; c < features.Cols(); c++ {
		col, err := features.Col(c)
		if err != nil {
			return nil, err
		}
		for t, v := range col {
			if !isFinite(v) {
				return nil, fmt.Errorf("control %d at step %d, %w", c, t, ErrNonFiniteValue)
			}
		}
	}

	obs := make([]float64, len(observed))
	copy(obs, observed)
	return &Spec{
		features: features.Copy(),
		observed: obs,
	}, nil
}

// Len returns the number of time steps T.
func (s *Spec) Len() int {
	if s == nil {
		return 0
	}
	return len(s.observed)
}

// NumControls returns the number of control series K.
func (s *Spec) NumControls() int {
	if s == nil {
		return 0
	}
	return s.features.Cols()
}

// Observed returns a copy of the training observations.
func (s *Spec) Observed() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.observed))
	copy(out, s.observed)
	return out
}

// Features returns a copy of the bound control series.
func (s *Spec) Features() *dataset.Table {
	if s == nil {
		return nil
	}
	return s.features.Copy()
}

// Quantities declares the random quantities of the graph in declaration
// order, sized for the bound training set.
func (s *Spec) Quantities() []trace.Quantity {
	if s == nil {
		return nil
	}
	return []trace.Quantity{
		{Name: QuantitySigmaEps, Size: 1},
		{Name: QuantityAlpha, Size: 1},
		{Name: QuantityBeta, Size: s.NumControls()},
		{Name: QuantitySigmaU, Size: 1},
		{Name: QuantitySigmaV, Size: 1},
		{Name: QuantityDelta, Size: s.Len() - 1},
		{Name: QuantityTrend, Size: s.Len()},
	}
}

// Point is one assignment of all random quantities in natural space.
type Point struct {
	SigmaEps float64
	Alpha    float64
	Beta     []float64
	SigmaU   float64
	SigmaV   float64
	Delta    []float64
	Trend    []float64
}

// NewPoint allocates a zero point shaped for the bound training set.
func (s *Spec) NewPoint() *Point {
	if s == nil {
		return nil
	}
	return &Point{
		Beta:  make([]float64, s.NumControls()),
		Delta: make([]float64, s.Len()-1),
		Trend: make([]float64, s.Len()),
	}
}

// Copy returns a deep copy of the point.
func (p *Point) Copy() *Point {
	if p == nil {
		return nil
	}
	out := &Point{
		SigmaEps: p.SigmaEps,
		Alpha:    p.Alpha,
		Beta:     make([]float64, len(p.Beta)),
		SigmaU:   p.SigmaU,
		SigmaV:   p.SigmaV,
		Delta:    make([]float64, len(p.Delta)),
		Trend:    make([]float64, len(p.Trend)),
	}
	copy(out.Beta, p.Beta)
	copy(out.Delta, p.Delta)
	copy(out.Trend, p.Trend)
	return out
}

// Dim returns the number of scalar values in one point: the four scalar
// parameters plus the coefficient vector and both walks.
func (s *Spec) Dim() int {
	if s == nil {
		return 0
	}
	return 4 + s.NumControls() + (s.Len() - 1) + s.Len()
}

// Regression evaluates alpha + sum_k beta[k]*x[t,k] for every row of x.
func Regression(alpha float64, beta []float64, x *dataset.Table) []float64 {
	out := make([]float64, x.Rows())
	for t := range out {
		v := alpha
		for k := range beta {
			xv, _ := x.At(t, k)
			v += beta[k] * xv
		}
		out[t] = v
	}
	return out
}

// LogDensity evaluates the joint log posterior density of the point up to an
// additive constant. Points outside the support, nil points, and points
// shaped for a different training set score negative infinity.
func (s *Spec) LogDensity(p *Point) float64 {
	if s == nil || p == nil {
		return math.Inf(-1)
	}
	T := s.Len()
	if len(p.Beta) != s.NumControls() || len(p.Delta) != T-1 || len(p.Trend) != T {
		return math.Inf(-1)
	}
	if p.SigmaEps <= 0 || p.SigmaU <= 0 || p.SigmaV <= 0 {
		return math.Inf(-1)
	}

	scalePrior := distuv.Normal{Mu: 0, Sigma: ScalePriorSigma}
	coefPrior := distuv.Normal{Mu: 0, Sigma: CoefPriorSigma}

	lp := scalePrior.LogProb(p.SigmaEps) +
		scalePrior.LogProb(p.SigmaU) +
		scalePrior.LogProb(p.SigmaV) +
		coefPrior.LogProb(p.Alpha)
	for _, b := range p.Beta {
		lp += coefPrior.LogProb(b)
	}

	// Slope walk; the first element is unconstrained.
	slopeStep := distuv.Normal{Mu: 0, Sigma: p.SigmaV}
	for j := 1; j < len(p.Delta); j++ {
		lp += slopeStep.LogProb(p.Delta[j] - p.Delta[j-1])
	}

	// Level walk with the slope value as per-step drift; the first element is
	// unconstrained.
	levelStep := distuv.Normal{Mu: 0, Sigma: p.SigmaU}
	for t := 1; t < T; t++ {
		lp += levelStep.LogProb(p.Trend[t] - p.Trend[t-1] - p.Delta[t-1])
	}

	obsNoise := distuv.Normal{Mu: 0, Sigma: p.SigmaEps}
	reg := Regression(p.Alpha, p.Beta, s.features)
	for t := 0; t < T; t++ {
		lp += obsNoise.LogProb(s.observed[t] - p.Trend[t] - reg[t])
	}
	return lp
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
