// Package sampler draws from the posterior of a structural time series model
// graph. Backends only need to satisfy the Sampler interface, so the fitting
// layer stays independent of the inference algorithm.
package sampler

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

var (
	ErrNoOptions          = errors.New("no sampler options")
	ErrNoSpecification    = errors.New("no model specification")
	ErrChainDiverged      = errors.New("chain produced a non-finite state")
	ErrProposalCovariance = errors.New("proposal covariance is not positive definite")
	ErrNegativeBurnIn     = errors.New("negative burn-in")
	ErrInvalidThin        = errors.New("negative thinning interval")
	ErrInvalidStep        = errors.New("negative step size")
)

// Sampler produces a posterior trace for a bound model graph. Implementations
// must return a trace holding exactly numSamples draws for every quantity the
// specification declares, or an error and no trace.
type Sampler interface {
	Sample(spec *statespace.Spec, numSamples int) (*trace.Trace, error)
}

// Default returns the sampler used when a caller does not pick one: a Gibbs
// sampler with default options.
func Default() Sampler {
	return &Gibbs{opt: NewDefaultGibbsOptions()}
}

// scaleFloor keeps initial and proposed scales away from zero where the log
// posterior is unbounded below.
const scaleFloor = 1e-3

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed+1))
}

// initialPoint builds the chain start: regression parameters from an ordinary
// least squares warm start, a flat latent state, and residual-sized scales.
func initialPoint(spec *statespace.Spec) *statespace.Point {
	p := spec.NewPoint()
	alpha, beta := warmStart(spec)
	p.Alpha = alpha
	copy(p.Beta, beta)

	resid := spec.Observed()
	reg := statespace.Regression(alpha, beta, spec.Features())
	for t := range resid {
		resid[t] -= reg[t]
	}
	sd := stat.StdDev(resid, nil)
	if math.IsNaN(sd) || sd < scaleFloor {
		sd = scaleFloor
	}
	p.SigmaEps = sd
	p.SigmaU = sd
	p.SigmaV = math.Max(sd/2, scaleFloor)
	return p
}

// warmStart regresses the observations on the control series with an
// intercept using a QR factorization. Rank deficient designs, such as an
// all-zero control column, fall back to a mean-level start with zero
// coefficients.
func warmStart(spec *statespace.Spec) (float64, []float64) {
	y := spec.Observed()
	T := spec.Len()
	K := spec.NumControls()

	meanLevel := stat.Mean(y, nil)
	beta := make([]float64, K)
	if K == 0 || T < K+1 {
		return meanLevel, beta
	}

	n := K + 1
	data := make([]float64, T*n)
	features := spec.Features()
	for i := 0; i < T; i++ {
		data[i*n] = 1.0
		for k := 0; k < K; k++ {
			v, _ := features.At(i, k)
			data[i*n+k+1] = v
		}
	}
	x := mat.NewDense(T, n, data)
	yMx := mat.NewDense(T, 1, y)

	qr := new(mat.QR)
	qr.Factorize(x)

	q := new(mat.Dense)
	r := new(mat.Dense)
	qr.QTo(q)
	qr.RTo(r)

	var yq mat.Dense
	yq.Mul(yMx.T(), q)

	c := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		if math.Abs(r.At(i, i)) < 1e-10 {
			return meanLevel, beta
		}
		c[i] = yq.At(0, i)
		for j := i + 1; j < n; j++ {
			c[i] -= c[j] * r.At(i, j)
		}
		c[i] /= r.At(i, i)
	}
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return meanLevel, beta
		}
	}
	return c[0], c[1:]
}

func pointFinite(p *statespace.Point) bool {
	vals := []float64{p.SigmaEps, p.Alpha, p.SigmaU, p.SigmaV}
	vals = append(vals, p.Beta...)
	vals = append(vals, p.Delta...)
	vals = append(vals, p.Trend...)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func recordPoint(tr *trace.Trace, draw int, p *statespace.Point) error {
	if err := tr.Set(draw, statespace.QuantitySigmaEps, p.SigmaEps); err != nil {
		return err
	}
	if err := tr.Set(draw, statespace.QuantityAlpha, p.Alpha); err != nil {
		return err
	}
	if err := tr.Set(draw, statespace.QuantityBeta, p.Beta...); err != nil {
		return err
	}
	if err := tr.Set(draw, statespace.QuantitySigmaU, p.SigmaU); err != nil {
		return err
	}
	if err := tr.Set(draw, statespace.QuantitySigmaV, p.SigmaV); err != nil {
		return err
	}
	if err := tr.Set(draw, statespace.QuantityDelta, p.Delta...); err != nil {
		return err
	}
	return tr.Set(draw, statespace.QuantityTrend, p.Trend...)
}
