package sampler

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

const (
	DefaultRandomWalkBurnIn   = 2000
	DefaultRandomWalkThin     = 1
	DefaultRandomWalkStepSize = 0.05
)

// RandomWalkOptions represents input options for the random walk sampler.
type RandomWalkOptions struct {
	// BurnIn is the number of initial proposals discarded before draws are
	// recorded.
	BurnIn int

	// Thin records every Thin-th proposal after burn-in. 0 keeps every one.
	Thin int

	// StepSize is the standard deviation of the spherical Gaussian proposal.
	// 0 uses the default.
	StepSize float64

	// Seed seeds the chain. 0 derives a seed from the global generator.
	Seed uint64
}

// Validate runs basic validation on random walk options
func (o *RandomWalkOptions) Validate() (*RandomWalkOptions, error) {
	if o == nil {
		o = NewDefaultRandomWalkOptions()
	}
	if o.BurnIn < 0 {
		return nil, ErrNegativeBurnIn
	}
	if o.Thin < 0 {
		return nil, ErrInvalidThin
	}
	if o.Thin == 0 {
		o.Thin = DefaultRandomWalkThin
	}
	if o.StepSize < 0 {
		return nil, ErrInvalidStep
	}
	if o.StepSize == 0 {
		o.StepSize = DefaultRandomWalkStepSize
	}
	return o, nil
}

// NewDefaultRandomWalkOptions returns a default set of random walk sampler
// options
func NewDefaultRandomWalkOptions() *RandomWalkOptions {
	return &RandomWalkOptions{
		BurnIn:   DefaultRandomWalkBurnIn,
		Thin:     DefaultRandomWalkThin,
		StepSize: DefaultRandomWalkStepSize,
	}
}

// RandomWalk proposes joint Gaussian moves of the full parameter vector in
// unconstrained space and accepts them with the Metropolis-Hastings rule.
// Scale parameters move on their logs. It mixes far slower than Gibbs on long
// series and exists for cross-checking and as a template for swapping in
// other whole-vector samplers.
type RandomWalk struct {
	opt *RandomWalkOptions
}

// NewRandomWalk initializes a random walk sampler ready to draw from a
// posterior.
func NewRandomWalk(opt *RandomWalkOptions) (*RandomWalk, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &RandomWalk{opt: opt}, nil
}

// Sample draws numSamples posterior draws for every quantity of the graph.
func (rw *RandomWalk) Sample(spec *statespace.Spec, numSamples int) (*trace.Trace, error) {
	if rw == nil || rw.opt == nil {
		return nil, ErrNoOptions
	}
	if spec == nil {
		return nil, ErrNoSpecification
	}
	tr, err := trace.New(numSamples, spec.Quantities()...)
	if err != nil {
		return nil, err
	}

	dim := spec.Dim()
	rng := newRand(rw.opt.Seed)

	sigma := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		sigma.SetSym(i, i, rw.opt.StepSize*rw.opt.StepSize)
	}
	proposal, ok := samplemv.NewProposalNormal(sigma, rng)
	if !ok {
		return nil, ErrProposalCovariance
	}

	mh := samplemv.MetropolisHastingser{
		Initial:  flattenPoint(initialPoint(spec)),
		Target:   unconstrainedTarget{spec: spec},
		Proposal: proposal,
		Src:      rng,
		BurnIn:   rw.opt.BurnIn,
		Rate:     rw.opt.Thin,
	}

	batch := mat.NewDense(numSamples, dim, nil)
	mh.Sample(batch)

	p := spec.NewPoint()
	for i := 0; i < numSamples; i++ {
		unflattenPoint(batch.RawRowView(i), p)
		if !pointFinite(p) {
			return nil, fmt.Errorf("draw %d, %w", i, ErrChainDiverged)
		}
		if err := recordPoint(tr, i, p); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// unconstrainedTarget adapts the model graph to a flat-vector log density.
// The three scales live on their logs in the flat vector, so the density
// carries the change of variables term for each.
type unconstrainedTarget struct {
	spec *statespace.Spec
}

func (u unconstrainedTarget) LogProb(x []float64) float64 {
	p := u.spec.NewPoint()
	unflattenPoint(x, p)
	lp := u.spec.LogDensity(p)
	if math.IsInf(lp, -1) {
		return lp
	}
	K := len(p.Beta)
	return lp + x[0] + x[2+K] + x[3+K]
}

// flattenPoint lays a point out as one vector in quantity declaration order
// with scales replaced by their logs.
func flattenPoint(p *statespace.Point) []float64 {
	x := make([]float64, 0, 4+len(p.Beta)+len(p.Delta)+len(p.Trend))
	x = append(x, math.Log(p.SigmaEps), p.Alpha)
	x = append(x, p.Beta...)
	x = append(x, math.Log(p.SigmaU), math.Log(p.SigmaV))
	x = append(x, p.Delta...)
	x = append(x, p.Trend...)
	return x
}

func unflattenPoint(x []float64, p *statespace.Point) {
	K := len(p.Beta)
	p.SigmaEps = math.Exp(x[0])
	p.Alpha = x[1]
	copy(p.Beta, x[2:2+K])
	p.SigmaU = math.Exp(x[2+K])
	p.SigmaV = math.Exp(x[3+K])
	copy(p.Delta, x[4+K:4+K+len(p.Delta)])
	copy(p.Trend, x[4+K+len(p.Delta):])
}
