package sampler

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/go-bsts/bsts/statespace"
	"github.com/go-bsts/bsts/trace"
)

const (
	DefaultGibbsBurnIn    = 500
	DefaultGibbsThin      = 1
	DefaultGibbsScaleStep = 0.5

	progressInterval = 1000
)

// GibbsOptions represents input options for the Gibbs sampler.
type GibbsOptions struct {
	// BurnIn is the number of initial sweeps discarded before draws are
	// recorded.
	BurnIn int

	// Thin records every Thin-th sweep after burn-in. 0 keeps every sweep.
	Thin int

	// ScaleStep is the standard deviation of the log-space random walk used
	// for the scale parameters. 0 uses the default.
	ScaleStep float64

	// Seed seeds the chain. 0 derives a seed from the global generator.
	Seed uint64
}

// Validate runs basic validation on Gibbs options
func (o *GibbsOptions) Validate() (*GibbsOptions, error) {
	if o == nil {
		o = NewDefaultGibbsOptions()
	}
	if o.BurnIn < 0 {
		return nil, ErrNegativeBurnIn
	}
	if o.Thin < 0 {
		return nil, ErrInvalidThin
	}
	if o.Thin == 0 {
		o.Thin = DefaultGibbsThin
	}
	if o.ScaleStep < 0 {
		return nil, ErrInvalidStep
	}
	if o.ScaleStep == 0 {
		o.ScaleStep = DefaultGibbsScaleStep
	}
	return o, nil
}

// NewDefaultGibbsOptions returns a default set of Gibbs sampler options
func NewDefaultGibbsOptions() *GibbsOptions {
	return &GibbsOptions{
		BurnIn:    DefaultGibbsBurnIn,
		Thin:      DefaultGibbsThin,
		ScaleStep: DefaultGibbsScaleStep,
	}
}

// Gibbs sweeps the model graph one quantity at a time, drawing each latent
// state and regression parameter exactly from its Gaussian full conditional
// and moving the three scale parameters with a Metropolis step on their logs.
type Gibbs struct {
	opt *GibbsOptions
}

// NewGibbs initializes a Gibbs sampler ready to draw from a posterior.
func NewGibbs(opt *GibbsOptions) (*Gibbs, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &Gibbs{opt: opt}, nil
}

// Sample draws numSamples posterior draws for every quantity of the graph.
func (g *Gibbs) Sample(spec *statespace.Spec, numSamples int) (*trace.Trace, error) {
	if g == nil || g.opt == nil {
		return nil, ErrNoOptions
	}
	if spec == nil {
		return nil, ErrNoSpecification
	}
	tr, err := trace.New(numSamples, spec.Quantities()...)
	if err != nil {
		return nil, err
	}

	run := newGibbsRun(spec, g.opt)
	total := g.opt.BurnIn + (numSamples-1)*g.opt.Thin + 1
	draw := 0
	for i := 0; i < total; i++ {
		run.sweep()
		if (i+1)%progressInterval == 0 {
			slog.Debug("gibbs sampling progress", "sweep", i+1, "total", total)
		}
		if i < g.opt.BurnIn || (i-g.opt.BurnIn)%g.opt.Thin != 0 {
			continue
		}
		if !pointFinite(run.p) {
			return nil, fmt.Errorf("draw %d, %w", draw, ErrChainDiverged)
		}
		if err := recordPoint(tr, draw, run.p); err != nil {
			return nil, err
		}
		draw++
	}
	return tr, nil
}

// gibbsRun holds the chain state along with data precomputed once per run to
// keep the sweep loops allocation free.
type gibbsRun struct {
	opt   *GibbsOptions
	rng   *rand.Rand
	p     *statespace.Point
	y     []float64
	xcols [][]float64
	xdot  []float64
}

func newGibbsRun(spec *statespace.Spec, opt *GibbsOptions) *gibbsRun {
	features := spec.Features()
	xcols := make([][]float64, spec.NumControls())
	xdot := make([]float64, spec.NumControls())
	for k := range xcols {
		col, _ := features.Col(k)
		xcols[k] = col
		xdot[k] = floats.Dot(col, col)
	}
	return &gibbsRun{
		opt:   opt,
		rng:   newRand(opt.Seed),
		p:     initialPoint(spec),
		y:     spec.Observed(),
		xcols: xcols,
		xdot:  xdot,
	}
}

func (r *gibbsRun) sweep() {
	r.updateTrend()
	r.updateDelta()
	r.updateAlpha()
	r.updateBeta()
	r.updateScales()
}

// regression evaluates alpha + sum_k beta[k]*x[t,k] at one step.
func (r *gibbsRun) regression(t int) float64 {
	v := r.p.Alpha
	for k, col := range r.xcols {
		v += r.p.Beta[k] * col[t]
	}
	return v
}

func (r *gibbsRun) updateTrend() {
	p := r.p
	T := len(p.Trend)
	sigE2 := p.SigmaEps * p.SigmaEps
	sigU2 := p.SigmaU * p.SigmaU
	for t := 0; t < T; t++ {
		prec := 1.0 / sigE2
		num := (r.y[t] - r.regression(t)) / sigE2
		if t > 0 {
			prec += 1.0 / sigU2
			num += (p.Trend[t-1] + p.Delta[t-1]) / sigU2
		}
		if t < T-1 {
			prec += 1.0 / sigU2
			num += (p.Trend[t+1] - p.Delta[t]) / sigU2
		}
		p.Trend[t] = distuv.Normal{Mu: num / prec, Sigma: math.Sqrt(1.0 / prec), Src: r.rng}.Rand()
	}
}

func (r *gibbsRun) updateDelta() {
	p := r.p
	n := len(p.Delta)
	sigU2 := p.SigmaU * p.SigmaU
	sigV2 := p.SigmaV * p.SigmaV
	for j := 0; j < n; j++ {
		prec := 1.0 / sigU2
		num := (p.Trend[j+1] - p.Trend[j]) / sigU2
		if j > 0 {
			prec += 1.0 / sigV2
			num += p.Delta[j-1] / sigV2
		}
		if j < n-1 {
			prec += 1.0 / sigV2
			num += p.Delta[j+1] / sigV2
		}
		p.Delta[j] = distuv.Normal{Mu: num / prec, Sigma: math.Sqrt(1.0 / prec), Src: r.rng}.Rand()
	}
}

func (r *gibbsRun) updateAlpha() {
	p := r.p
	sigE2 := p.SigmaEps * p.SigmaEps
	priorPrec := 1.0 / (statespace.CoefPriorSigma * statespace.CoefPriorSigma)

	sum := 0.0
	for t := range r.y {
		w := r.y[t] - p.Trend[t]
		for k, col := range r.xcols {
			w -= p.Beta[k] * col[t]
		}
		sum += w
	}
	prec := float64(len(r.y))/sigE2 + priorPrec
	num := sum / sigE2
	p.Alpha = distuv.Normal{Mu: num / prec, Sigma: math.Sqrt(1.0 / prec), Src: r.rng}.Rand()
}

func (r *gibbsRun) updateBeta() {
	p := r.p
	sigE2 := p.SigmaEps * p.SigmaEps
	priorPrec := 1.0 / (statespace.CoefPriorSigma * statespace.CoefPriorSigma)

	for k := range p.Beta {
		col := r.xcols[k]
		sum := 0.0
		for t := range r.y {
			w := r.y[t] - p.Trend[t] - p.Alpha
			for j, other := range r.xcols {
				if j == k {
					continue
				}
				w -= p.Beta[j] * other[t]
			}
			sum += col[t] * w
		}
		// an all-zero control contributes nothing and the draw falls back to
		// the prior
		prec := r.xdot[k]/sigE2 + priorPrec
		num := sum / sigE2
		p.Beta[k] = distuv.Normal{Mu: num / prec, Sigma: math.Sqrt(1.0 / prec), Src: r.rng}.Rand()
	}
}

func (r *gibbsRun) updateScales() {
	p := r.p
	T := len(p.Trend)

	sseEps := 0.0
	for t := range r.y {
		w := r.y[t] - p.Trend[t] - r.regression(t)
		sseEps += w * w
	}
	p.SigmaEps = r.mhScale(p.SigmaEps, float64(T), sseEps)

	sseU := 0.0
	for t := 1; t < T; t++ {
		w := p.Trend[t] - p.Trend[t-1] - p.Delta[t-1]
		sseU += w * w
	}
	p.SigmaU = r.mhScale(p.SigmaU, float64(T-1), sseU)

	sseV := 0.0
	for j := 1; j < len(p.Delta); j++ {
		w := p.Delta[j] - p.Delta[j-1]
		sseV += w * w
	}
	p.SigmaV = r.mhScale(p.SigmaV, float64(len(p.Delta)-1), sseV)
}

// mhScale moves one scale parameter with a random walk on its log. The
// acceptance ratio carries the log transform Jacobian so the walk targets the
// density of the log scale. Proposals below the numerical floor are rejected.
func (r *gibbsRun) mhScale(cur, n, sse float64) float64 {
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: r.rng}.Rand()
	prop := cur * math.Exp(r.opt.ScaleStep*z)
	if math.IsNaN(prop) || math.IsInf(prop, 0) || prop < scaleFloor {
		return cur
	}

	logPost := func(s float64) float64 {
		prior := (s * s) / (2.0 * statespace.ScalePriorSigma * statespace.ScalePriorSigma)
		return -n*math.Log(s) - sse/(2.0*s*s) - prior + math.Log(s)
	}
	if math.Log(r.rng.Float64()) < logPost(prop)-logPost(cur) {
		return prop
	}
	return cur
}
