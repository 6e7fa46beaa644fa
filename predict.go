package bsts

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/statespace"
)

// Predict projects the series beyond the training window, one step per row of
// the given control table, under the hypothesis that the dynamics which
// generated the training window simply continue. The latent slope and trend
// resume from their fitted end-of-window means. With noise set, observation
// and innovation noise at the posterior mean scales is added on top of the
// expected path; without it the projection is deterministic and repeated
// calls return identical results.
func (f *Fit) Predict(features *dataset.Table, noise bool) ([]float64, error) {
	if f == nil || f.trace == nil {
		return nil, ErrInferenceNotRun
	}
	if features.Cols() != f.numControls {
		return nil, fmt.Errorf("got %d control columns against a fit over %d, %w",
			features.Cols(), f.numControls, statespace.ErrDimensionMismatch)
	}

	var rng *rand.Rand
	if noise {
		rng = f.noiseRand()
	}
	return f.simulate(features, rng), nil
}

// PredictTrajectories simulates numTrajectories independent noisy projections
// over the horizon covered by the control table, one trajectory per output
// row. Trajectories share the posterior point estimates and nothing else, so
// the ensemble spread at each step is a Monte Carlo view of the forecast
// uncertainty.
func (f *Fit) PredictTrajectories(features *dataset.Table, numTrajectories int) ([][]float64, error) {
	if f == nil || f.trace == nil {
		return nil, ErrInferenceNotRun
	}
	if numTrajectories <= 0 {
		return nil, fmt.Errorf("got %d trajectories, %w", numTrajectories, ErrInvalidSampleCount)
	}
	if features.Cols() != f.numControls {
		return nil, fmt.Errorf("got %d control columns against a fit over %d, %w",
			features.Cols(), f.numControls, statespace.ErrDimensionMismatch)
	}

	// trajectory seeds come from a single master stream drawn ahead of the
	// workers, so a seeded fit reproduces the ensemble regardless of how the
	// work gets scheduled
	master := f.noiseRand()
	seeds := make([][2]uint64, numTrajectories)
	for i := range seeds {
		seeds[i] = [2]uint64{master.Uint64(), master.Uint64()}
	}

	out := make([][]float64, numTrajectories)

	numWorkers := runtime.NumCPU()
	if numWorkers > numTrajectories {
		numWorkers = numTrajectories
	}
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewPCG(seeds[i][0], seeds[i][1]))
				out[i] = f.simulate(features, rng)
			}
		}()
	}
	for i := 0; i < numTrajectories; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out, nil
}

// simulate runs the forecast recursion over the horizon covered by the
// control table. A nil rng leaves all noise vectors zero and yields the
// expected path. The trend accumulates step by step, so the loop runs
// strictly in step order.
func (f *Fit) simulate(features *dataset.Table, rng *rand.Rand) []float64 {
	out := statespace.Regression(f.alphaHat, f.betaHat, features)
	horizon := len(out)
	if horizon == 0 {
		return out
	}

	eps := make([]float64, horizon)
	u := make([]float64, horizon)
	v := make([]float64, horizon)
	if rng != nil {
		fillNormal(eps, f.sigmaEpsHat, rng)
		fillNormal(u, f.sigmaUHat, rng)
		fillNormal(v, f.sigmaVHat, rng)
	}

	delta := f.deltaEndHat + v[0]
	trend := f.trendEndHat + delta + u[0]
	out[0] += trend + eps[0]
	for t := 1; t < horizon; t++ {
		delta += v[t]
		trend += delta + u[t]
		out[t] += trend + eps[t]
	}
	return out
}

// noiseRand derives a private generator for one simulation call. Calls are
// numbered with an atomic counter, so concurrent simulations never share a
// stream while a fixed seed still yields a reproducible sequence of calls.
func (f *Fit) noiseRand() *rand.Rand {
	if f.seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(f.seed, f.callSeq.Add(1)))
}

func fillNormal(dst []float64, sigma float64, rng *rand.Rand) {
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	for i := range dst {
		dst[i] = dist.Rand()
	}
}
