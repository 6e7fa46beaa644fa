// Command bsts-sim simulates a local linear trend series with a weekend
// effect, fits the structural time series model to it, and writes the fitted
// signal, a forecast fan, and the posterior trace to disk.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/go-bsts/bsts"
	"github.com/go-bsts/bsts/dataset"
	"github.com/go-bsts/bsts/regressor"
	"github.com/go-bsts/bsts/sampler"
)

func main() {
	var (
		steps        = flag.Int("steps", 200, "number of training steps to simulate")
		horizon      = flag.Int("horizon", 40, "number of steps to forecast beyond training")
		samples      = flag.Int("samples", 500, "number of posterior draws")
		trajectories = flag.Int("trajectories", 200, "number of forecast trajectories for the fan")
		seed         = flag.Uint64("seed", 42, "seed for simulation, sampling, and forecasting")
		outDir       = flag.String("out", ".", "output directory for the chart and trace")
	)
	flag.Parse()

	if err := run(*steps, *horizon, *samples, *trajectories, *seed, *outDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(steps, horizon, samples, trajectories int, seed uint64, outDir string) error {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tTrain := regressor.Timeline(steps, start, 24*time.Hour)
	tHorizon := regressor.Timeline(horizon, start.Add(time.Duration(steps)*24*time.Hour), 24*time.Hour)

	rng := rand.New(rand.NewPCG(seed, seed+1))

	weekendTrain := regressor.Weekend(tTrain)
	weekendHorizon := regressor.Weekend(tHorizon)

	weekendEffect := make(dataset.Series, steps)
	floats.AddScaled(weekendEffect, -2.0, weekendTrain)

	observed := dataset.LocalLinearTrendSeries(rng, steps, 10.0, 0.05, 0.1, 0.01).
		Add(weekendEffect).
		Add(dataset.NoiseSeries(rng, steps, 0.5))

	features, err := dataset.FromColumns(weekendTrain)
	if err != nil {
		return fmt.Errorf("unable to assemble training controls, %w", err)
	}
	horizonTable, err := dataset.FromColumns(weekendHorizon)
	if err != nil {
		return fmt.Errorf("unable to assemble horizon controls, %w", err)
	}

	gibbs, err := sampler.NewGibbs(&sampler.GibbsOptions{Seed: seed})
	if err != nil {
		return err
	}
	m, err := bsts.New(&bsts.Options{Sampler: gibbs, Seed: seed})
	if err != nil {
		return err
	}

	fit, err := m.Fit(features, observed, samples)
	if err != nil {
		return fmt.Errorf("unable to fit simulated series, %w", err)
	}

	scores := fit.Scores()
	fmt.Printf("mse: %.4f  mape: %.4f  r2: %.4f\n", scores.MSE, scores.MAPE, scores.R2)

	forecast, err := fit.Predict(horizonTable, false)
	if err != nil {
		return fmt.Errorf("unable to forecast horizon, %w", err)
	}
	ensemble, err := fit.PredictTrajectories(horizonTable, trajectories)
	if err != nil {
		return fmt.Errorf("unable to simulate forecast trajectories, %w", err)
	}
	lower, upper := fanBounds(ensemble)

	traceData, err := json.Marshal(fit.Trace())
	if err != nil {
		return fmt.Errorf("unable to serialize posterior trace, %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "bsts_sim_trace.json"), traceData, 0o644); err != nil {
		return err
	}

	page := components.NewPage()
	page.AddCharts(
		lineFit(tTrain, observed, fit.Fitted(), tHorizon, forecast, upper, lower),
		lineSeries("Fit Residual", []string{"Residual"}, tTrain, [][]float64{fit.Residuals()}),
	)
	file, err := os.Create(filepath.Join(outDir, "bsts_sim.html"))
	if err != nil {
		return err
	}
	defer file.Close()
	return page.Render(file)
}

// fanBounds reduces a trajectory ensemble to pointwise 10th and 90th
// percentile bands.
func fanBounds(ensemble [][]float64) (lower, upper []float64) {
	if len(ensemble) == 0 {
		return nil, nil
	}
	n := len(ensemble[0])
	lower = make([]float64, n)
	upper = make([]float64, n)
	col := make([]float64, len(ensemble))
	for t := 0; t < n; t++ {
		for i, traj := range ensemble {
			col[i] = traj[t]
		}
		sort.Float64s(col)
		lower[t] = stat.Quantile(0.1, stat.Empirical, col, nil)
		upper[t] = stat.Quantile(0.9, stat.Empirical, col, nil)
	}
	return lower, upper
}
