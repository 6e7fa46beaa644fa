package main

import (
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// lineSeries generates an echart multi-line chart for some arbitrary
// time/value combination. Every series must have the same length as the time
// slice.
func lineSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	lineData := make([][]opts.LineData, len(y))
	for i := range y {
		lineData[i] = make([]opts.LineData, 0, len(y[i]))
		for _, v := range y[i] {
			lineData[i] = append(lineData[i], opts.LineData{Value: v})
		}
	}

	line = line.SetXAxis(t)
	for i, name := range seriesName {
		line = line.AddSeries(name, lineData[i])
	}
	return line
}

// lineFit generates an echart line chart laying the observed and fitted
// training series next to the forecast band over the horizon on one shared
// time axis.
func lineFit(tTrain []time.Time, observed, fitted []float64, tHorizon []time.Time, forecast, upper, lower []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: "Model Fit",
			},
		),
	)

	t := make([]time.Time, 0, len(tTrain)+len(tHorizon))
	t = append(t, tTrain...)
	t = append(t, tHorizon...)

	line.SetXAxis(t).
		AddSeries("Observed", padded(observed, len(tHorizon), false)).
		AddSeries("Fitted", padded(fitted, len(tHorizon), false)).
		AddSeries("Forecast", padded(forecast, len(tTrain), true)).
		AddSeries("Upper", padded(upper, len(tTrain), true)).
		AddSeries("Lower", padded(lower, len(tTrain), true))
	return line
}

// padded converts a series to chart points with pad empty points appended, or
// prepended when leading is set, so every series spans the shared axis.
func padded(y []float64, pad int, leading bool) []opts.LineData {
	data := make([]opts.LineData, 0, len(y)+pad)
	if leading {
		for i := 0; i < pad; i++ {
			data = append(data, opts.LineData{})
		}
	}
	for _, v := range y {
		data = append(data, opts.LineData{Value: v})
	}
	if !leading {
		for i := 0; i < pad; i++ {
			data = append(data, opts.LineData{})
		}
	}
	return data
}
