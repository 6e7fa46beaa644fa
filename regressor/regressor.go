// Package regressor builds control series from wall-clock timestamps. Each
// builder returns one dummy column aligned to a timeline, ready to assemble
// into a control table with dataset.FromColumns.
package regressor

import (
	"errors"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var ErrStartAfterEnd = errors.New("window start time is after end time")

// Timeline returns n timestamps starting at start and spaced by interval.
func Timeline(n int, start time.Time, interval time.Duration) []time.Time {
	t := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = append(t, start.Add(interval*time.Duration(i)))
	}
	return t
}

// Weekend returns a column that is 1 on Saturdays and Sundays and 0 elsewhere.
func Weekend(t []time.Time) []float64 {
	out := make([]float64, len(t))
	for i, ts := range t {
		switch ts.Weekday() {
		case time.Saturday, time.Sunday:
			out[i] = 1.0
		}
	}
	return out
}

// BusinessDay returns a column that is 1 on workdays of the calendar and 0
// elsewhere. A nil calendar falls back to a business calendar observing US
// holidays.
func BusinessDay(c *cal.BusinessCalendar, t []time.Time) []float64 {
	if c == nil {
		c = cal.NewBusinessCalendar()
		c.AddHoliday(us.Holidays...)
	}
	out := make([]float64, len(t))
	for i, ts := range t {
		if c.IsWorkday(ts) {
			out[i] = 1.0
		}
	}
	return out
}

// Window returns a column that is 1 from start inclusive to end exclusive and
// 0 elsewhere.
func Window(t []time.Time, start, end time.Time) ([]float64, error) {
	if start.After(end) {
		return nil, ErrStartAfterEnd
	}
	out := make([]float64, len(t))
	for i, ts := range t {
		if (ts.After(start) || ts.Equal(start)) && ts.Before(end) {
			out[i] = 1.0
		}
	}
	return out, nil
}

// Holiday returns a column that is 1 inside a window around each yearly
// observance of the holiday spanned by the timeline and 0 elsewhere. The
// window opens durBefore ahead of the observed day and closes durAfter past
// its end. The timeline must be in increasing order.
func Holiday(hol *cal.Holiday, t []time.Time, durBefore, durAfter time.Duration) []float64 {
	out := make([]float64, len(t))
	if len(t) == 0 {
		return out
	}

	loc := t[0].Location()
	_, locOffset := t[0].Zone()
	for year := t[0].Year(); year <= t[len(t)-1].Year(); year++ {
		_, observed := hol.Calc(year)
		_, offset := observed.Zone()

		observed = observed.Add(time.Duration(offset) * time.Second).In(loc).Add(time.Duration(-locOffset) * time.Second)

		start := observed.Add(-durBefore)
		end := observed.Add(24 * time.Hour).Add(durAfter)
		for i, ts := range t {
			if (ts.After(start) || ts.Equal(start)) && ts.Before(end) {
				out[i] = 1.0
			}
		}
	}
	return out
}

func Christmas(t []time.Time, durBefore, durAfter time.Duration) []float64 {
	return Holiday(us.ChristmasDay, t, durBefore, durAfter)
}

func Thanksgiving(t []time.Time, durBefore, durAfter time.Duration) []float64 {
	return Holiday(us.ThanksgivingDay, t, durBefore, durAfter)
}
