package pipeline

import (
	"fmt"
	"math"

	"enem-dashboard/internal/model"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownColumn is returned for a column that cannot be plotted
var ErrUnknownColumn = errors.New("unknown column")

// Trendliner fits a trend line through scatter points
type Trendliner interface {
	Fit(x, y []float64) (model.Trendline, error)
}

// OLS fits y = a + b*x by ordinary least squares
type OLS struct{}

func (OLS) Fit(x, y []float64) (model.Trendline, error) {
	if len(x) < 2 || constant(x) {
		return model.Trendline{}, ErrInsufficientData
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return model.Trendline{}, errors.New("regression did not converge")
	}
	// a constant y is fitted exactly
	r2 := 1.0
	if !constant(y) {
		r2 = stat.RSquared(x, y, nil, alpha, beta)
	}
	return model.Trendline{Method: "ols", Slope: beta, Intercept: alpha, RSquared: r2}, nil
}

// PrepareChart builds scatter points for the (x, y) column pair. Points are
// produced unconditionally; the trend line is fitted afterwards and any
// failure of t (error or panic) only clears TrendlineAvailable and sets Note.
// A nil t skips the trend line.
func PrepareChart(v FilteredView, x, y model.Column, t Trendliner) (model.ChartData, error) {
	if _, ok := x.Value(model.Record{}); !ok {
		return model.ChartData{}, errors.Wrap(ErrUnknownColumn, string(x))
	}
	if _, ok := y.Value(model.Record{}); !ok {
		return model.ChartData{}, errors.Wrap(ErrUnknownColumn, string(y))
	}

	chart := model.ChartData{
		Title:  fmt.Sprintf("%s vs %s", x, y),
		X:      x,
		Y:      y,
		Points: make([]model.ChartPoint, v.Len()),
	}
	xs := make([]float64, v.Len())
	ys := make([]float64, v.Len())
	for i := 0; i < v.Len(); i++ {
		rec := v.Record(i)
		xs[i], _ = x.Value(rec)
		ys[i], _ = y.Value(rec)
		chart.Points[i] = model.ChartPoint{
			X:     xs[i],
			Y:     ys[i],
			Group: rec.Admin.Label(),
			Label: rec.Municipality,
		}
	}

	if t == nil {
		chart.Note = "trend line not requested"
		return chart, nil
	}
	line, err := fitSafely(t, xs, ys)
	if err != nil {
		chart.Title += " (trend line hidden)"
		chart.Note = "trend line unavailable: " + err.Error()
		return chart, nil
	}
	chart.Trendline = &line
	chart.TrendlineAvailable = true
	return chart, nil
}

func fitSafely(t Trendliner, x, y []float64) (line model.Trendline, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("trend line fit panicked: %v", r)
		}
	}()
	return t.Fit(x, y)
}
