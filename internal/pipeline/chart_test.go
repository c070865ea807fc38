package pipeline

import (
	"strings"
	"testing"

	"enem-dashboard/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingTrendliner struct{}

func (failingTrendliner) Fit(_, _ []float64) (model.Trendline, error) {
	return model.Trendline{}, errors.New("solver exploded")
}

type panickingTrendliner struct{}

func (panickingTrendliner) Fit(_, _ []float64) (model.Trendline, error) {
	panic("index out of range")
}

func TestOLSFit(t *testing.T) {
	line, err := OLS{}.Fit([]float64{1, 2, 3, 4}, []float64{3, 5, 7, 9})
	require.NoError(t, err)
	assert.Equal(t, "ols", line.Method)
	assert.InDelta(t, 2, line.Slope, 1e-9)
	assert.InDelta(t, 1, line.Intercept, 1e-9)
	assert.InDelta(t, 1, line.RSquared, 1e-9)

	_, err = OLS{}.Fit([]float64{1}, []float64{2})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = OLS{}.Fit([]float64{2, 2, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInsufficientData)

	for _, y := range [][]float64{{5, 5, 5}, {0.1, 0.1, 0.1}, {1e-7, 1e-7, 1e-7}} {
		line, err = OLS{}.Fit([]float64{1, 2, 3}, y)
		require.NoError(t, err)
		assert.InDelta(t, 0, line.Slope, 1e-9, "%v", y)
		assert.Equal(t, 1.0, line.RSquared, "%v", y)
	}
}

func TestPrepareChart(t *testing.T) {
	v := Apply(scenarioDataset(), scenarioCriteria())

	chart, err := PrepareChart(v, model.ColumnGDP, model.ColumnScore, OLS{})
	require.NoError(t, err)
	assert.Equal(t, "PIB_MUNICIPIO vs MED_ENEM", chart.Title)
	require.Len(t, chart.Points, 2)
	assert.Equal(t, model.ChartPoint{X: 1e6, Y: 500, Group: "Federal", Label: "Muni A"}, chart.Points[0])
	assert.Equal(t, model.ChartPoint{X: 2e6, Y: 600, Group: "State", Label: "Muni B"}, chart.Points[1])

	require.True(t, chart.TrendlineAvailable)
	require.NotNil(t, chart.Trendline)
	assert.InDelta(t, 1e-4, chart.Trendline.Slope, 1e-12)
	assert.InDelta(t, 400, chart.Trendline.Intercept, 1e-6)
	assert.Empty(t, chart.Note)
}

func TestPrepareChartDegradesWithoutTrendline(t *testing.T) {
	v := Apply(scenarioDataset(), scenarioCriteria())

	tests := []struct {
		name    string
		t       Trendliner
		noteHas string
		hidden  bool
	}{
		{"fit error", failingTrendliner{}, "solver exploded", true},
		{"fit panic", panickingTrendliner{}, "panicked", true},
		{"not requested", nil, "not requested", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chart, err := PrepareChart(v, model.ColumnPerCapita, model.ColumnScore, tt.t)
			require.NoError(t, err)
			assert.Len(t, chart.Points, 2)
			assert.False(t, chart.TrendlineAvailable)
			assert.Nil(t, chart.Trendline)
			assert.Contains(t, chart.Note, tt.noteHas)
			assert.Equal(t, tt.hidden, strings.HasSuffix(chart.Title, "(trend line hidden)"))
		})
	}
}

func TestPrepareChartSinglePoint(t *testing.T) {
	c := scenarioCriteria()
	c.Municipalities = []string{"Muni B"}
	chart, err := PrepareChart(Apply(scenarioDataset(), c), model.ColumnGDP, model.ColumnScore, OLS{})
	require.NoError(t, err)
	assert.Len(t, chart.Points, 1)
	assert.False(t, chart.TrendlineAvailable)
	assert.Contains(t, chart.Note, ErrInsufficientData.Error())
}

func TestPrepareChartEmptyView(t *testing.T) {
	chart, err := PrepareChart(Apply(nil, scenarioCriteria()), model.ColumnGDP, model.ColumnScore, OLS{})
	require.NoError(t, err)
	assert.Empty(t, chart.Points)
	assert.False(t, chart.TrendlineAvailable)
}

func TestPrepareChartUnknownColumn(t *testing.T) {
	v := Apply(scenarioDataset(), scenarioCriteria())

	_, err := PrepareChart(v, model.Column("NOPE"), model.ColumnScore, OLS{})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = PrepareChart(v, model.ColumnGDP, model.Column("NOPE"), OLS{})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
