package pipeline

import (
	"context"
	"time"

	"enem-dashboard/internal/model"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ChartSpec names the column pair of one scatter chart
type ChartSpec struct {
	X, Y model.Column
}

// DefaultCharts are the two correlation charts of the dashboard
var DefaultCharts = []ChartSpec{
	{X: model.ColumnGDP, Y: model.ColumnScore},
	{X: model.ColumnPerCapita, Y: model.ColumnScore},
}

// Session is one user's view of a shared, read-only dataset. Every call to
// Compute recomputes all outputs from scratch; sessions share nothing but the
// dataset.
type Session struct {
	ID string

	dataset    *model.Dataset
	logger     log.Logger
	metrics    *Metrics
	trendliner Trendliner
	topN       int
	charts     []ChartSpec
}

// SessionOption configures a Session
type SessionOption func(*Session)

func WithLogger(logger log.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithTrendliner replaces the OLS trend line; nil disables trend lines
func WithTrendliner(t Trendliner) SessionOption {
	return func(s *Session) { s.trendliner = t }
}

func WithTopN(n int) SessionOption {
	return func(s *Session) { s.topN = n }
}

func WithCharts(charts ...ChartSpec) SessionOption {
	return func(s *Session) { s.charts = charts }
}

// NewSession creates a session with a fresh ID over ds
func NewSession(ds *model.Dataset, opts ...SessionOption) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		dataset:    ds,
		logger:     log.NewNopLogger(),
		trendliner: OLS{},
		topN:       DefaultTopN,
		charts:     DefaultCharts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With(s.logger, "session", s.ID)
	return s
}

// Dataset returns the dataset the session reads from
func (s *Session) Dataset() *model.Dataset { return s.dataset }

// Compute runs filter, metrics, grouping, ranking and chart preparation for c.
// An empty view is a valid result with Empty set.
func (s *Session) Compute(ctx context.Context, c model.FilterCriteria) (*model.Dashboard, FilteredView, error) {
	if err := ctx.Err(); err != nil {
		return nil, FilteredView{}, err
	}
	start := time.Now()

	view := Apply(s.dataset, c)
	dash := &model.Dashboard{
		SessionID:  s.ID,
		Criteria:   c,
		Empty:      view.Len() == 0,
		Metrics:    Summarize(view),
		AdminMeans: GroupMeanByAdmin(view),
		Top:        RankRows(TopN(view, s.topN, model.ColumnScore)),
		ComputedAt: start.UTC(),
	}

	for _, spec := range s.charts {
		chart, err := PrepareChart(view, spec.X, spec.Y, s.trendliner)
		if err != nil {
			return nil, FilteredView{}, errors.Wrap(err, "prepare chart")
		}
		if s.trendliner != nil && !chart.TrendlineAvailable {
			s.metrics.trendlineFailed()
			level.Debug(s.logger).Log("msg", "chart without trend line", "chart", chart.Title, "note", chart.Note)
		}
		dash.Charts = append(dash.Charts, chart)
	}

	dash.Duration = time.Since(start)
	s.metrics.recomputed(view.Len(), dash.Duration)
	if dash.Empty {
		level.Info(s.logger).Log("msg", "no rows match the selected filters")
	} else {
		level.Debug(s.logger).Log("msg", "dashboard computed", "rows", view.Len(), "municipalities", dash.Metrics.Count, "duration", dash.Duration)
	}
	return dash, view, nil
}
