package pipeline

import (
	"math"
	"sort"

	"enem-dashboard/internal/model"

	"gonum.org/v1/gonum/stat"
)

// DefaultTopN is the size of the ranking table
const DefaultTopN = 10

// Summarize computes the headline metrics of a view. Means are undefined on
// an empty view; the correlation is undefined with fewer than two rows or when
// either series is constant.
func Summarize(v FilteredView) model.Metrics {
	m := model.Metrics{Rows: v.Len()}
	if v.Len() == 0 {
		return m
	}

	munis := make(map[string]struct{})
	var sumScore, sumGDP float64
	score := make([]float64, v.Len())
	perCapita := make([]float64, v.Len())
	for i := 0; i < v.Len(); i++ {
		rec := v.Record(i)
		munis[rec.Municipality] = struct{}{}
		sumScore += rec.Score
		sumGDP += rec.GDP
		score[i] = rec.Score
		perCapita[i] = rec.PerCapita
	}

	n := float64(v.Len())
	m.Count = len(munis)
	m.MeanScore = model.Some(sumScore / n)
	m.MeanGDP = model.Some(sumGDP / n)
	m.Correlation = pearson(perCapita, score)
	return m
}

// pearson returns the correlation coefficient of x and y, clamped to [-1, 1]
func pearson(x, y []float64) model.OptionalFloat {
	if len(x) < 2 || len(x) != len(y) || constant(x) || constant(y) {
		return model.OptionalFloat{}
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return model.OptionalFloat{}
	}
	return model.Some(math.Max(-1, math.Min(1, r)))
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// ------------------- Group aggregation -------------------

type adminAccumulator struct {
	code  model.AdminType
	sum   float64
	count int
}

// GroupMeanByAdmin returns the mean score of every administration label
// present in the view, ordered Federal, State, Municipal, Unknown. All
// unknown codes share the Unknown group.
func GroupMeanByAdmin(v FilteredView) []model.AdminMean {
	groups := make(map[string]*adminAccumulator)
	for i := 0; i < v.Len(); i++ {
		rec := v.Record(i)
		label := rec.Admin.Label()
		acc, ok := groups[label]
		if !ok {
			acc = &adminAccumulator{code: rec.Admin}
			groups[label] = acc
		}
		acc.sum += rec.Score
		acc.count++
	}

	out := make([]model.AdminMean, 0, len(groups))
	for label, acc := range groups {
		out = append(out, model.AdminMean{
			Code:      acc.code,
			Label:     label,
			MeanScore: acc.sum / float64(acc.count),
			Rows:      acc.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return adminOrder(out[i].Code) < adminOrder(out[j].Code)
	})
	return out
}

func adminOrder(a model.AdminType) int {
	if a.Known() {
		return int(a)
	}
	return math.MaxInt
}

// ------------------- Ranking -------------------

// TopN returns up to n rows of the view sorted by key, highest first. Ties
// keep dataset order. A non-positive n or an unknown key returns nothing.
func TopN(v FilteredView, n int, key model.Column) []model.Record {
	if n <= 0 || v.Len() == 0 {
		return nil
	}
	if _, ok := key.Value(model.Record{}); !ok {
		return nil
	}

	rows := v.Records()
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := key.Value(rows[i])
		b, _ := key.Value(rows[j])
		return a > b
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// RankRows converts ranked records into table rows
func RankRows(records []model.Record) []model.RankedRow {
	out := make([]model.RankedRow, len(records))
	for i, rec := range records {
		out[i] = model.RankedRow{
			Rank:         i + 1,
			Municipality: rec.Municipality,
			Score:        rec.Score,
			Year:         rec.Year,
			AdminLabel:   rec.Admin.Label(),
		}
	}
	return out
}
